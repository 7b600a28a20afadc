// Package metrics defines the sinks that record decomposition progress.
// Sinks like PromSink and InfluxSink (see infra/metrics) receive one
// IterationEvent per round and one RunEvent per run and can be combined with
// NewMultiSink. NewSink returns a MultiSink automatically when several sinks
// are configured.
package metrics
