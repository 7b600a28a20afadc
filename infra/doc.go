// Package infra contains technical adapters: the gonum LP engine, the
// zerolog logger, metrics exporters and the MQTT publisher. These packages
// implement or consume interfaces defined in the core packages.
package infra
