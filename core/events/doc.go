// Package events defines the decomposition events emitted on the event bus.
//
// Available event types:
//   - Iteration: progress of one master/subproblem round
package events
