package events

import "github.com/kilianp07/benders/core/model"

// Iteration is published once per completed round.
type Iteration struct {
	RunID string
	Round int
	// Dispatch is the day-ahead dispatch of the round. Subscribers must not
	// modify it.
	Dispatch         model.Dispatch
	Theta            float64
	LowerBound       float64
	ExpectedRecourse float64
	Gap              float64
	Cuts             int
	Converged        bool
}
