package metrics

import "time"

// IterationEvent describes one master/subproblem round.
type IterationEvent struct {
	RunID string
	Round int
	// Theta and LowerBound are -Inf and Gap is +Inf while θ is unconstrained.
	Theta            float64
	LowerBound       float64
	ExpectedRecourse float64
	Gap              float64
	Cuts             int
	Converged        bool
	MasterTime       time.Duration
	SubproblemTime   time.Duration
	Time             time.Time
}

// RunEvent summarizes a finished decomposition run.
type RunEvent struct {
	RunID      string
	Iterations int
	Converged  bool
	Gap        float64
	TotalCost  float64
	Elapsed    time.Duration
	Time       time.Time
}

// Sink records decomposition metrics.
type Sink interface {
	RecordIteration(ev IterationEvent) error
	RecordRun(ev RunEvent) error
}

// NopSink discards every event.
type NopSink struct{}

func (NopSink) RecordIteration(IterationEvent) error { return nil }
func (NopSink) RecordRun(RunEvent) error             { return nil }
