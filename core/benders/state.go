package benders

import (
	"math"

	"github.com/kilianp07/benders/core/model"
)

// IterationState is the data carried from one round to the next. Each step
// of the loop returns an updated copy; the cut slice is only ever extended.
type IterationState struct {
	Round      int
	Dispatch   model.Dispatch
	Theta      float64
	LowerBound float64
	Cuts       []model.Cut
	Scenarios  []ScenarioResult
	Expected   float64
	Gap        float64
	Converged  bool

	best *IterationState
}

func newIterationState(p *model.Problem) IterationState {
	return IterationState{
		Dispatch:   p.EvenSplit(),
		Theta:      unboundedTheta(p),
		LowerBound: math.Inf(-1),
		Gap:        math.Inf(1),
	}
}

func (s IterationState) withMaster(r masterResult) IterationState {
	s.Round++
	s.Dispatch = r.Dispatch
	s.Theta = r.Theta
	s.LowerBound = r.LowerBound
	s.Scenarios = nil
	return s
}

func (s IterationState) withRecourse(results []ScenarioResult, c convergence) IterationState {
	s.Scenarios = results
	s.Expected = c.Expected
	s.Gap = c.Gap
	s.Converged = c.Converged
	// best is ranked on weighted recourse cost alone, not total cost
	// ties favour the later round, whose θ is tighter
	if s.best == nil || s.Expected <= s.best.Expected {
		snap := s
		snap.best = nil
		s.best = &snap
	}
	return s
}

func (s IterationState) withCuts(cuts []model.Cut) IterationState {
	n := len(s.Cuts)
	s.Cuts = append(s.Cuts[:n:n], cuts...)
	return s
}

// Best returns the completed round with the lowest expected recourse cost.
func (s IterationState) Best() (IterationState, bool) {
	if s.best == nil {
		return IterationState{}, false
	}
	return *s.best, true
}
