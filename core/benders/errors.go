package benders

import (
	"errors"
	"fmt"

	"github.com/kilianp07/benders/core/solver"
)

var (
	// ErrInfeasibleMaster is returned when the master LP has no feasible point.
	ErrInfeasibleMaster = errors.New("infeasible master problem")
	// ErrInfeasibleSubproblem is returned when a scenario cannot be rebalanced
	// around the current dispatch.
	ErrInfeasibleSubproblem = errors.New("infeasible subproblem")
	// ErrUnboundedModel signals a data error such as a missing bound.
	ErrUnboundedModel = errors.New("unbounded model")
	// ErrNonConvergence is reported when the iteration or time budget is spent.
	ErrNonConvergence = errors.New("decomposition did not converge")
)

// Phase names the step of the loop an error originated from.
type Phase string

const (
	PhaseMaster     Phase = "master"
	PhaseSubproblem Phase = "subproblem"
)

// PhaseError carries enough context to reproduce a failed solve.
type PhaseError struct {
	Phase    Phase
	Round    int
	Scenario string
	Err      error
}

func (e *PhaseError) Error() string {
	if e.Scenario != "" {
		return fmt.Sprintf("%s round %d scenario %s: %v", e.Phase, e.Round, e.Scenario, e.Err)
	}
	return fmt.Sprintf("%s round %d: %v", e.Phase, e.Round, e.Err)
}

func (e *PhaseError) Unwrap() error { return e.Err }

// statusError maps a non-optimal solver status to the sentinel of the phase.
func statusError(phase Phase, st solver.Status) error {
	switch st {
	case solver.StatusInfeasible:
		if phase == PhaseMaster {
			return ErrInfeasibleMaster
		}
		return ErrInfeasibleSubproblem
	case solver.StatusUnbounded:
		return ErrUnboundedModel
	default:
		return fmt.Errorf("solver returned status %s", st)
	}
}
