package solver

// Status is the outcome of a solve.
type Status int

const (
	StatusOther Status = iota
	StatusOptimal
	StatusInfeasible
	StatusUnbounded
)

// String returns a human-readable representation of the status.
func (s Status) String() string {
	switch s {
	case StatusOptimal:
		return "OPTIMAL"
	case StatusInfeasible:
		return "INFEASIBLE"
	case StatusUnbounded:
		return "UNBOUNDED"
	default:
		return "OTHER"
	}
}
