package benders

import "math"

type convergence struct {
	Expected  float64
	Gap       float64
	Converged bool
}

// checkConvergence compares θ with the realized expected recourse of the
// dispatch just evaluated.
func checkConvergence(theta, expected, epsilon float64) convergence {
	gap := expected - theta
	if math.IsInf(theta, -1) {
		gap = math.Inf(1)
	}
	return convergence{
		Expected:  expected,
		Gap:       gap,
		Converged: theta >= expected-epsilon,
	}
}
