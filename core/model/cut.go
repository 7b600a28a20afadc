package model

// Cut is an optimality cut θ ≥ Σ Coeffs[g]·dispatch[g] + RHS derived from one
// scenario subproblem of one round.
type Cut struct {
	Round    int
	Scenario int
	Coeffs   []float64
	RHS      float64
}

// Eval returns the lower bound imposed by the cut on θ for the given dispatch.
func (c Cut) Eval(d Dispatch) float64 {
	v := c.RHS
	for i, coeff := range c.Coeffs {
		v += coeff * d[i]
	}
	return v
}
