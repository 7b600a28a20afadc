package benders

import "github.com/kilianp07/benders/core/model"

// generateCuts derives one optimality cut per scenario result. The balance
// dual multiplies the aggregate residual, so every generator shares the
// same coefficient.
func generateCuts(round, generators int, results []ScenarioResult) []model.Cut {
	cuts := make([]model.Cut, len(results))
	for i, r := range results {
		coeffs := make([]float64, generators)
		for g := range coeffs {
			coeffs[g] = r.BalanceDual
		}
		cuts[i] = model.Cut{Round: round, Scenario: r.Scenario, Coeffs: coeffs, RHS: r.Cost}
	}
	return cuts
}
