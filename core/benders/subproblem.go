package benders

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/kilianp07/benders/core/model"
	"github.com/kilianp07/benders/core/solver"
)

// ScenarioResult is the recourse outcome of one scenario for a fixed dispatch.
type ScenarioResult struct {
	Scenario int
	// Cost is the optimal real-time adjustment cost.
	Cost float64
	// BalanceDual is the shadow price of the real-time balance constraint.
	BalanceDual float64
}

type subproblemVariables struct {
	Up   []solver.Var
	Down []solver.Var
}

type subproblemConstraints struct {
	Balance  solver.Constr
	Capacity []solver.Constr
}

func buildSubproblem(s solver.Solver, p *model.Problem, d model.Dispatch, scenario int) (solver.Model, subproblemVariables, subproblemConstraints) {
	m := s.NewModel("subproblem_"+p.Scenarios[scenario].ID, solver.Minimize)
	n := len(p.Generators)
	vars := subproblemVariables{Up: make([]solver.Var, n), Down: make([]solver.Var, n)}
	cons := subproblemConstraints{Capacity: make([]solver.Constr, n)}

	var obj, balance solver.Expr
	for i, g := range p.Generators {
		vars.Up[i] = m.AddVar("up_"+g.ID, 0, g.UpLimit)
		vars.Down[i] = m.AddVar("down_"+g.ID, 0, g.DownLimit)
		obj = obj.Add(g.UpCost, vars.Up[i]).Add(-g.DownCost, vars.Down[i])
		balance = balance.Add(1, vars.Up[i]).Add(-1, vars.Down[i])
	}
	// Σ (dispatch + up − down) + renewable = load
	rhs := p.Load - p.RenewableOutput(scenario) - d.Total()
	cons.Balance = m.AddConstr("balance", balance, solver.Equal, rhs)
	for i, g := range p.Generators {
		e := solver.Expr{}.Add(1, vars.Up[i]).Add(-1, vars.Down[i])
		cons.Capacity[i] = m.AddConstr("capacity_"+g.ID, e, solver.LessEqual, g.Capacity-d[i])
	}
	m.SetObjective(obj)
	return m, vars, cons
}

// solveSubproblem computes the cheapest rebalancing of one scenario.
func solveSubproblem(ctx context.Context, s solver.Solver, p *model.Problem, d model.Dispatch, scenario int) (ScenarioResult, error) {
	m, _, cons := buildSubproblem(s, p, d, scenario)
	sol, err := m.Solve(ctx)
	if err != nil {
		return ScenarioResult{}, err
	}
	if !sol.IsOptimal() {
		return ScenarioResult{}, statusError(PhaseSubproblem, sol.Status)
	}
	return ScenarioResult{
		Scenario:    scenario,
		Cost:        sol.Objective,
		BalanceDual: sol.Dual(cons.Balance),
	}, nil
}

// solveScenarios fans the scenario subproblems out on at most workers
// goroutines and waits for all of them. Results are indexed like
// p.Scenarios. The first failure cancels the remaining solves.
func solveScenarios(ctx context.Context, s solver.Solver, p *model.Problem, d model.Dispatch, round, workers int) ([]ScenarioResult, error) {
	results := make([]ScenarioResult, len(p.Scenarios))
	g, gctx := errgroup.WithContext(ctx)
	if workers > 0 {
		g.SetLimit(workers)
	}
	for i := range p.Scenarios {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			r, err := solveSubproblem(gctx, s, p, d, i)
			if err != nil {
				return &PhaseError{Phase: PhaseSubproblem, Round: round, Scenario: p.Scenarios[i].ID, Err: err}
			}
			results[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// expectedRecourse returns Σ p_s·Q_s.
func expectedRecourse(p *model.Problem, results []ScenarioResult) float64 {
	var sum float64
	for _, r := range results {
		sum += p.Scenarios[r.Scenario].Probability * r.Cost
	}
	return sum
}

// Evaluate prices a fixed schedule, keyed by generator id, on every scenario
// of p, for instance an out-of-sample scenario set, and returns the results
// with their expected cost. The schedule must name exactly the generators of
// p. Failures are reported as *PhaseError with round 0.
func Evaluate(ctx context.Context, s solver.Solver, p *model.Problem, schedule map[string]float64, workers int) ([]ScenarioResult, float64, error) {
	if err := p.Validate(); err != nil {
		return nil, 0, err
	}
	d, err := p.FromIDs(schedule)
	if err != nil {
		return nil, 0, err
	}
	results, err := solveScenarios(ctx, s, p, d, 0, workers)
	if err != nil {
		return nil, 0, err
	}
	return results, expectedRecourse(p, results), nil
}
