// Package stochastic solves the two-stage dispatch as a single
// deterministic-equivalent LP holding every scenario at once. It serves as a
// reference for the decomposed solution.
package stochastic

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/kilianp07/benders/core/model"
	"github.com/kilianp07/benders/core/solver"
)

var (
	ErrInfeasible = errors.New("extensive form infeasible")
	ErrUnbounded  = errors.New("extensive form unbounded")
)

// Solution is the optimum of the extensive form.
type Solution struct {
	Dispatch model.Dispatch
	// Up and Down are indexed [scenario][generator].
	Up   [][]float64
	Down [][]float64

	DayAheadCost     float64
	ExpectedRecourse float64
	TotalCost        float64
	// ScenarioCosts is the recourse cost of each scenario.
	ScenarioCosts []float64
	// DayAheadPrice is the dual of the day-ahead balance.
	DayAheadPrice float64
	// BalancingPrices is the dual of each real-time balance divided by the
	// scenario probability; zero for scenarios with zero probability.
	BalancingPrices []float64
}

type variables struct {
	Dispatch []solver.Var
	Up       [][]solver.Var
	Down     [][]solver.Var
}

type constraints struct {
	DayAhead solver.Constr
	RealTime []solver.Constr
	Capacity [][]solver.Constr
}

func build(s solver.Solver, p *model.Problem) (solver.Model, variables, constraints) {
	m := s.NewModel("extensive", solver.Minimize)
	nG, nS := len(p.Generators), len(p.Scenarios)
	vars := variables{
		Dispatch: make([]solver.Var, nG),
		Up:       make([][]solver.Var, nS),
		Down:     make([][]solver.Var, nS),
	}
	cons := constraints{RealTime: make([]solver.Constr, nS), Capacity: make([][]solver.Constr, nS)}

	var obj solver.Expr
	for g, gen := range p.Generators {
		vars.Dispatch[g] = m.AddVar("dispatch_"+gen.ID, 0, gen.Capacity)
		obj = obj.Add(gen.DayAheadCost, vars.Dispatch[g])
	}
	cons.DayAhead = m.AddConstr("balance_da", solver.Sum(vars.Dispatch...), solver.Equal, p.Load)

	for k, sc := range p.Scenarios {
		vars.Up[k] = make([]solver.Var, nG)
		vars.Down[k] = make([]solver.Var, nG)
		cons.Capacity[k] = make([]solver.Constr, nG)
		rt := solver.Sum(vars.Dispatch...)
		for g, gen := range p.Generators {
			up := m.AddVar(fmt.Sprintf("up_%s_%s", gen.ID, sc.ID), 0, gen.UpLimit)
			down := m.AddVar(fmt.Sprintf("down_%s_%s", gen.ID, sc.ID), 0, gen.DownLimit)
			vars.Up[k][g], vars.Down[k][g] = up, down
			obj = obj.Add(sc.Probability*gen.UpCost, up).Add(-sc.Probability*gen.DownCost, down)
			rt = rt.Add(1, up).Add(-1, down)

			out := solver.Sum(vars.Dispatch[g], up).Add(-1, down)
			cons.Capacity[k][g] = m.AddConstr(fmt.Sprintf("capacity_%s_%s", gen.ID, sc.ID), out, solver.LessEqual, gen.Capacity)
		}
		cons.RealTime[k] = m.AddConstr("balance_rt_"+sc.ID, rt, solver.Equal, p.Load-p.RenewableOutput(k))
	}
	m.SetObjective(obj)
	return m, vars, cons
}

// Solve optimizes the deterministic equivalent of p.
func Solve(ctx context.Context, s solver.Solver, p *model.Problem) (*Solution, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	m, vars, cons := build(s, p)
	sol, err := m.Solve(ctx)
	if err != nil {
		return nil, err
	}
	switch sol.Status {
	case solver.StatusOptimal:
	case solver.StatusInfeasible:
		return nil, ErrInfeasible
	case solver.StatusUnbounded:
		return nil, ErrUnbounded
	default:
		return nil, fmt.Errorf("extensive form: solver status %s", sol.Status)
	}

	nG, nS := len(p.Generators), len(p.Scenarios)
	res := &Solution{
		Dispatch:        make(model.Dispatch, nG),
		Up:              make([][]float64, nS),
		Down:            make([][]float64, nS),
		ScenarioCosts:   make([]float64, nS),
		DayAheadPrice:   sol.Dual(cons.DayAhead),
		BalancingPrices: make([]float64, nS),
		TotalCost:       sol.Objective,
	}
	for g, v := range vars.Dispatch {
		res.Dispatch[g] = math.Max(0, sol.Value(v))
	}
	res.DayAheadCost = p.DayAheadCost(res.Dispatch)
	for k, sc := range p.Scenarios {
		res.Up[k] = make([]float64, nG)
		res.Down[k] = make([]float64, nG)
		for g, gen := range p.Generators {
			res.Up[k][g] = sol.Value(vars.Up[k][g])
			res.Down[k][g] = sol.Value(vars.Down[k][g])
			res.ScenarioCosts[k] += gen.UpCost*res.Up[k][g] - gen.DownCost*res.Down[k][g]
		}
		res.ExpectedRecourse += sc.Probability * res.ScenarioCosts[k]
		if sc.Probability > 0 {
			res.BalancingPrices[k] = sol.Dual(cons.RealTime[k]) / sc.Probability
		}
	}
	return res, nil
}
