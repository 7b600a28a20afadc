package benders

import (
	"context"
	"fmt"
	"math"

	"github.com/kilianp07/benders/core/model"
	"github.com/kilianp07/benders/core/solver"
)

type masterVariables struct {
	Dispatch []solver.Var
	Theta    solver.Var
	// HasTheta is false while no cut bounds θ; the variable is then left out
	// of the model since a free θ would make it unbounded.
	HasTheta bool
}

type masterConstraints struct {
	Balance  solver.Constr
	Capacity []solver.Constr
	Cuts     []solver.Constr
}

type masterResult struct {
	Dispatch model.Dispatch
	Theta    float64
	// LowerBound is the master objective Σ c·dispatch + θ.
	LowerBound float64
}

// unboundedTheta is the value of θ when no cut constrains it.
func unboundedTheta(p *model.Problem) float64 {
	if len(p.Scenarios) == 0 {
		return 0
	}
	return math.Inf(-1)
}

func buildMaster(s solver.Solver, p *model.Problem, cuts []model.Cut) (solver.Model, masterVariables, masterConstraints) {
	m := s.NewModel("master", solver.Minimize)
	vars := masterVariables{Dispatch: make([]solver.Var, len(p.Generators))}
	cons := masterConstraints{Capacity: make([]solver.Constr, len(p.Generators))}

	var obj solver.Expr
	for i, g := range p.Generators {
		vars.Dispatch[i] = m.AddVar("dispatch_"+g.ID, 0, math.Inf(1))
		obj = obj.Add(g.DayAheadCost, vars.Dispatch[i])
	}
	cons.Balance = m.AddConstr("balance", solver.Sum(vars.Dispatch...), solver.Equal, p.Load)
	for i, g := range p.Generators {
		cons.Capacity[i] = m.AddConstr("capacity_"+g.ID, solver.Sum(vars.Dispatch[i]), solver.LessEqual, g.Capacity)
	}

	if len(cuts) > 0 {
		vars.Theta = m.AddVar("theta", math.Inf(-1), math.Inf(1))
		vars.HasTheta = true
		obj = obj.Add(1, vars.Theta)
		cons.Cuts = make([]solver.Constr, len(cuts))
		for k, c := range cuts {
			e := solver.Sum(vars.Theta)
			for g, coeff := range c.Coeffs {
				e = e.Add(-coeff, vars.Dispatch[g])
			}
			cons.Cuts[k] = m.AddConstr(fmt.Sprintf("cut_%d_%d", c.Round, c.Scenario), e, solver.GreaterEqual, c.RHS)
		}
	}
	m.SetObjective(obj)
	return m, vars, cons
}

// solveMaster chooses the day-ahead dispatch under the accumulated cuts.
func solveMaster(ctx context.Context, s solver.Solver, p *model.Problem, cuts []model.Cut) (masterResult, error) {
	m, vars, _ := buildMaster(s, p, cuts)
	sol, err := m.Solve(ctx)
	if err != nil {
		return masterResult{}, err
	}
	if !sol.IsOptimal() {
		return masterResult{}, statusError(PhaseMaster, sol.Status)
	}

	res := masterResult{Dispatch: make(model.Dispatch, len(vars.Dispatch))}
	for i, v := range vars.Dispatch {
		// clamp simplex round-off below zero
		res.Dispatch[i] = math.Max(0, sol.Value(v))
	}
	if vars.HasTheta {
		res.Theta = sol.Value(vars.Theta)
		res.LowerBound = sol.Objective
	} else {
		res.Theta = unboundedTheta(p)
		res.LowerBound = sol.Objective + res.Theta
	}
	return res, nil
}
