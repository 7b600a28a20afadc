package benders

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/kilianp07/benders/core/solver"
	"github.com/kilianp07/benders/infra/simplex"
)

// scriptedSolver answers every solve through a callback keyed by model name.
type scriptedSolver struct {
	mu    sync.Mutex
	calls map[string]int
	solve func(name string, call int) (*solver.Solution, error)
}

func newScriptedSolver(solve func(name string, call int) (*solver.Solution, error)) *scriptedSolver {
	return &scriptedSolver{calls: make(map[string]int), solve: solve}
}

func (s *scriptedSolver) NewModel(name string, _ solver.Sense) solver.Model {
	return &fakeModel{name: name, parent: s}
}

type fakeModel struct {
	name    string
	parent  *scriptedSolver
	vars    int
	constrs int
}

func (m *fakeModel) AddVar(string, float64, float64) solver.Var {
	m.vars++
	return solver.Var(m.vars - 1)
}

func (m *fakeModel) AddConstr(string, solver.Expr, solver.Relation, float64) solver.Constr {
	m.constrs++
	return solver.Constr(m.constrs - 1)
}

func (m *fakeModel) SetObjective(solver.Expr) {}

func (m *fakeModel) Solve(ctx context.Context) (*solver.Solution, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.parent.mu.Lock()
	m.parent.calls[m.name]++
	call := m.parent.calls[m.name]
	m.parent.mu.Unlock()
	sol, err := m.parent.solve(m.name, call)
	if sol != nil && sol.IsOptimal() && sol.Values == nil {
		sol.Values = make([]float64, m.vars)
		sol.Duals = make([]float64, m.constrs)
	}
	return sol, err
}

func optimal() (*solver.Solution, error) {
	return &solver.Solution{Status: solver.StatusOptimal}, nil
}

func isMaster(name string) bool { return name == "master" }

func isSubproblem(name string) bool { return strings.HasPrefix(name, "subproblem_") }

// cancelingSolver delegates to the simplex solver and cancels the run when
// the master model of round cancelAt is created.
type cancelingSolver struct {
	inner    solver.Solver
	cancel   context.CancelFunc
	cancelAt int32
	masters  atomic.Int32
}

func newCancelingSolver(cancel context.CancelFunc, cancelAt int32) *cancelingSolver {
	return &cancelingSolver{inner: simplex.New(0), cancel: cancel, cancelAt: cancelAt}
}

func (s *cancelingSolver) NewModel(name string, sense solver.Sense) solver.Model {
	if isMaster(name) && s.masters.Add(1) == s.cancelAt {
		s.cancel()
	}
	return s.inner.NewModel(name, sense)
}
