package simplex

import (
	"context"
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize/convex/lp"

	"github.com/kilianp07/benders/core/solver"
)

// DefaultTolerance is the reduced-cost tolerance passed to the simplex.
const DefaultTolerance = 1e-9

// ErrRankDeficient is returned when the standard form has more equality rows
// than columns, which the gonum simplex cannot handle.
var ErrRankDeficient = errors.New("simplex: more equality rows than columns")

// simplexSolve points to the function used to solve standard-form programs.
// It can be overridden in tests to simulate engine failures.
var simplexSolve = lp.Simplex

// Solver creates gonum-backed models.
type Solver struct {
	// Tol is the optimality tolerance. Zero selects DefaultTolerance.
	Tol float64
}

// New returns a Solver with the given tolerance.
func New(tol float64) *Solver { return &Solver{Tol: tol} }

// NewModel implements solver.Solver.
func (s *Solver) NewModel(name string, sense solver.Sense) solver.Model {
	tol := s.Tol
	if tol <= 0 {
		tol = DefaultTolerance
	}
	return &Model{name: name, sense: sense, tol: tol}
}

type variable struct {
	name   string
	lb, ub float64
}

type constraint struct {
	name string
	expr solver.Expr
	rel  solver.Relation
	rhs  float64
}

// Model is a linear program built incrementally and solved with gonum.
type Model struct {
	name    string
	sense   solver.Sense
	tol     float64
	vars    []variable
	constrs []constraint
	obj     solver.Expr
}

// Name returns the model name.
func (m *Model) Name() string { return m.name }

// AddVar implements solver.Model.
func (m *Model) AddVar(name string, lb, ub float64) solver.Var {
	m.vars = append(m.vars, variable{name: name, lb: lb, ub: ub})
	return solver.Var(len(m.vars) - 1)
}

// AddConstr implements solver.Model.
func (m *Model) AddConstr(name string, e solver.Expr, rel solver.Relation, rhs float64) solver.Constr {
	m.constrs = append(m.constrs, constraint{name: name, expr: e, rel: rel, rhs: rhs})
	return solver.Constr(len(m.constrs) - 1)
}

// SetObjective implements solver.Model.
func (m *Model) SetObjective(e solver.Expr) { m.obj = e }

// Solve implements solver.Model.
func (m *Model) Solve(ctx context.Context) (*solver.Solution, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sf, err := m.standardForm()
	if err != nil {
		return nil, fmt.Errorf("model %s: %w", m.name, err)
	}
	if sf.infeasible {
		return &solver.Solution{Status: solver.StatusInfeasible}, nil
	}
	if sf.unbounded {
		return &solver.Solution{Status: solver.StatusUnbounded}, nil
	}

	x, optF, status, err := sf.solvePrimal(m.tol)
	if status != solver.StatusOptimal {
		if err != nil {
			err = fmt.Errorf("model %s: %w", m.name, err)
		}
		return &solver.Solution{Status: status}, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	y, err := sf.solveDual(m.tol)
	if err != nil {
		return &solver.Solution{Status: solver.StatusOther}, fmt.Errorf("model %s: dual: %w", m.name, err)
	}

	sol := &solver.Solution{
		Status:    solver.StatusOptimal,
		Objective: optF + sf.objConst,
		Values:    sf.values(x),
		Duals:     make([]float64, len(m.constrs)),
	}
	sign := 1.0
	if m.sense == solver.Maximize {
		sol.Objective = -optF + sf.objConst
		sign = -1
	}
	for i, row := range sf.userRows {
		if row >= 0 {
			sol.Duals[i] = sign * y[row]
		}
	}
	return sol, nil
}

// solvePrimal runs the simplex on the reduced standard form.
func (sf *standardForm) solvePrimal(tol float64) ([]float64, float64, solver.Status, error) {
	m, n := len(sf.b), len(sf.c)
	if m == 0 {
		// Only sign constraints remain; every column sits at zero.
		return make([]float64, n), 0, solver.StatusOptimal, nil
	}
	if m > n {
		return nil, 0, solver.StatusOther, ErrRankDeficient
	}
	a := mat.NewDense(m, n, nil)
	for i, row := range sf.rows {
		a.SetRow(i, row)
	}
	optF, x, err := simplexSolve(sf.c, a, sf.b, tol, nil)
	switch {
	case err == nil:
		return x, optF, solver.StatusOptimal, nil
	case errors.Is(err, lp.ErrInfeasible):
		return nil, 0, solver.StatusInfeasible, nil
	case errors.Is(err, lp.ErrUnbounded):
		return nil, 0, solver.StatusUnbounded, nil
	default:
		return nil, 0, solver.StatusOther, err
	}
}

// solveDual computes the multipliers y of A·x = b from max bᵀy s.t. Aᵀy ≤ c.
func (sf *standardForm) solveDual(tol float64) ([]float64, error) {
	m, n := len(sf.b), len(sf.c)
	if m == 0 {
		return nil, nil
	}
	at := mat.NewDense(n, m, nil)
	for i, row := range sf.rows {
		for j, v := range row {
			at.Set(j, i, v)
		}
	}
	negB := make([]float64, m)
	for i, v := range sf.b {
		negB[i] = -v
	}
	c, a, b := lp.Convert(negB, at, sf.c, nil, nil)
	_, z, err := simplexSolve(c, a, b, tol, nil)
	if err != nil {
		return nil, err
	}
	y := make([]float64, m)
	for i := range y {
		y[i] = z[i] - z[m+i]
	}
	return y, nil
}
