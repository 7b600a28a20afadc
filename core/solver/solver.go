// Package solver defines the narrow linear-programming capability the
// decomposition relies on. Implementations live in infra/.
package solver

import (
	"context"
	"fmt"
)

// Sense is the optimization direction of a model.
type Sense int

const (
	Minimize Sense = iota
	Maximize
)

// Relation is the comparison operator of a linear constraint.
type Relation int

const (
	LessEqual Relation = iota
	Equal
	GreaterEqual
)

// String returns the mathematical symbol of the relation.
func (r Relation) String() string {
	switch r {
	case LessEqual:
		return "<="
	case Equal:
		return "="
	case GreaterEqual:
		return ">="
	default:
		return "?"
	}
}

// Var is a handle to a variable of a Model.
type Var int

// Constr is a handle to a constraint of a Model.
type Constr int

// Term is a single coefficient-variable product.
type Term struct {
	Var   Var
	Coeff float64
}

// Expr is an affine expression Σ Coeff·Var + Constant.
type Expr struct {
	Terms    []Term
	Constant float64
}

// Add appends coeff·v to the expression and returns it.
func (e Expr) Add(coeff float64, v Var) Expr {
	e.Terms = append(e.Terms, Term{Var: v, Coeff: coeff})
	return e
}

// Sum builds the expression Σ vars with unit coefficients.
func Sum(vars ...Var) Expr {
	e := Expr{Terms: make([]Term, len(vars))}
	for i, v := range vars {
		e.Terms[i] = Term{Var: v, Coeff: 1}
	}
	return e
}

// Model is a linear program under construction. A Model is not safe for
// concurrent use; build one model per goroutine.
type Model interface {
	// AddVar adds a continuous variable with bounds lb ≤ x ≤ ub. Infinite
	// bounds are expressed with math.Inf.
	AddVar(name string, lb, ub float64) Var
	// AddConstr adds the constraint e rel rhs.
	AddConstr(name string, e Expr, rel Relation, rhs float64) Constr
	// SetObjective replaces the objective expression.
	SetObjective(e Expr)
	// Solve optimizes the model. A non-nil error is returned only when the
	// engine itself failed; infeasibility and unboundedness are reported
	// through Solution.Status.
	Solve(ctx context.Context) (*Solution, error)
}

// Solver creates models.
type Solver interface {
	NewModel(name string, sense Sense) Model
}

// Solution is the outcome of Model.Solve.
type Solution struct {
	Status Status
	// Objective, Values and Duals are only meaningful when Status is Optimal.
	Objective float64
	Values    []float64
	// Duals holds the shadow price of each constraint, i.e. the derivative of
	// the optimal objective with respect to the constraint right-hand side.
	Duals []float64
}

// Value returns the optimal value of v.
func (s *Solution) Value(v Var) float64 { return s.Values[v] }

// Dual returns the shadow price of c.
func (s *Solution) Dual(c Constr) float64 { return s.Duals[c] }

// IsOptimal reports whether an optimal solution is available.
func (s *Solution) IsOptimal() bool { return s.Status == StatusOptimal }

// String summarizes the solution for logs.
func (s *Solution) String() string {
	if s.IsOptimal() {
		return fmt.Sprintf("%s objective=%g", s.Status, s.Objective)
	}
	return s.Status.String()
}
