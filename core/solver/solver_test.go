package solver

import "testing"

func TestStatusString(t *testing.T) {
	cases := map[Status]string{
		StatusOptimal:    "OPTIMAL",
		StatusInfeasible: "INFEASIBLE",
		StatusUnbounded:  "UNBOUNDED",
		StatusOther:      "OTHER",
		Status(42):       "OTHER",
	}
	for st, want := range cases {
		if got := st.String(); got != want {
			t.Errorf("status %d: expected %s got %s", st, want, got)
		}
	}
}

func TestRelationString(t *testing.T) {
	if LessEqual.String() != "<=" || Equal.String() != "=" || GreaterEqual.String() != ">=" {
		t.Fatalf("unexpected relation symbols")
	}
}

func TestExprBuilders(t *testing.T) {
	e := Sum(0, 1, 2).Add(-2, 3)
	if len(e.Terms) != 4 {
		t.Fatalf("expected 4 terms got %d", len(e.Terms))
	}
	if e.Terms[3].Var != 3 || e.Terms[3].Coeff != -2 {
		t.Fatalf("unexpected last term %+v", e.Terms[3])
	}
	for _, tm := range e.Terms[:3] {
		if tm.Coeff != 1 {
			t.Fatalf("expected unit coefficient, got %v", tm.Coeff)
		}
	}
}

func TestSolutionAccessors(t *testing.T) {
	s := &Solution{Status: StatusOptimal, Objective: 3, Values: []float64{1, 2}, Duals: []float64{-1}}
	if !s.IsOptimal() || s.Value(1) != 2 || s.Dual(0) != -1 {
		t.Fatalf("unexpected accessors result")
	}
	if s.String() != "OPTIMAL objective=3" {
		t.Fatalf("unexpected string %q", s.String())
	}
	if (&Solution{Status: StatusInfeasible}).String() != "INFEASIBLE" {
		t.Fatalf("unexpected string for infeasible")
	}
}
