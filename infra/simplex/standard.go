package simplex

import (
	"fmt"
	"math"

	"github.com/kilianp07/benders/core/solver"
)

// feasTol is the tolerance used when checking rows that lost every column.
const feasTol = 1e-9

// varMap expresses a model variable as offset + Σ sign·column.
type varMap struct {
	offset float64
	cols   []int
	signs  []float64
}

// standardForm is a model rewritten as min cᵀx s.t. rows·x = b, x ≥ 0, with
// all-zero rows and columns removed.
type standardForm struct {
	c        []float64
	rows     [][]float64
	b        []float64
	objConst float64

	vars     []varMap
	colIndex []int // original column -> reduced column, -1 when removed
	userRows []int // model constraint -> reduced row, -1 when removed

	infeasible bool
	unbounded  bool
}

//gocyclo:ignore
func (m *Model) standardForm() (*standardForm, error) {
	sf := &standardForm{vars: make([]varMap, len(m.vars))}
	nCols := 0
	type boundRow struct {
		col int
		rhs float64
	}
	var bounds []boundRow
	for i, v := range m.vars {
		if math.IsNaN(v.lb) || math.IsNaN(v.ub) {
			return nil, fmt.Errorf("variable %s has NaN bound", v.name)
		}
		if v.lb > v.ub || math.IsInf(v.lb, 1) || math.IsInf(v.ub, -1) {
			sf.infeasible = true
			return sf, nil
		}
		switch {
		case !math.IsInf(v.lb, -1):
			sf.vars[i] = varMap{offset: v.lb, cols: []int{nCols}, signs: []float64{1}}
			if !math.IsInf(v.ub, 1) {
				bounds = append(bounds, boundRow{col: nCols, rhs: v.ub - v.lb})
			}
			nCols++
		case !math.IsInf(v.ub, 1):
			sf.vars[i] = varMap{offset: v.ub, cols: []int{nCols}, signs: []float64{-1}}
			nCols++
		default:
			sf.vars[i] = varMap{cols: []int{nCols, nCols + 1}, signs: []float64{1, -1}}
			nCols += 2
		}
	}

	slacks := len(bounds)
	for _, c := range m.constrs {
		if c.rel != solver.Equal {
			slacks++
		}
	}
	width := nCols + slacks

	var rows [][]float64
	var rhs []float64
	userRows := make([]int, len(m.constrs))
	slack := nCols
	for i, c := range m.constrs {
		if math.IsNaN(c.rhs) || !isFinite(c.expr.Constant) {
			return nil, fmt.Errorf("constraint %s has a non-finite right-hand side", c.name)
		}
		row := make([]float64, width)
		r := c.rhs - c.expr.Constant
		for _, t := range c.expr.Terms {
			if int(t.Var) < 0 || int(t.Var) >= len(sf.vars) {
				return nil, fmt.Errorf("constraint %s references unknown variable %d", c.name, t.Var)
			}
			if !isFinite(t.Coeff) {
				return nil, fmt.Errorf("constraint %s has non-finite coefficient %v", c.name, t.Coeff)
			}
			vm := sf.vars[t.Var]
			r -= t.Coeff * vm.offset
			for k, col := range vm.cols {
				row[col] += t.Coeff * vm.signs[k]
			}
		}
		switch c.rel {
		case solver.LessEqual:
			row[slack] = 1
			slack++
		case solver.GreaterEqual:
			row[slack] = -1
			slack++
		}
		if math.IsInf(r, 0) {
			// An infinite side either never binds or cannot be met.
			redundant := (c.rel == solver.LessEqual && r > 0) || (c.rel == solver.GreaterEqual && r < 0)
			if !redundant {
				sf.infeasible = true
				return sf, nil
			}
			userRows[i] = -1
			continue
		}
		userRows[i] = len(rows)
		rows = append(rows, row)
		rhs = append(rhs, r)
	}
	for _, bnd := range bounds {
		row := make([]float64, width)
		row[bnd.col] = 1
		row[slack] = 1
		slack++
		rows = append(rows, row)
		rhs = append(rhs, bnd.rhs)
	}

	if !isFinite(m.obj.Constant) {
		return nil, fmt.Errorf("objective has non-finite constant %v", m.obj.Constant)
	}
	cost := make([]float64, width)
	sf.objConst = m.obj.Constant
	for _, t := range m.obj.Terms {
		if int(t.Var) < 0 || int(t.Var) >= len(sf.vars) {
			return nil, fmt.Errorf("objective references unknown variable %d", t.Var)
		}
		if !isFinite(t.Coeff) {
			return nil, fmt.Errorf("objective has non-finite coefficient %v", t.Coeff)
		}
		vm := sf.vars[t.Var]
		sf.objConst += t.Coeff * vm.offset
		for k, col := range vm.cols {
			cost[col] += t.Coeff * vm.signs[k]
		}
	}
	if m.sense == solver.Maximize {
		for j := range cost {
			cost[j] = -cost[j]
		}
	}

	// Drop rows without any coefficient; they are either trivially satisfied
	// or make the program infeasible.
	keptRows := make([]int, len(rows))
	nRows := 0
	for i, row := range rows {
		if isZero(row) {
			if math.Abs(rhs[i]) > feasTol {
				sf.infeasible = true
				return sf, nil
			}
			keptRows[i] = -1
			continue
		}
		keptRows[i] = nRows
		nRows++
	}
	sf.userRows = make([]int, len(userRows))
	for i, r := range userRows {
		if r < 0 {
			sf.userRows[i] = -1
			continue
		}
		sf.userRows[i] = keptRows[r]
	}

	// Drop columns without any coefficient; they stay at zero unless their
	// cost makes the program unbounded.
	sf.colIndex = make([]int, width)
	nKept := 0
	for j := 0; j < width; j++ {
		empty := true
		for _, row := range rows {
			if row[j] != 0 {
				empty = false
				break
			}
		}
		if empty {
			if cost[j] < 0 {
				sf.unbounded = true
				return sf, nil
			}
			sf.colIndex[j] = -1
			continue
		}
		sf.colIndex[j] = nKept
		nKept++
	}

	sf.c = make([]float64, nKept)
	for j, k := range sf.colIndex {
		if k >= 0 {
			sf.c[k] = cost[j]
		}
	}
	sf.rows = make([][]float64, 0, nRows)
	sf.b = make([]float64, 0, nRows)
	for i, row := range rows {
		if keptRows[i] < 0 {
			continue
		}
		reduced := make([]float64, nKept)
		for j, k := range sf.colIndex {
			if k >= 0 {
				reduced[k] = row[j]
			}
		}
		sf.rows = append(sf.rows, reduced)
		sf.b = append(sf.b, rhs[i])
	}
	return sf, nil
}

// values maps a reduced standard-form solution back to model variables.
func (sf *standardForm) values(x []float64) []float64 {
	out := make([]float64, len(sf.vars))
	for i, vm := range sf.vars {
		v := vm.offset
		for k, col := range vm.cols {
			if idx := sf.colIndex[col]; idx >= 0 {
				v += vm.signs[k] * x[idx]
			}
		}
		out[i] = v
	}
	return out
}

func isFinite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

func isZero(row []float64) bool {
	for _, v := range row {
		if v != 0 {
			return false
		}
	}
	return true
}
