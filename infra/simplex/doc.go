// Package simplex implements the core/solver capability on top of the gonum
// Simplex routine.
//
// Models are converted to the standard form
//
//	minimize cᵀx  s.t.  A·x = b, x ≥ 0
//
// by shifting or splitting variables and adding slack columns. Shadow prices
// are obtained by solving the dual program max bᵀy s.t. Aᵀy ≤ c, which gonum's
// lp.Convert brings back to standard form.
package simplex
