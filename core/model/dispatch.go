package model

import (
	"errors"
	"fmt"
)

// Dispatch holds the day-ahead quantity of each generator, indexed like
// Problem.Generators. A Dispatch is never mutated once produced.
type Dispatch []float64

// Total returns the dispatched energy.
func (d Dispatch) Total() float64 {
	var sum float64
	for _, q := range d {
		sum += q
	}
	return sum
}

// Clone returns an independent copy.
func (d Dispatch) Clone() Dispatch {
	return append(Dispatch(nil), d...)
}

// ByID maps the dispatch to generator ids for reporting.
func (d Dispatch) ByID(p *Problem) map[string]float64 {
	out := make(map[string]float64, len(d))
	for i, g := range p.Generators {
		if i < len(d) {
			out[g.ID] = d[i]
		}
	}
	return out
}

// ErrDispatchMismatch reports a dispatch that does not cover exactly the
// generators of the problem it is applied to.
var ErrDispatchMismatch = errors.New("dispatch does not match generators")

// FromIDs orders a schedule keyed by generator id like p.Generators. Every
// generator of p must be scheduled and no other id may appear.
func (p *Problem) FromIDs(schedule map[string]float64) (Dispatch, error) {
	d := make(Dispatch, len(p.Generators))
	for i, g := range p.Generators {
		q, ok := schedule[g.ID]
		if !ok {
			return nil, fmt.Errorf("%w: generator %s has no quantity", ErrDispatchMismatch, g.ID)
		}
		d[i] = q
	}
	for id := range schedule {
		if _, ok := p.GeneratorIndex(id); !ok {
			return nil, fmt.Errorf("%w: unknown generator %s", ErrDispatchMismatch, id)
		}
	}
	return d, nil
}
