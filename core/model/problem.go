package model

import (
	"errors"
	"fmt"
	"math"
)

// ProbabilityTolerance bounds the deviation of the scenario probabilities from 1.
const ProbabilityTolerance = 1e-9

// ErrInvalidProblem is wrapped by every validation failure of a Problem.
var ErrInvalidProblem = errors.New("invalid problem")

// Problem is the static input of a two-stage stochastic economic dispatch.
// Generators and Scenarios are addressed by their slice index everywhere else;
// IDs are only used for reporting.
type Problem struct {
	Generators []Generator
	Scenarios  []Scenario
	// Load is the inflexible demand to be met day-ahead.
	Load float64
	// RenewableCapacity scales the scenario factors into MWh.
	RenewableCapacity float64
}

// Validate checks the problem definition once before any optimization starts.
func (p *Problem) Validate() error {
	if len(p.Generators) == 0 {
		return fmt.Errorf("%w: no generators", ErrInvalidProblem)
	}
	if !finite(p.Load) || !finite(p.RenewableCapacity) {
		return fmt.Errorf("%w: load %v and renewable capacity %v must be finite", ErrInvalidProblem, p.Load, p.RenewableCapacity)
	}
	if p.Load < 0 {
		return fmt.Errorf("%w: load must be non-negative", ErrInvalidProblem)
	}
	if p.RenewableCapacity < 0 {
		return fmt.Errorf("%w: renewable capacity must be non-negative", ErrInvalidProblem)
	}
	seen := make(map[string]struct{}, len(p.Generators))
	for _, g := range p.Generators {
		if err := g.Validate(); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidProblem, err)
		}
		if _, ok := seen[g.ID]; ok {
			return fmt.Errorf("%w: duplicate generator %s", ErrInvalidProblem, g.ID)
		}
		seen[g.ID] = struct{}{}
	}
	if p.Load > p.TotalCapacity() {
		return fmt.Errorf("%w: load %v exceeds total capacity %v", ErrInvalidProblem, p.Load, p.TotalCapacity())
	}

	seen = make(map[string]struct{}, len(p.Scenarios))
	for _, s := range p.Scenarios {
		if err := s.Validate(); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidProblem, err)
		}
		if _, ok := seen[s.ID]; ok {
			return fmt.Errorf("%w: duplicate scenario %s", ErrInvalidProblem, s.ID)
		}
		seen[s.ID] = struct{}{}
	}
	if len(p.Scenarios) > 0 {
		if sum := p.ProbabilitySum(); math.Abs(sum-1) > ProbabilityTolerance {
			return fmt.Errorf("%w: scenario probabilities sum to %v", ErrInvalidProblem, sum)
		}
	}
	return nil
}

// TotalCapacity returns the sum of generator capacities.
func (p *Problem) TotalCapacity() float64 {
	var sum float64
	for _, g := range p.Generators {
		sum += g.Capacity
	}
	return sum
}

// ProbabilitySum returns the sum of scenario probabilities.
func (p *Problem) ProbabilitySum() float64 {
	var sum float64
	for _, s := range p.Scenarios {
		sum += s.Probability
	}
	return sum
}

// RenewableOutput returns the realized renewable production of scenario s.
func (p *Problem) RenewableOutput(s int) float64 {
	return p.Scenarios[s].Factor * p.RenewableCapacity
}

// GeneratorIndex returns the index of the generator with the given id.
func (p *Problem) GeneratorIndex(id string) (int, bool) {
	for i, g := range p.Generators {
		if g.ID == id {
			return i, true
		}
	}
	return -1, false
}

// EvenSplit returns a dispatch sharing the load equally between generators.
func (p *Problem) EvenSplit() Dispatch {
	d := make(Dispatch, len(p.Generators))
	if len(d) == 0 {
		return d
	}
	share := p.Load / float64(len(d))
	for i := range d {
		d[i] = share
	}
	return d
}

// DayAheadCost prices a dispatch at the day-ahead offers.
func (p *Problem) DayAheadCost(d Dispatch) float64 {
	var cost float64
	for i, g := range p.Generators {
		cost += g.DayAheadCost * d[i]
	}
	return cost
}

// ReferenceProblem returns the three-generator, four-wind-scenario instance
// used throughout the tests and as the CLI default.
func ReferenceProblem() *Problem {
	return &Problem{
		Generators: []Generator{
			{ID: "G1", DayAheadCost: 75, UpCost: 77, DownCost: 74, Capacity: 100, UpLimit: 10, DownLimit: 10},
			{ID: "G2", DayAheadCost: 5, UpCost: 7, DownCost: 4, Capacity: 150, UpLimit: 150, DownLimit: 150},
			{ID: "G3", DayAheadCost: 80, UpCost: 82, DownCost: 79, Capacity: 50, UpLimit: 50, DownLimit: 50},
		},
		Scenarios: []Scenario{
			{ID: "S1", Factor: 0.6, Probability: 0.25},
			{ID: "S2", Factor: 0.7, Probability: 0.25},
			{ID: "S3", Factor: 0.75, Probability: 0.4},
			{ID: "S4", Factor: 0.85, Probability: 0.1},
		},
		Load:              200,
		RenewableCapacity: 150,
	}
}
