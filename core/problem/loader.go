// Package problem reads problem definitions from YAML (or JSON) files.
package problem

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/kilianp07/benders/core/model"
)

type GeneratorDef struct {
	ID           string  `yaml:"id"`
	DayAheadCost float64 `yaml:"day_ahead_cost"`
	UpCost       float64 `yaml:"up_cost"`
	DownCost     float64 `yaml:"down_cost"`
	Capacity     float64 `yaml:"capacity"`
	UpLimit      float64 `yaml:"up_limit"`
	DownLimit    float64 `yaml:"down_limit"`
}

func (g GeneratorDef) ToModel() model.Generator {
	return model.Generator{
		ID:           g.ID,
		DayAheadCost: g.DayAheadCost,
		UpCost:       g.UpCost,
		DownCost:     g.DownCost,
		Capacity:     g.Capacity,
		UpLimit:      g.UpLimit,
		DownLimit:    g.DownLimit,
	}
}

type ScenarioDef struct {
	ID          string  `yaml:"id"`
	Factor      float64 `yaml:"factor"`
	Probability float64 `yaml:"probability"`
}

func (s ScenarioDef) ToModel() model.Scenario {
	return model.Scenario{ID: s.ID, Factor: s.Factor, Probability: s.Probability}
}

// Definition is the file representation of a model.Problem.
type Definition struct {
	Name              string         `yaml:"name"`
	Description       string         `yaml:"description,omitempty"`
	Load              float64        `yaml:"load"`
	RenewableCapacity float64        `yaml:"renewable_capacity"`
	Generators        []GeneratorDef `yaml:"generators"`
	Scenarios         []ScenarioDef  `yaml:"scenarios"`
}

// ToModel converts the definition and validates the result.
func (d Definition) ToModel() (*model.Problem, error) {
	p := &model.Problem{
		Generators:        make([]model.Generator, len(d.Generators)),
		Scenarios:         make([]model.Scenario, len(d.Scenarios)),
		Load:              d.Load,
		RenewableCapacity: d.RenewableCapacity,
	}
	for i, g := range d.Generators {
		p.Generators[i] = g.ToModel()
	}
	for i, s := range d.Scenarios {
		p.Scenarios[i] = s.ToModel()
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// FromModel builds the definition of p.
func FromModel(name string, p *model.Problem) Definition {
	d := Definition{
		Name:              name,
		Load:              p.Load,
		RenewableCapacity: p.RenewableCapacity,
		Generators:        make([]GeneratorDef, len(p.Generators)),
		Scenarios:         make([]ScenarioDef, len(p.Scenarios)),
	}
	for i, g := range p.Generators {
		d.Generators[i] = GeneratorDef(g)
	}
	for i, s := range p.Scenarios {
		d.Scenarios[i] = ScenarioDef(s)
	}
	return d
}

// Parse decodes a definition and converts it to a validated problem.
// Unknown keys are rejected so typos do not silently zero a cost.
func Parse(data []byte) (*model.Problem, error) {
	var def Definition
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&def); err != nil {
		return nil, fmt.Errorf("decode problem: %w", err)
	}
	return def.ToModel()
}

// Load reads the problem definition at path.
func Load(path string) (*model.Problem, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	p, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}

// Write stores the definition at path in YAML.
func Write(path string, d Definition) error {
	data, err := yaml.Marshal(d)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
