package model

import (
	"fmt"
	"math"
)

// Generator is a dispatchable unit participating in both the day-ahead and the
// balancing market. Costs are per MWh, quantities in MWh.
type Generator struct {
	ID           string
	DayAheadCost float64 // day-ahead energy price offer
	UpCost       float64 // price for upward regulation in real time
	DownCost     float64 // price paid back for downward regulation in real time
	Capacity     float64 // maximum output
	UpLimit      float64 // maximum upward adjustment
	DownLimit    float64 // maximum downward adjustment
}

// Validate checks that the generator bounds are sound.
func (g Generator) Validate() error {
	if g.ID == "" {
		return fmt.Errorf("generator id is required")
	}
	fields := []struct {
		name string
		v    float64
	}{
		{"day_ahead_cost", g.DayAheadCost},
		{"up_cost", g.UpCost},
		{"down_cost", g.DownCost},
		{"capacity", g.Capacity},
		{"up_limit", g.UpLimit},
		{"down_limit", g.DownLimit},
	}
	for _, f := range fields {
		if !finite(f.v) {
			return fmt.Errorf("generator %s: %s must be finite, got %v", g.ID, f.name, f.v)
		}
	}
	if g.Capacity < 0 {
		return fmt.Errorf("generator %s: capacity must be non-negative", g.ID)
	}
	if g.UpLimit < 0 || g.DownLimit < 0 {
		return fmt.Errorf("generator %s: regulation limits must be non-negative", g.ID)
	}
	return nil
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }
