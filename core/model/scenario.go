package model

import "fmt"

// Scenario is one realization of the renewable output.
type Scenario struct {
	ID string
	// Factor is the normalized renewable output in [0,1]. The realized output is
	// Factor multiplied by Problem.RenewableCapacity.
	Factor      float64
	Probability float64
}

// Validate checks the probability range.
func (s Scenario) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("scenario id is required")
	}
	if !finite(s.Factor) || !finite(s.Probability) {
		return fmt.Errorf("scenario %s: factor and probability must be finite", s.ID)
	}
	if s.Probability < 0 || s.Probability > 1 {
		return fmt.Errorf("scenario %s: probability %v outside [0,1]", s.ID, s.Probability)
	}
	if s.Factor < 0 {
		return fmt.Errorf("scenario %s: renewable factor must be non-negative", s.ID)
	}
	return nil
}
