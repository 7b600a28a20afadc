package benders

import (
	"fmt"
	"runtime"
	"time"
)

const (
	// DefaultEpsilon is the convergence tolerance on θ.
	DefaultEpsilon = 1e-4
	// DefaultMaxIterations caps the number of master solves.
	DefaultMaxIterations = 100
)

// Config tunes the decomposition loop.
type Config struct {
	// Epsilon is the tolerance of the convergence test θ ≥ E[Q] − ε.
	Epsilon float64 `json:"epsilon"`
	// MaxIterations bounds the number of rounds before returning a
	// best-effort dispatch.
	MaxIterations int `json:"max_iterations"`
	// TimeoutSeconds cancels the run once elapsed. The deadline is checked
	// between LP solves; a solve in progress is not interrupted. Zero
	// disables it.
	TimeoutSeconds int `json:"timeout_seconds"`
	// Workers limits concurrent scenario solves. Zero uses GOMAXPROCS.
	Workers int `json:"workers"`
	// SolverTolerance is handed to the LP engine.
	SolverTolerance float64 `json:"solver_tolerance"`
}

// SetDefaults fills zero values.
func (c *Config) SetDefaults() {
	if c.Epsilon == 0 {
		c.Epsilon = DefaultEpsilon
	}
	if c.MaxIterations == 0 {
		c.MaxIterations = DefaultMaxIterations
	}
	if c.Workers == 0 {
		c.Workers = runtime.GOMAXPROCS(0)
	}
}

// Validate checks the configured bounds.
func (c Config) Validate() error {
	if c.Epsilon < 0 {
		return fmt.Errorf("epsilon must be non-negative")
	}
	if c.MaxIterations <= 0 {
		return fmt.Errorf("max_iterations must be positive")
	}
	if c.TimeoutSeconds < 0 {
		return fmt.Errorf("timeout_seconds must be non-negative")
	}
	if c.Workers < 0 {
		return fmt.Errorf("workers must be non-negative")
	}
	if c.SolverTolerance < 0 {
		return fmt.Errorf("solver_tolerance must be non-negative")
	}
	return nil
}

// Timeout returns the wall-clock budget of a run, zero when unbounded.
func (c Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}
