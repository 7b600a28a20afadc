// Package logging persists one record per decomposition round so runs can be
// inspected after the fact.
package logging

import (
	"context"
	"fmt"
	"math"
	"time"
)

// ScenarioRecord is the subproblem outcome of one scenario in a round.
type ScenarioRecord struct {
	ID          string  `json:"id"`
	Cost        float64 `json:"cost"`
	BalanceDual float64 `json:"balance_dual"`
}

// IterationRecord captures one master/subproblem round.
// Theta, Gap and LowerBound are nil while θ is still unconstrained.
type IterationRecord struct {
	RunID            string             `json:"run_id"`
	Round            int                `json:"round"`
	Timestamp        time.Time          `json:"timestamp"`
	Dispatch         map[string]float64 `json:"dispatch"`
	Theta            *float64           `json:"theta,omitempty"`
	LowerBound       *float64           `json:"lower_bound,omitempty"`
	Gap              *float64           `json:"gap,omitempty"`
	ExpectedRecourse float64            `json:"expected_recourse"`
	Cuts             int                `json:"cuts"`
	Converged        bool               `json:"converged"`
	Scenarios        []ScenarioRecord   `json:"scenarios"`
}

// Finite returns a pointer to v, or nil when v is infinite or NaN.
func Finite(v float64) *float64 {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return nil
	}
	return &v
}

// Query defines filters for retrieving records.
type Query struct {
	RunID         string
	Start         time.Time
	End           time.Time
	ConvergedOnly bool
}

func (q Query) match(r IterationRecord) bool {
	if q.RunID != "" && r.RunID != q.RunID {
		return false
	}
	if !q.Start.IsZero() && r.Timestamp.Before(q.Start) {
		return false
	}
	if !q.End.IsZero() && r.Timestamp.After(q.End) {
		return false
	}
	if q.ConvergedOnly && !r.Converged {
		return false
	}
	return true
}

// Store persists IterationRecords and supports querying.
type Store interface {
	Append(ctx context.Context, rec IterationRecord) error
	Query(ctx context.Context, q Query) ([]IterationRecord, error)
	Close() error
}

// Config selects and configures the iteration store.
type Config struct {
	// Backend is "jsonl", "rotating", "sqlite" or empty to disable the store.
	Backend string `json:"backend"`
	// Path is the file location of the store.
	Path string `json:"path"`
	// MaxSizeMB triggers rotation when the file exceeds this size in megabytes.
	MaxSizeMB int `json:"max_size_mb"`
	// MaxBackups limits the number of rotated files to keep.
	MaxBackups int `json:"max_backups"`
	// MaxAgeDays removes rotated files older than this number of days.
	MaxAgeDays int `json:"max_age_days"`
}

// SetDefaults applies sane defaults for an enabled backend.
func (c *Config) SetDefaults() {
	if c.Backend == "" {
		return
	}
	if c.Path == "" {
		c.Path = "iterations.log"
	}
	if c.Backend == "rotating" && c.MaxSizeMB == 0 {
		c.MaxSizeMB = 10
	}
}

// Validate checks mandatory fields.
func (c Config) Validate() error {
	switch c.Backend {
	case "":
		return nil
	case "jsonl", "rotating", "sqlite":
	default:
		return fmt.Errorf("unknown iteration log backend %s", c.Backend)
	}
	if c.Path == "" {
		return fmt.Errorf("iteration log path is required")
	}
	return nil
}

// New opens the store selected by cfg. It returns a nil Store when the
// backend is empty.
func New(cfg Config) (Store, error) {
	switch cfg.Backend {
	case "":
		return nil, nil
	case "jsonl":
		return NewJSONLStore(cfg.Path)
	case "rotating":
		return NewRotatingJSONLStore(cfg.Path, cfg.MaxSizeMB, cfg.MaxBackups, cfg.MaxAgeDays)
	case "sqlite":
		return NewSQLiteStore(cfg.Path)
	default:
		return nil, fmt.Errorf("unknown iteration log backend %s", cfg.Backend)
	}
}
