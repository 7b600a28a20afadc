package metrics

import "github.com/kilianp07/benders/core/factory"

// Config defines settings for metrics sinks.
type Config struct {
	Sinks []factory.ModuleConfig `json:"sinks"`
	// Textfile, when set, receives the Prometheus exposition of the default
	// registry once a run ends. Used for batch runs without a scrape endpoint.
	Textfile string `json:"textfile"`
}
