package metrics

import (
	"math"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	coremetrics "github.com/kilianp07/benders/core/metrics"
)

// PromSink records decomposition progress in Prometheus metrics.
type PromSink struct {
	iteration  *prometheus.GaugeVec
	runs       *prometheus.CounterVec
	iterations prometheus.Histogram
	duration   prometheus.Histogram
	totalCost  prometheus.Gauge
}

// NewPromSink registers decomposition metrics on the default Prometheus registerer.
func NewPromSink() (*PromSink, error) {
	return NewPromSinkWithRegistry(prometheus.DefaultRegisterer)
}

// register adds c to reg, reusing the collector already registered under
// the same descriptor.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global Prometheus registerer.
func NewPromSinkWithRegistry(reg prometheus.Registerer) (*PromSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PromSink{}
	var err error
	if s.iteration, err = register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "benders_iteration_value",
		Help: "Latest value of theta, lower bound, expected recourse, gap and cut count",
	}, []string{"quantity"})); err != nil {
		return nil, err
	}
	if s.runs, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "benders_run_outcomes_total",
		Help: "Finished decomposition runs by convergence",
	}, []string{"converged"})); err != nil {
		return nil, err
	}
	if s.iterations, err = register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "benders_run_iterations",
		Help:    "Number of rounds per run",
		Buckets: prometheus.LinearBuckets(1, 1, 10),
	})); err != nil {
		return nil, err
	}
	if s.duration, err = register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "benders_run_duration_seconds",
		Help:    "Wall-clock time per run",
		Buckets: prometheus.DefBuckets,
	})); err != nil {
		return nil, err
	}
	if s.totalCost, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "benders_total_cost",
		Help: "Day-ahead plus expected recourse cost of the last run",
	})); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *PromSink) setFinite(quantity string, v float64) {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return
	}
	s.iteration.WithLabelValues(quantity).Set(v)
}

// RecordIteration updates the per-round gauges. Infinite values are skipped.
func (s *PromSink) RecordIteration(ev coremetrics.IterationEvent) error {
	s.setFinite("theta", ev.Theta)
	s.setFinite("lower_bound", ev.LowerBound)
	s.setFinite("expected_recourse", ev.ExpectedRecourse)
	s.setFinite("gap", ev.Gap)
	s.iteration.WithLabelValues("cuts").Set(float64(ev.Cuts))
	return nil
}

// RecordRun counts the run and observes its size and duration.
func (s *PromSink) RecordRun(ev coremetrics.RunEvent) error {
	s.runs.WithLabelValues(strconv.FormatBool(ev.Converged)).Inc()
	s.iterations.Observe(float64(ev.Iterations))
	s.duration.Observe(ev.Elapsed.Seconds())
	if !math.IsInf(ev.TotalCost, 0) && !math.IsNaN(ev.TotalCost) {
		s.totalCost.Set(ev.TotalCost)
	}
	return nil
}

// WriteTextfile dumps every metric of g in the text exposition format, for
// node_exporter's textfile collector. A nil g uses the default gatherer.
func WriteTextfile(path string, g prometheus.Gatherer) error {
	if g == nil {
		g = prometheus.DefaultGatherer
	}
	return prometheus.WriteToTextfile(path, g)
}
