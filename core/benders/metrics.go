package benders

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	phaseDuration *prometheus.HistogramVec
	roundsTotal   prometheus.Counter
	cutsTotal     prometheus.Counter
	runsTotal     *prometheus.CounterVec
	lastGap       prometheus.Gauge
)

// newCollectors creates new metric collectors.
func newCollectors() (*prometheus.HistogramVec, prometheus.Counter, prometheus.Counter, *prometheus.CounterVec, prometheus.Gauge) {
	dur := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "benders_phase_duration_seconds",
			Help:    "Wall-clock time spent per round in the master and subproblem phases",
			Buckets: prometheus.ExponentialBuckets(0.0005, 4, 10),
		},
		[]string{"phase"},
	)
	rounds := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "benders_rounds_total",
			Help: "Number of completed master/subproblem rounds",
		},
	)
	cuts := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "benders_cuts_total",
			Help: "Number of optimality cuts generated",
		},
	)
	runs := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "benders_runs_total",
			Help: "Number of decomposition runs by outcome",
		},
		[]string{"outcome"},
	)
	gap := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "benders_gap",
			Help: "Gap between expected recourse and θ at the end of the last run",
		},
	)
	return dur, rounds, cuts, runs, gap
}

func init() {
	phaseDuration, roundsTotal, cutsTotal, runsTotal, lastGap = newCollectors()
	MustRegisterMetrics(nil)
}

// MustRegisterMetrics registers decomposition metrics on the provided registry.
// If reg is nil, prometheus.DefaultRegisterer is used.
func MustRegisterMetrics(reg prometheus.Registerer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(phaseDuration, roundsTotal, cutsTotal, runsTotal, lastGap)
}

// ResetMetrics reinitializes metrics collectors for testing purposes and
// registers them on the provided registry if not nil.
func ResetMetrics(reg prometheus.Registerer) {
	phaseDuration, roundsTotal, cutsTotal, runsTotal, lastGap = newCollectors()
	if reg != nil {
		MustRegisterMetrics(reg)
	}
}
