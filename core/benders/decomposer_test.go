package benders

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/benders/core/benders/logging"
	"github.com/kilianp07/benders/core/events"
	"github.com/kilianp07/benders/core/metrics"
	"github.com/kilianp07/benders/core/model"
	"github.com/kilianp07/benders/core/solver"
	"github.com/kilianp07/benders/infra/simplex"
	"github.com/kilianp07/benders/internal/eventbus"
)

const tol = 1e-6

func newTestDecomposer(t *testing.T, s solver.Solver, cfg Config) *Decomposer {
	t.Helper()
	d, err := NewDecomposer(s, cfg, nil)
	require.NoError(t, err)
	return d
}

// negativePriceProblem has a regulation market that pays for upward and
// charges for downward adjustment. Its cuts never catch up with the
// realized recourse, so the loop can only stop on its iteration budget.
func negativePriceProblem() *model.Problem {
	return &model.Problem{
		Generators: []model.Generator{
			{ID: "G", DayAheadCost: 1, UpCost: -10, DownCost: -20, Capacity: 20, UpLimit: 5, DownLimit: 5},
		},
		Scenarios:         []model.Scenario{{ID: "S", Factor: 0.5, Probability: 1}},
		Load:              10,
		RenewableCapacity: 4,
	}
}

type recordingPublisher struct {
	events []events.Iteration
}

func (r *recordingPublisher) Publish(ev events.Iteration) { r.events = append(r.events, ev) }

type recordingSink struct {
	iterations []metrics.IterationEvent
	runs       []metrics.RunEvent
	err        error
}

func (r *recordingSink) RecordIteration(ev metrics.IterationEvent) error {
	r.iterations = append(r.iterations, ev)
	return r.err
}

func (r *recordingSink) RecordRun(ev metrics.RunEvent) error {
	r.runs = append(r.runs, ev)
	return r.err
}

func TestSolve_ReferenceConverges(t *testing.T) {
	d := newTestDecomposer(t, simplex.New(0), Config{})
	res, err := d.Solve(context.Background(), model.ReferenceProblem())
	require.NoError(t, err)
	require.NoError(t, res.Err())

	assert.True(t, res.Converged)
	assert.Equal(t, 2, res.Iterations)
	assert.Equal(t, 2, res.Round)
	assert.NotEmpty(t, res.RunID)
	require.Len(t, res.Dispatch, 3)
	assert.InDelta(t, 50, res.Dispatch[0], tol)
	assert.InDelta(t, 150, res.Dispatch[1], tol)
	assert.InDelta(t, 0, res.Dispatch[2], tol)
	assert.InDelta(t, 200, res.Dispatch.Total(), tol)

	assert.InDelta(t, -4010, res.Theta, tol)
	assert.InDelta(t, -4876, res.ExpectedRecourse, tol)
	assert.InDelta(t, 490, res.LowerBound, tol)
	assert.InDelta(t, 4500, res.DayAheadCost, tol)
	assert.InDelta(t, -376, res.TotalCost, tol)
	assert.LessOrEqual(t, res.Gap, DefaultEpsilon)
	assert.Len(t, res.Cuts, 4)

	wantCosts := []float64{-4810, -4870, -4900, -4960}
	require.Len(t, res.Scenarios, 4)
	for i, s := range res.Scenarios {
		assert.Equal(t, i, s.Scenario)
		assert.InDelta(t, wantCosts[i], s.Cost, tol)
		assert.InDelta(t, 4, s.BalanceDual, tol)
	}
}

func TestSolve_ZeroScenariosConvergesInOneIteration(t *testing.T) {
	p := model.ReferenceProblem()
	p.Scenarios = nil
	d := newTestDecomposer(t, simplex.New(0), Config{})
	res, err := d.Solve(context.Background(), p)
	require.NoError(t, err)
	assert.True(t, res.Converged)
	assert.Equal(t, 1, res.Iterations)
	assert.Zero(t, res.Theta)
	assert.Zero(t, res.Gap)
	assert.Empty(t, res.Cuts)
	assert.InDelta(t, 4500, res.TotalCost, tol)
}

func TestSolve_RoundTripFixedPoint(t *testing.T) {
	p := model.ReferenceProblem()
	d := newTestDecomposer(t, simplex.New(0), Config{})
	res, err := d.Solve(context.Background(), p)
	require.NoError(t, err)

	again, err := solveMaster(context.Background(), simplex.New(0), p, res.Cuts)
	require.NoError(t, err)
	assert.InDeltaSlice(t, res.Dispatch, again.Dispatch, tol)
	assert.InDelta(t, res.Theta, again.Theta, tol)
}

func TestSolve_CutsGrowByScenarioCountPerFailedRound(t *testing.T) {
	pub := &recordingPublisher{}
	d := newTestDecomposer(t, simplex.New(0), Config{})
	d.SetEventBus(pub)
	p := model.ReferenceProblem()
	res, err := d.Solve(context.Background(), p)
	require.NoError(t, err)

	require.Len(t, pub.events, res.Iterations)
	for i, ev := range pub.events {
		failed := i + 1
		if ev.Converged {
			failed = i
		}
		assert.Equal(t, failed*len(p.Scenarios), ev.Cuts)
	}
	for _, c := range res.Cuts {
		assert.Equal(t, 1, c.Round)
	}
}

func TestSolve_BestEffortAfterMaxIterations(t *testing.T) {
	pub := &recordingPublisher{}
	d := newTestDecomposer(t, simplex.New(0), Config{MaxIterations: 4})
	d.SetEventBus(pub)
	res, err := d.Solve(context.Background(), negativePriceProblem())
	require.NoError(t, err)

	assert.False(t, res.Converged)
	assert.ErrorIs(t, res.Err(), ErrNonConvergence)
	assert.Equal(t, 4, res.Iterations)
	assert.Equal(t, 4, res.Round)
	assert.Len(t, res.Cuts, 4)
	assert.InDeltaSlice(t, model.Dispatch{10}, res.Dispatch, tol)
	assert.InDelta(t, 40, res.ExpectedRecourse, tol)
	assert.InDelta(t, -160, res.Theta, tol)
	assert.InDelta(t, 200, res.Gap, tol)
	assert.InDelta(t, 50, res.TotalCost, tol)

	// the master only ever gains constraints
	require.Len(t, pub.events, 4)
	assert.True(t, math.IsInf(pub.events[0].LowerBound, -1))
	for i := 1; i < len(pub.events); i++ {
		assert.GreaterOrEqual(t, pub.events[i].LowerBound, pub.events[i-1].LowerBound-tol)
	}
	assert.InDelta(t, -150, pub.events[3].LowerBound, tol)
}

func TestSolve_InterruptedAfterFirstRoundReturnsBest(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d := newTestDecomposer(t, newCancelingSolver(cancel, 2), Config{})
	res, err := d.Solve(ctx, model.ReferenceProblem())
	require.NoError(t, err)
	assert.False(t, res.Converged)
	assert.Equal(t, 1, res.Iterations)
	assert.InDeltaSlice(t, model.Dispatch{50, 150, 0}, res.Dispatch, tol)
	assert.True(t, math.IsInf(res.Gap, 1))
	assert.Len(t, res.Cuts, 4)
}

func TestSolve_CanceledBeforeFirstRound(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	d := newTestDecomposer(t, simplex.New(0), Config{})
	res, err := d.Solve(ctx, model.ReferenceProblem())
	assert.Nil(t, res)
	assert.ErrorIs(t, err, ErrNonConvergence)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSolve_InfeasibleSubproblemReportsScenario(t *testing.T) {
	p := model.ReferenceProblem()
	for i := range p.Generators {
		p.Generators[i].UpLimit = 1
		p.Generators[i].DownLimit = 1
	}
	d := newTestDecomposer(t, simplex.New(0), Config{Workers: 1})
	res, err := d.Solve(context.Background(), p)
	assert.Nil(t, res)
	require.ErrorIs(t, err, ErrInfeasibleSubproblem)
	var pe *PhaseError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, PhaseSubproblem, pe.Phase)
	assert.Equal(t, 1, pe.Round)
	assert.Equal(t, "S1", pe.Scenario)
}

func TestSolve_SolverFailures(t *testing.T) {
	cases := []struct {
		name     string
		fail     func(name string) bool
		status   solver.Status
		want     error
		phase    Phase
		scenario string
	}{
		{"infeasible master", isMaster, solver.StatusInfeasible, ErrInfeasibleMaster, PhaseMaster, ""},
		{"unbounded master", isMaster, solver.StatusUnbounded, ErrUnboundedModel, PhaseMaster, ""},
		{"unbounded subproblem", func(n string) bool { return n == "subproblem_S3" }, solver.StatusUnbounded, ErrUnboundedModel, PhaseSubproblem, "S3"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := newScriptedSolver(func(name string, _ int) (*solver.Solution, error) {
				if tc.fail(name) {
					return &solver.Solution{Status: tc.status}, nil
				}
				return optimal()
			})
			d := newTestDecomposer(t, s, Config{})
			_, err := d.Solve(context.Background(), model.ReferenceProblem())
			require.ErrorIs(t, err, tc.want)
			var pe *PhaseError
			require.True(t, errors.As(err, &pe))
			assert.Equal(t, tc.phase, pe.Phase)
			assert.Equal(t, tc.scenario, pe.Scenario)
			assert.Equal(t, 1, pe.Round)
		})
	}
}

func TestSolve_EngineErrorInLaterRound(t *testing.T) {
	boom := errors.New("engine crashed")
	s := newScriptedSolver(func(name string, call int) (*solver.Solution, error) {
		if isMaster(name) && call == 2 {
			return &solver.Solution{Status: solver.StatusOther}, boom
		}
		return optimal()
	})
	// zero costs and duals never satisfy θ ≥ E[Q] in round one
	d := newTestDecomposer(t, s, Config{})
	_, err := d.Solve(context.Background(), model.ReferenceProblem())
	require.ErrorIs(t, err, boom)
	var pe *PhaseError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, 2, pe.Round)
}

func TestSolve_InvalidProblem(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(p *model.Problem)
	}{
		{"probabilities", func(p *model.Problem) { p.Scenarios[0].Probability = 0.5 }},
		{"infinite capacity", func(p *model.Problem) { p.Generators[2].Capacity = math.Inf(1) }},
		{"NaN load", func(p *model.Problem) { p.Load = math.NaN() }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := model.ReferenceProblem()
			tt.mutate(p)
			d := newTestDecomposer(t, simplex.New(0), Config{})
			_, err := d.Solve(context.Background(), p)
			assert.ErrorIs(t, err, model.ErrInvalidProblem)
		})
	}
}

func TestSolve_ObserversReceiveEveryRound(t *testing.T) {
	store, err := logging.NewJSONLStore(filepath.Join(t.TempDir(), "iterations.jsonl"))
	require.NoError(t, err)
	sink := &recordingSink{err: errors.New("sink down")}
	bus := eventbus.NewTyped[events.Iteration]()
	defer bus.Close()
	sub := bus.Subscribe()

	d := newTestDecomposer(t, simplex.New(0), Config{})
	d.SetMetrics(sink)
	d.SetLogStore(store)
	d.SetEventBus(bus)
	res, err := d.Solve(context.Background(), model.ReferenceProblem())
	require.NoError(t, err, "sink failures must not abort the run")

	require.Len(t, sink.iterations, 2)
	require.Len(t, sink.runs, 1)
	assert.True(t, sink.runs[0].Converged)
	assert.Equal(t, res.RunID, sink.runs[0].RunID)

	first := <-sub
	second := <-sub
	assert.Equal(t, 1, first.Round)
	assert.Equal(t, 2, second.Round)
	assert.True(t, second.Converged)

	recs, err := store.Query(context.Background(), logging.Query{RunID: res.RunID})
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Nil(t, recs[0].Theta)
	require.NotNil(t, recs[1].Theta)
	assert.InDelta(t, -4010, *recs[1].Theta, tol)
	assert.InDelta(t, 150, recs[1].Dispatch["G2"], tol)
	require.Len(t, recs[1].Scenarios, 4)
	assert.Equal(t, "S4", recs[1].Scenarios[3].ID)
}

func TestSolve_PrometheusCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	ResetMetrics(reg)
	defer ResetMetrics(nil)

	d := newTestDecomposer(t, simplex.New(0), Config{})
	_, err := d.Solve(context.Background(), model.ReferenceProblem())
	require.NoError(t, err)

	assert.Equal(t, 2.0, testutil.ToFloat64(roundsTotal))
	assert.Equal(t, 4.0, testutil.ToFloat64(cutsTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(runsTotal.WithLabelValues("converged")))
	assert.Equal(t, 2, testutil.CollectAndCount(phaseDuration))
}

func TestNewDecomposer(t *testing.T) {
	_, err := NewDecomposer(nil, Config{}, nil)
	assert.Error(t, err)
	_, err = NewDecomposer(simplex.New(0), Config{Epsilon: -1}, nil)
	assert.Error(t, err)
	d, err := NewDecomposer(simplex.New(0), Config{}, nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultMaxIterations, d.cfg.MaxIterations)
	assert.Equal(t, DefaultEpsilon, d.cfg.Epsilon)
	assert.Positive(t, d.cfg.Workers)
}
