// Package benders solves the two-stage stochastic economic dispatch by
// multi-cut Benders decomposition: a master LP picks the day-ahead dispatch,
// one LP per scenario prices the real-time rebalancing, and the balance duals
// are fed back to the master as optimality cuts until θ catches up with the
// expected recourse cost.
package benders

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kilianp07/benders/core/benders/logging"
	"github.com/kilianp07/benders/core/events"
	"github.com/kilianp07/benders/core/logger"
	"github.com/kilianp07/benders/core/metrics"
	"github.com/kilianp07/benders/core/model"
	"github.com/kilianp07/benders/core/solver"
)

// IterationPublisher receives one event per completed round.
// *eventbus.TypedBus[events.Iteration] satisfies it.
type IterationPublisher interface {
	Publish(events.Iteration)
}

// Result is the outcome of a decomposition run.
type Result struct {
	RunID      string
	Dispatch   model.Dispatch
	Iterations int
	Converged  bool
	// Round is the round Dispatch was produced in. It differs from Iterations
	// for best-effort results.
	Round            int
	Gap              float64
	Theta            float64
	LowerBound       float64
	ExpectedRecourse float64
	DayAheadCost     float64
	// TotalCost is DayAheadCost plus ExpectedRecourse.
	TotalCost float64
	Cuts      []model.Cut
	Scenarios []ScenarioResult
	Elapsed   time.Duration
}

// Err returns ErrNonConvergence for best-effort results.
func (r *Result) Err() error {
	if r.Converged {
		return nil
	}
	return fmt.Errorf("%w after %d iterations (gap %g)", ErrNonConvergence, r.Iterations, r.Gap)
}

// Decomposer runs the master/subproblem loop.
type Decomposer struct {
	solver  solver.Solver
	cfg     Config
	logger  logger.Logger
	metrics metrics.Sink
	bus     IterationPublisher
	store   logging.Store
	mu      sync.Mutex
}

// NewDecomposer returns a Decomposer using s for every LP. Zero fields of cfg
// take their defaults.
func NewDecomposer(s solver.Solver, cfg Config, log logger.Logger) (*Decomposer, error) {
	if s == nil {
		return nil, fmt.Errorf("solver is required")
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.NopLogger{}
	}
	return &Decomposer{solver: s, cfg: cfg, logger: log, metrics: metrics.NopSink{}}, nil
}

// SetMetrics configures the sink receiving iteration and run events.
func (d *Decomposer) SetMetrics(sink metrics.Sink) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if sink == nil {
		sink = metrics.NopSink{}
	}
	d.metrics = sink
}

// SetEventBus configures where iteration events are published.
func (d *Decomposer) SetEventBus(bus IterationPublisher) {
	d.mu.Lock()
	d.bus = bus
	d.mu.Unlock()
}

// SetLogStore configures the store used to persist iteration records.
func (d *Decomposer) SetLogStore(store logging.Store) {
	d.mu.Lock()
	d.store = store
	d.mu.Unlock()
}

type observers struct {
	metrics metrics.Sink
	bus     IterationPublisher
	store   logging.Store
}

func (d *Decomposer) observers() observers {
	d.mu.Lock()
	defer d.mu.Unlock()
	return observers{metrics: d.metrics, bus: d.bus, store: d.store}
}

// Solve runs the decomposition on p. A non-converged run that completed at
// least one round returns the best dispatch seen with Converged=false and a
// nil error. Solver failures abort the run with a *PhaseError.
func (d *Decomposer) Solve(ctx context.Context, p *model.Problem) (*Result, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if timeout := d.cfg.Timeout(); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	run := &run{
		id:    uuid.NewString(),
		start: time.Now(),
		p:     p,
		obs:   d.observers(),
	}
	d.logger.Infof("benders run %s: %d generators, %d scenarios", run.id, len(p.Generators), len(p.Scenarios))

	state := newIterationState(p)
	for state.Round < d.cfg.MaxIterations {
		next, err := d.round(ctx, run, state)
		if err != nil {
			if isInterrupt(err) {
				return d.interrupted(run, next, err)
			}
			d.finish(run, nil, err)
			return nil, err
		}
		state = next
		if state.Converged {
			res := run.result(state, state)
			d.finish(run, res, nil)
			return res, nil
		}
	}
	d.logger.Warnf("benders run %s: no convergence after %d iterations", run.id, state.Round)
	best, _ := state.Best()
	res := run.result(state, best)
	d.finish(run, res, nil)
	return res, nil
}

// run holds the per-call context of Solve.
type run struct {
	id    string
	start time.Time
	p     *model.Problem
	obs   observers
}

// round performs SOLVE_MASTER, SOLVE_SUBPROBLEMS and CHECK_CONVERGENCE, and
// appends the new cuts when the test fails. On error the returned state is
// the last complete one.
func (d *Decomposer) round(ctx context.Context, r *run, state IterationState) (IterationState, error) {
	if err := ctx.Err(); err != nil {
		return state, err
	}
	round := state.Round + 1

	t0 := time.Now()
	mr, err := solveMaster(ctx, d.solver, r.p, state.Cuts)
	if err != nil {
		return state, &PhaseError{Phase: PhaseMaster, Round: round, Err: err}
	}
	masterTime := time.Since(t0)
	phaseDuration.WithLabelValues(string(PhaseMaster)).Observe(masterTime.Seconds())

	t1 := time.Now()
	results, err := solveScenarios(ctx, d.solver, r.p, mr.Dispatch, round, d.cfg.Workers)
	if err != nil {
		return state, err
	}
	subTime := time.Since(t1)
	phaseDuration.WithLabelValues(string(PhaseSubproblem)).Observe(subTime.Seconds())

	c := checkConvergence(mr.Theta, expectedRecourse(r.p, results), d.cfg.Epsilon)
	next := state.withMaster(mr).withRecourse(results, c)
	if !c.Converged {
		cuts := generateCuts(round, len(r.p.Generators), results)
		next = next.withCuts(cuts)
		cutsTotal.Add(float64(len(cuts)))
	}
	roundsTotal.Inc()
	d.observe(ctx, r, next, masterTime, subTime)
	return next, nil
}

func isInterrupt(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// interrupted turns a cancellation into a best-effort result when a round
// completed before it.
func (d *Decomposer) interrupted(r *run, state IterationState, cause error) (*Result, error) {
	best, ok := state.Best()
	if !ok {
		err := fmt.Errorf("%w: interrupted before the first round completed: %w", ErrNonConvergence, cause)
		d.finish(r, nil, err)
		return nil, err
	}
	d.logger.Warnf("benders run %s interrupted after %d iterations: %v", r.id, state.Round, cause)
	res := r.result(state, best)
	d.finish(r, res, nil)
	return res, nil
}

// result reports chosen, the round whose dispatch is returned, with the
// totals of the last state.
func (r *run) result(last, chosen IterationState) *Result {
	dayAhead := r.p.DayAheadCost(chosen.Dispatch)
	return &Result{
		RunID:            r.id,
		Dispatch:         chosen.Dispatch.Clone(),
		Iterations:       last.Round,
		Converged:        chosen.Converged,
		Round:            chosen.Round,
		Gap:              chosen.Gap,
		Theta:            chosen.Theta,
		LowerBound:       chosen.LowerBound,
		ExpectedRecourse: chosen.Expected,
		DayAheadCost:     dayAhead,
		TotalCost:        dayAhead + chosen.Expected,
		Cuts:             last.Cuts,
		Scenarios:        chosen.Scenarios,
		Elapsed:          time.Since(r.start),
	}
}

// observe reports a completed round to the logger, metrics sink, event bus
// and iteration store. Failures of these side channels are logged only.
func (d *Decomposer) observe(ctx context.Context, r *run, st IterationState, masterTime, subTime time.Duration) {
	now := time.Now()
	d.logger.Debugw("benders round", map[string]any{
		"run_id":            r.id,
		"round":             st.Round,
		"dispatch":          st.Dispatch.ByID(r.p),
		"theta":             st.Theta,
		"lower_bound":       st.LowerBound,
		"expected_recourse": st.Expected,
		"gap":               st.Gap,
		"cuts":              len(st.Cuts),
		"converged":         st.Converged,
	})

	if err := r.obs.metrics.RecordIteration(metrics.IterationEvent{
		RunID:            r.id,
		Round:            st.Round,
		Theta:            st.Theta,
		LowerBound:       st.LowerBound,
		ExpectedRecourse: st.Expected,
		Gap:              st.Gap,
		Cuts:             len(st.Cuts),
		Converged:        st.Converged,
		MasterTime:       masterTime,
		SubproblemTime:   subTime,
		Time:             now,
	}); err != nil {
		d.logger.Warnf("record iteration metrics: %v", err)
	}

	if r.obs.bus != nil {
		r.obs.bus.Publish(events.Iteration{
			RunID:            r.id,
			Round:            st.Round,
			Dispatch:         st.Dispatch,
			Theta:            st.Theta,
			LowerBound:       st.LowerBound,
			ExpectedRecourse: st.Expected,
			Gap:              st.Gap,
			Cuts:             len(st.Cuts),
			Converged:        st.Converged,
		})
	}

	if r.obs.store != nil {
		rec := logging.IterationRecord{
			RunID:            r.id,
			Round:            st.Round,
			Timestamp:        now,
			Dispatch:         st.Dispatch.ByID(r.p),
			Theta:            logging.Finite(st.Theta),
			LowerBound:       logging.Finite(st.LowerBound),
			Gap:              logging.Finite(st.Gap),
			ExpectedRecourse: st.Expected,
			Cuts:             len(st.Cuts),
			Converged:        st.Converged,
			Scenarios:        make([]logging.ScenarioRecord, len(st.Scenarios)),
		}
		for i, s := range st.Scenarios {
			rec.Scenarios[i] = logging.ScenarioRecord{
				ID:          r.p.Scenarios[s.Scenario].ID,
				Cost:        s.Cost,
				BalanceDual: s.BalanceDual,
			}
		}
		// a cancelled run still records its last round
		if err := r.obs.store.Append(context.WithoutCancel(ctx), rec); err != nil {
			d.logger.Warnf("append iteration record: %v", err)
		}
	}
}

// finish records the run outcome. res is nil when the run failed.
func (d *Decomposer) finish(r *run, res *Result, err error) {
	elapsed := time.Since(r.start)
	if err != nil {
		runsTotal.WithLabelValues("error").Inc()
		d.logger.Errorf("benders run %s failed after %s: %v", r.id, elapsed, err)
		return
	}
	outcome := "converged"
	if !res.Converged {
		outcome = "best_effort"
	}
	runsTotal.WithLabelValues(outcome).Inc()
	if !math.IsInf(res.Gap, 0) {
		lastGap.Set(res.Gap)
	}
	if rerr := r.obs.metrics.RecordRun(metrics.RunEvent{
		RunID:      r.id,
		Iterations: res.Iterations,
		Converged:  res.Converged,
		Gap:        res.Gap,
		TotalCost:  res.TotalCost,
		Elapsed:    res.Elapsed,
		Time:       time.Now(),
	}); rerr != nil {
		d.logger.Warnf("record run metrics: %v", rerr)
	}
	d.logger.Infof("benders run %s %s: %d iterations, total cost %.4f, gap %g", r.id, outcome, res.Iterations, res.TotalCost, res.Gap)
}
