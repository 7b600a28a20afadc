// Package app wires configuration, solver, observers and publishers into a
// runnable decomposition service.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/kilianp07/benders/config"
	"github.com/kilianp07/benders/core/benders"
	"github.com/kilianp07/benders/core/benders/logging"
	"github.com/kilianp07/benders/core/events"
	coremetrics "github.com/kilianp07/benders/core/metrics"
	"github.com/kilianp07/benders/core/model"
	"github.com/kilianp07/benders/core/problem"
	"github.com/kilianp07/benders/core/solver"
	"github.com/kilianp07/benders/core/stochastic"
	"github.com/kilianp07/benders/infra/logger"
	"github.com/kilianp07/benders/infra/metrics"
	"github.com/kilianp07/benders/infra/mqtt"
	"github.com/kilianp07/benders/infra/simplex"
	"github.com/kilianp07/benders/internal/eventbus"
	"github.com/kilianp07/benders/pkg/export"
)

// Service runs decompositions of one problem with the configured observers.
type Service struct {
	cfg        *config.Config
	problem    *model.Problem
	solver     solver.Solver
	decomposer *benders.Decomposer
	sink       coremetrics.Sink
	store      logging.Store
	bus        *eventbus.TypedBus[events.Iteration]
	publisher  *mqtt.SchedulePublisher
	log        logger.Logger
}

// LoadProblem reads the problem at path, or returns the reference instance
// when path is empty.
func LoadProblem(path string) (*model.Problem, error) {
	if path == "" {
		return model.ReferenceProblem(), nil
	}
	return problem.Load(path)
}

// New creates a Service from the configuration. The MQTT publisher is only
// connected when a broker is configured.
func New(cfg *config.Config) (*Service, error) {
	opts := cfg.Log
	logg := logger.NewZerologLogger("service", opts)

	p, err := LoadProblem(cfg.Problem)
	if err != nil {
		return nil, fmt.Errorf("load problem: %w", err)
	}
	s := simplex.New(cfg.Benders.SolverTolerance)
	dec, err := benders.NewDecomposer(s, cfg.Benders, logger.NewZerologLogger("decomposer", opts))
	if err != nil {
		return nil, fmt.Errorf("decomposer: %w", err)
	}

	sink, err := coremetrics.NewSink(cfg.Metrics.Sinks)
	if err != nil {
		return nil, fmt.Errorf("metrics sink: %w", err)
	}
	dec.SetMetrics(sink)

	svc := &Service{
		cfg:        cfg,
		problem:    p,
		solver:     s,
		decomposer: dec,
		sink:       sink,
		bus:        eventbus.NewTyped[events.Iteration](),
		log:        logg,
	}
	dec.SetEventBus(svc.bus)

	store, err := logging.New(cfg.IterationLog)
	if err != nil {
		svc.closeSink()
		return nil, fmt.Errorf("iteration log: %w", err)
	}
	if store != nil {
		svc.store = store
		dec.SetLogStore(store)
	}

	if cfg.MQTT.Enabled() {
		pub, err := mqtt.NewSchedulePublisher(cfg.MQTT, logger.NewZerologLogger("mqtt", opts))
		if err != nil {
			_ = svc.Close()
			return nil, fmt.Errorf("mqtt publisher: %w", err)
		}
		svc.publisher = pub
	}
	return svc, nil
}

// Problem returns the problem solved by the service.
func (s *Service) Problem() *model.Problem { return s.problem }

// Events returns the bus carrying one event per completed round.
func (s *Service) Events() *eventbus.TypedBus[events.Iteration] { return s.bus }

// Solve runs the decomposition and publishes the resulting schedule. A
// publish failure is logged and does not fail the run.
func (s *Service) Solve(ctx context.Context) (*benders.Result, export.Report, error) {
	var wg sync.WaitGroup
	if s.publisher != nil && s.cfg.MQTT.Progress {
		sub := s.bus.Subscribe()
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.publisher.Forward(ctx, sub)
		}()
		defer func() {
			s.bus.Unsubscribe(sub)
			wg.Wait()
		}()
	}

	res, err := s.decomposer.Solve(ctx, s.problem)
	if err != nil {
		return nil, export.Report{}, err
	}
	rep := export.NewReport(s.problem, res)

	if s.cfg.Metrics.Textfile != "" {
		if err := metrics.WriteTextfile(s.cfg.Metrics.Textfile, nil); err != nil {
			s.log.Warnf("write metrics textfile: %v", err)
		}
	}
	if s.publisher != nil {
		if _, err := s.publisher.PublishSchedule(context.WithoutCancel(ctx), rep); err != nil {
			s.log.Errorf("publish schedule: %v", err)
		}
	}
	return res, rep, nil
}

// Extensive solves the deterministic equivalent of the problem.
func (s *Service) Extensive(ctx context.Context) (*stochastic.Solution, error) {
	return stochastic.Solve(ctx, s.solver, s.problem)
}

// Evaluate prices dispatch d, indexed like the service problem, against the
// scenarios of p. Generators are matched by id so p may list them in any
// order, but it must hold exactly the same set.
func (s *Service) Evaluate(ctx context.Context, p *model.Problem, d model.Dispatch) ([]benders.ScenarioResult, float64, error) {
	if len(d) != len(s.problem.Generators) {
		return nil, 0, fmt.Errorf("%w: %d quantities for %d generators", model.ErrDispatchMismatch, len(d), len(s.problem.Generators))
	}
	return benders.Evaluate(ctx, s.solver, p, d.ByID(s.problem), s.cfg.Benders.Workers)
}

// IterationLog returns the persistent iteration store, nil when disabled.
func (s *Service) IterationLog() logging.Store { return s.store }

func (s *Service) closeSink() {
	if c, ok := s.sink.(interface{ Close() }); ok {
		c.Close()
	}
}

// Close releases resources held by the service.
func (s *Service) Close() error {
	s.bus.Close()
	if s.publisher != nil {
		s.publisher.Disconnect()
	}
	s.closeSink()
	var errs []error
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("iteration log: %w", err))
		}
	}
	return errors.Join(errs...)
}
