package app

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/benders/config"
	"github.com/kilianp07/benders/core/benders/logging"
	"github.com/kilianp07/benders/core/factory"
	"github.com/kilianp07/benders/core/model"
	"github.com/kilianp07/benders/infra/logger"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{
		Log:          logger.Options{Writer: io.Discard},
		IterationLog: logging.Config{Backend: "jsonl", Path: filepath.Join(dir, "iterations.log")},
	}
	cfg.Metrics.Sinks = []factory.ModuleConfig{{Type: "nop"}}
	cfg.Metrics.Textfile = filepath.Join(dir, "benders.prom")
	cfg.SetDefaults()
	require.NoError(t, cfg.Validate())
	return cfg
}

func TestService_Solve(t *testing.T) {
	cfg := testConfig(t)
	svc, err := New(cfg)
	require.NoError(t, err)
	defer func() { assert.NoError(t, svc.Close()) }()

	sub := svc.Events().Subscribe()
	res, rep, err := svc.Solve(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Converged)
	assert.Equal(t, 2, res.Iterations)
	assert.InDelta(t, -376, rep.TotalCost, 1e-6)
	require.Len(t, rep.Schedule, 3)
	assert.InDelta(t, 150, rep.Schedule[1].Dispatch, 1e-6)

	first := <-sub
	assert.Equal(t, 1, first.Round)
	assert.Equal(t, res.RunID, first.RunID)

	recs, err := svc.IterationLog().Query(context.Background(), logging.Query{RunID: res.RunID})
	require.NoError(t, err)
	assert.Len(t, recs, 2)

	data, err := os.ReadFile(cfg.Metrics.Textfile)
	require.NoError(t, err)
	assert.Contains(t, string(data), "benders_rounds_total")
}

func TestService_ExtensiveAndEvaluate(t *testing.T) {
	svc, err := New(testConfig(t))
	require.NoError(t, err)
	defer func() { _ = svc.Close() }()

	sol, err := svc.Extensive(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, -376, sol.TotalCost, 1e-6)

	oos := model.ReferenceProblem()
	oos.Scenarios = []model.Scenario{
		{ID: "calm", Factor: 0.2, Probability: 0.5},
		{ID: "windy", Factor: 0.9, Probability: 0.5},
	}
	results, expected, err := svc.Evaluate(context.Background(), oos, sol.Dispatch)
	require.NoError(t, err)
	assert.Len(t, results, 2)
	assert.InDelta(t, -3690, expected, 1e-6)

	oos.Generators[0], oos.Generators[1] = oos.Generators[1], oos.Generators[0]
	_, permuted, err := svc.Evaluate(context.Background(), oos, sol.Dispatch)
	require.NoError(t, err)
	assert.InDelta(t, expected, permuted, 1e-6)

	oos.Generators[2].ID = "G9"
	_, _, err = svc.Evaluate(context.Background(), oos, sol.Dispatch)
	assert.ErrorIs(t, err, model.ErrDispatchMismatch)

	_, _, err = svc.Evaluate(context.Background(), model.ReferenceProblem(), sol.Dispatch[:2])
	assert.ErrorIs(t, err, model.ErrDispatchMismatch)
}

func TestService_ReferenceWhenNoProblemPath(t *testing.T) {
	svc, err := New(testConfig(t))
	require.NoError(t, err)
	defer func() { _ = svc.Close() }()
	assert.Equal(t, model.ReferenceProblem(), svc.Problem())
}

func TestNew_Errors(t *testing.T) {
	cfg := testConfig(t)
	cfg.Problem = filepath.Join(t.TempDir(), "missing.yaml")
	_, err := New(cfg)
	assert.ErrorContains(t, err, "load problem")

	cfg = testConfig(t)
	cfg.Metrics.Sinks = []factory.ModuleConfig{{Type: "unknown"}}
	_, err = New(cfg)
	assert.ErrorContains(t, err, "metrics sink")

	cfg = testConfig(t)
	cfg.IterationLog.Path = filepath.Join(t.TempDir(), "missing", "dir", "x.db")
	cfg.IterationLog.Backend = "sqlite"
	_, err = New(cfg)
	assert.ErrorContains(t, err, "iteration log")
}
