package metrics

import (
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coremetrics "github.com/kilianp07/benders/core/metrics"
)

type lineServer struct {
	mu     sync.Mutex
	bodies []string
	srv    *httptest.Server
}

func newLineServer(t *testing.T) *lineServer {
	t.Helper()
	ls := &lineServer{}
	ls.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		ls.mu.Lock()
		ls.bodies = append(ls.bodies, strings.TrimSpace(string(data)))
		ls.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(ls.srv.Close)
	return ls
}

func TestInfluxSink_RecordIteration(t *testing.T) {
	ls := newLineServer(t)
	sink := NewInfluxSink(ls.srv.URL, "token", "org", "bucket")
	defer sink.Close()
	now := time.Now()
	ev := coremetrics.IterationEvent{
		RunID:            "run-1",
		Round:            2,
		Theta:            -4010,
		LowerBound:       490,
		ExpectedRecourse: -4876,
		Gap:              -866,
		Cuts:             4,
		Converged:        true,
		MasterTime:       2 * time.Millisecond,
		SubproblemTime:   3 * time.Millisecond,
		Time:             now,
	}
	require.NoError(t, sink.RecordIteration(ev))

	p := write.NewPointWithMeasurement("benders_iteration").
		AddTag("run_id", "run-1").
		AddTag("converged", "true").
		AddField("round", 2).
		AddField("cuts", 4).
		AddField("theta", -4010.0).
		AddField("lower_bound", 490.0).
		AddField("expected_recourse", -4876.0).
		AddField("gap", -866.0).
		AddField("master_ms", 2.0).
		AddField("subproblem_ms", 3.0).
		SetTime(now)
	expected := strings.TrimSpace(write.PointToLineProtocol(p, time.Nanosecond))
	require.Len(t, ls.bodies, 1)
	assert.Equal(t, expected, ls.bodies[0])
}

func TestInfluxSink_SkipsInfiniteFields(t *testing.T) {
	ls := newLineServer(t)
	sink := NewInfluxSink(ls.srv.URL+"/api/v2/write", "token", "org", "bucket")
	defer sink.Close()
	ev := coremetrics.IterationEvent{
		RunID:            "run-1",
		Round:            1,
		Theta:            math.Inf(-1),
		LowerBound:       math.Inf(-1),
		ExpectedRecourse: -4876,
		Gap:              math.Inf(1),
		Time:             time.Now(),
	}
	require.NoError(t, sink.RecordIteration(ev))
	require.Len(t, ls.bodies, 1)
	assert.NotContains(t, ls.bodies[0], "theta=")
	assert.NotContains(t, ls.bodies[0], "gap=")
	assert.Contains(t, ls.bodies[0], "expected_recourse=-4876")
}

func TestInfluxSink_RecordRun(t *testing.T) {
	ls := newLineServer(t)
	sink := NewInfluxSink(ls.srv.URL, "token", "org", "bucket")
	defer sink.Close()
	now := time.Now()
	require.NoError(t, sink.RecordRun(coremetrics.RunEvent{
		RunID: "run-1", Iterations: 2, Converged: true, Gap: -866, TotalCost: -376,
		Elapsed: 15 * time.Millisecond, Time: now,
	}))
	p := write.NewPointWithMeasurement("benders_run").
		AddTag("run_id", "run-1").
		AddTag("converged", "true").
		AddField("iterations", 2).
		AddField("gap", -866.0).
		AddField("total_cost", -376.0).
		AddField("elapsed_ms", 15.0).
		SetTime(now)
	require.Len(t, ls.bodies, 1)
	assert.Equal(t, strings.TrimSpace(write.PointToLineProtocol(p, time.Nanosecond)), ls.bodies[0])
}

func TestNewInfluxSinkWithFallback(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			called = true
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
	}))
	defer srv.Close()

	sink := NewInfluxSinkWithFallback(srv.URL+"/api/v2/write", "tok", "org", "bucket")
	assert.IsType(t, coremetrics.NopSink{}, sink)
	assert.True(t, called, "health endpoint not called")
}
