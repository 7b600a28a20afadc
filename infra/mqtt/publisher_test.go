package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/benders/core/events"
	"github.com/kilianp07/benders/pkg/export"
)

type publishedMsg struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

// mockClient implements paho.Client for tests.
type mockClient struct {
	opts         *paho.ClientOptions
	connectErr   error
	published    []publishedMsg
	publishErrs  []error
	disconnected bool
}

func (m *mockClient) IsConnected() bool { return !m.disconnected }
func (m *mockClient) Connect() paho.Token {
	if m.connectErr != nil {
		return &dummyToken{err: m.connectErr}
	}
	if m.opts != nil && m.opts.OnConnect != nil {
		m.opts.OnConnect(m)
	}
	return &dummyToken{}
}
func (m *mockClient) Disconnect(uint) { m.disconnected = true }
func (m *mockClient) Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token {
	b, _ := payload.([]byte)
	m.published = append(m.published, publishedMsg{topic: topic, qos: qos, retained: retained, payload: b})
	if len(m.publishErrs) > 0 {
		err := m.publishErrs[0]
		m.publishErrs = m.publishErrs[1:]
		return &dummyToken{err: err}
	}
	return &dummyToken{}
}
func (m *mockClient) Subscribe(string, byte, paho.MessageHandler) paho.Token { return &dummyToken{} }
func (m *mockClient) SubscribeMultiple(map[string]byte, paho.MessageHandler) paho.Token {
	return &dummyToken{}
}
func (m *mockClient) Unsubscribe(...string) paho.Token        { return &dummyToken{} }
func (m *mockClient) AddRoute(string, paho.MessageHandler)    {}
func (m *mockClient) OptionsReader() paho.ClientOptionsReader { return paho.ClientOptionsReader{} }
func (m *mockClient) IsConnectionOpen() bool                  { return !m.disconnected }

type dummyToken struct{ err error }

func (d dummyToken) Wait() bool                     { return true }
func (d dummyToken) WaitTimeout(time.Duration) bool { return true }
func (d dummyToken) Done() <-chan struct{}          { ch := make(chan struct{}); close(ch); return ch }
func (d dummyToken) Error() error                   { return d.err }

func withMock(t *testing.T, mc *mockClient) {
	t.Helper()
	prev := newMQTTClient
	newMQTTClient = func(o *paho.ClientOptions) pahoClient { mc.opts = o; return mc }
	t.Cleanup(func() { newMQTTClient = prev })
}

func sampleReport() export.Report {
	lb := 490.0
	return export.Report{
		RunID:      "run-1",
		Converged:  true,
		Iterations: 2,
		Round:      2,
		LowerBound: &lb,
		TotalCost:  -376,
		Schedule: []export.GeneratorSchedule{
			{GeneratorID: "G1", Dispatch: 50, DayAheadCost: 3750},
			{GeneratorID: "G2", Dispatch: 150, DayAheadCost: 750},
			{GeneratorID: "G3", Dispatch: 0, DayAheadCost: 0},
		},
	}
}

func TestPublishSchedule(t *testing.T) {
	mc := &mockClient{}
	withMock(t, mc)
	cfg := Config{Broker: "tcp://localhost:1883", Retain: true, QoS: map[string]byte{"schedule": 1}}
	p, err := NewSchedulePublisher(cfg, nil)
	require.NoError(t, err)

	id, err := p.PublishSchedule(context.Background(), sampleReport())
	require.NoError(t, err)
	require.Len(t, mc.published, 1)
	msg := mc.published[0]
	assert.Equal(t, DefaultScheduleTopic, msg.topic)
	assert.Equal(t, byte(1), msg.qos)
	assert.True(t, msg.retained)

	var got ScheduleMessage
	require.NoError(t, json.Unmarshal(msg.payload, &got))
	assert.Equal(t, id, got.MessageID)
	assert.Equal(t, "run-1", got.Report.RunID)
	require.Len(t, got.Report.Schedule, 3)
	assert.Equal(t, 150.0, got.Report.Schedule[1].Dispatch)
	assert.Nil(t, got.Report.Theta)

	p.Disconnect()
	assert.True(t, mc.disconnected)
	assert.Len(t, mc.published, 1, "unexpected publish on disconnect")
}

func TestPublishIteration_OmitsInfiniteValues(t *testing.T) {
	mc := &mockClient{}
	withMock(t, mc)
	p, err := NewSchedulePublisher(Config{Broker: "tcp://localhost:1883", ProgressTopic: "runs/progress"}, nil)
	require.NoError(t, err)

	ev := events.Iteration{
		RunID:            "run-1",
		Round:            1,
		Dispatch:         []float64{100, 100, 0},
		Theta:            math.Inf(-1),
		LowerBound:       math.Inf(-1),
		ExpectedRecourse: -4700,
		Gap:              math.Inf(1),
		Cuts:             4,
	}
	require.NoError(t, p.PublishIteration(context.Background(), ev))
	require.Len(t, mc.published, 1)
	assert.Equal(t, "runs/progress", mc.published[0].topic)
	assert.False(t, mc.published[0].retained)

	var got ProgressMessage
	require.NoError(t, json.Unmarshal(mc.published[0].payload, &got))
	assert.Nil(t, got.Theta)
	assert.Nil(t, got.LowerBound)
	assert.Nil(t, got.Gap)
	assert.Equal(t, -4700.0, got.ExpectedRecourse)
	assert.Equal(t, []float64{100, 100, 0}, got.Dispatch)
}

func TestForward(t *testing.T) {
	mc := &mockClient{}
	withMock(t, mc)
	p, err := NewSchedulePublisher(Config{Broker: "tcp://localhost:1883"}, nil)
	require.NoError(t, err)

	ch := make(chan events.Iteration, 2)
	ch <- events.Iteration{RunID: "r", Round: 1, Theta: -4010, Gap: 866}
	ch <- events.Iteration{RunID: "r", Round: 2, Theta: -4010, Gap: -0, Converged: true}
	close(ch)
	p.Forward(context.Background(), ch)

	require.Len(t, mc.published, 2)
	var last ProgressMessage
	require.NoError(t, json.Unmarshal(mc.published[1].payload, &last))
	assert.Equal(t, 2, last.Round)
	assert.True(t, last.Converged)
	require.NotNil(t, last.Theta)
	assert.Equal(t, -4010.0, *last.Theta)
}

func TestForward_StopsOnCancel(t *testing.T) {
	mc := &mockClient{}
	withMock(t, mc)
	p, err := NewSchedulePublisher(Config{Broker: "tcp://localhost:1883"}, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	done := make(chan struct{})
	go func() {
		p.Forward(ctx, make(chan events.Iteration))
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("forward did not stop")
	}
}

func TestRetryLogic(t *testing.T) {
	mc := &mockClient{publishErrs: []error{errors.New("net fail"), nil}}
	withMock(t, mc)
	p, err := NewSchedulePublisher(Config{Broker: "tcp://localhost:1883", MaxRetries: 1, BackoffMS: 1}, nil)
	require.NoError(t, err)
	_, err = p.PublishSchedule(context.Background(), sampleReport())
	require.NoError(t, err)
	assert.Len(t, mc.published, 2)
}

func TestRetryExhausted(t *testing.T) {
	fail := errors.New("net fail")
	mc := &mockClient{publishErrs: []error{fail, fail, fail}}
	withMock(t, mc)
	p, err := NewSchedulePublisher(Config{Broker: "tcp://localhost:1883", MaxRetries: 2, BackoffMS: 1}, nil)
	require.NoError(t, err)
	_, err = p.PublishSchedule(context.Background(), sampleReport())
	require.ErrorIs(t, err, fail)
	assert.Len(t, mc.published, 3)
}

func TestRetryCanceled(t *testing.T) {
	fail := errors.New("net fail")
	mc := &mockClient{publishErrs: []error{fail, fail}}
	withMock(t, mc)
	p, err := NewSchedulePublisher(Config{Broker: "tcp://localhost:1883", MaxRetries: 1, BackoffMS: 1000}, nil)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = p.PublishSchedule(ctx, sampleReport())
	require.ErrorIs(t, err, context.Canceled)
	assert.Len(t, mc.published, 1)
}

func TestConnectFailure(t *testing.T) {
	mc := &mockClient{connectErr: errors.New("refused")}
	withMock(t, mc)
	_, err := NewSchedulePublisher(Config{Broker: "tcp://localhost:1883"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "refused")
}

func TestLWTConfigured(t *testing.T) {
	mc := &mockClient{}
	withMock(t, mc)
	cfg := Config{Broker: "tcp://localhost:1883", ClientID: "id", LWTTopic: "lwt", LWTPayload: "bye", LWTQoS: 1}
	_, err := NewSchedulePublisher(cfg, nil)
	require.NoError(t, err)
	assert.True(t, mc.opts.WillEnabled)
	assert.Equal(t, "lwt", mc.opts.WillTopic)
	assert.Equal(t, "bye", string(mc.opts.WillPayload))
}
