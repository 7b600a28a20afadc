package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/kilianp07/benders/core/events"
	"github.com/kilianp07/benders/infra/logger"
	"github.com/kilianp07/benders/pkg/export"
)

// SchedulePublisher sends the final dispatch schedule, and optionally the
// per-round progress, to the broker.
type SchedulePublisher struct {
	cli     pahoClient
	cfg     Config
	backoff time.Duration
	logger  logger.Logger
}

// ScheduleMessage is the payload published on the schedule topic.
type ScheduleMessage struct {
	MessageID string        `json:"message_id"`
	Timestamp int64         `json:"timestamp"`
	Report    export.Report `json:"report"`
}

// ProgressMessage is the payload published on the progress topic.
type ProgressMessage struct {
	MessageID        string    `json:"message_id"`
	RunID            string    `json:"run_id"`
	Round            int       `json:"round"`
	Dispatch         []float64 `json:"dispatch"`
	Theta            *float64  `json:"theta,omitempty"`
	LowerBound       *float64  `json:"lower_bound,omitempty"`
	ExpectedRecourse float64   `json:"expected_recourse"`
	Gap              *float64  `json:"gap,omitempty"`
	Cuts             int       `json:"cuts"`
	Converged        bool      `json:"converged"`
	Timestamp        int64     `json:"timestamp"`
}

// NewSchedulePublisher connects to the broker described by cfg.
func NewSchedulePublisher(cfg Config, log logger.Logger) (*SchedulePublisher, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("mqtt config: %w", err)
	}
	opts, err := NewClientOptions(cfg)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.NopLogger{}
	}
	opts.OnConnect = func(_ paho.Client) {
		log.Infof("MQTT connected to %s", cfg.Broker)
	}
	opts.OnConnectionLost = func(_ paho.Client, err error) {
		log.Errorf("connection lost: %v", err)
	}
	opts.OnReconnecting = func(_ paho.Client, _ *paho.ClientOptions) {
		log.Warnf("reconnecting to MQTT broker")
	}
	c := newMQTTClient(opts)
	if token := c.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("connect %s: %w", cfg.Broker, token.Error())
	}
	return &SchedulePublisher{
		cli:     c,
		cfg:     cfg,
		backoff: time.Duration(cfg.BackoffMS) * time.Millisecond,
		logger:  log,
	}, nil
}

// PublishSchedule publishes rep on the schedule topic and returns the
// message identifier.
func (p *SchedulePublisher) PublishSchedule(ctx context.Context, rep export.Report) (string, error) {
	msg := ScheduleMessage{
		MessageID: uuid.NewString(),
		Timestamp: time.Now().UnixMilli(),
		Report:    rep,
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return "", err
	}
	if err := p.publish(ctx, p.cfg.ScheduleTopic, p.cfg.qos("schedule"), p.cfg.Retain, payload); err != nil {
		return "", err
	}
	p.logger.Infof("published schedule %s for run %s to %s", msg.MessageID, rep.RunID, p.cfg.ScheduleTopic)
	return msg.MessageID, nil
}

// PublishIteration publishes one round of progress.
func (p *SchedulePublisher) PublishIteration(ctx context.Context, ev events.Iteration) error {
	msg := ProgressMessage{
		MessageID:        uuid.NewString(),
		RunID:            ev.RunID,
		Round:            ev.Round,
		Dispatch:         ev.Dispatch,
		Theta:            finite(ev.Theta),
		LowerBound:       finite(ev.LowerBound),
		ExpectedRecourse: ev.ExpectedRecourse,
		Gap:              finite(ev.Gap),
		Cuts:             ev.Cuts,
		Converged:        ev.Converged,
		Timestamp:        time.Now().UnixMilli(),
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return p.publish(ctx, p.cfg.ProgressTopic, p.cfg.qos("progress"), false, payload)
}

// Forward publishes every event received on ch until ch is closed or ctx
// is done. Publish failures are logged and do not stop forwarding.
func (p *SchedulePublisher) Forward(ctx context.Context, ch <-chan events.Iteration) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if err := p.PublishIteration(ctx, ev); err != nil {
				p.logger.Warnf("publish progress round %d: %v", ev.Round, err)
			}
		}
	}
}

func (p *SchedulePublisher) publish(ctx context.Context, topic string, qos byte, retain bool, payload []byte) error {
	var publishErr error
	for attempt := 0; attempt <= p.cfg.MaxRetries; attempt++ {
		token := p.cli.Publish(topic, qos, retain, payload)
		token.Wait()
		publishErr = token.Error()
		if publishErr == nil {
			return nil
		}
		p.logger.Errorf("publish attempt %d to %s failed: %v", attempt+1, topic, publishErr)
		if attempt == p.cfg.MaxRetries {
			break
		}
		timer := time.NewTimer(p.backoff * time.Duration(1<<attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("publish to %s: %w", topic, ctx.Err())
		case <-timer.C:
		}
	}
	return fmt.Errorf("publish to %s: %w", topic, publishErr)
}

// Disconnect gracefully closes the MQTT connection.
func (p *SchedulePublisher) Disconnect() {
	if p.cli != nil && p.cli.IsConnected() {
		p.cli.Disconnect(250)
	}
}

func finite(v float64) *float64 {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return nil
	}
	return &v
}
