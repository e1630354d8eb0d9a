// Package notification hands case events to a delivery sink without making
// the caller wait for delivery.
package notification

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"

	"github.com/smallbiznis/soarecon/internal/clock"
	"github.com/smallbiznis/soarecon/internal/observability/metrics"
)

const (
	EventDiscrepancyCreated = "discrepancy.created"
	EventCaseSignedOff      = "case.signed_off"
)

const (
	DefaultBufferSize = 256
	deliveryTimeout   = 5 * time.Second
)

type Event struct {
	CaseID     snowflake.ID   `json:"case_id"`
	Type       string         `json:"type"`
	Payload    map[string]any `json:"payload,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// Notifier never blocks on delivery.
type Notifier interface {
	Notify(ctx context.Context, caseID snowflake.ID, eventType string, payload map[string]any)
}

type Sink interface {
	Deliver(ctx context.Context, event Event) error
}

// Dispatcher queues events on a bounded channel drained by one goroutine.
// A full queue drops the event with a warning.
type Dispatcher struct {
	sink    Sink
	clock   clock.Clock
	log     *zap.Logger
	metrics *metrics.Metrics

	mu      sync.RWMutex
	queue   chan Event
	closed  bool
	started bool
	done    chan struct{}
}

func NewDispatcher(sink Sink, size int, clk clock.Clock, log *zap.Logger, m *metrics.Metrics) *Dispatcher {
	if size <= 0 {
		size = DefaultBufferSize
	}
	if log == nil {
		log = zap.NewNop()
	}
	if clk == nil {
		clk = clock.SystemClock{}
	}
	return &Dispatcher{
		sink:    sink,
		clock:   clk,
		log:     log.Named("notification.dispatcher"),
		metrics: m,
		queue:   make(chan Event, size),
		done:    make(chan struct{}),
	}
}

func (d *Dispatcher) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started || d.closed {
		return
	}
	d.started = true

	go func() {
		defer close(d.done)
		for event := range d.queue {
			d.deliver(event)
		}
	}()
}

// Stop closes the queue and waits for queued events to drain.
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.queue)
	started := d.started
	d.mu.Unlock()

	if !started {
		return nil
	}
	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) Notify(ctx context.Context, caseID snowflake.ID, eventType string, payload map[string]any) {
	eventType = strings.TrimSpace(eventType)
	if eventType == "" {
		return
	}
	event := Event{
		CaseID:     caseID,
		Type:       eventType,
		Payload:    payload,
		OccurredAt: d.clock.Now(),
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.log.Warn("notification dropped after shutdown",
			zap.String("case_id", caseID.String()),
			zap.String("event_type", eventType),
		)
		d.metrics.RecordNotificationDropped(ctx, eventType)
		return
	}

	select {
	case d.queue <- event:
	default:
		d.log.Warn("notification queue full, event dropped",
			zap.String("case_id", caseID.String()),
			zap.String("event_type", eventType),
			zap.Int("capacity", cap(d.queue)),
		)
		d.metrics.RecordNotificationDropped(ctx, eventType)
	}
}

func (d *Dispatcher) deliver(event Event) {
	if d.sink == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), deliveryTimeout)
	defer cancel()

	if err := d.sink.Deliver(ctx, event); err != nil {
		d.log.Warn("notification delivery failed",
			zap.String("case_id", event.CaseID.String()),
			zap.String("event_type", event.Type),
			zap.Error(err),
		)
	}
}

// NopNotifier discards every event.
type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, snowflake.ID, string, map[string]any) {}
