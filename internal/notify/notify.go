package notify

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/MrSnakeDoc/ipwatch/internal/logger"
	"github.com/MrSnakeDoc/ipwatch/internal/monitor"
)

// DefaultQueueSize bounds the number of undelivered events.
const DefaultQueueSize = 16

// Event describes one transition of the monitored value.
type Event struct {
	ID         string    `json:"id"`
	OldValue   string    `json:"old_value,omitempty"`
	NewValue   string    `json:"new_value"`
	ObservedAt time.Time `json:"observed_at"`
}

// Initial reports whether this is the first value ever observed.
func (e Event) Initial() bool { return e.OldValue == "" }

// Message renders the event as a human-readable alert.
func (e Event) Message() string {
	if e.Initial() {
		return fmt.Sprintf("🌐 Public IP detected: %s", e.NewValue)
	}
	return fmt.Sprintf("🚨 IP Address Changed! %s -> %s", e.OldValue, e.NewValue)
}

// Notifier delivers an event to one sink.
type Notifier interface {
	Name() string
	Notify(ctx context.Context, e Event) error
}

// Stats reports dispatcher counters.
type Stats struct {
	Sinks     []string `json:"sinks"`
	Enqueued  int64    `json:"enqueued"`
	Delivered int64    `json:"delivered"`
	Failed    int64    `json:"failed"`
	Dropped   int64    `json:"dropped"`
}

// Dispatcher fans events out to notifiers on its own goroutine.
// Delivery is best-effort: events are dropped when the queue is full.
type Dispatcher struct {
	sinks   []Notifier
	queue   chan Event
	timeout time.Duration
	logger  logger.Logger

	enqueued  atomic.Int64
	delivered atomic.Int64
	failed    atomic.Int64
	dropped   atomic.Int64

	started atomic.Bool
	once    sync.Once
	stopCh  chan struct{}
	done    chan struct{}
}

// NewDispatcher creates a dispatcher. Call Start before the first event.
func NewDispatcher(queueSize int, timeout time.Duration, log logger.Logger, sinks ...Notifier) *Dispatcher {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Dispatcher{
		sinks:   sinks,
		queue:   make(chan Event, queueSize),
		timeout: timeout,
		logger:  log,
		stopCh:  make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Hook adapts the dispatcher to the monitor change hook.
func (d *Dispatcher) Hook() monitor.ChangeHook {
	return func(c monitor.Change) {
		d.Enqueue(Event{
			ID:         uuid.NewString(),
			OldValue:   c.OldValue,
			NewValue:   c.NewValue,
			ObservedAt: c.ObservedAt,
		})
	}
}

// Enqueue never blocks. It returns false when the event was dropped.
func (d *Dispatcher) Enqueue(e Event) bool {
	select {
	case d.queue <- e:
		d.enqueued.Add(1)
		return true
	default:
		d.dropped.Add(1)
		d.logger.Warn("notification queue full, dropping event",
			logger.String("event_id", e.ID),
			logger.String("new_value", e.NewValue))
		return false
	}
}

// Start runs the delivery worker until Stop or ctx is done.
func (d *Dispatcher) Start(ctx context.Context) {
	if !d.started.CompareAndSwap(false, true) {
		return
	}
	go func() {
		defer close(d.done)
		for {
			select {
			case e := <-d.queue:
				d.deliver(ctx, e)
			case <-d.stopCh:
				d.drain(ctx)
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop stops the worker after flushing what is already queued.
func (d *Dispatcher) Stop() {
	d.once.Do(func() {
		close(d.stopCh)
	})
	if d.started.Load() {
		<-d.done
	}
}

func (d *Dispatcher) drain(ctx context.Context) {
	for {
		select {
		case e := <-d.queue:
			d.deliver(ctx, e)
		default:
			return
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, e Event) {
	for _, sink := range d.sinks {
		sctx, cancel := context.WithTimeout(ctx, d.timeout)
		err := sink.Notify(sctx, e)
		cancel()

		if err != nil {
			d.failed.Add(1)
			d.logger.Warn("failed to deliver notification",
				logger.String("sink", sink.Name()),
				logger.String("event_id", e.ID),
				logger.Error(err))
			continue
		}
		d.delivered.Add(1)
		d.logger.Debug("notification delivered",
			logger.String("sink", sink.Name()),
			logger.String("event_id", e.ID))
	}
}

// Stats returns a snapshot of the counters.
func (d *Dispatcher) Stats() Stats {
	names := make([]string, 0, len(d.sinks))
	for _, s := range d.sinks {
		names = append(names, s.Name())
	}
	return Stats{
		Sinks:     names,
		Enqueued:  d.enqueued.Load(),
		Delivered: d.delivered.Load(),
		Failed:    d.failed.Load(),
		Dropped:   d.dropped.Load(),
	}
}

// LogNotifier writes every event to the application log.
type LogNotifier struct {
	logger logger.Logger
}

func NewLogNotifier(log logger.Logger) *LogNotifier {
	return &LogNotifier{logger: log}
}

func (n *LogNotifier) Name() string { return "log" }

func (n *LogNotifier) Notify(_ context.Context, e Event) error {
	n.logger.Info("ip change event",
		logger.String("event_id", e.ID),
		logger.String("old", e.OldValue),
		logger.String("new", e.NewValue),
		logger.Time("observed_at", e.ObservedAt))
	return nil
}
