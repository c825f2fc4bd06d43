package monitor

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/MrSnakeDoc/ipwatch/internal/domain"
	"github.com/MrSnakeDoc/ipwatch/internal/history"
	"github.com/MrSnakeDoc/ipwatch/internal/logger"
	"github.com/MrSnakeDoc/ipwatch/internal/telemetry"
)

// Fetcher performs a single round-trip to obtain the current value.
// It is expected to enforce its own timeout.
type Fetcher interface {
	Fetch(ctx context.Context) (string, error)
}

// FetcherFunc adapts a plain function to Fetcher.
type FetcherFunc func(ctx context.Context) (string, error)

func (f FetcherFunc) Fetch(ctx context.Context) (string, error) { return f(ctx) }

// Change is handed to the change hook once per Changed outcome.
type Change struct {
	OldValue   string
	NewValue   string
	ObservedAt time.Time
}

// ChangeHook receives transitions. It runs on the polling goroutine and must not block.
type ChangeHook func(Change)

// Options configures a Monitor.
type Options struct {
	HistoryCapacity int
	HistoryMode     domain.HistoryMode
	OnChange        ChangeHook
	Now             func() time.Time // defaults to time.Now
}

// View is a mutually consistent copy of state and history.
type View struct {
	Current domain.CurrentState
	History []domain.HistoryEntry
}

// Monitor owns the current state and the history. It is the only place where
// either is mutated, and the only synchronization point for readers.
type Monitor struct {
	mu      sync.RWMutex
	state   domain.CurrentState
	history *history.Store
	halted  bool
	ticks   int64

	fetcher  Fetcher
	mode     domain.HistoryMode
	onChange ChangeHook
	now      func() time.Time
	logger   logger.Logger
}

// New creates a monitor with an empty state and history.
func New(fetcher Fetcher, opts Options, log logger.Logger) (*Monitor, error) {
	if fetcher == nil {
		return nil, &domain.ConfigError{Field: "fetcher", Reason: "is required"}
	}
	if opts.HistoryCapacity == 0 {
		opts.HistoryCapacity = history.DefaultCapacity
	}
	if opts.HistoryMode == "" {
		opts.HistoryMode = domain.HistoryTransitions
	}
	if !opts.HistoryMode.Valid() {
		return nil, &domain.ConfigError{Field: "history mode", Reason: "must be transitions or samples"}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	store, err := history.New(opts.HistoryCapacity)
	if err != nil {
		return nil, err
	}

	return &Monitor{
		history:  store,
		fetcher:  fetcher,
		mode:     opts.HistoryMode,
		onChange: opts.OnChange,
		now:      opts.Now,
		logger:   log,
	}, nil
}

// Tick fetches the current value and applies it. Intended as the sampler callback.
func (m *Monitor) Tick(ctx context.Context) domain.Outcome {
	ctx, span := telemetry.Tracer().Start(ctx, "Monitor.Tick")
	defer span.End()

	value, err := m.fetcher.Fetch(ctx)
	at := m.now()

	var res domain.FetchResult
	if err != nil {
		res = domain.Failed(err, at)
	} else {
		res = domain.Succeeded(value, at)
	}

	d := m.Apply(res)
	span.SetAttributes(attribute.String("tick.outcome", d.Outcome.String()))
	return d.Outcome
}

// Apply runs the detector against the current state and commits the decision.
// State and history change under one lock so readers never see one without the other.
func (m *Monitor) Apply(res domain.FetchResult) domain.Decision {
	m.mu.Lock()
	if m.halted {
		m.mu.Unlock()
		m.logger.Debug("discarding result after halt")
		return domain.Decision{
			Outcome: domain.Invalid,
			Next:    m.Current(),
		}
	}

	d := domain.Detect(m.state, res, m.mode)
	m.state = d.Next
	if d.Entry != nil {
		m.history.Append(*d.Entry)
	}
	m.ticks++
	m.mu.Unlock()

	m.log(d)

	if d.Outcome == domain.Changed && m.onChange != nil {
		m.onChange(Change{
			OldValue:   d.OldValue,
			NewValue:   d.Next.Value,
			ObservedAt: d.Next.LastUpdated,
		})
	}

	return d
}

func (m *Monitor) log(d domain.Decision) {
	switch d.Outcome {
	case domain.Changed:
		if d.OldValue == "" {
			m.logger.Info("initial value observed",
				logger.String("value", d.Next.Value))
			return
		}
		m.logger.Info("value changed",
			logger.String("old", d.OldValue),
			logger.String("new", d.Next.Value))
	case domain.Unchanged:
		m.logger.Debug("value unchanged",
			logger.String("value", d.Next.Value))
	default:
		m.logger.Warn("fetch failed, keeping last known value",
			logger.String("kind", string(d.Next.LastError)),
			logger.Int("consecutive_failures", d.Next.ConsecutiveFailures),
			logger.String("error", d.Next.LastErrorMessage))
	}
}

// Halt stops all further mutation. Results arriving afterwards are discarded.
func (m *Monitor) Halt() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.halted = true
}

// Current returns a copy of the current state.
func (m *Monitor) Current() domain.CurrentState {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.state
}

// History returns a copy of the history in the requested order.
func (m *Monitor) History(order history.Order) []domain.HistoryEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.history.Snapshot(order)
}

// View returns state and history captured under the same read lock.
func (m *Monitor) View(order history.Order) View {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return View{
		Current: m.state,
		History: m.history.Snapshot(order),
	}
}

// Ticks returns how many results were applied.
func (m *Monitor) Ticks() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.ticks
}

// HistoryCapacity returns the configured capacity.
func (m *Monitor) HistoryCapacity() int {
	return m.history.Cap()
}
