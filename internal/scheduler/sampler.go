package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/MrSnakeDoc/ipwatch/internal/domain"
	"github.com/MrSnakeDoc/ipwatch/internal/logger"
)

// TickFunc is invoked once per tick. The context is canceled on Stop.
type TickFunc func(ctx context.Context)

// Options configures a Sampler.
type Options struct {
	Interval time.Duration
	// DropOverlapping skips ticks that arrive while one is in flight.
	// When false they are queued (coalesced) and run right after it.
	DropOverlapping bool
	// FetchOnStart fires one tick immediately on Start.
	FetchOnStart bool
}

// Stats is a point-in-time copy of the sampler counters.
type Stats struct {
	Dispatched int64     `json:"dispatched"`
	Skipped    int64     `json:"skipped"`
	Queued     int64     `json:"queued"`
	Completed  int64     `json:"completed"`
	LastTick   time.Time `json:"last_tick"`
	InFlight   bool      `json:"in_flight"`
	Running    bool      `json:"running"`
}

// Sampler fires a callback on a fixed period, never running two callbacks at once.
type Sampler struct {
	opts          Options
	onTick        TickFunc
	logger        logger.Logger
	manualTrigger chan struct{}

	mu       sync.Mutex
	started  bool
	stopped  bool
	inFlight bool
	queued   bool
	stats    Stats
	cancel   context.CancelFunc
	stopCh   chan struct{}
	done     chan struct{}
	workers  sync.WaitGroup
}

// New creates a sampler. A non-positive interval is a configuration error.
func New(opts Options, onTick TickFunc, log logger.Logger) (*Sampler, error) {
	if opts.Interval <= 0 {
		return nil, &domain.ConfigError{Field: "poll interval", Reason: "must be > 0"}
	}
	if onTick == nil {
		return nil, &domain.ConfigError{Field: "tick callback", Reason: "is required"}
	}

	return &Sampler{
		opts:          opts,
		onTick:        onTick,
		logger:        log,
		manualTrigger: make(chan struct{}, 1),
		stopCh:        make(chan struct{}),
		done:          make(chan struct{}),
	}, nil
}

// Start begins the periodic sampling loop. It returns immediately.
func (s *Sampler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started || s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.started = true
	s.stats.Running = true
	ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	ticker := time.NewTicker(s.opts.Interval)
	go func() {
		defer close(s.done)
		defer ticker.Stop()

		if s.opts.FetchOnStart {
			s.dispatch(ctx, "start")
		}

		for {
			select {
			case <-ticker.C:
				s.dispatch(ctx, "interval")
			case <-s.manualTrigger:
				s.logger.Info("manual refresh triggered")
				s.dispatch(ctx, "manual")
			case <-s.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	return nil
}

// Stop halts the loop. After it returns no new callback starts.
// An in-flight callback is not awaited; its context is canceled.
func (s *Sampler) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	s.queued = false
	s.stats.Running = false
	started := s.started
	if s.cancel != nil {
		s.cancel()
	}
	close(s.stopCh)
	s.mu.Unlock()

	if started {
		<-s.done
	}
}

// Wait blocks until the in-flight callback, if any, returns or ctx expires.
func (s *Sampler) Wait(ctx context.Context) error {
	ch := make(chan struct{})
	go func() {
		s.workers.Wait()
		close(ch)
	}()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Trigger requests an immediate tick. It returns false when a request is
// already pending or the sampler is stopped.
func (s *Sampler) Trigger() bool {
	s.mu.Lock()
	stopped := s.stopped
	s.mu.Unlock()
	if stopped {
		return false
	}

	select {
	case s.manualTrigger <- struct{}{}:
		return true
	default:
		return false
	}
}

// Stats returns a copy of the counters.
func (s *Sampler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.stats
	st.InFlight = s.inFlight
	return st
}

// Interval returns the configured period.
func (s *Sampler) Interval() time.Duration {
	return s.opts.Interval
}

// dispatch is only called from the loop goroutine.
func (s *Sampler) dispatch(ctx context.Context, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return
	}

	if s.inFlight {
		if s.opts.DropOverlapping {
			s.stats.Skipped++
			s.logger.Debug("previous tick still in flight, skipping",
				logger.String("reason", reason))
			return
		}
		if !s.queued {
			s.queued = true
			s.stats.Queued++
			s.logger.Debug("previous tick still in flight, queueing",
				logger.String("reason", reason))
		}
		return
	}

	s.inFlight = true
	s.stats.Dispatched++
	s.stats.LastTick = time.Now()
	s.workers.Add(1)
	go s.run(ctx)
}

func (s *Sampler) run(ctx context.Context) {
	defer s.workers.Done()

	for {
		s.onTick(ctx)

		s.mu.Lock()
		s.stats.Completed++
		if s.queued && !s.stopped {
			s.queued = false
			s.stats.Dispatched++
			s.stats.LastTick = time.Now()
			s.mu.Unlock()
			continue
		}
		s.queued = false
		s.inFlight = false
		s.mu.Unlock()
		return
	}
}
