package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrSnakeDoc/ipwatch/internal/domain"
	"github.com/MrSnakeDoc/ipwatch/internal/logger"
)

func TestNewRejectsNonPositiveInterval(t *testing.T) {
	noop := func(context.Context) {}
	for _, d := range []time.Duration{0, -time.Second} {
		if _, err := New(Options{Interval: d}, noop, logger.NewNop()); !errors.Is(err, domain.ErrInvalidConfig) {
			t.Errorf("New(interval=%v) err = %v, want ConfigError", d, err)
		}
	}
	if _, err := New(Options{Interval: time.Second}, nil, logger.NewNop()); !errors.Is(err, domain.ErrInvalidConfig) {
		t.Errorf("New(nil callback) err = %v, want ConfigError", err)
	}
}

func TestSamplerFiresPeriodically(t *testing.T) {
	var calls atomic.Int64
	s, err := New(Options{Interval: 10 * time.Millisecond, DropOverlapping: true},
		func(context.Context) { calls.Add(1) }, logger.NewNop())
	if err != nil {
		t.Fatalf("New() err = %v", err)
	}

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() err = %v", err)
	}
	time.Sleep(100 * time.Millisecond)
	s.Stop()

	if got := calls.Load(); got < 3 {
		t.Errorf("calls = %d, want at least 3", got)
	}
}

func TestSamplerFetchOnStart(t *testing.T) {
	fired := make(chan struct{}, 1)
	s, _ := New(Options{Interval: time.Hour, FetchOnStart: true},
		func(context.Context) {
			select {
			case fired <- struct{}{}:
			default:
			}
		}, logger.NewNop())

	_ = s.Start(context.Background())
	defer s.Stop()

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("no tick fired on start")
	}
}

func TestSamplerNeverOverlapsWhenDropping(t *testing.T) {
	var active, maxActive, calls atomic.Int64
	slow := func(context.Context) {
		n := active.Add(1)
		for {
			m := maxActive.Load()
			if n <= m || maxActive.CompareAndSwap(m, n) {
				break
			}
		}
		calls.Add(1)
		time.Sleep(35 * time.Millisecond)
		active.Add(-1)
	}

	s, _ := New(Options{Interval: 5 * time.Millisecond, DropOverlapping: true}, slow, logger.NewNop())
	_ = s.Start(context.Background())
	time.Sleep(200 * time.Millisecond)
	s.Stop()
	_ = s.Wait(context.Background())

	if maxActive.Load() != 1 {
		t.Errorf("max concurrent ticks = %d, want 1", maxActive.Load())
	}
	st := s.Stats()
	if st.Skipped == 0 {
		t.Error("expected skipped ticks with a slow callback")
	}
	if st.Queued != 0 {
		t.Errorf("Queued = %d, want 0 in drop mode", st.Queued)
	}
}

func TestSamplerQueuesWhenNotDropping(t *testing.T) {
	var active, maxActive atomic.Int64
	slow := func(context.Context) {
		if n := active.Add(1); n > maxActive.Load() {
			maxActive.Store(n)
		}
		time.Sleep(30 * time.Millisecond)
		active.Add(-1)
	}

	s, _ := New(Options{Interval: 5 * time.Millisecond, DropOverlapping: false}, slow, logger.NewNop())
	_ = s.Start(context.Background())
	time.Sleep(150 * time.Millisecond)
	s.Stop()
	_ = s.Wait(context.Background())

	if maxActive.Load() != 1 {
		t.Errorf("max concurrent ticks = %d, want 1", maxActive.Load())
	}
	st := s.Stats()
	if st.Queued == 0 {
		t.Error("expected queued ticks with a slow callback")
	}
	if st.Skipped != 0 {
		t.Errorf("Skipped = %d, want 0 in queue mode", st.Skipped)
	}
}

func TestSamplerNoTickAfterStop(t *testing.T) {
	var calls atomic.Int64
	s, _ := New(Options{Interval: 2 * time.Millisecond, DropOverlapping: true},
		func(context.Context) { calls.Add(1) }, logger.NewNop())

	_ = s.Start(context.Background())
	time.Sleep(20 * time.Millisecond)
	s.Stop()
	_ = s.Wait(context.Background())

	after := calls.Load()
	time.Sleep(30 * time.Millisecond)
	if calls.Load() != after {
		t.Errorf("ticks fired after Stop: %d -> %d", after, calls.Load())
	}
}

func TestSamplerStopCancelsInFlight(t *testing.T) {
	canceled := make(chan struct{})
	started := make(chan struct{})
	s, _ := New(Options{Interval: time.Hour, FetchOnStart: true},
		func(ctx context.Context) {
			close(started)
			<-ctx.Done()
			close(canceled)
		}, logger.NewNop())

	_ = s.Start(context.Background())
	<-started
	s.Stop()

	select {
	case <-canceled:
	case <-time.After(time.Second):
		t.Fatal("in-flight tick context was not canceled")
	}
}

func TestSamplerManualTrigger(t *testing.T) {
	fired := make(chan struct{}, 4)
	s, _ := New(Options{Interval: time.Hour},
		func(context.Context) { fired <- struct{}{} }, logger.NewNop())

	_ = s.Start(context.Background())
	defer s.Stop()

	if !s.Trigger() {
		t.Fatal("Trigger() = false, want true")
	}

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("manual trigger did not fire a tick")
	}
}

func TestSamplerStopIsIdempotent(t *testing.T) {
	s, _ := New(Options{Interval: time.Second}, func(context.Context) {}, logger.NewNop())

	s.Stop() // before Start
	s.Stop()
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() after Stop err = %v", err)
	}
	if s.Trigger() {
		t.Error("Trigger() after Stop should be false")
	}
	if s.Stats().Running {
		t.Error("stopped sampler reports running")
	}
}
