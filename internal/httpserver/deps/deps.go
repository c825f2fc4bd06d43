package deps

import (
	"context"
	"time"

	"github.com/MrSnakeDoc/ipwatch/internal/domain"
	"github.com/MrSnakeDoc/ipwatch/internal/history"
	"github.com/MrSnakeDoc/ipwatch/internal/logger"
	"github.com/MrSnakeDoc/ipwatch/internal/monitor"
	"github.com/MrSnakeDoc/ipwatch/internal/notify"
	"github.com/MrSnakeDoc/ipwatch/internal/scheduler"
)

// Monitor is the read side of the polling engine.
type Monitor interface {
	Current() domain.CurrentState
	View(order history.Order) monitor.View
	Ticks() int64
	HistoryCapacity() int
}

// Sampler is the manual trigger and counters of the scheduler.
type Sampler interface {
	Trigger() bool
	Stats() scheduler.Stats
	Interval() time.Duration
}

// Notifier exposes change notification counters.
type Notifier interface {
	Stats() notify.Stats
}

// Pinger checks an optional backend.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Deps struct {
	Logger       logger.Logger
	StartTime    time.Time
	Version      string
	Commit       string
	BuildDate    string
	GoVersion    string
	TimeNow      func() time.Time // for testing, defaults to time.Now
	AllowedHosts []string         // Host headers allowed to access operational routes
	AllowedCIDRS []string         // IPs allowed to access operational routes
	TrustProxy   bool             // true if running behind a trusted reverse proxy (e.g., cloudflared)
	CORSOrigins  []string         // allowed origins for /api/*
	RateBurst    int              // per-client burst on /api/* (0 = disabled)
	RatePerMin   int              // per-client refill on /api/*
	Monitor      Monitor          // current state and history
	Sampler      Sampler          // manual refresh trigger
	Notifier     Notifier         // change notification dispatcher
	Redis        Pinger           // nil when the Redis mirror is disabled
}

// Now returns the current time through TimeNow when set.
func (d Deps) Now() time.Time {
	if d.TimeNow != nil {
		return d.TimeNow()
	}
	return time.Now()
}
