package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/MrSnakeDoc/ipwatch/internal/httpserver/deps"
)

type componentStatus struct {
	OK      bool   `json:"ok"`
	Mode    string `json:"mode,omitempty"`
	Impact  string `json:"impact,omitempty"`
	Error   string `json:"error,omitempty"`
	Details any    `json:"details,omitempty"`
}

type samplerDetails struct {
	Interval            string `json:"interval"`
	Ticks               int64  `json:"ticks"`
	Dispatched          int64  `json:"dispatched"`
	Skipped             int64  `json:"skipped"`
	Queued              int64  `json:"queued"`
	InFlight            bool   `json:"in_flight"`
	LastTick            string `json:"last_tick"`
	ConsecutiveFailures int    `json:"consecutive_failures"`
}

type statusResponse struct {
	State      string                     `json:"state"`
	Components map[string]componentStatus `json:"components"`
}

// Status reports the health of each component and an overall state.
func Status(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		components := map[string]componentStatus{
			"sampler":  checkSampler(d),
			"redis":    checkRedis(r.Context(), d),
			"notifier": checkNotifier(d),
		}

		writeJSON(w, http.StatusOK, statusResponse{
			State:      determineState(components),
			Components: components,
		})
	}
}

func determineState(components map[string]componentStatus) string {
	// No running sampler means the value is frozen
	if sampler, exists := components["sampler"]; exists && !sampler.OK {
		return "critical"
	}

	// Optional sinks failing only degrade notifications
	for _, name := range []string{"redis", "notifier"} {
		if c, exists := components[name]; exists && !c.OK {
			return "degraded"
		}
	}

	return "operational"
}

func checkSampler(d deps.Deps) componentStatus {
	st := d.Sampler.Stats()
	state := d.Monitor.Current()

	lastTick := "never"
	if !st.LastTick.IsZero() {
		lastTick = st.LastTick.UTC().Format(time.RFC3339)
	}

	c := componentStatus{
		OK:   st.Running,
		Mode: "polling",
		Details: samplerDetails{
			Interval:            d.Sampler.Interval().String(),
			Ticks:               d.Monitor.Ticks(),
			Dispatched:          st.Dispatched,
			Skipped:             st.Skipped,
			Queued:              st.Queued,
			InFlight:            st.InFlight,
			LastTick:            lastTick,
			ConsecutiveFailures: state.ConsecutiveFailures,
		},
	}
	if !st.Running {
		c.Mode = "stopped"
		c.Impact = "value-frozen"
	}
	if state.LastError != "" {
		c.Error = string(state.LastError)
	}
	return c
}

func checkRedis(ctx context.Context, d deps.Deps) componentStatus {
	if d.Redis == nil {
		return componentStatus{
			OK:   true,
			Mode: "disabled",
		}
	}

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := d.Redis.Ping(ctx); err != nil {
		return componentStatus{
			OK:     false,
			Mode:   "degraded",
			Impact: "mirror-disabled",
			Error:  "unreachable",
		}
	}

	return componentStatus{
		OK:   true,
		Mode: "mirroring",
	}
}

func checkNotifier(d deps.Deps) componentStatus {
	if d.Notifier == nil {
		return componentStatus{OK: true, Mode: "disabled"}
	}

	st := d.Notifier.Stats()
	c := componentStatus{
		OK:      true,
		Mode:    "async",
		Details: st,
	}
	if st.Failed > 0 || st.Dropped > 0 {
		c.OK = false
		c.Impact = "notifications-lost"
	}
	return c
}
