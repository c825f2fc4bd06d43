package handlers

import (
	"net/http"
	"time"

	"github.com/MrSnakeDoc/ipwatch/internal/domain"
	"github.com/MrSnakeDoc/ipwatch/internal/httpserver/deps"
)

type currentResponse struct {
	domain.CurrentState
	Stale        bool    `json:"stale"`
	AgeSeconds   float64 `json:"age_seconds"`
	PollInterval string  `json:"poll_interval"`
}

// Current returns the full current state with a staleness flag.
func Current(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		state := d.Monitor.Current()
		now := d.Now()
		interval := d.Sampler.Interval()

		writeJSON(w, http.StatusOK, currentResponse{
			CurrentState: state,
			Stale:        state.IsStale(now, interval),
			AgeSeconds:   state.Age(now).Seconds(),
			PollInterval: interval.String(),
		})
	}
}

type currentIPResponse struct {
	CurrentIP   string  `json:"current_ip"`
	PreviousIP  *string `json:"previous_ip"`
	LastUpdated string  `json:"last_updated"`
}

// CurrentIP serves the compact legacy shape used by existing dashboards.
func CurrentIP(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		state := d.Monitor.Current()
		if !state.HasValue() {
			writeError(w, http.StatusNotFound, "No IP found")
			return
		}

		// last_updated is when the value last changed, not the last sample
		resp := currentIPResponse{
			CurrentIP:   state.Value,
			LastUpdated: state.LastChanged.UTC().Format(time.RFC3339),
		}
		if state.PreviousValue != "" {
			prev := state.PreviousValue
			resp.PreviousIP = &prev
		}
		writeJSON(w, http.StatusOK, resp)
	}
}
