package handlers

import (
	"net/http"

	"github.com/MrSnakeDoc/ipwatch/internal/httpserver/deps"
)

type readyzResponse struct {
	Ready    bool `json:"ready"`
	HasValue bool `json:"has_value"`
}

// Readyz reports ready once the first tick was applied, whatever its outcome.
func Readyz(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ready := d.Monitor.Ticks() > 0
		status := http.StatusOK
		if !ready {
			status = http.StatusServiceUnavailable
		}

		writeJSON(w, status, readyzResponse{
			Ready:    ready,
			HasValue: d.Monitor.Current().HasValue(),
		})
	}
}
