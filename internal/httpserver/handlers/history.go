package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/MrSnakeDoc/ipwatch/internal/domain"
	"github.com/MrSnakeDoc/ipwatch/internal/history"
	"github.com/MrSnakeDoc/ipwatch/internal/httpserver/deps"
)

type historyResponse struct {
	Order    string                `json:"order"`
	Capacity int                   `json:"capacity"`
	Count    int                   `json:"count"`
	Entries  []domain.HistoryEntry `json:"entries"`
}

// History returns the recorded entries, newest first unless ?order=oldest.
// ?limit=n keeps the first n entries in the requested order.
func History(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		order, ok := history.ParseOrder(q.Get("order"), history.NewestFirst)
		if !ok {
			writeError(w, http.StatusBadRequest, "order must be newest or oldest")
			return
		}

		limit := 0
		if raw := strings.TrimSpace(q.Get("limit")); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n <= 0 {
				writeError(w, http.StatusBadRequest, "limit must be a positive integer")
				return
			}
			limit = n
		}

		entries := d.Monitor.View(order).History
		if limit > 0 && len(entries) > limit {
			entries = entries[:limit]
		}
		if entries == nil {
			entries = []domain.HistoryEntry{}
		}

		writeJSON(w, http.StatusOK, historyResponse{
			Order:    order.String(),
			Capacity: d.Monitor.HistoryCapacity(),
			Count:    len(entries),
			Entries:  entries,
		})
	}
}

type ipHistoryEntry struct {
	IP        string `json:"ip"`
	Timestamp string `json:"timestamp"`
}

// IPHistory serves the legacy newest-first list of {ip, timestamp}.
func IPHistory(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entries := d.Monitor.View(history.NewestFirst).History

		out := make([]ipHistoryEntry, 0, len(entries))
		for _, e := range entries {
			out = append(out, ipHistoryEntry{
				IP:        e.Value,
				Timestamp: e.ObservedAt.UTC().Format(time.RFC3339),
			})
		}
		writeJSON(w, http.StatusOK, out)
	}
}
