package handlers

import (
	"net/http"

	"github.com/MrSnakeDoc/ipwatch/internal/httpserver/deps"
	"github.com/MrSnakeDoc/ipwatch/internal/logger"
	"github.com/MrSnakeDoc/ipwatch/internal/utils"
)

type refreshResponse struct {
	Triggered bool   `json:"triggered"`
	Message   string `json:"message"`
}

// Refresh asks the sampler for an immediate tick.
func Refresh(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		remote := utils.ClientIP(r, d.TrustProxy)

		if !d.Sampler.Trigger() {
			d.Logger.Warn("refresh already pending",
				logger.String("remote_ip", remote))
			writeJSON(w, http.StatusTooManyRequests, refreshResponse{
				Message: "⏳ Refresh already pending, please wait",
			})
			return
		}

		d.Logger.Info("manual refresh triggered via endpoint",
			logger.String("remote_ip", remote))
		writeJSON(w, http.StatusAccepted, refreshResponse{
			Triggered: true,
			Message:   "✅ Refresh triggered",
		})
	}
}
