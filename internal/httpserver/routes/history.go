package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/ipwatch/internal/httpserver/deps"
	"github.com/MrSnakeDoc/ipwatch/internal/httpserver/handlers"
)

func init() { RegisterAPI(registerHistory) }

func registerHistory(r chi.Router, d deps.Deps) {
	r.Get("/history", handlers.History(d))
	r.Get("/ip-history", handlers.IPHistory(d))
}
