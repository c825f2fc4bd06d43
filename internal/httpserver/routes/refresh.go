package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/ipwatch/internal/httpserver/deps"
	"github.com/MrSnakeDoc/ipwatch/internal/httpserver/handlers"
)

func init() { RegisterAPI(registerRefresh) }

func registerRefresh(r chi.Router, d deps.Deps) {
	r.With(restricted(d)...).Post("/refresh", handlers.Refresh(d))
}
