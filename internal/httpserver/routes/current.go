package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/ipwatch/internal/httpserver/deps"
	"github.com/MrSnakeDoc/ipwatch/internal/httpserver/handlers"
)

func init() { RegisterAPI(registerCurrent) }

func registerCurrent(r chi.Router, d deps.Deps) {
	r.Get("/current", handlers.Current(d))
	r.Get("/current-ip", handlers.CurrentIP(d))
}
