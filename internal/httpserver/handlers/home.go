package handlers

import (
	"net/http"

	"github.com/MrSnakeDoc/ipwatch/internal/httpserver/deps"
)

type homeResponse struct {
	Message string `json:"message"`
}

func Home(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, homeResponse{Message: "ipwatch is running"})
	}
}
