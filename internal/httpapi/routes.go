package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/sketchduel/backend/internal/ws"
)

func SetupRoutes(gateway ws.Deps) http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", Healthz)
	r.Get("/ws", ws.Handler(gateway))
	return r
}
