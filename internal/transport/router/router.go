package router

import (
	"github.com/go-chi/chi/v5"

	"github.com/PluralKit/avatars/internal/transport/handler"
)

func NewRouter(h *handler.Handler) chi.Router {
	r := chi.NewRouter()

	r.Post("/pull", h.Pull)
	r.Get("/stats", h.Stats)
	r.Get("/healthz", h.Health)

	return r
}
