package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// RouterDeps bundles the handlers the router mounts.
type RouterDeps struct {
	Market      *MarketHandler
	Persistence *PersistenceHandler
	Events      *EventsHandler
	Health      *HealthHandler
}

// NewRouter assembles the HTTP control plane.
func NewRouter(deps RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", deps.Health.Health)

		r.Route("/market", func(r chi.Router) {
			r.Post("/stream/start", deps.Market.StartStream)
			r.Post("/stream/stop", deps.Market.StopStream)
			r.Get("/stream/status", deps.Market.StreamStatus)
			r.Get("/symbols", deps.Market.Symbols)
			r.Get("/events", deps.Events.Serve)

			r.Get("/preferences", deps.Persistence.GetPreferences)
			r.Put("/preferences", deps.Persistence.SavePreferences)

			r.Get("/drawings", deps.Persistence.ListDrawings)
			r.Put("/drawings", deps.Persistence.UpsertDrawing)
			r.Delete("/drawings", deps.Persistence.DeleteDrawing)
		})
	})

	return r
}
