package locations

import (
	"net/http"

	"github.com/GeoPunch/GP-Backend/internal/auth"
	"github.com/GeoPunch/GP-Backend/internal/middleware"
	"github.com/go-chi/chi/v5"
)

func SetupRoutes(limiter *middleware.RateLimiter) http.Handler {
	r := chi.NewRouter()
	sessionFetcher := auth.SessionInfo{}

	r.Group(func(r chi.Router) {
		r.Use(middleware.SessionMiddleware(sessionFetcher))

		r.Group(func(r chi.Router) {
			r.Use(limiter.Middleware)
			r.Post("/", IngestHandler)
		})

		r.Get("/history", HistoryHandler)

		r.Group(func(r chi.Router) {
			r.Use(middleware.AdminMiddleware(sessionFetcher))
			r.Get("/latest", LatestHandler)
			r.Get("/{subject_id}/history", SubjectHistoryHandler)
			r.Delete("/{subject_id}/prune", PruneHandler)
		})
	})

	return r
}
