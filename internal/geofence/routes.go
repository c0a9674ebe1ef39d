package geofence

import (
	"net/http"

	"github.com/GeoPunch/GP-Backend/internal/auth"
	"github.com/GeoPunch/GP-Backend/internal/middleware"
	"github.com/go-chi/chi/v5"
)

func SetupRoutes() http.Handler {
	r := chi.NewRouter()
	sessionFetcher := auth.SessionInfo{}

	r.Group(func(r chi.Router) {
		r.Use(middleware.SessionMiddleware(sessionFetcher))
		r.Get("/", ListZones)
		r.Get("/{zone_id}", GetZone)

		r.Group(func(r chi.Router) {
			r.Use(middleware.AdminMiddleware(sessionFetcher))
			r.Post("/", CreateZone)
			r.Patch("/{zone_id}", UpdateZone)
			r.Delete("/{zone_id}", DeleteZone)
			r.Post("/evaluate", EvaluateHandler)
		})
	})

	return r
}
