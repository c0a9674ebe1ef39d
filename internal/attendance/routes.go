package attendance

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
		r.Post("/check-in", CheckInHandler)
		r.Post("/check-out", CheckOutHandler)
		r.Get("/today", TodayHandler)
		r.Get("/history", HistoryHandler)

		r.Group(func(r chi.Router) {
			r.Use(middleware.AdminMiddleware(sessionFetcher))
			r.Get("/company", CompanyHandler)
			r.Post("/{subject_id}/override", OverrideHandler)
		})
	})

	return r
}
