package handlers

import (
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const requestTimeout = 60 * time.Second

// Routes builds the API router. Request logging, panic recovery and rate
// limiting are left to the caller.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(h.SessionLoader)
	timeout := middleware.Timeout(requestTimeout)

	r.Group(func(r chi.Router) {
		r.Use(timeout)

		r.Get("/health", h.Health)
		r.Get("/badge/{username}.svg", h.Badge)

		r.Get("/api/leaderboard", h.Leaderboard)
		r.Get("/api/score/formula", h.ScoreFormula)
		r.Get("/api/users/{username}", h.User)
		r.Get("/api/announcements", h.Announcements)

		r.Post("/api/refresh", h.RequireUser(h.Refresh))
		r.Get("/api/me", h.RequireUser(h.Me))

		r.Get("/auth/github", h.AuthGitHub)
		r.Get("/auth/github/callback", h.AuthGitHubCallback)
		r.Post("/auth/logout", h.AuthLogout)
	})

	r.Route("/api/admin", func(r chi.Router) {
		r.With(timeout).Post("/login", h.AdminLogin)

		r.Group(func(r chi.Router) {
			r.Use(h.RequireAdmin)

			// Long-lived; no request timeout.
			r.Get("/stream", h.Stream)

			r.Group(func(r chi.Router) {
				r.Use(timeout)
				r.Get("/users", h.AdminUsers)
				r.Post("/users/{username}/ban", h.BanUser)
				r.Post("/users/{username}/unban", h.UnbanUser)
				r.Post("/users/{username}/reset", h.ResetUser)
				r.Post("/refresh-all", h.RefreshAll)
				r.Get("/job", h.JobStatus)

				r.Get("/announcements", h.AdminAnnouncements)
				r.Post("/announcements", h.CreateAnnouncement)
				r.Put("/announcements/{id}", h.UpdateAnnouncement)
				r.Delete("/announcements/{id}", h.DeleteAnnouncement)
			})
		})
	})
	return r
}
