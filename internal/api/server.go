// Package api is the JSON HTTP interface of terenec.
package api

import (
	"database/sql"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/erazemk/terenec/internal/auth"
	"github.com/erazemk/terenec/internal/backend"
	"github.com/erazemk/terenec/internal/model"
	"github.com/erazemk/terenec/internal/realtime"
	"github.com/erazemk/terenec/internal/report"
)

// Options are the tunables the handlers need from the configuration.
type Options struct {
	MediaDir       string
	MaxUploadBytes int64
	GeofenceRadius float64
	PollInterval   time.Duration
}

// Server holds the dependencies of the HTTP handlers.
type Server struct {
	db      *sql.DB
	issuer  *auth.Issuer
	backend *backend.Backend
	reports *report.Reconciler
	hub     *realtime.Hub
	opts    Options
	logger  zerolog.Logger
	live    *liveFeed
}

// New creates a Server.
func New(db *sql.DB, issuer *auth.Issuer, b *backend.Backend, reports *report.Reconciler, hub *realtime.Hub, opts Options, logger zerolog.Logger) *Server {
	logger = logger.With().Str("component", "api").Logger()
	return &Server{
		db:      db,
		issuer:  issuer,
		backend: b,
		reports: reports,
		hub:     hub,
		opts:    opts,
		logger:  logger,
		live:    newLiveFeed(reports, hub, logger),
	}
}

// Handler returns the router with all endpoints registered.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	dispatcher := requireRole(model.RoleDispatcher)

	r.Post("/api/auth/login", s.login)

	r.Group(func(r chi.Router) {
		r.Use(s.authenticate)

		r.Post("/api/auth/logout", s.logout)
		r.Put("/api/auth/password", s.changePassword)

		r.Route("/api/users", func(r chi.Router) {
			r.Use(requireRole(model.RoleAdmin))
			r.Get("/", s.listUsers)
			r.Post("/", s.createUser)
			r.Get("/{id}", s.getUser)
			r.Put("/{id}", s.updateUser)
			r.Put("/{id}/password", s.resetPassword)
			r.Delete("/{id}", s.deleteUser)
		})

		r.Route("/api/sites", func(r chi.Router) {
			r.Get("/", s.listSites)
			r.With(dispatcher).Post("/", s.createSite)
			r.Get("/{id}", s.getSite)
			r.With(dispatcher).Put("/{id}", s.updateSite)
			r.With(dispatcher).Delete("/{id}", s.deleteSite)
		})

		r.Route("/api/jobs", func(r chi.Router) {
			r.Get("/", s.listJobs)
			r.With(dispatcher).Post("/", s.createJob)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.getJob)
				r.Post("/start", s.startJob)
				r.With(dispatcher).Put("/status", s.updateJobStatus)
				r.With(dispatcher).Post("/assign", s.assignTechnician)
				r.Post("/arrival", s.arrival)
				r.Get("/events", s.jobEvents)

				r.Route("/report", func(r chi.Router) {
					r.Get("/", s.getReport)
					r.Get("/gate", s.reportGate)
					r.Get("/live", s.liveReport)
					r.Post("/tasks", s.addTask)
					r.Put("/tasks/{itemID}", s.updateTask)
					r.Post("/followups", s.addFollowUp)
					r.Put("/followups/{itemID}", s.updateFollowUp)
					r.Post("/media", s.addMedia)
					r.Delete("/drafts/{itemID}", s.deleteDraftItem)
					r.Post("/submit", s.submitReport)
				})
			})
		})

		r.Route("/api/attendance", func(r chi.Router) {
			r.Get("/status", s.attendanceStatus)
			r.Post("/clock-in", s.clockIn)
			r.Post("/clock-out", s.clockOut)
			r.Post("/break/start", s.startBreak)
			r.Post("/break/end", s.endBreak)
		})

		r.Get("/api/media/{id}", s.getMedia)
	})

	return r
}
