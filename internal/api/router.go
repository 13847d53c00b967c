package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	mw "github.com/r2clabs/bulkstudy/internal/api/middleware"
	"github.com/r2clabs/bulkstudy/internal/api/response"
)

// Dependencies holds all handler and middleware dependencies for the router.
type Dependencies struct {
	Auth      *mw.Auth
	RateLimit *mw.RateLimit

	HealthHandler  http.HandlerFunc
	MetricsHandler http.Handler

	GetIdentity http.HandlerFunc
	SignIn      http.HandlerFunc
	SignOut     http.HandlerFunc

	Upload    http.HandlerFunc
	ListJobs  http.HandlerFunc
	ClearJobs http.HandlerFunc

	LoadDrafts     http.HandlerFunc
	ListDrafts     http.HandlerFunc
	GetDraft       http.HandlerFunc
	PatchDraft     http.HandlerFunc
	PutQuestion    http.HandlerFunc
	AddQuestion    http.HandlerFunc
	DeleteQuestion http.HandlerFunc
	Submit         http.HandlerFunc
	Discard        http.HandlerFunc

	Notifications http.HandlerFunc
}

// NewRouter builds the Chi router with middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(mw.RequestID)
	r.Use(mw.Logger)
	r.Use(mw.Recovery)

	// Public routes
	r.Get("/api/v1/health", orNotImplemented(deps.HealthHandler))
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(deps.Auth.Authenticate)
		r.Use(deps.RateLimit.Limit)

		r.Get("/api/v1/identity", orNotImplemented(deps.GetIdentity))
		r.Put("/api/v1/identity", orNotImplemented(deps.SignIn))
		r.Delete("/api/v1/identity", orNotImplemented(deps.SignOut))

		r.Route("/api/v1/bulk", func(r chi.Router) {
			r.Post("/uploads", orNotImplemented(deps.Upload))
			r.Get("/jobs", orNotImplemented(deps.ListJobs))
			r.Delete("/jobs", orNotImplemented(deps.ClearJobs))

			r.Post("/drafts/load", orNotImplemented(deps.LoadDrafts))
			r.Get("/drafts", orNotImplemented(deps.ListDrafts))
			r.Get("/drafts/{draftID}", orNotImplemented(deps.GetDraft))
			r.Patch("/drafts/{draftID}", orNotImplemented(deps.PatchDraft))
			r.Post("/drafts/{draftID}/questions", orNotImplemented(deps.AddQuestion))
			r.Put("/drafts/{draftID}/questions/{index}", orNotImplemented(deps.PutQuestion))
			r.Delete("/drafts/{draftID}/questions/{index}", orNotImplemented(deps.DeleteQuestion))

			r.Post("/submit", orNotImplemented(deps.Submit))
			r.Post("/discard", orNotImplemented(deps.Discard))
		})

		r.Get("/api/v1/notifications", orNotImplemented(deps.Notifications))
	})

	return r
}

// orNotImplemented returns the handler if non-nil, or a 501 placeholder.
func orNotImplemented(h http.HandlerFunc) http.HandlerFunc {
	if h != nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotImplemented, "NOT_IMPLEMENTED", "Endpoint not yet implemented", nil)
	}
}
