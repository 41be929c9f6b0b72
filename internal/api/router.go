package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	mw "github.com/kiranshivaraju/cronbat/internal/api/middleware"
	"github.com/kiranshivaraju/cronbat/internal/api/response"
	"github.com/kiranshivaraju/cronbat/pkg/models"
)

// Dependencies holds all handler and middleware dependencies for the router.
type Dependencies struct {
	Auth      *mw.Auth
	RateLimit *mw.RateLimit

	HealthHandler http.HandlerFunc

	ListJobs         http.HandlerFunc
	GetJob           http.HandlerFunc
	JobLog           http.HandlerFunc
	JobExecutions    http.HandlerFunc
	SelectExecution  http.HandlerFunc
	Graph            http.HandlerFunc
	ListDependencies http.HandlerFunc
	AllExecutions    http.HandlerFunc

	CreateJob        http.HandlerFunc
	UpdateJob        http.HandlerFunc
	DeleteJob        http.HandlerFunc
	RunJob           http.HandlerFunc
	PauseJob         http.HandlerFunc
	ResumeJob        http.HandlerFunc
	CreateDependency http.HandlerFunc
	DeleteDependency http.HandlerFunc

	CreateKeyHandler http.HandlerFunc
	ListKeysHandler  http.HandlerFunc
	RevokeKeyHandler http.HandlerFunc
}

// NewRouter builds the Chi router with middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	r.Use(mw.RequestID)
	r.Use(mw.Logger)
	r.Use(mw.Recovery)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		response.Error(w, http.StatusNotFound, "NOT_FOUND", "No such endpoint", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		response.Error(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
	})

	r.Get("/api/v1/health", orNotImplemented(deps.HealthHandler))

	r.Group(func(r chi.Router) {
		r.Use(deps.Auth.Authenticate)

		// Operate keys can read too.
		r.Group(func(r chi.Router) {
			r.Use(deps.Auth.RequireScope(models.ScopeRead, models.ScopeOperate))

			r.Get("/api/v1/jobs", orNotImplemented(deps.ListJobs))
			r.Get("/api/v1/jobs/{jobID}", orNotImplemented(deps.GetJob))
			r.Get("/api/v1/jobs/{jobID}/log", orNotImplemented(deps.JobLog))
			r.Get("/api/v1/jobs/{jobID}/executions", orNotImplemented(deps.JobExecutions))
			r.Post("/api/v1/jobs/{jobID}/executions/{timestamp}/select", orNotImplemented(deps.SelectExecution))
			r.Get("/api/v1/graph", orNotImplemented(deps.Graph))
			r.Get("/api/v1/dependencies", orNotImplemented(deps.ListDependencies))
			r.Get("/api/v1/executions", orNotImplemented(deps.AllExecutions))
		})

		r.Group(func(r chi.Router) {
			r.Use(deps.Auth.RequireScope(models.ScopeOperate))
			r.Use(deps.RateLimit.Limit)

			r.Post("/api/v1/jobs", orNotImplemented(deps.CreateJob))
			r.Patch("/api/v1/jobs/{jobID}", orNotImplemented(deps.UpdateJob))
			r.Delete("/api/v1/jobs/{jobID}", orNotImplemented(deps.DeleteJob))
			r.Post("/api/v1/jobs/{jobID}/run", orNotImplemented(deps.RunJob))
			r.Post("/api/v1/jobs/{jobID}/pause", orNotImplemented(deps.PauseJob))
			r.Post("/api/v1/jobs/{jobID}/resume", orNotImplemented(deps.ResumeJob))
			r.Post("/api/v1/dependencies", orNotImplemented(deps.CreateDependency))
			r.Delete("/api/v1/dependencies/{parentID}/{childID}", orNotImplemented(deps.DeleteDependency))
		})

		r.Group(func(r chi.Router) {
			r.Use(deps.Auth.RequireScope(models.ScopeAdmin))
			r.Use(deps.RateLimit.Limit)

			r.Post("/api/v1/admin/keys", orNotImplemented(deps.CreateKeyHandler))
			r.Get("/api/v1/admin/keys", orNotImplemented(deps.ListKeysHandler))
			r.Delete("/api/v1/admin/keys/{keyID}", orNotImplemented(deps.RevokeKeyHandler))
		})
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
