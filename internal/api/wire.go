package api

import (
	"github.com/kiranshivaraju/cronbat/internal/api/handler"
	mw "github.com/kiranshivaraju/cronbat/internal/api/middleware"
)

// ConsoleDependencies builds the handler set of the console API.
func ConsoleDependencies(auth *mw.Auth, rateLimit *mw.RateLimit, svc handler.Console,
	keys handler.KeyStore, db, cache handler.Pinger) Dependencies {
	return Dependencies{
		Auth:      auth,
		RateLimit: rateLimit,

		HealthHandler: handler.NewHealthHandler(svc, db, cache),

		ListJobs:         handler.NewListJobsHandler(svc),
		GetJob:           handler.NewGetJobHandler(svc),
		JobLog:           handler.NewJobLogHandler(svc),
		JobExecutions:    handler.NewJobExecutionsHandler(svc),
		SelectExecution:  handler.NewSelectExecutionHandler(svc),
		Graph:            handler.NewGraphHandler(svc),
		ListDependencies: handler.NewListDependenciesHandler(svc),
		AllExecutions:    handler.NewAllExecutionsHandler(svc),

		CreateJob:        handler.NewCreateJobHandler(svc),
		UpdateJob:        handler.NewUpdateJobHandler(svc),
		DeleteJob:        handler.NewDeleteJobHandler(svc),
		RunJob:           handler.NewJobActionHandler(svc, handler.ActionRun),
		PauseJob:         handler.NewJobActionHandler(svc, handler.ActionPause),
		ResumeJob:        handler.NewJobActionHandler(svc, handler.ActionResume),
		CreateDependency: handler.NewCreateDependencyHandler(svc),
		DeleteDependency: handler.NewDeleteDependencyHandler(svc),

		CreateKeyHandler: handler.NewCreateKeyHandler(keys),
		ListKeysHandler:  handler.NewListKeysHandler(keys),
		RevokeKeyHandler: handler.NewRevokeKeyHandler(keys),
	}
}
