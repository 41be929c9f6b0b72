// Package handler implements the console API's HTTP handlers.
package handler

import (
	"context"

	"github.com/kiranshivaraju/cronbat/internal/console"
	"github.com/kiranshivaraju/cronbat/pkg/layout"
	"github.com/kiranshivaraju/cronbat/pkg/models"
)

// Console is the console service surface the handlers depend on.
type Console interface {
	Jobs() []models.Job
	Job(id string) *models.Job
	Edges() []models.DependencyEdge
	Layout() layout.Layout
	Stale() bool
	Connected() bool
	Ping(ctx context.Context) error

	View(ctx context.Context, jobID string) (*console.JobView, error)
	AllExecutions(ctx context.Context) ([]models.Execution, error)

	CreateJob(ctx context.Context, spec models.JobSpec) (*models.Job, error)
	UpdateJob(ctx context.Context, jobID string, patch models.JobPatch) (*models.Job, error)
	DeleteJob(ctx context.Context, jobID string) error
	RunJob(ctx context.Context, jobID string) (*models.Job, error)
	PauseJob(ctx context.Context, jobID string) (*models.Job, error)
	ResumeJob(ctx context.Context, jobID string) (*models.Job, error)
	CreateDependency(ctx context.Context, edge models.DependencyEdge) error
	DeleteDependency(ctx context.Context, parentID, childID string) error
}

var _ Console = (*console.Service)(nil)
