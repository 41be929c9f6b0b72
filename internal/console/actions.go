package console

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/kiranshivaraju/cronbat/internal/schedapi"
	"github.com/kiranshivaraju/cronbat/pkg/models"
)

// CreateJob creates a job and caches the scheduler's copy of it.
func (s *Service) CreateJob(ctx context.Context, spec models.JobSpec) (*models.Job, error) {
	id, err := s.api.CreateJob(ctx, spec)
	if err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}
	job, err := s.refetchJob(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("fetch created job %s: %w", id, err)
	}
	if job.Trigger.Type == models.TriggerDependency {
		s.refreshEdges(ctx)
	}
	return job, nil
}

// UpdateJob patches a job.
func (s *Service) UpdateJob(ctx context.Context, jobID string, patch models.JobPatch) (*models.Job, error) {
	if err := s.api.UpdateJob(ctx, jobID, patch); err != nil {
		return nil, s.staleWrite(ctx, "update job", jobID, err)
	}
	if patch.Trigger != nil {
		s.refreshEdges(ctx)
	}
	return s.refetchJob(ctx, jobID)
}

// DeleteJob removes a job and closes its view.
func (s *Service) DeleteJob(ctx context.Context, jobID string) error {
	if err := s.api.DeleteJob(ctx, jobID); err != nil {
		return s.staleWrite(ctx, "delete job", jobID, err)
	}
	s.jobs.ApplyEvent(models.Event{Kind: models.EventJobRemoved, JobID: jobID})

	s.viewsMu.Lock()
	v := s.views[jobID]
	s.viewsMu.Unlock()
	if v != nil {
		v.Close()
	}
	return nil
}

// RunJob triggers a manual run. The job's live buffer is cleared so the new
// run's output starts empty.
func (s *Service) RunJob(ctx context.Context, jobID string) (*models.Job, error) {
	if err := s.api.RunJob(ctx, jobID); err != nil {
		return nil, s.staleWrite(ctx, "run job", jobID, err)
	}
	s.channel.ResetBuffer(jobID)
	return s.refetchJob(ctx, jobID)
}

// PauseJob pauses a job.
func (s *Service) PauseJob(ctx context.Context, jobID string) (*models.Job, error) {
	if err := s.api.PauseJob(ctx, jobID); err != nil {
		return nil, s.staleWrite(ctx, "pause job", jobID, err)
	}
	return s.refetchJob(ctx, jobID)
}

// ResumeJob resumes a paused job.
func (s *Service) ResumeJob(ctx context.Context, jobID string) (*models.Job, error) {
	if err := s.api.ResumeJob(ctx, jobID); err != nil {
		return nil, s.staleWrite(ctx, "resume job", jobID, err)
	}
	return s.refetchJob(ctx, jobID)
}

// CreateDependency adds an edge. The edge set is refetched either way.
func (s *Service) CreateDependency(ctx context.Context, edge models.DependencyEdge) error {
	err := s.api.CreateDependency(ctx, edge)
	s.refreshEdges(ctx)
	if err != nil {
		return fmt.Errorf("create dependency %s->%s: %w", edge.ParentJobID, edge.ChildJobID, err)
	}
	return nil
}

// DeleteDependency removes an edge. The edge set is refetched either way.
func (s *Service) DeleteDependency(ctx context.Context, parentID, childID string) error {
	err := s.api.DeleteDependency(ctx, parentID, childID)
	s.refreshEdges(ctx)
	if err != nil {
		return fmt.Errorf("delete dependency %s->%s: %w", parentID, childID, err)
	}
	return nil
}

// refetchJob replaces the cached job with the scheduler's copy, removing it
// when the scheduler no longer knows it.
func (s *Service) refetchJob(ctx context.Context, jobID string) (*models.Job, error) {
	job, err := s.api.GetJob(ctx, jobID)
	if errors.Is(err, schedapi.ErrNotFound) {
		s.jobs.ApplyEvent(models.Event{Kind: models.EventJobRemoved, JobID: jobID})
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}
	if err != nil {
		return nil, err
	}
	s.jobs.Upsert(*job)
	return job, nil
}

func (s *Service) refreshEdges(ctx context.Context) {
	edges, err := s.api.ListDependencies(ctx)
	if err != nil {
		slog.Warn("refetch dependencies failed", "error", err)
		return
	}
	s.jobs.ReplaceEdges(edges)
}

// staleWrite refetches the job a failed write targeted, since the server
// may have applied part of it, and wraps err in a StaleWriteError.
func (s *Service) staleWrite(ctx context.Context, op, jobID string, err error) error {
	_, ferr := s.refetchJob(ctx, jobID)
	if ferr != nil && !errors.Is(ferr, ErrJobNotFound) {
		slog.Warn("refetch after failed write failed", "op", op, "job_id", jobID, "error", ferr)
	}
	return &StaleWriteError{
		Op:        op,
		JobID:     jobID,
		Refetched: ferr == nil || errors.Is(ferr, ErrJobNotFound),
		Err:       err,
	}
}
