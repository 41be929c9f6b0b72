package console

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kiranshivaraju/cronbat/internal/logview"
	"github.com/kiranshivaraju/cronbat/internal/realtime"
	"github.com/kiranshivaraju/cronbat/internal/schedapi"
	"github.com/kiranshivaraju/cronbat/pkg/models"
)

// ErrJobNotFound is returned when opening a view on a job the scheduler
// does not know.
var ErrJobNotFound = errors.New("job not found")

// JobView is the open job-detail view of one job: its subscription,
// execution list and log display. Responses arriving after Close are
// dropped.
type JobView struct {
	svc   *Service
	jobID string
	scope *realtime.Scope
	agg   *logview.Aggregator

	ctx    context.Context
	cancel context.CancelFunc

	lastUsed atomic.Int64

	// completeMu runs completion refetches one at a time, in the order
	// they acquire it, so an older execution list never lands last.
	completeMu sync.Mutex

	mu  sync.Mutex
	err error
}

// View returns the open view of jobID, opening it on first use. Concurrent
// calls for the same job share one open.
func (s *Service) View(ctx context.Context, jobID string) (*JobView, error) {
	s.viewsMu.Lock()
	v, ok := s.views[jobID]
	s.viewsMu.Unlock()
	if ok && v.scope.Alive() {
		v.touch()
		return v, nil
	}

	res, err, _ := s.viewFlight.Do(jobID, func() (any, error) {
		return s.openView(ctx, jobID)
	})
	if err != nil {
		return nil, err
	}
	return res.(*JobView), nil
}

func (s *Service) openView(ctx context.Context, jobID string) (*JobView, error) {
	vctx, cancel := context.WithCancel(context.Background())
	v := &JobView{
		svc:    s,
		jobID:  jobID,
		scope:  s.channel.NewScope(),
		agg:    logview.New(jobID, s.logs, s.opts.LogFetchConcurrency),
		ctx:    vctx,
		cancel: cancel,
	}
	v.touch()

	v.scope.OnJob(models.EventJobCompleted, jobID, func(models.Event) {
		go v.onCompleted()
	})
	v.scope.OnJob(models.EventJobRemoved, jobID, func(models.Event) {
		go v.Close()
	})

	if err := s.channel.Subscribe(ctx, jobID); err != nil {
		slog.Warn("subscribe to job failed", "job_id", jobID, "error", err)
	}

	job, err := s.api.GetJob(ctx, jobID)
	switch {
	case errors.Is(err, schedapi.ErrNotFound):
		v.Close()
		s.jobs.ApplyEvent(models.Event{Kind: models.EventJobRemoved, JobID: jobID})
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	case err != nil:
		if s.jobs.Select(jobID) == nil {
			v.Close()
			return nil, fmt.Errorf("open view %s: %w", jobID, err)
		}
		v.setErr(err)
	default:
		s.jobs.Upsert(*job)
	}

	execs, err := s.api.ListExecutions(ctx, jobID)
	if err != nil {
		v.setErr(err)
	} else {
		v.agg.SetExecutions(execs)
		go v.prefetch()
	}

	s.viewsMu.Lock()
	s.views[jobID] = v
	s.viewsMu.Unlock()
	return v, nil
}

func (v *JobView) prefetch() {
	errs := v.agg.FetchAll(v.ctx)
	if len(errs) > 0 && v.scope.Alive() {
		slog.Warn("execution log prefetch incomplete", "job_id", v.jobID, "failed", len(errs))
	}
}

// onCompleted refetches the execution list and the newest execution's log
// after a run finishes. The channel has already cleared the live buffer.
func (v *JobView) onCompleted() {
	v.completeMu.Lock()
	defer v.completeMu.Unlock()

	execs, err := v.svc.api.ListExecutions(v.ctx, v.jobID)
	if !v.scope.Alive() {
		return
	}
	if err != nil {
		v.setErr(err)
		slog.Warn("refetch executions after completion failed", "job_id", v.jobID, "error", err)
		return
	}
	v.agg.SetExecutions(execs)
	if len(execs) == 0 {
		return
	}
	if err := v.agg.Refresh(v.ctx, execs[0].Timestamp); err != nil && v.scope.Alive() {
		v.setErr(err)
		slog.Warn("fetch newest execution log failed", "job_id", v.jobID, "error", err)
	}
}

// JobID returns the viewed job's id.
func (v *JobView) JobID() string { return v.jobID }

// Job returns the cached job, or nil once it was removed.
func (v *JobView) Job() *models.Job {
	v.touch()
	return v.svc.jobs.Select(v.jobID)
}

// Display returns the log text to show right now: the live buffer while the
// job runs, the front execution's persisted log otherwise.
func (v *JobView) Display() logview.Display {
	v.touch()
	state := models.JobStateIdle
	if job := v.svc.jobs.Select(v.jobID); job != nil {
		state = job.State
	}
	return v.agg.Display(state, v.svc.channel.Buffer(v.jobID).Lines())
}

// LoadDisplay waits for the front execution's log before computing Display.
// A failed fetch is reported through Display.Err.
func (v *JobView) LoadDisplay(ctx context.Context) logview.Display {
	if err := v.agg.EnsureFront(ctx); err != nil {
		slog.Debug("front log fetch failed", "job_id", v.jobID, "error", err)
	}
	return v.Display()
}

// Executions returns the execution list, the selected one first.
func (v *JobView) Executions() []models.Execution {
	v.touch()
	return v.agg.Executions()
}

// SelectExecution moves the execution to the front and loads its log.
func (v *JobView) SelectExecution(ctx context.Context, timestamp string) error {
	v.touch()
	return v.agg.Select(ctx, timestamp)
}

// Err returns the last user-visible fetch failure of the view.
func (v *JobView) Err() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.err
}

func (v *JobView) setErr(err error) {
	v.mu.Lock()
	v.err = err
	v.mu.Unlock()
}

// Alive reports whether the view is still open.
func (v *JobView) Alive() bool { return v.scope.Alive() }

// Close deregisters the view's listeners and drops it from the service.
// The job subscription itself stays in place.
func (v *JobView) Close() {
	v.scope.Close()
	v.cancel()

	v.svc.viewsMu.Lock()
	if cur, ok := v.svc.views[v.jobID]; ok && cur == v {
		delete(v.svc.views, v.jobID)
	}
	v.svc.viewsMu.Unlock()
}

func (v *JobView) touch() {
	v.lastUsed.Store(v.svc.now().UnixNano())
}

func (v *JobView) idleSince(now time.Time) time.Duration {
	return now.Sub(time.Unix(0, v.lastUsed.Load()))
}

// SweepViews closes views unused for longer than the idle timeout and
// returns how many it closed.
func (s *Service) SweepViews(now time.Time) int {
	if s.opts.ViewIdleTimeout <= 0 {
		return 0
	}
	s.viewsMu.Lock()
	var idle []*JobView
	for _, v := range s.views {
		if v.idleSince(now) > s.opts.ViewIdleTimeout {
			idle = append(idle, v)
		}
	}
	s.viewsMu.Unlock()

	for _, v := range idle {
		v.Close()
	}
	if len(idle) > 0 {
		slog.Info("closed idle job views", "count", len(idle))
	}
	return len(idle)
}

// RunSweeper calls SweepViews every interval until ctx is done.
func (s *Service) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-ticker.C:
			s.SweepViews(t)
		}
	}
}

// OpenViews returns the number of open job views.
func (s *Service) OpenViews() int {
	s.viewsMu.Lock()
	defer s.viewsMu.Unlock()
	return len(s.views)
}
