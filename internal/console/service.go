// Package console wires the job store, the push channel, the layout engine
// and the log aggregator into the state the console API serves.
package console

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kiranshivaraju/cronbat/internal/cache"
	"github.com/kiranshivaraju/cronbat/internal/jobstore"
	"github.com/kiranshivaraju/cronbat/internal/realtime"
	"github.com/kiranshivaraju/cronbat/internal/schedapi"
	"github.com/kiranshivaraju/cronbat/internal/store"
	"github.com/kiranshivaraju/cronbat/pkg/layout"
	"github.com/kiranshivaraju/cronbat/pkg/models"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// SnapshotStore persists the last reconciled snapshot.
type SnapshotStore interface {
	SaveSnapshot(ctx context.Context, snap store.Snapshot) error
	LoadSnapshot(ctx context.Context) (*store.Snapshot, error)
}

// Options tunes a Service.
type Options struct {
	ResyncOnReconnect   bool
	ViewIdleTimeout     time.Duration
	LogCacheTTL         time.Duration
	LogFetchConcurrency int
}

// Service is the console's reconciled view of the scheduler.
type Service struct {
	api       schedapi.Client
	jobs      *jobstore.Store
	channel   *realtime.Channel
	snapshots SnapshotStore
	logs      *cachedLogs
	opts      Options

	stale atomic.Bool

	layoutMu    sync.Mutex
	layout      layout.Layout
	layoutValid bool

	viewsMu    sync.Mutex
	views      map[string]*JobView
	viewFlight singleflight.Group

	now func() time.Time
}

// New creates a Service. snapshots and logCache may be nil.
func New(api schedapi.Client, jobs *jobstore.Store, channel *realtime.Channel,
	snapshots SnapshotStore, logCache cache.Cache, opts Options) *Service {
	s := &Service{
		api:       api,
		jobs:      jobs,
		channel:   channel,
		snapshots: snapshots,
		logs:      &cachedLogs{api: api, cache: logCache, ttl: opts.LogCacheTTL},
		opts:      opts,
		views:     make(map[string]*JobView),
		now:       time.Now,
	}

	jobs.OnChange(func(c jobstore.Change) {
		if !c.SetChanged {
			return
		}
		s.layoutMu.Lock()
		s.layoutValid = false
		s.layoutMu.Unlock()
	})

	if opts.ResyncOnReconnect {
		channel.OnResync(func(ctx context.Context) {
			if err := s.Resync(ctx); err != nil {
				slog.Warn("resync after connect failed", "error", err)
			}
		})
	}
	return s
}

// Load fetches the job and dependency snapshot and installs it wholesale.
// When the scheduler cannot be reached and nothing is cached yet, the last
// persisted snapshot is installed instead and the error is still returned.
func (s *Service) Load(ctx context.Context) error {
	var (
		jobs  []models.Job
		edges []models.DependencyEdge
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		jobs, err = s.api.ListJobs(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		edges, err = s.api.ListDependencies(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		s.fallback(ctx)
		return fmt.Errorf("load snapshot: %w", err)
	}

	s.jobs.ReplaceSnapshot(jobs)
	s.jobs.ReplaceEdges(edges)
	s.stale.Store(false)
	slog.Info("snapshot loaded", "jobs", len(jobs), "edges", len(edges))

	if s.snapshots != nil {
		snap := store.Snapshot{Jobs: jobs, Edges: edges, SavedAt: s.now().UTC()}
		if err := s.snapshots.SaveSnapshot(ctx, snap); err != nil {
			slog.Warn("persist snapshot failed", "error", err)
		}
	}
	return nil
}

// Resync forces a full snapshot replace. It runs after every push channel
// reconnect since events emitted while disconnected are lost.
func (s *Service) Resync(ctx context.Context) error {
	return s.Load(ctx)
}

func (s *Service) fallback(ctx context.Context) {
	if s.jobs.Len() > 0 || s.snapshots == nil {
		return
	}
	snap, err := s.snapshots.LoadSnapshot(ctx)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			slog.Warn("load persisted snapshot failed", "error", err)
		}
		return
	}
	s.jobs.ReplaceSnapshot(snap.Jobs)
	s.jobs.ReplaceEdges(snap.Edges)
	s.stale.Store(true)
	slog.Warn("serving persisted snapshot", "saved_at", snap.SavedAt, "jobs", len(snap.Jobs))
}

// Stale reports whether the jobs come from a persisted snapshot rather than
// the scheduler.
func (s *Service) Stale() bool { return s.stale.Load() }

// Connected reports push channel connectivity.
func (s *Service) Connected() bool { return s.channel.Connected() }

// Jobs returns the cached jobs in server order.
func (s *Service) Jobs() []models.Job { return s.jobs.Jobs() }

// Job returns the cached job, or nil.
func (s *Service) Job(id string) *models.Job { return s.jobs.Select(id) }

// Edges returns the cached dependency edges.
func (s *Service) Edges() []models.DependencyEdge { return s.jobs.Edges() }

// Layout returns the graph levels of the cached jobs, recomputed only after
// the job or edge set changed.
func (s *Service) Layout() layout.Layout {
	s.layoutMu.Lock()
	defer s.layoutMu.Unlock()
	if s.layoutValid {
		return s.layout
	}
	s.layout = layout.Compute(s.jobs.Jobs(), s.jobs.Edges())
	s.layoutValid = true
	if len(s.layout.Degraded) > 0 {
		slog.Warn("jobs without a resolvable level placed at level 0", "job_ids", s.layout.Degraded)
	}
	return s.layout
}

// AllExecutions lists executions across every job.
func (s *Service) AllExecutions(ctx context.Context) ([]models.Execution, error) {
	return s.api.ListAllExecutions(ctx)
}

// ExecutionLog reads one persisted log through the log cache.
func (s *Service) ExecutionLog(ctx context.Context, jobID, timestamp string) (*models.ExecutionLog, error) {
	return s.logs.ExecutionLog(ctx, jobID, timestamp)
}

// Ping checks that the scheduler answers.
func (s *Service) Ping(ctx context.Context) error {
	return s.api.Ready(ctx)
}
