// Package jobstore is the console's client-side cache of scheduler jobs and
// dependency edges. Only snapshot replacement, push events and REST
// responses mutate it.
package jobstore

import (
	"sync"

	"github.com/kiranshivaraju/cronbat/pkg/models"
)

// Change describes one mutation. SetChanged is true when jobs were added or
// removed or the edge set changed, i.e. when graph levels need recomputing.
type Change struct {
	Kind       models.EventKind
	JobID      string
	SetChanged bool
}

const (
	// KindSnapshot marks a wholesale job replace.
	KindSnapshot models.EventKind = "snapshot"
	// KindEdges marks an edge set replace.
	KindEdges models.EventKind = "edges"
	// KindUpsert marks a single job refreshed from a REST response.
	KindUpsert models.EventKind = "upsert"
)

// Store holds jobs in server order plus the dependency edges.
// Readers may call it from any goroutine.
type Store struct {
	mu    sync.RWMutex
	jobs  []models.Job
	index map[string]int
	edges []models.DependencyEdge

	subMu  sync.Mutex
	subs   map[int]func(Change)
	nextID int
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		index: make(map[string]int),
		subs:  make(map[int]func(Change)),
	}
}

// OnChange registers fn to run after every mutation. The returned function
// deregisters it.
func (s *Store) OnChange(fn func(Change)) func() {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	return func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		delete(s.subs, id)
	}
}

func (s *Store) notify(c Change) {
	s.subMu.Lock()
	fns := make([]func(Change), 0, len(s.subs))
	for id := 0; id < s.nextID; id++ {
		if fn, ok := s.subs[id]; ok {
			fns = append(fns, fn)
		}
	}
	s.subMu.Unlock()
	for _, fn := range fns {
		fn(c)
	}
}

// ReplaceSnapshot discards every cached job and installs jobs as given.
// Edges are kept; they are replaced separately from GET /dependencies.
func (s *Store) ReplaceSnapshot(jobs []models.Job) {
	s.mu.Lock()
	s.replaceLocked(jobs)
	s.mu.Unlock()
	s.notify(Change{Kind: KindSnapshot, SetChanged: true})
}

func (s *Store) replaceLocked(jobs []models.Job) {
	s.jobs = make([]models.Job, 0, len(jobs))
	s.index = make(map[string]int, len(jobs))
	for _, j := range jobs {
		if i, dup := s.index[j.ID]; dup {
			s.jobs[i] = j.Clone()
			continue
		}
		s.index[j.ID] = len(s.jobs)
		s.jobs = append(s.jobs, j.Clone())
	}
}

// ReplaceEdges installs the full dependency edge set.
func (s *Store) ReplaceEdges(edges []models.DependencyEdge) {
	s.mu.Lock()
	s.edges = append([]models.DependencyEdge(nil), edges...)
	s.mu.Unlock()
	s.notify(Change{Kind: KindEdges, SetChanged: true})
}

// Upsert stores a job fetched over REST, replacing any cached copy.
func (s *Store) Upsert(job models.Job) {
	s.mu.Lock()
	_, existed := s.index[job.ID]
	s.putLocked(job)
	s.mu.Unlock()
	s.notify(Change{Kind: KindUpsert, JobID: job.ID, SetChanged: !existed})
}

func (s *Store) putLocked(job models.Job) {
	if i, ok := s.index[job.ID]; ok {
		s.jobs[i] = job.Clone()
		return
	}
	s.index[job.ID] = len(s.jobs)
	s.jobs = append(s.jobs, job.Clone())
}

// ApplyEvent applies one push event and reports whether the store changed.
// Events that carry a target value are idempotent; per-job events without
// store effects (job_log, job_completed) are ignored here.
func (s *Store) ApplyEvent(ev models.Event) bool {
	s.mu.Lock()
	change, ok := s.applyLocked(ev)
	s.mu.Unlock()
	if ok {
		s.notify(change)
	}
	return ok
}

func (s *Store) applyLocked(ev models.Event) (Change, bool) {
	switch ev.Kind {
	case models.EventJobs:
		s.replaceLocked(ev.Jobs)
		return Change{Kind: ev.Kind, SetChanged: true}, true

	case models.EventJobAdded:
		if ev.Job == nil {
			return Change{}, false
		}
		if _, ok := s.index[ev.Job.ID]; ok {
			return Change{}, false
		}
		s.putLocked(*ev.Job)
		return Change{Kind: ev.Kind, JobID: ev.Job.ID, SetChanged: true}, true

	case models.EventJobRemoved:
		return s.removeLocked(ev.JobID)

	case models.EventJobStateChanged:
		i, ok := s.index[ev.JobID]
		if !ok || s.jobs[i].State == ev.State {
			return Change{}, false
		}
		s.jobs[i].State = ev.State
		return Change{Kind: ev.Kind, JobID: ev.JobID}, true

	case models.EventJobDetails:
		if ev.Job == nil {
			return Change{}, false
		}
		_, existed := s.index[ev.Job.ID]
		s.putLocked(*ev.Job)
		return Change{Kind: ev.Kind, JobID: ev.Job.ID, SetChanged: !existed}, true
	}
	return Change{}, false
}

func (s *Store) removeLocked(id string) (Change, bool) {
	i, ok := s.index[id]
	if !ok {
		return Change{}, false
	}
	s.jobs = append(s.jobs[:i], s.jobs[i+1:]...)
	delete(s.index, id)
	for j := i; j < len(s.jobs); j++ {
		s.index[s.jobs[j].ID] = j
	}

	kept := s.edges[:0]
	for _, e := range s.edges {
		if !e.Touches(id) {
			kept = append(kept, e)
		}
	}
	s.edges = kept
	return Change{Kind: models.EventJobRemoved, JobID: id, SetChanged: true}, true
}

// Select returns a copy of the job, or nil if it is not cached.
func (s *Store) Select(id string) *models.Job {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.index[id]
	if !ok {
		return nil
	}
	j := s.jobs[i].Clone()
	return &j
}

// Jobs returns a copy of all jobs in server order.
func (s *Store) Jobs() []models.Job {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Job, len(s.jobs))
	for i, j := range s.jobs {
		out[i] = j.Clone()
	}
	return out
}

// Edges returns a copy of the dependency edges.
func (s *Store) Edges() []models.DependencyEdge {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.DependencyEdge(nil), s.edges...)
}

// Len returns the number of cached jobs.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.jobs)
}
