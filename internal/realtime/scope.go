package realtime

import (
	"sync"
	"sync/atomic"

	"github.com/kiranshivaraju/cronbat/pkg/models"
)

// Scope groups the listeners of one consuming view. Closing it removes all
// of them at once, so remounting a view never leaves stale handlers behind.
type Scope struct {
	ch    *Channel
	alive atomic.Bool

	mu  sync.Mutex
	ids []uint64
}

// On registers fn for every event of kind.
func (s *Scope) On(kind models.EventKind, fn func(models.Event)) {
	s.add(listener{kind: kind, fn: fn})
}

// OnJob registers fn for events of kind concerning jobID only.
func (s *Scope) OnJob(kind models.EventKind, jobID string, fn func(models.Event)) {
	s.add(listener{kind: kind, jobID: jobID, fn: fn})
}

func (s *Scope) add(l listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.alive.Load() {
		return
	}
	inner := l.fn
	l.fn = func(ev models.Event) {
		if s.alive.Load() {
			inner(ev)
		}
	}
	s.ids = append(s.ids, s.ch.register(l))
}

// Alive reports whether the scope is still open. Callbacks of REST calls
// started on behalf of the view check it before touching view state.
func (s *Scope) Alive() bool {
	return s.alive.Load()
}

// Close deregisters every listener of the scope. Safe to call twice.
func (s *Scope) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.alive.Swap(false) {
		return
	}
	s.ch.deregister(s.ids)
	s.ids = nil
}
