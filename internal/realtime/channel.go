// Package realtime keeps the console in step with the scheduler's push
// channel: global job events, per-job subscriptions, connectivity and the
// live log buffers of running jobs.
package realtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/kiranshivaraju/cronbat/internal/jobstore"
	"github.com/kiranshivaraju/cronbat/pkg/models"
)

// ConnState is the push channel connection state.
type ConnState int

const (
	Disconnected ConnState = iota
	Connecting
	Connected
)

func (s ConnState) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "disconnected"
	}
}

// ChannelError reports a push channel failure. It only affects the
// connectivity indicator; cached state is kept.
type ChannelError struct {
	Err error
}

func (e *ChannelError) Error() string { return fmt.Sprintf("push channel: %v", e.Err) }
func (e *ChannelError) Unwrap() error { return e.Err }

// Transport carries push frames between the scheduler and the console.
type Transport interface {
	// Listen blocks until ctx is done, reporting connectivity changes and
	// decoded events to h in delivery order.
	Listen(ctx context.Context, h Handler) error
	// Subscribe asks the server for the per-job events of jobID.
	Subscribe(ctx context.Context, jobID string) error
}

// Handler receives what a Transport observes.
type Handler interface {
	HandleConnect()
	HandleDisconnect(err error)
	HandleEvent(ev models.Event)
}

type itemKind int

const (
	itemEvent itemKind = iota
	itemConnect
	itemDisconnect
)

type item struct {
	kind itemKind
	ev   models.Event
	err  error
}

const defaultQueueSize = 256

// Channel applies push events to a jobstore.Store from a single consumer
// goroutine and fans them out to listener scopes.
type Channel struct {
	transport Transport
	store     *jobstore.Store
	queue     chan item
	buffers   *buffers

	mu            sync.RWMutex
	state         ConnState
	everConnected bool
	lastErr       error
	subscribed    map[string]bool
	subOrder      []string

	lmu       sync.Mutex
	listeners map[uint64]listener
	nextID    uint64
	onConn    []func(connected bool)
	onResync  []func(ctx context.Context)
}

type listener struct {
	kind  models.EventKind
	jobID string
	fn    func(models.Event)
}

// New creates a Channel that feeds store from transport. Call Run to start it.
func New(transport Transport, store *jobstore.Store) *Channel {
	return &Channel{
		transport:  transport,
		store:      store,
		queue:      make(chan item, defaultQueueSize),
		buffers:    newBuffers(),
		subscribed: make(map[string]bool),
		listeners:  make(map[uint64]listener),
	}
}

// Run connects the transport and drains events until ctx is done.
func (c *Channel) Run(ctx context.Context) error {
	c.setState(Connecting, nil)

	errCh := make(chan error, 1)
	go func() {
		errCh <- c.transport.Listen(ctx, inbox{ch: c, ctx: ctx})
	}()

	for {
		select {
		case <-ctx.Done():
			c.setState(Disconnected, nil)
			return nil
		case err := <-errCh:
			c.setState(Disconnected, err)
			if err != nil && !errors.Is(err, context.Canceled) {
				return &ChannelError{Err: err}
			}
			return nil
		case it := <-c.queue:
			c.dispatch(ctx, it)
		}
	}
}

// inbox turns Handler calls into queue items so that exactly one goroutine
// mutates state.
type inbox struct {
	ch  *Channel
	ctx context.Context
}

func (in inbox) put(it item) {
	select {
	case in.ch.queue <- it:
	case <-in.ctx.Done():
	}
}

func (in inbox) HandleConnect()             { in.put(item{kind: itemConnect}) }
func (in inbox) HandleDisconnect(err error) { in.put(item{kind: itemDisconnect, err: err}) }
func (in inbox) HandleEvent(ev models.Event) {
	in.put(item{kind: itemEvent, ev: ev})
}

func (c *Channel) dispatch(ctx context.Context, it item) {
	switch it.kind {
	case itemConnect:
		c.handleConnect(ctx)
	case itemDisconnect:
		c.setState(Disconnected, it.err)
		slog.Warn("push channel disconnected", "error", it.err)
		c.notifyConn(false)
	case itemEvent:
		c.apply(it.ev)
		c.fanOut(it.ev)
	}
}

func (c *Channel) handleConnect(ctx context.Context) {
	c.mu.Lock()
	if c.state == Connected {
		c.mu.Unlock()
		return
	}
	reconnect := c.everConnected
	c.state = Connected
	c.everConnected = true
	c.lastErr = nil
	jobs := append([]string(nil), c.subOrder...)
	c.mu.Unlock()

	slog.Info("push channel connected", "reconnect", reconnect)
	c.notifyConn(true)

	if reconnect {
		for _, id := range jobs {
			if err := c.transport.Subscribe(ctx, id); err != nil {
				slog.Warn("resubscribe failed", "job_id", id, "error", err)
			}
		}
	}
	// Hooks run on the first connect too: whatever changed between the
	// caller's initial load and the connection never arrives as an event.
	c.lmu.Lock()
	hooks := make([]func(context.Context), len(c.onResync))
	copy(hooks, c.onResync)
	c.lmu.Unlock()
	for _, fn := range hooks {
		fn(ctx)
	}
}

// apply performs the store and buffer effects of ev.
func (c *Channel) apply(ev models.Event) {
	switch ev.Kind {
	case models.EventJobs, models.EventJobAdded, models.EventJobRemoved, models.EventJobStateChanged:
		c.store.ApplyEvent(ev)

	case models.EventJobDetails:
		if c.IsSubscribed(ev.JobID) {
			c.store.ApplyEvent(ev)
		}

	case models.EventJobLog:
		if !c.IsSubscribed(ev.JobID) {
			return
		}
		job := c.store.Select(ev.JobID)
		if job == nil || job.State != models.JobStateRunning {
			return
		}
		c.buffers.get(ev.JobID).append(ev.Line)

	case models.EventJobCompleted:
		if c.IsSubscribed(ev.JobID) {
			c.buffers.get(ev.JobID).reset()
		}
	}
}

func (c *Channel) fanOut(ev models.Event) {
	c.lmu.Lock()
	var fns []func(models.Event)
	for id := uint64(0); id < c.nextID; id++ {
		l, ok := c.listeners[id]
		if !ok || l.kind != ev.Kind {
			continue
		}
		if l.jobID != "" && l.jobID != ev.JobID {
			continue
		}
		fns = append(fns, l.fn)
	}
	c.lmu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}

func (c *Channel) setState(s ConnState, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = s
	if err != nil {
		c.lastErr = err
	}
}

func (c *Channel) notifyConn(connected bool) {
	c.lmu.Lock()
	fns := make([]func(bool), len(c.onConn))
	copy(fns, c.onConn)
	c.lmu.Unlock()
	for _, fn := range fns {
		fn(connected)
	}
}

// State returns the current connection state.
func (c *Channel) State() ConnState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Connected reports whether the push channel is up.
func (c *Channel) Connected() bool {
	return c.State() == Connected
}

// LastError returns the most recent transport error, if any.
func (c *Channel) LastError() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.lastErr == nil {
		return nil
	}
	return &ChannelError{Err: c.lastErr}
}

// OnConnectionChange registers fn for connectivity flips.
func (c *Channel) OnConnectionChange(fn func(connected bool)) {
	c.lmu.Lock()
	defer c.lmu.Unlock()
	c.onConn = append(c.onConn, fn)
}

// OnResync registers fn to run on the consumer goroutine after every
// connect, the first included, before any event received on the new
// connection is applied.
func (c *Channel) OnResync(fn func(ctx context.Context)) {
	c.lmu.Lock()
	defer c.lmu.Unlock()
	c.onResync = append(c.onResync, fn)
}

// Subscribe requests per-job events for jobID. Subscriptions are never
// revoked; calling it again re-issues the request.
func (c *Channel) Subscribe(ctx context.Context, jobID string) error {
	c.mu.Lock()
	if !c.subscribed[jobID] {
		c.subscribed[jobID] = true
		c.subOrder = append(c.subOrder, jobID)
	}
	c.mu.Unlock()

	if err := c.transport.Subscribe(ctx, jobID); err != nil {
		return &ChannelError{Err: fmt.Errorf("subscribe to job %s: %w", jobID, err)}
	}
	return nil
}

// IsSubscribed reports whether Subscribe was ever called for jobID.
func (c *Channel) IsSubscribed(jobID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.subscribed[jobID]
}

// Buffer returns the live log buffer of jobID.
func (c *Channel) Buffer(jobID string) *LiveBuffer {
	return c.buffers.get(jobID)
}

// ResetBuffer clears the live buffer of jobID ahead of a manual run.
func (c *Channel) ResetBuffer(jobID string) {
	c.buffers.get(jobID).reset()
}

// NewScope returns a listener scope tied to the lifetime of one view.
func (c *Channel) NewScope() *Scope {
	s := &Scope{ch: c}
	s.alive.Store(true)
	return s
}

func (c *Channel) register(l listener) uint64 {
	c.lmu.Lock()
	defer c.lmu.Unlock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = l
	return id
}

func (c *Channel) deregister(ids []uint64) {
	c.lmu.Lock()
	defer c.lmu.Unlock()
	for _, id := range ids {
		delete(c.listeners, id)
	}
}
