package console

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/kiranshivaraju/cronbat/internal/jobstore"
	"github.com/kiranshivaraju/cronbat/internal/realtime"
	"github.com/kiranshivaraju/cronbat/internal/schedapi"
	"github.com/kiranshivaraju/cronbat/internal/store"
	"github.com/kiranshivaraju/cronbat/pkg/models"
)

// --- fake scheduler ---

type fakeAPI struct {
	mu        sync.Mutex
	jobs      []models.Job
	edges     []models.DependencyEdge
	execs     map[string][]models.Execution
	logs      map[string]*models.ExecutionLog
	fail      map[string]error
	logCalls  int
	lastPatch *models.JobPatch
	calls     []string
	// execGate, when set, holds the next ListExecutions response until
	// closed. The call that takes it clears it.
	execGate chan struct{}
}

func newFakeAPI(jobs ...models.Job) *fakeAPI {
	return &fakeAPI{
		jobs:  jobs,
		execs: make(map[string][]models.Execution),
		logs:  make(map[string]*models.ExecutionLog),
		fail:  make(map[string]error),
	}
}

func (f *fakeAPI) failOn(method string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail[method] = err
}

func (f *fakeAPI) record(method string) error {
	f.calls = append(f.calls, method)
	return f.fail[method]
}

func (f *fakeAPI) find(id string) int {
	for i, j := range f.jobs {
		if j.ID == id {
			return i
		}
	}
	return -1
}

func notFound(op string) error {
	return &schedapi.TransportError{Op: op, Status: 404, Err: schedapi.ErrNotFound}
}

func (f *fakeAPI) ListJobs(context.Context) ([]models.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("ListJobs"); err != nil {
		return nil, err
	}
	return append([]models.Job(nil), f.jobs...), nil
}

func (f *fakeAPI) GetJob(_ context.Context, id string) (*models.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("GetJob"); err != nil {
		return nil, err
	}
	i := f.find(id)
	if i < 0 {
		return nil, notFound("get job")
	}
	j := f.jobs[i].Clone()
	return &j, nil
}

func (f *fakeAPI) CreateJob(_ context.Context, spec models.JobSpec) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("CreateJob"); err != nil {
		return "", err
	}
	id := fmt.Sprintf("job-%d", len(f.jobs)+1)
	f.jobs = append(f.jobs, models.Job{ID: id, Name: spec.Name, Command: spec.Command, Trigger: spec.Trigger, State: models.JobStateIdle})
	for _, p := range spec.Trigger.ParentJobIDs {
		f.edges = append(f.edges, models.DependencyEdge{ParentJobID: p, ChildJobID: id})
	}
	return id, nil
}

func (f *fakeAPI) UpdateJob(_ context.Context, id string, patch models.JobPatch) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastPatch = &patch
	if err := f.record("UpdateJob"); err != nil {
		return err
	}
	i := f.find(id)
	if i < 0 {
		return notFound("update job")
	}
	if patch.Name != nil {
		f.jobs[i].Name = *patch.Name
	}
	if patch.Description != nil {
		f.jobs[i].Description = *patch.Description
	}
	return nil
}

func (f *fakeAPI) DeleteJob(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("DeleteJob"); err != nil {
		return err
	}
	i := f.find(id)
	if i < 0 {
		return notFound("delete job")
	}
	f.jobs = append(f.jobs[:i], f.jobs[i+1:]...)
	return nil
}

func (f *fakeAPI) setState(method, id string, fn func(*models.Job)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record(method); err != nil {
		return err
	}
	i := f.find(id)
	if i < 0 {
		return notFound(method)
	}
	fn(&f.jobs[i])
	return nil
}

func (f *fakeAPI) RunJob(_ context.Context, id string) error {
	return f.setState("RunJob", id, func(j *models.Job) { j.State = models.JobStateRunning })
}

func (f *fakeAPI) PauseJob(_ context.Context, id string) error {
	return f.setState("PauseJob", id, func(j *models.Job) { j.IsPaused = true })
}

func (f *fakeAPI) ResumeJob(_ context.Context, id string) error {
	return f.setState("ResumeJob", id, func(j *models.Job) { j.IsPaused = false })
}

func (f *fakeAPI) ListExecutions(ctx context.Context, id string) ([]models.Execution, error) {
	f.mu.Lock()
	if err := f.record("ListExecutions"); err != nil {
		f.mu.Unlock()
		return nil, err
	}
	out := append([]models.Execution(nil), f.execs[id]...)
	gate := f.execGate
	f.execGate = nil
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return out, nil
}

func (f *fakeAPI) gateTaken() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.execGate == nil
}

func (f *fakeAPI) ListAllExecutions(context.Context) ([]models.Execution, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Execution
	for _, e := range f.execs {
		out = append(out, e...)
	}
	return out, f.record("ListAllExecutions")
}

func (f *fakeAPI) ExecutionLog(_ context.Context, id, ts string) (*models.ExecutionLog, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logCalls++
	if err := f.record("ExecutionLog"); err != nil {
		return nil, err
	}
	return f.logs[id+"/"+ts], nil
}

func (f *fakeAPI) ListDependencies(context.Context) ([]models.DependencyEdge, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("ListDependencies"); err != nil {
		return nil, err
	}
	return append([]models.DependencyEdge{}, f.edges...), nil
}

func (f *fakeAPI) CreateDependency(_ context.Context, e models.DependencyEdge) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("CreateDependency"); err != nil {
		return err
	}
	f.edges = append(f.edges, e)
	return nil
}

func (f *fakeAPI) DeleteDependency(_ context.Context, parent, child string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("DeleteDependency"); err != nil {
		return err
	}
	kept := []models.DependencyEdge{}
	for _, e := range f.edges {
		if e.ParentJobID != parent || e.ChildJobID != child {
			kept = append(kept, e)
		}
	}
	f.edges = kept
	return nil
}

func (f *fakeAPI) Ready(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.record("Ready")
}

var _ schedapi.Client = (*fakeAPI)(nil)

// --- fake push transport ---

type fakeTransport struct {
	mu    sync.Mutex
	h     realtime.Handler
	ready chan struct{}
	subs  []string
}

func (f *fakeTransport) Listen(ctx context.Context, h realtime.Handler) error {
	f.mu.Lock()
	f.h = h
	f.mu.Unlock()
	close(f.ready)
	<-ctx.Done()
	return nil
}

func (f *fakeTransport) Subscribe(_ context.Context, jobID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subs = append(f.subs, jobID)
	return nil
}

func (f *fakeTransport) subscriptions() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.subs...)
}

// --- fake snapshot store ---

type fakeSnapshots struct {
	mu    sync.Mutex
	snap  *store.Snapshot
	saves int
}

func (f *fakeSnapshots) SaveSnapshot(_ context.Context, snap store.Snapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snap = &snap
	f.saves++
	return nil
}

func (f *fakeSnapshots) LoadSnapshot(context.Context) (*store.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.snap == nil {
		return nil, store.ErrNotFound
	}
	s := *f.snap
	return &s, nil
}

// --- fake cache ---

type fakeCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newFakeCache() *fakeCache { return &fakeCache{data: make(map[string][]byte)} }

func (c *fakeCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value
	return nil
}

func (c *fakeCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.data[key]
	return v, ok, nil
}

func (c *fakeCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
	return nil
}

func (c *fakeCache) Ping(context.Context) error { return nil }

func (c *fakeCache) IncrWithExpiry(context.Context, string, time.Duration) (int64, error) {
	return 1, nil
}

// --- harness ---

type harness struct {
	t         *testing.T
	api       *fakeAPI
	store     *jobstore.Store
	channel   *realtime.Channel
	transport *fakeTransport
	snapshots *fakeSnapshots
	cache     *fakeCache
	svc       *Service
	done      chan struct{}
}

const flushID = "__flush__"

func newHarness(t *testing.T, api *fakeAPI, opts Options) *harness {
	t.Helper()
	h := &harness{
		t:         t,
		api:       api,
		store:     jobstore.New(),
		transport: &fakeTransport{ready: make(chan struct{})},
		snapshots: &fakeSnapshots{},
		cache:     newFakeCache(),
		done:      make(chan struct{}, 1),
	}
	h.channel = realtime.New(h.transport, h.store)
	h.svc = New(api, h.store, h.channel, h.snapshots, h.cache, opts)

	flush := h.channel.NewScope()
	flush.OnJob(models.EventJobRemoved, flushID, func(models.Event) { h.done <- struct{}{} })

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		_ = h.channel.Run(ctx)
		close(stopped)
	}()
	t.Cleanup(func() {
		cancel()
		<-stopped
	})
	select {
	case <-h.transport.ready:
	case <-time.After(2 * time.Second):
		t.Fatal("transport never started")
	}
	return h
}

func (h *harness) emit(ev models.Event) { h.transport.h.HandleEvent(ev) }

func (h *harness) flush() {
	h.t.Helper()
	h.emit(models.Event{Kind: models.EventJobRemoved, JobID: flushID})
	select {
	case <-h.done:
	case <-time.After(2 * time.Second):
		h.t.Fatal("channel did not drain")
	}
}

// eventually polls cond; background fetches finish on their own goroutines.
func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal(msg)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func job(id string, state models.JobState) models.Job {
	return models.Job{ID: id, Name: id, Command: "echo " + id, State: state,
		Trigger: models.Trigger{Type: models.TriggerSchedule, Schedule: "* * * * *"}}
}

func execution(jobID, ts string, state models.JobState) models.Execution {
	return models.Execution{JobID: jobID, Timestamp: ts, State: state}
}
