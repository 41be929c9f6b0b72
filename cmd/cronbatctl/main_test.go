package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/cronbat/internal/logview"
	"github.com/kiranshivaraju/cronbat/internal/schedapi"
	"github.com/kiranshivaraju/cronbat/internal/store"
	"github.com/kiranshivaraju/cronbat/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- fakes ---

type fakeScheduler struct {
	schedapi.Client

	mu      sync.Mutex
	jobs    []models.Job
	execs   map[string][]models.Execution
	logs    map[string]string
	edges   []models.DependencyEdge
	actions []string
	err     error
}

func (f *fakeScheduler) ListJobs(context.Context) ([]models.Job, error) { return f.jobs, f.err }

func (f *fakeScheduler) GetJob(_ context.Context, id string) (*models.Job, error) {
	for _, j := range f.jobs {
		if j.ID == id {
			return &j, nil
		}
	}
	return nil, &schedapi.TransportError{Op: "get job", Status: 404, Err: schedapi.ErrNotFound}
}

func (f *fakeScheduler) record(op, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.actions = append(f.actions, op+" "+id)
	return f.err
}

func (f *fakeScheduler) RunJob(_ context.Context, id string) error    { return f.record("run", id) }
func (f *fakeScheduler) PauseJob(_ context.Context, id string) error  { return f.record("pause", id) }
func (f *fakeScheduler) ResumeJob(_ context.Context, id string) error { return f.record("resume", id) }
func (f *fakeScheduler) DeleteJob(_ context.Context, id string) error { return f.record("delete", id) }

func (f *fakeScheduler) ListExecutions(_ context.Context, id string) ([]models.Execution, error) {
	return f.execs[id], f.err
}

func (f *fakeScheduler) ListAllExecutions(context.Context) ([]models.Execution, error) {
	var all []models.Execution
	for _, e := range f.execs {
		all = append(all, e...)
	}
	return all, f.err
}

func (f *fakeScheduler) ExecutionLog(_ context.Context, id, ts string) (*models.ExecutionLog, error) {
	out, ok := f.logs[id+"/"+ts]
	if !ok {
		return nil, &schedapi.TransportError{Op: "execution log", Status: 404, Err: schedapi.ErrNotFound}
	}
	return &models.ExecutionLog{Timestamp: ts, Output: out}, nil
}

func (f *fakeScheduler) ListDependencies(context.Context) ([]models.DependencyEdge, error) {
	return f.edges, f.err
}

func (f *fakeScheduler) CreateDependency(_ context.Context, e models.DependencyEdge) error {
	return f.record("add", e.ParentJobID+">"+e.ChildJobID)
}

func (f *fakeScheduler) DeleteDependency(_ context.Context, p, c string) error {
	return f.record("rm", p+">"+c)
}

type memKeys struct {
	keys   []*models.APIKey
	closed bool
}

func (m *memKeys) CreateAPIKey(_ context.Context, k *models.APIKey) error {
	for _, existing := range m.keys {
		if existing.Name == k.Name {
			return store.ErrDuplicateKey
		}
	}
	m.keys = append(m.keys, k)
	return nil
}

func (m *memKeys) ListAPIKeys(context.Context) ([]*models.APIKey, error) { return m.keys, nil }

func (m *memKeys) RevokeAPIKey(_ context.Context, id uuid.UUID) error {
	for i, k := range m.keys {
		if k.ID == id {
			m.keys = append(m.keys[:i], m.keys[i+1:]...)
			return nil
		}
	}
	return store.ErrNotFound
}

// --- helpers ---

func newFake() *fakeScheduler {
	return &fakeScheduler{
		jobs: []models.Job{
			{ID: "extract", Name: "Extract", State: models.JobStateSuccess,
				Trigger: models.Trigger{Type: models.TriggerSchedule, Schedule: "0 3 * * *"}},
			{ID: "load", Name: "Load", State: models.JobStateIdle, IsPaused: true,
				Trigger: models.Trigger{Type: models.TriggerDependency, ParentJobIDs: []string{"extract"}}},
		},
		execs: map[string][]models.Execution{
			"extract": {
				{JobID: "extract", Timestamp: "2024-05-02T03:00:00", State: models.JobStateSuccess},
				{JobID: "extract", Timestamp: "2024-05-01T03:00:00", State: models.JobStateFailed},
			},
		},
		logs: map[string]string{
			"extract/2024-05-02T03:00:00": "rows: 42",
			"extract/2024-05-01T03:00:00": "boom\n",
		},
		edges: []models.DependencyEdge{{ParentJobID: "extract", ChildJobID: "load"}},
	}
}

func execute(t *testing.T, sched *fakeScheduler, keys *memKeys, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	a := &app{
		out:       &out,
		scheduler: func() (schedapi.Client, error) { return sched, nil },
		keys: func(context.Context) (keyStore, func(), error) {
			return keys, func() { keys.closed = true }, nil
		},
	}
	root := newRootCmd(a)
	root.SetArgs(args)
	root.SetOut(&out)
	root.SetErr(&out)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

// --- jobs ---

func TestJobsList(t *testing.T) {
	out, err := execute(t, newFake(), nil, "jobs", "list")
	require.NoError(t, err)

	assert.Contains(t, out, "ID")
	assert.Contains(t, out, "extract")
	assert.Contains(t, out, "0 3 * * *")
	assert.Contains(t, out, "idle (paused)")
	assert.Contains(t, out, "after extract")
}

func TestJobsGet(t *testing.T) {
	out, err := execute(t, newFake(), nil, "jobs", "get", "load")
	require.NoError(t, err)
	assert.Contains(t, out, `"id": "load"`)

	_, err = execute(t, newFake(), nil, "jobs", "get", "ghost")
	assert.ErrorIs(t, err, schedapi.ErrNotFound)
}

func TestActions(t *testing.T) {
	sched := newFake()
	for _, op := range []string{"run", "pause", "resume", "delete"} {
		out, err := execute(t, sched, nil, op, "extract")
		require.NoError(t, err)
		assert.Equal(t, op+": extract\n", out)
	}
	assert.Equal(t, []string{"run extract", "pause extract", "resume extract", "delete extract"}, sched.actions)
}

func TestActions_RequireJobID(t *testing.T) {
	_, err := execute(t, newFake(), nil, "run")
	assert.Error(t, err)
}

func TestSchedulerError(t *testing.T) {
	sched := newFake()
	sched.err = &schedapi.TransportError{Op: "list jobs", Err: schedapi.ErrUnreachable}

	_, err := execute(t, sched, nil, "jobs", "list")
	assert.ErrorIs(t, err, schedapi.ErrUnreachable)
}

func TestExecutions(t *testing.T) {
	out, err := execute(t, newFake(), nil, "executions", "extract")
	require.NoError(t, err)
	assert.Contains(t, out, "2024-05-02T03:00:00")
	assert.Contains(t, out, "failed")

	out, err = execute(t, newFake(), nil, "executions", "load")
	require.NoError(t, err)
	assert.Equal(t, "no executions\n", out)
}

func TestLog(t *testing.T) {
	out, err := execute(t, newFake(), nil, "log", "extract")
	require.NoError(t, err)
	assert.Equal(t, "rows: 42\n", out, "newest execution by default")

	out, err = execute(t, newFake(), nil, "log", "extract", "2024-05-01T03:00:00")
	require.NoError(t, err)
	assert.Equal(t, "boom\n", out)

	out, err = execute(t, newFake(), nil, "log", "extract", "2024-04-30T03:00:00")
	require.NoError(t, err)
	assert.Equal(t, logview.NotAvailable+"\n", out)

	_, err = execute(t, newFake(), nil, "log", "load")
	assert.EqualError(t, err, "job load has no executions")
}

func TestGraph(t *testing.T) {
	sched := newFake()
	sched.jobs = append(sched.jobs,
		models.Job{ID: "a", Trigger: models.Trigger{Type: models.TriggerDependency, ParentJobIDs: []string{"b"}}},
		models.Job{ID: "b", Trigger: models.Trigger{Type: models.TriggerDependency, ParentJobIDs: []string{"a"}}},
	)
	sched.edges = append(sched.edges,
		models.DependencyEdge{ParentJobID: "a", ChildJobID: "b"},
		models.DependencyEdge{ParentJobID: "b", ChildJobID: "a"},
	)

	out, err := execute(t, sched, nil, "graph")
	require.NoError(t, err)

	assert.Contains(t, out, "level 0: extract (Extract)")
	assert.Contains(t, out, "level 1: load (Load)")
	assert.Contains(t, out, "  extract -> load\n")
	assert.Contains(t, out, "unranked (cycle or missing parent): a, b")
}

// --- deps ---

func TestDepsListAddRm(t *testing.T) {
	sched := newFake()

	out, err := execute(t, sched, nil, "deps", "list")
	require.NoError(t, err)
	assert.Equal(t, "extract -> load\n", out)

	_, err = execute(t, sched, nil, "deps", "add", "load", "report")
	require.NoError(t, err)
	_, err = execute(t, sched, nil, "deps", "rm", "extract", "load")
	require.NoError(t, err)
	assert.Equal(t, []string{"add load>report", "rm extract>load"}, sched.actions)

	_, err = execute(t, sched, nil, "deps", "add", "load", "load")
	assert.EqualError(t, err, "job load cannot depend on itself")
}

func writeManifest(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "deps.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDepsApply(t *testing.T) {
	path := writeManifest(t, `
dependencies:
  - parent: extract
    child: load
  - parent: load
    child: report
`)

	sched := newFake()
	out, err := execute(t, sched, nil, "deps", "apply", "-f", path)
	require.NoError(t, err)
	assert.Equal(t, "+ load -> report\n", out)
	assert.Equal(t, []string{"add load>report"}, sched.actions)
}

func TestDepsApply_PruneAndDryRun(t *testing.T) {
	path := writeManifest(t, "dependencies:\n  - {parent: load, child: report}\n")

	sched := newFake()
	out, err := execute(t, sched, nil, "deps", "apply", "-f", path, "--prune", "--dry-run")
	require.NoError(t, err)
	assert.Equal(t, "+ load -> report\n- extract -> load\n", out)
	assert.Empty(t, sched.actions)

	_, err = execute(t, sched, nil, "deps", "apply", "-f", path, "--prune")
	require.NoError(t, err)
	assert.Equal(t, []string{"add load>report", "rm extract>load"}, sched.actions)
}

func TestDepsApply_UpToDate(t *testing.T) {
	path := writeManifest(t, "dependencies:\n  - {parent: extract, child: load}\n")

	out, err := execute(t, newFake(), nil, "deps", "apply", "-f", path)
	require.NoError(t, err)
	assert.Equal(t, "dependencies up to date\n", out)
}

func TestDepsApply_RequiresFile(t *testing.T) {
	_, err := execute(t, newFake(), nil, "deps", "apply")
	assert.Error(t, err)
}

func TestParseManifest(t *testing.T) {
	tests := map[string]struct {
		body string
		want []models.DependencyEdge
		err  string
	}{
		"dedupes and trims": {
			body: "dependencies:\n  - {parent: ' a ', child: b}\n  - {parent: a, child: b}\n",
			want: []models.DependencyEdge{{ParentJobID: "a", ChildJobID: "b"}},
		},
		"empty":         {body: "dependencies: []\n", err: errEmptyManifest.Error()},
		"missing child": {body: "dependencies:\n  - {parent: a}\n", err: "dependency 1: parent and child are required"},
		"self edge":     {body: "dependencies:\n  - {parent: a, child: a}\n", err: "dependency 1: job a cannot depend on itself"},
		"not yaml":      {body: "dependencies: [", err: "parse manifest"},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			got, err := parseManifest([]byte(tc.body))
			if tc.err != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tc.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestPlanDependencies(t *testing.T) {
	ab := models.DependencyEdge{ParentJobID: "a", ChildJobID: "b"}
	bc := models.DependencyEdge{ParentJobID: "b", ChildJobID: "c"}
	cd := models.DependencyEdge{ParentJobID: "c", ChildJobID: "d"}

	add, remove := planDependencies([]models.DependencyEdge{ab, bc}, []models.DependencyEdge{bc, cd}, false)
	assert.Equal(t, []models.DependencyEdge{cd}, add)
	assert.Empty(t, remove)

	add, remove = planDependencies([]models.DependencyEdge{ab, bc}, []models.DependencyEdge{bc, cd}, true)
	assert.Equal(t, []models.DependencyEdge{cd}, add)
	assert.Equal(t, []models.DependencyEdge{ab}, remove)
}

// --- keys ---

func TestKeysCreateListRevoke(t *testing.T) {
	keys := &memKeys{}

	out, err := execute(t, newFake(), keys, "keys", "create", "--name", "ci", "--scope", "read", "--scope", "operate")
	require.NoError(t, err)
	require.Len(t, keys.keys, 1)
	assert.True(t, keys.closed)
	assert.Contains(t, out, "key:    cbk_")
	assert.Contains(t, out, "scopes: read,operate")
	assert.Equal(t, []string{models.ScopeRead, models.ScopeOperate}, keys.keys[0].Scopes)

	out, err = execute(t, newFake(), keys, "keys", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "ci")
	assert.Contains(t, out, keys.keys[0].KeyPrefix)
	assert.Contains(t, out, "never")

	id := keys.keys[0].ID.String()
	out, err = execute(t, newFake(), keys, "keys", "revoke", id)
	require.NoError(t, err)
	assert.Equal(t, "revoked "+id+"\n", out)
	assert.Empty(t, keys.keys)

	_, err = execute(t, newFake(), keys, "keys", "revoke", id)
	assert.EqualError(t, err, "key "+id+" not found")
}

func TestKeysCreate_Errors(t *testing.T) {
	keys := &memKeys{}

	_, err := execute(t, newFake(), keys, "keys", "create", "--name", "ci", "--scope", "root")
	assert.Error(t, err)
	assert.Empty(t, keys.keys)

	_, err = execute(t, newFake(), keys, "keys", "create", "--name", "ci")
	require.NoError(t, err)
	_, err = execute(t, newFake(), keys, "keys", "create", "--name", "ci")
	assert.EqualError(t, err, `a key named "ci" already exists`)

	_, err = execute(t, newFake(), keys, "keys", "revoke", "not-a-uuid")
	assert.EqualError(t, err, `invalid key id "not-a-uuid"`)
}

func TestBackendErrorsSurface(t *testing.T) {
	var out bytes.Buffer
	a := &app{
		out:       &out,
		scheduler: func() (schedapi.Client, error) { return nil, errors.New("load config: SCHEDULER_BASE_URL is required") },
		keys: func(context.Context) (keyStore, func(), error) {
			return nil, nil, errors.New("load config: DATABASE_URL is required")
		},
	}

	root := newRootCmd(a)
	root.SetArgs([]string{"jobs", "list"})
	assert.EqualError(t, root.Execute(), "load config: SCHEDULER_BASE_URL is required")

	root = newRootCmd(a)
	root.SetArgs([]string{"keys", "list"})
	assert.EqualError(t, root.Execute(), "load config: DATABASE_URL is required")
}
