package jobstore_test

import (
	"testing"

	"github.com/kiranshivaraju/cronbat/internal/jobstore"
	"github.com/kiranshivaraju/cronbat/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func job(id string, state models.JobState) models.Job {
	return models.Job{ID: id, Name: "job-" + id, Command: "echo " + id, State: state}
}

func seeded(t *testing.T) *jobstore.Store {
	t.Helper()
	s := jobstore.New()
	s.ReplaceSnapshot([]models.Job{job("a", models.JobStateIdle), job("b", models.JobStateSuccess)})
	s.ReplaceEdges([]models.DependencyEdge{
		{ParentJobID: "a", ChildJobID: "b"},
		{ParentJobID: "b", ChildJobID: "c"},
	})
	return s
}

func TestReplaceSnapshot_DoesNotMerge(t *testing.T) {
	s := seeded(t)
	j := job("a", models.JobStateFailed)
	j.Description = ""
	s.ReplaceSnapshot([]models.Job{j})

	require.Equal(t, 1, s.Len())
	assert.Nil(t, s.Select("b"))
	got := s.Select("a")
	require.NotNil(t, got)
	assert.Equal(t, models.JobStateFailed, got.State)
}

func TestSelect_UnknownID(t *testing.T) {
	s := jobstore.New()
	assert.Nil(t, s.Select("missing"))
}

func TestSelect_ReturnsCopy(t *testing.T) {
	s := seeded(t)
	got := s.Select("a")
	got.State = models.JobStateRunning
	assert.Equal(t, models.JobStateIdle, s.Select("a").State)
}

func TestApplyEvent_JobsReplaces(t *testing.T) {
	s := seeded(t)
	changed := s.ApplyEvent(models.Event{Kind: models.EventJobs, Jobs: []models.Job{job("z", models.JobStateIdle)}})
	assert.True(t, changed)
	assert.Equal(t, []string{"z"}, ids(s.Jobs()))
}

func TestApplyEvent_JobAdded(t *testing.T) {
	s := seeded(t)
	c := job("c", models.JobStateIdle)

	assert.True(t, s.ApplyEvent(models.Event{Kind: models.EventJobAdded, Job: &c}))
	assert.False(t, s.ApplyEvent(models.Event{Kind: models.EventJobAdded, Job: &c}), "already present")
	assert.Equal(t, []string{"a", "b", "c"}, ids(s.Jobs()))
}

func TestApplyEvent_JobRemovedDropsEdges(t *testing.T) {
	s := seeded(t)

	assert.True(t, s.ApplyEvent(models.Event{Kind: models.EventJobRemoved, JobID: "b"}))
	assert.Equal(t, []string{"a"}, ids(s.Jobs()))
	assert.Empty(t, s.Edges())
	assert.NotNil(t, s.Select("a"))
}

func TestApplyEvent_RemoveAbsentIsNoop(t *testing.T) {
	s := seeded(t)
	before := s.Jobs()
	edgesBefore := s.Edges()

	var notified int
	s.OnChange(func(jobstore.Change) { notified++ })

	assert.False(t, s.ApplyEvent(models.Event{Kind: models.EventJobRemoved, JobID: "nope"}))
	assert.Equal(t, before, s.Jobs())
	assert.Equal(t, edgesBefore, s.Edges())
	assert.Zero(t, notified)
}

func TestApplyEvent_StateChangedIdempotent(t *testing.T) {
	s := seeded(t)
	ev := models.Event{Kind: models.EventJobStateChanged, JobID: "a", State: models.JobStateFailed}

	assert.True(t, s.ApplyEvent(ev))
	once := s.Jobs()
	assert.False(t, s.ApplyEvent(ev))
	assert.Equal(t, once, s.Jobs())
	assert.Equal(t, models.JobStateFailed, s.Select("a").State)
}

func TestApplyEvent_StateChangedPatchesOnlyState(t *testing.T) {
	s := jobstore.New()
	j := job("a", models.JobStateIdle)
	j.Description = "nightly backup"
	j.IsPaused = true
	s.ReplaceSnapshot([]models.Job{j})

	s.ApplyEvent(models.Event{Kind: models.EventJobStateChanged, JobID: "a", State: models.JobStateRunning})

	got := s.Select("a")
	assert.Equal(t, models.JobStateRunning, got.State)
	assert.Equal(t, "nightly backup", got.Description)
	assert.True(t, got.IsPaused)
}

func TestApplyEvent_StateChangedUnknownJob(t *testing.T) {
	s := seeded(t)
	assert.False(t, s.ApplyEvent(models.Event{Kind: models.EventJobStateChanged, JobID: "x", State: models.JobStateRunning}))
}

func TestApplyEvent_JobDetailsReplacesJob(t *testing.T) {
	s := seeded(t)
	d := job("a", models.JobStateRunning)
	d.Description = "fresh"

	assert.True(t, s.ApplyEvent(models.Event{Kind: models.EventJobDetails, Job: &d}))
	assert.Equal(t, "fresh", s.Select("a").Description)
	assert.Equal(t, []string{"a", "b"}, ids(s.Jobs()), "position is kept")
}

func TestApplyEvent_LogAndCompletedIgnored(t *testing.T) {
	s := seeded(t)
	assert.False(t, s.ApplyEvent(models.Event{Kind: models.EventJobLog, JobID: "a", Line: "x"}))
	assert.False(t, s.ApplyEvent(models.Event{Kind: models.EventJobCompleted, JobID: "a"}))
}

func TestOnChange_ReportsSetChanges(t *testing.T) {
	s := seeded(t)
	var changes []jobstore.Change
	cancel := s.OnChange(func(c jobstore.Change) { changes = append(changes, c) })

	s.ApplyEvent(models.Event{Kind: models.EventJobStateChanged, JobID: "a", State: models.JobStateRunning})
	c := job("c", models.JobStateIdle)
	s.ApplyEvent(models.Event{Kind: models.EventJobAdded, Job: &c})
	cancel()
	s.ApplyEvent(models.Event{Kind: models.EventJobRemoved, JobID: "c"})

	require.Len(t, changes, 2)
	assert.False(t, changes[0].SetChanged)
	assert.Equal(t, "a", changes[0].JobID)
	assert.True(t, changes[1].SetChanged)
}

func TestUpsert(t *testing.T) {
	s := seeded(t)
	var last jobstore.Change
	s.OnChange(func(c jobstore.Change) { last = c })

	s.Upsert(job("a", models.JobStateSuccess))
	assert.False(t, last.SetChanged)

	s.Upsert(job("n", models.JobStateIdle))
	assert.True(t, last.SetChanged)
	assert.Equal(t, []string{"a", "b", "n"}, ids(s.Jobs()))
}

func ids(jobs []models.Job) []string {
	out := make([]string, len(jobs))
	for i, j := range jobs {
		out[i] = j.ID
	}
	return out
}
