// Package models contains the data shapes shared by the cronbat console,
// the scheduler REST client and the push channel.
package models

import (
	"encoding/json"
	"strings"
	"time"
)

// JobState is the scheduler-reported state of a job.
type JobState string

const (
	JobStateIdle    JobState = "idle"
	JobStateRunning JobState = "running"
	JobStateSuccess JobState = "success"
	JobStateFailed  JobState = "failed"
)

// Valid reports whether s is one of the known job states.
func (s JobState) Valid() bool {
	switch s {
	case JobStateIdle, JobStateRunning, JobStateSuccess, JobStateFailed:
		return true
	}
	return false
}

// Terminal reports whether s is a finished execution state.
func (s JobState) Terminal() bool {
	return s == JobStateSuccess || s == JobStateFailed
}

const (
	TriggerSchedule   = "schedule"
	TriggerDependency = "dependency"
)

// Trigger decides when the scheduler starts a job: on a cron schedule, or
// after every parent job listed in ParentJobIDs succeeds.
type Trigger struct {
	Type         string   `json:"type"`
	Schedule     string   `json:"schedule,omitempty"`
	ParentJobIDs []string `json:"parent_job_ids,omitempty"`
}

// Job is the client-side copy of a scheduler job. The server owns it.
type Job struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Command     string   `json:"command"`
	Trigger     Trigger  `json:"trigger"`
	Description string   `json:"description,omitempty"`
	State       JobState `json:"state"`
	IsPaused    bool     `json:"is_paused"`
	LastRun     *Time    `json:"last_run,omitempty"`
	NextRun     *Time    `json:"next_run,omitempty"`
}

// UnmarshalJSON accepts the legacy top-level "schedule" field as a
// schedule trigger and defaults an empty state to idle.
func (j *Job) UnmarshalJSON(data []byte) error {
	type plain Job
	var aux struct {
		plain
		Schedule string `json:"schedule"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*j = Job(aux.plain)
	if j.Trigger.Type == "" && aux.Schedule != "" {
		j.Trigger = Trigger{Type: TriggerSchedule, Schedule: aux.Schedule}
	}
	if j.State == "" {
		j.State = JobStateIdle
	}
	return nil
}

// Clone returns a deep copy of j.
func (j Job) Clone() Job {
	c := j
	if j.Trigger.ParentJobIDs != nil {
		c.Trigger.ParentJobIDs = append([]string(nil), j.Trigger.ParentJobIDs...)
	}
	if j.LastRun != nil {
		t := *j.LastRun
		c.LastRun = &t
	}
	if j.NextRun != nil {
		t := *j.NextRun
		c.NextRun = &t
	}
	return c
}

// JobSpec is the body of POST /jobs.
type JobSpec struct {
	Name        string  `json:"name"                  yaml:"name"`
	Command     string  `json:"command"               yaml:"command"`
	Trigger     Trigger `json:"trigger"               yaml:"trigger"`
	Schedule    string  `json:"schedule,omitempty"    yaml:"-"`
	Description string  `json:"description,omitempty" yaml:"description"`
}

// JobPatch is the body of PATCH /jobs/{id}. Nil fields are left untouched.
type JobPatch struct {
	Name        *string  `json:"name,omitempty"`
	Command     *string  `json:"command,omitempty"`
	Trigger     *Trigger `json:"trigger,omitempty"`
	Description *string  `json:"description,omitempty"`
	IsPaused    *bool    `json:"is_paused,omitempty"`
}

// Time is a timestamp that tolerates the zone-less ISO-8601 form the
// scheduler writes in addition to RFC 3339.
type Time struct {
	time.Time
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

// ParseTime parses s with each accepted layout in turn.
func ParseTime(s string) (time.Time, error) {
	var firstErr error
	for _, layout := range timeLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return time.Time{}, firstErr
}

func (t *Time) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		t.Time = time.Time{}
		return nil
	}
	parsed, err := ParseTime(s)
	if err != nil {
		return err
	}
	t.Time = parsed
	return nil
}

func (t Time) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Time.Format(time.RFC3339Nano))
}
