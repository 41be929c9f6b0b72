package models

// EventKind names a push-channel event.
type EventKind string

// Global events reach every connected client.
const (
	EventJobs            EventKind = "jobs"
	EventJobAdded        EventKind = "job_added"
	EventJobRemoved      EventKind = "job_removed"
	EventJobStateChanged EventKind = "job_state_changed"
)

// Per-job events only arrive after subscribing to the job.
const (
	EventJobDetails   EventKind = "job_details"
	EventJobLog       EventKind = "job_log"
	EventJobCompleted EventKind = "job_completed"
)

// EventSubscribeToJob is the control message a client emits to start
// receiving per-job events.
const EventSubscribeToJob EventKind = "subscribe_to_job"

// PerJob reports whether k is only delivered to subscribers of one job.
func (k EventKind) PerJob() bool {
	switch k {
	case EventJobDetails, EventJobLog, EventJobCompleted:
		return true
	}
	return false
}

// Event is a decoded push event. Which payload fields are set depends on
// Kind: Jobs for "jobs", Job for "job_added" and "job_details", JobID for
// the rest, plus State or Line where the kind carries one.
type Event struct {
	Kind  EventKind
	JobID string
	Jobs  []Job
	Job   *Job
	State JobState
	Line  string
}
