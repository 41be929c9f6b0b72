package models

import "time"

// Execution is one run of a job. JobID and Timestamp together identify it;
// the timestamp string is used verbatim as the key in URLs and log maps.
type Execution struct {
	JobID     string   `json:"job_id"`
	JobName   string   `json:"job_name,omitempty"`
	Timestamp string   `json:"timestamp"`
	State     JobState `json:"state"`
	ExitCode  *int     `json:"exit_code,omitempty"`
	Duration  *float64 `json:"duration,omitempty"`
	LogFile   string   `json:"log_file,omitempty"`
}

// StartedAt parses the execution timestamp. Zero time if unparseable.
func (e Execution) StartedAt() time.Time {
	t, err := ParseTime(e.Timestamp)
	if err != nil {
		return time.Time{}
	}
	return t
}

// ExecutionLog is the persisted output of one finished execution.
type ExecutionLog struct {
	Timestamp string   `json:"timestamp"`
	Output    string   `json:"output"`
	ExitCode  *int     `json:"exit_code,omitempty"`
	Duration  *float64 `json:"duration,omitempty"`
}

// LogLine is one line of live process output received over the push channel.
type LogLine struct {
	JobID string `json:"id"`
	Line  string `json:"line"`
}
