package console

import "fmt"

// StaleWriteError is returned when a write failed after the server may
// already have changed state. The affected job was refetched if Refetched
// is true; otherwise the cached copy may be out of date.
type StaleWriteError struct {
	Op        string
	JobID     string
	Refetched bool
	Err       error
}

func (e *StaleWriteError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.JobID, e.Err)
}

func (e *StaleWriteError) Unwrap() error { return e.Err }
