package handler

import (
	"errors"
	"net/http"

	"github.com/kiranshivaraju/cronbat/internal/api/response"
	"github.com/kiranshivaraju/cronbat/internal/console"
	"github.com/kiranshivaraju/cronbat/internal/logview"
)

type logBody struct {
	JobID     string `json:"job_id"`
	Text      string `json:"text"`
	Source    string `json:"source"`
	Timestamp string `json:"timestamp,omitempty"`
	Available bool   `json:"available"`
	Error     string `json:"error,omitempty"`
}

func newLogBody(jobID string, d logview.Display) logBody {
	b := logBody{
		JobID:     jobID,
		Text:      d.Text,
		Source:    d.Source.String(),
		Timestamp: d.Timestamp,
		Available: d.Available(),
	}
	if d.Err != nil {
		b.Error = d.Err.Error()
	}
	return b
}

func openView(w http.ResponseWriter, r *http.Request, svc Console) (*console.JobView, bool) {
	jobID, ok := pathParam(r, "jobID")
	if !ok {
		invalid(w, "job id is required")
		return nil, false
	}
	v, err := svc.View(r.Context(), jobID)
	if err != nil {
		writeError(w, r, err)
		return nil, false
	}
	return v, true
}

// NewJobLogHandler returns GET /api/v1/jobs/{jobID}/log: the live output
// while the job runs, the selected execution's persisted log otherwise.
func NewJobLogHandler(svc Console) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		v, ok := openView(w, r, svc)
		if !ok {
			return
		}
		response.JSON(w, newLogBody(v.JobID(), v.LoadDisplay(r.Context())))
	}
}

// NewJobExecutionsHandler returns GET /api/v1/jobs/{jobID}/executions in
// display order, the selected execution first.
func NewJobExecutionsHandler(svc Console) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		v, ok := openView(w, r, svc)
		if !ok {
			return
		}
		execs := v.Executions()
		response.Collection(w, execs, response.ListMeta{
			Count:     len(execs),
			Stale:     svc.Stale(),
			Connected: svc.Connected(),
		})
	}
}

// NewSelectExecutionHandler returns
// POST /api/v1/jobs/{jobID}/executions/{timestamp}/select.
func NewSelectExecutionHandler(svc Console) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ts, ok := pathParam(r, "timestamp")
		if !ok {
			invalid(w, "timestamp is required")
			return
		}
		v, ok := openView(w, r, svc)
		if !ok {
			return
		}
		err := v.SelectExecution(r.Context(), ts)
		if errors.Is(err, logview.ErrUnknownExecution) {
			writeError(w, r, err)
			return
		}
		response.JSON(w, newLogBody(v.JobID(), v.Display()))
	}
}

// NewAllExecutionsHandler returns GET /api/v1/executions across every job.
func NewAllExecutionsHandler(svc Console) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		execs, err := svc.AllExecutions(r.Context())
		if err != nil {
			writeError(w, r, err)
			return
		}
		response.Collection(w, execs, response.ListMeta{
			Count:     len(execs),
			Stale:     svc.Stale(),
			Connected: svc.Connected(),
		})
	}
}
