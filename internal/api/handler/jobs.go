package handler

import (
	"net/http"
	"strings"

	"github.com/kiranshivaraju/cronbat/internal/api/response"
	"github.com/kiranshivaraju/cronbat/internal/console"
	"github.com/kiranshivaraju/cronbat/pkg/models"
)

// NewListJobsHandler returns GET /api/v1/jobs.
func NewListJobsHandler(svc Console) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		jobs := svc.Jobs()
		response.Collection(w, jobs, response.ListMeta{
			Count:     len(jobs),
			Stale:     svc.Stale(),
			Connected: svc.Connected(),
		})
	}
}

type jobDetail struct {
	Job        *models.Job        `json:"job"`
	Executions []models.Execution `json:"executions"`
	Log        logBody            `json:"log"`
	Error      string             `json:"error,omitempty"`
}

// NewGetJobHandler returns GET /api/v1/jobs/{jobID}. It opens the job's
// view, which subscribes to its live events.
func NewGetJobHandler(svc Console) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		v, ok := openView(w, r, svc)
		if !ok {
			return
		}
		job := v.Job()
		if job == nil {
			writeError(w, r, console.ErrJobNotFound)
			return
		}

		detail := jobDetail{
			Job:        job,
			Executions: v.Executions(),
			Log:        newLogBody(v.JobID(), v.LoadDisplay(r.Context())),
		}
		if err := v.Err(); err != nil {
			detail.Error = err.Error()
		}
		response.JSON(w, detail)
	}
}

// NewCreateJobHandler returns POST /api/v1/jobs.
func NewCreateJobHandler(svc Console) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var spec models.JobSpec
		if !decodeBody(w, r, &spec) {
			return
		}
		if msg := validateJobSpec(&spec); msg != "" {
			invalid(w, msg)
			return
		}

		job, err := svc.CreateJob(r.Context(), spec)
		if err != nil {
			writeError(w, r, err)
			return
		}
		response.Created(w, job)
	}
}

// NewUpdateJobHandler returns PATCH /api/v1/jobs/{jobID}.
func NewUpdateJobHandler(svc Console) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobID, ok := pathParam(r, "jobID")
		if !ok {
			invalid(w, "job id is required")
			return
		}
		var patch models.JobPatch
		if !decodeBody(w, r, &patch) {
			return
		}
		if msg := validateJobPatch(patch); msg != "" {
			invalid(w, msg)
			return
		}

		job, err := svc.UpdateJob(r.Context(), jobID, patch)
		if err != nil {
			writeError(w, r, err)
			return
		}
		response.JSON(w, job)
	}
}

// NewDeleteJobHandler returns DELETE /api/v1/jobs/{jobID}.
func NewDeleteJobHandler(svc Console) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobID, ok := pathParam(r, "jobID")
		if !ok {
			invalid(w, "job id is required")
			return
		}
		if err := svc.DeleteJob(r.Context(), jobID); err != nil {
			writeError(w, r, err)
			return
		}
		response.NoContent(w)
	}
}

// JobAction is one of the job control operations.
type JobAction string

const (
	ActionRun    JobAction = "run"
	ActionPause  JobAction = "pause"
	ActionResume JobAction = "resume"
)

// NewJobActionHandler returns POST /api/v1/jobs/{jobID}/{action}.
func NewJobActionHandler(svc Console, action JobAction) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobID, ok := pathParam(r, "jobID")
		if !ok {
			invalid(w, "job id is required")
			return
		}

		var (
			job *models.Job
			err error
		)
		switch action {
		case ActionRun:
			job, err = svc.RunJob(r.Context(), jobID)
		case ActionPause:
			job, err = svc.PauseJob(r.Context(), jobID)
		case ActionResume:
			job, err = svc.ResumeJob(r.Context(), jobID)
		default:
			invalid(w, "unknown action "+string(action))
			return
		}
		if err != nil {
			writeError(w, r, err)
			return
		}

		if action == ActionRun {
			response.Accepted(w, job)
			return
		}
		response.JSON(w, job)
	}
}

func validateJobSpec(spec *models.JobSpec) string {
	spec.Name = strings.TrimSpace(spec.Name)
	if spec.Name == "" {
		return "name is required"
	}
	if strings.TrimSpace(spec.Command) == "" {
		return "command is required"
	}
	if spec.Trigger.Type == "" && spec.Schedule != "" {
		spec.Trigger = models.Trigger{Type: models.TriggerSchedule, Schedule: spec.Schedule}
		spec.Schedule = ""
	}
	return validateTrigger(spec.Trigger)
}

func validateJobPatch(patch models.JobPatch) string {
	if patch.Name == nil && patch.Command == nil && patch.Trigger == nil &&
		patch.Description == nil && patch.IsPaused == nil {
		return "patch must set at least one field"
	}
	if patch.Name != nil && strings.TrimSpace(*patch.Name) == "" {
		return "name must not be empty"
	}
	if patch.Command != nil && strings.TrimSpace(*patch.Command) == "" {
		return "command must not be empty"
	}
	if patch.Trigger != nil {
		return validateTrigger(*patch.Trigger)
	}
	return ""
}

func validateTrigger(t models.Trigger) string {
	switch t.Type {
	case models.TriggerSchedule:
		if strings.TrimSpace(t.Schedule) == "" {
			return "trigger.schedule is required for a schedule trigger"
		}
	case models.TriggerDependency:
		if len(t.ParentJobIDs) == 0 {
			return "trigger.parent_job_ids is required for a dependency trigger"
		}
	case "":
		return "trigger is required"
	default:
		return "trigger.type must be schedule or dependency"
	}
	return ""
}
