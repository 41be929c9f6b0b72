package handler

import (
	"net/http"
	"strings"

	"github.com/kiranshivaraju/cronbat/internal/api/response"
	"github.com/kiranshivaraju/cronbat/pkg/models"
)

type graphNode struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	State    models.JobState `json:"state"`
	IsPaused bool            `json:"is_paused"`
	Level    int             `json:"level"`
	Degraded bool            `json:"degraded,omitempty"`
}

type graphBody struct {
	Levels     [][]graphNode           `json:"levels"`
	Connectors []models.DependencyEdge `json:"connectors"`
	Degraded   []string                `json:"degraded"`
}

// NewGraphHandler returns GET /api/v1/graph: the jobs grouped into levels
// and the connectors between adjacent levels.
func NewGraphHandler(svc Console) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		l := svc.Layout()

		degraded := make(map[string]bool, len(l.Degraded))
		for _, id := range l.Degraded {
			degraded[id] = true
		}

		body := graphBody{
			Levels:     make([][]graphNode, 0, len(l.Levels)),
			Connectors: l.Connectors,
			Degraded:   l.Degraded,
		}
		for i, ids := range l.Levels {
			level := make([]graphNode, 0, len(ids))
			for _, id := range ids {
				n := graphNode{ID: id, Name: id, Level: i, Degraded: degraded[id]}
				if job := svc.Job(id); job != nil {
					n.Name = job.Name
					n.State = job.State
					n.IsPaused = job.IsPaused
				}
				level = append(level, n)
			}
			body.Levels = append(body.Levels, level)
		}
		if body.Connectors == nil {
			body.Connectors = []models.DependencyEdge{}
		}
		if body.Degraded == nil {
			body.Degraded = []string{}
		}
		response.JSON(w, body)
	}
}

// NewListDependenciesHandler returns GET /api/v1/dependencies.
func NewListDependenciesHandler(svc Console) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		edges := svc.Edges()
		if edges == nil {
			edges = []models.DependencyEdge{}
		}
		response.Collection(w, edges, response.ListMeta{
			Count:     len(edges),
			Stale:     svc.Stale(),
			Connected: svc.Connected(),
		})
	}
}

// NewCreateDependencyHandler returns POST /api/v1/dependencies.
func NewCreateDependencyHandler(svc Console) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var edge models.DependencyEdge
		if !decodeBody(w, r, &edge) {
			return
		}
		edge.ParentJobID = strings.TrimSpace(edge.ParentJobID)
		edge.ChildJobID = strings.TrimSpace(edge.ChildJobID)
		switch {
		case edge.ParentJobID == "" || edge.ChildJobID == "":
			invalid(w, "parent_job_id and child_job_id are required")
			return
		case edge.ParentJobID == edge.ChildJobID:
			invalid(w, "a job cannot depend on itself")
			return
		}

		if err := svc.CreateDependency(r.Context(), edge); err != nil {
			writeError(w, r, err)
			return
		}
		response.Created(w, edge)
	}
}

// NewDeleteDependencyHandler returns
// DELETE /api/v1/dependencies/{parentID}/{childID}.
func NewDeleteDependencyHandler(svc Console) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		parentID, ok := pathParam(r, "parentID")
		if !ok {
			invalid(w, "parent id is required")
			return
		}
		childID, ok := pathParam(r, "childID")
		if !ok {
			invalid(w, "child id is required")
			return
		}
		if err := svc.DeleteDependency(r.Context(), parentID, childID); err != nil {
			writeError(w, r, err)
			return
		}
		response.NoContent(w)
	}
}
