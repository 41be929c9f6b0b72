package models

// DependencyEdge declares that ChildJobID runs after ParentJobID succeeds.
type DependencyEdge struct {
	ParentJobID string `json:"parent_job_id" yaml:"parent"`
	ChildJobID  string `json:"child_job_id"  yaml:"child"`
}

// Touches reports whether the edge references jobID at either end.
func (e DependencyEdge) Touches(jobID string) bool {
	return e.ParentJobID == jobID || e.ChildJobID == jobID
}
