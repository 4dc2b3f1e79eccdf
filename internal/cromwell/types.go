package cromwell

import "time"

// Workflow states reported by the engine.
const (
	StatusSubmitted = "Submitted"
	StatusRunning   = "Running"
	StatusAborting  = "Aborting"
	StatusAborted   = "Aborted"
	StatusSucceeded = "Succeeded"
	StatusFailed    = "Failed"
)

// WorkflowStatus is the engine's answer to submit, status and abort.
type WorkflowStatus struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// SubmitRequest describes one workflow submission. Paths point at files on
// local disk; DependenciesPath may be empty.
type SubmitRequest struct {
	WorkflowPath     string
	InputsPath       string
	DependenciesPath string
	Labels           map[string]string
	Options          map[string]string
}

// LabelsResponse is returned by a label update.
type LabelsResponse struct {
	ID     string            `json:"id"`
	Labels map[string]string `json:"labels"`
}

// QueryResult is one row of a workflow query.
type QueryResult struct {
	ID         string     `json:"id"`
	Name       string     `json:"name,omitempty"`
	Status     string     `json:"status"`
	Submission *time.Time `json:"submission,omitempty"`
	Start      *time.Time `json:"start,omitempty"`
	End        *time.Time `json:"end,omitempty"`
}

type queryResponse struct {
	Results           []QueryResult `json:"results"`
	TotalResultsCount int           `json:"totalResultsCount"`
}
