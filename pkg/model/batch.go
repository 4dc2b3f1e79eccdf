package model

import "time"

// RecordState is the terminal outcome of one record in a batch run.
type RecordState string

const (
	RecordSubmitted RecordState = "SUBMITTED"
	RecordDryRun    RecordState = "DRY_RUN"
	RecordFailed    RecordState = "FAILED"
)

// FailedRecord pairs a record with the error that stopped it.
type FailedRecord struct {
	Record *Record `json:"record"`
	Err    string  `json:"error"`
}

// BatchOutcome is the result of a batch run. Every input record ends up in
// exactly one of Succeeded or Failed, in samples-source order.
type BatchOutcome struct {
	ID          string         `json:"id"`
	ProjectName string         `json:"project_name"`
	ProjectDir  string         `json:"project_dir"`
	DryRun      bool           `json:"dry_run"`
	Succeeded   []*Record      `json:"succeeded"`
	Failed      []FailedRecord `json:"failed"`

	SubmittedManifest string `json:"submitted_manifest,omitempty"`
	FailedManifest    string `json:"failed_manifest,omitempty"`
	VersionFile       string `json:"version_file,omitempty"`
}

// Total returns the number of records processed.
func (o *BatchOutcome) Total() int {
	return len(o.Succeeded) + len(o.Failed)
}

// VersionInfo is the provenance descriptor written next to the manifests.
type VersionInfo struct {
	AppName  string `json:"app_name"`
	CommitID string `json:"commit_id"`
	Version  string `json:"version"`
}

// BatchRun is the persisted summary of a batch run.
type BatchRun struct {
	ID          string    `json:"id"`
	ProjectName string    `json:"project_name"`
	App         string    `json:"app"`
	Server      string    `json:"server"`
	Username    string    `json:"username"`
	DryRun      bool      `json:"dry_run"`
	Succeeded   int       `json:"succeeded"`
	Failed      int       `json:"failed"`
	ProjectDir  string    `json:"project_dir"`
	CreatedAt   time.Time `json:"created_at"`

	Records []BatchRecord `json:"records,omitempty"`
}

// BatchRecord is the persisted outcome of one record.
type BatchRecord struct {
	BatchID    string      `json:"batch_id"`
	Position   int         `json:"position"`
	SampleID   string      `json:"sample_id"`
	WorkflowID string      `json:"workflow_id,omitempty"`
	State      RecordState `json:"state"`
	Error      string      `json:"error,omitempty"`
	Record     *Record     `json:"record"`
}
