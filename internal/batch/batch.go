// Package batch runs a samples table through an app: one rendered,
// self-contained directory and one engine submission per record.
package batch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/me/choppy/internal/app"
	"github.com/me/choppy/internal/command"
	"github.com/me/choppy/internal/cromwell"
	"github.com/me/choppy/internal/deps"
	"github.com/me/choppy/internal/fsutil"
	"github.com/me/choppy/internal/logging"
	"github.com/me/choppy/internal/samples"
	"github.com/me/choppy/pkg/model"
)

// Files written into the project directory.
const (
	SubmittedManifest = "submitted.csv"
	FailedManifest    = "failed.csv"
	VersionFile       = "version"
	LogFile           = "choppy.log"
)

// Renderer renders an app template with a record as context.
type Renderer interface {
	Render(templateDir, templateName string, ctx map[string]string) (string, error)
}

// Packager turns a task-dependency directory into an uploadable archive.
type Packager interface {
	Package(ctx context.Context, depsDir string) (*deps.Artifact, error)
}

// Submitter sends one rendered workflow to an engine and returns its id.
type Submitter interface {
	Submit(ctx context.Context, workflowPath, inputsPath, depsPath string, labels []string, username, server string) (string, error)
}

// Recorder persists finished runs.
type Recorder interface {
	CreateBatch(ctx context.Context, run *model.BatchRun) error
}

// Options describe one batch run.
type Options struct {
	ProjectName string
	AppDir      string
	// AppName is recorded in history; defaults to the app directory name.
	AppName string

	// SamplesPath is parsed unless Records is set.
	SamplesPath string
	Records     []*model.Record

	Labels   []string
	Server   string
	Username string
	DryRun   bool
	Force    bool

	// WorkDir is where the project directory is created; "" is the
	// current directory.
	WorkDir string
}

// Orchestrator runs batches. Records are processed one at a time, in
// samples order.
type Orchestrator struct {
	renderer  Renderer
	packager  Packager
	submitter Submitter
	recorder  Recorder
	runner    command.Runner
	logger    *slog.Logger
}

// New creates an Orchestrator.
func New(r Renderer, p Packager, s Submitter, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		renderer:  r,
		packager:  p,
		submitter: s,
		runner:    command.OSRunner{},
		logger:    logger.With("component", "batch"),
	}
}

// SetRecorder makes the orchestrator save every run to rec.
func (o *Orchestrator) SetRecorder(rec Recorder) {
	o.recorder = rec
}

// SetRunner replaces the runner used for git version queries.
func (o *Orchestrator) SetRunner(r command.Runner) {
	o.runner = r
}

// Run executes a batch. It fails as a whole only when the app is invalid,
// the samples cannot be read or lack sample_id, a caller label is invalid,
// or the project directory cannot be claimed; nothing is written to disk in
// those cases except the project directory in the last. Any failure while
// handling one record moves that record to Failed and the run continues.
func (o *Orchestrator) Run(ctx context.Context, opts Options) (*model.BatchOutcome, error) {
	a, err := app.Open(opts.AppDir)
	if err != nil {
		return nil, err
	}
	if _, err := cromwell.ParseLabels(opts.Labels); err != nil {
		return nil, err
	}

	records := opts.Records
	if records == nil {
		if records, err = samples.Parse(opts.SamplesPath); err != nil {
			return nil, err
		}
	}
	if err := samples.Check(records); err != nil {
		return nil, err
	}

	defaults, err := app.LoadDefaults(a)
	if err != nil {
		return nil, err
	}

	workDir := opts.WorkDir
	if workDir == "" {
		if workDir, err = os.Getwd(); err != nil {
			return nil, err
		}
	}
	projectDir, err := filepath.Abs(filepath.Join(workDir, opts.ProjectName))
	if err != nil {
		return nil, err
	}
	if err := fsutil.CheckDir(projectDir, opts.Force); err != nil {
		return nil, err
	}

	logger, closeLog, err := logging.Tee(o.logger, filepath.Join(projectDir, LogFile))
	if err != nil {
		return nil, err
	}
	defer closeLog()

	outcome := &model.BatchOutcome{
		ID:          uuid.New().String(),
		ProjectName: opts.ProjectName,
		ProjectDir:  projectDir,
		DryRun:      opts.DryRun,
		Succeeded:   []*model.Record{},
		Failed:      []model.FailedRecord{},
	}
	logger = logger.With("batch_id", outcome.ID, "project", opts.ProjectName)
	logger.Info("batch started", "app", a.Name, "records", len(records), "dry_run", opts.DryRun, "server", opts.Server)

	history := make([]model.BatchRecord, 0, len(records))
	j := &job{o: o, app: a, defaults: defaults, opts: opts, projectDir: projectDir, logger: logger}
	for i, rec := range records {
		out, err := j.process(ctx, rec)
		entry := model.BatchRecord{
			BatchID:    outcome.ID,
			Position:   i,
			SampleID:   rec.SampleID(),
			WorkflowID: out.Value(model.WorkflowIDKey),
			Record:     out,
		}
		switch {
		case err != nil:
			logger.Error("sample failed", "sample_id", rec.SampleID(), "error", err)
			outcome.Failed = append(outcome.Failed, model.FailedRecord{Record: out, Err: err.Error()})
			entry.State, entry.Error = model.RecordFailed, err.Error()
		case opts.DryRun:
			logger.Info("sample prepared", "sample_id", rec.SampleID())
			outcome.Succeeded = append(outcome.Succeeded, out)
			entry.State = model.RecordDryRun
		default:
			logger.Info("sample submitted", "sample_id", rec.SampleID(), "workflow_id", entry.WorkflowID)
			outcome.Succeeded = append(outcome.Succeeded, out)
			entry.State = model.RecordSubmitted
		}
		history = append(history, entry)
	}

	if err := o.finish(ctx, a, outcome, logger); err != nil {
		return outcome, err
	}
	o.record(ctx, a, opts, outcome, history, logger)

	logger.Info("batch finished",
		"succeeded", len(outcome.Succeeded),
		"failed", len(outcome.Failed),
		"submitted_manifest", outcome.SubmittedManifest,
		"failed_manifest", outcome.FailedManifest,
	)
	return outcome, nil
}

// finish writes the manifests and the version descriptor.
func (o *Orchestrator) finish(ctx context.Context, a *app.App, outcome *model.BatchOutcome, logger *slog.Logger) error {
	submitted := filepath.Join(outcome.ProjectDir, SubmittedManifest)
	ok, err := samples.WriteManifest(submitted, outcome.Succeeded)
	if err != nil {
		return fmt.Errorf("write submitted manifest: %w", err)
	}
	if ok {
		outcome.SubmittedManifest = submitted
	}

	failedRows := make([]*model.Record, len(outcome.Failed))
	for i, f := range outcome.Failed {
		row := f.Record.Clone()
		row.Set(model.ErrorKey, f.Err)
		failedRows[i] = row
	}
	failed := filepath.Join(outcome.ProjectDir, FailedManifest)
	ok, err = samples.WriteManifest(failed, failedRows)
	if err != nil {
		return fmt.Errorf("write failed manifest: %w", err)
	}
	if ok {
		outcome.FailedManifest = failed
	}

	version := app.Version(ctx, a.Dir, o.runner, logger)
	data, err := json.Marshal(version)
	if err != nil {
		return err
	}
	outcome.VersionFile = filepath.Join(outcome.ProjectDir, VersionFile)
	if err := fsutil.WriteFile(outcome.VersionFile, data); err != nil {
		return fmt.Errorf("write version: %w", err)
	}
	return nil
}

// record saves the run when a recorder is configured. Failures are logged.
func (o *Orchestrator) record(ctx context.Context, a *app.App, opts Options, outcome *model.BatchOutcome, history []model.BatchRecord, logger *slog.Logger) {
	if o.recorder == nil {
		return
	}
	name := opts.AppName
	if name == "" {
		name = a.Name
	}
	server := opts.Server
	if server == "" {
		server = "localhost"
	}
	run := &model.BatchRun{
		ID:          outcome.ID,
		ProjectName: outcome.ProjectName,
		App:         name,
		Server:      server,
		Username:    opts.Username,
		DryRun:      opts.DryRun,
		Succeeded:   len(outcome.Succeeded),
		Failed:      len(outcome.Failed),
		ProjectDir:  outcome.ProjectDir,
		CreatedAt:   time.Now().UTC(),
		Records:     history,
	}
	if err := o.recorder.CreateBatch(ctx, run); err != nil {
		logger.Warn("failed to record batch history", "error", err)
	}
}

