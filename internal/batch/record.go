package batch

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/me/choppy/internal/app"
	"github.com/me/choppy/internal/cromwell"
	"github.com/me/choppy/internal/fsutil"
	"github.com/me/choppy/internal/jsondoc"
	"github.com/me/choppy/pkg/model"
)

// job carries the read-only state shared by every record of one run.
type job struct {
	o          *Orchestrator
	app        *app.App
	defaults   *app.DefaultVars
	opts       Options
	projectDir string
	logger     *slog.Logger
}

// process runs one record through merge, render, stage and submit. The
// returned record is the working copy as far as it got, even on error.
func (j *job) process(ctx context.Context, rec *model.Record) (*model.Record, error) {
	out := rec.Clone()
	if err := ctx.Err(); err != nil {
		return out, err
	}

	for _, key := range j.defaults.Keys() {
		if !out.Has(key) {
			out.Set(key, j.defaults.String(key))
		}
	}

	sampleID := out.SampleID()
	if err := checkSampleID(sampleID); err != nil {
		return out, err
	}
	sampleDir := filepath.Join(j.projectDir, sampleID)
	if err := fsutil.CheckDir(sampleDir, j.opts.Force); err != nil {
		return out, err
	}

	out.Set(model.ProjectNameKey, j.opts.ProjectName)
	tmplCtx := out.Map()

	inputs, err := j.o.renderer.Render(j.app.Dir, app.InputsTemplate, tmplCtx)
	if err != nil {
		return out, fmt.Errorf("render %s: %w", app.InputsTemplate, err)
	}
	if err := jsondoc.Check([]byte(inputs)); err != nil {
		if se, ok := err.(*jsondoc.SyntaxError); ok {
			j.logger.Error("rendered inputs are not valid JSON", "sample_id", sampleID, "diagnostic", se.Diagnostic())
		}
		return out, fmt.Errorf("rendered %s: %w", app.InputsTemplate, err)
	}
	inputsPath := filepath.Join(sampleDir, app.InputsTemplate)
	if err := fsutil.WriteFile(inputsPath, []byte(inputs)); err != nil {
		return out, err
	}

	wdl, err := j.o.renderer.Render(j.app.Dir, app.WorkflowTemplate, tmplCtx)
	if err != nil {
		return out, fmt.Errorf("render %s: %w", app.WorkflowTemplate, err)
	}
	wdlPath := filepath.Join(sampleDir, app.WorkflowTemplate)
	if err := fsutil.WriteFile(wdlPath, []byte(wdl)); err != nil {
		return out, err
	}

	if err := fsutil.Replace(j.app.DefaultsPath(), filepath.Join(sampleDir, app.DefaultsFile)); err != nil {
		return out, fmt.Errorf("stage defaults: %w", err)
	}
	if err := fsutil.Replace(j.app.TasksPath(), filepath.Join(sampleDir, app.TasksDir)); err != nil {
		return out, fmt.Errorf("stage tasks: %w", err)
	}

	labels := make([]string, 0, len(j.opts.Labels)+1)
	labels = append(labels, j.opts.Labels...)
	labels = append(labels, cromwell.SampleLabel(sampleID))

	if j.opts.DryRun {
		return out, nil
	}

	art, err := j.o.packager.Package(ctx, j.app.TasksPath())
	if err != nil {
		return out, fmt.Errorf("package dependencies: %w", err)
	}
	defer art.Cleanup()

	id, err := j.o.submitter.Submit(ctx, wdlPath, inputsPath, art.Path, labels, j.opts.Username, j.opts.Server)
	if err != nil {
		return out, err
	}
	out.Set(model.WorkflowIDKey, id)
	return out, nil
}

// checkSampleID rejects ids that cannot name a directory under the project.
func checkSampleID(id string) error {
	if id == "" || id == "." || id == ".." || strings.ContainsAny(id, `/\`) {
		return fmt.Errorf("sample_id %q cannot be used as a directory name", id)
	}
	if err := cromwell.ValidateLabel(cromwell.SampleIDLabel, strings.ToLower(id)); err != nil {
		return err
	}
	return nil
}
