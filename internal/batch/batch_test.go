package batch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/me/choppy/internal/deps"
	"github.com/me/choppy/internal/logging"
	"github.com/me/choppy/internal/render"
	"github.com/me/choppy/internal/samples"
	"github.com/me/choppy/pkg/model"
)

const inputsTmpl = `{
  "wes.sample": "{{ sample_id }}",
  "wes.fastq": "{{ fastq }}",
  "wes.threads": {{ threads }},
  "wes.project": "{{ project_name }}"
}`

const workflowTmpl = `workflow wes { String id = "{{ sample_id }}" }`

// makeApp writes a valid app and returns its directory.
func makeApp(t *testing.T) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "wes")
	if err := os.MkdirAll(filepath.Join(dir, "tasks"), 0o755); err != nil {
		t.Fatal(err)
	}
	write(t, filepath.Join(dir, "inputs"), inputsTmpl)
	write(t, filepath.Join(dir, "workflow.wdl"), workflowTmpl)
	write(t, filepath.Join(dir, "tasks", "align.wdl"), "task align {}")
	write(t, filepath.Join(dir, "defaults"), `{"threads": 4, "fastq": "/default.fq"}`)
	return dir
}

func write(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

type fakePackager struct{ calls int }

func (p *fakePackager) Package(_ context.Context, depsDir string) (*deps.Artifact, error) {
	p.calls++
	return &deps.Artifact{Path: filepath.Join(depsDir, "..", "tasks.zip")}, nil
}

type submitCall struct {
	wdl, inputs, deps string
	labels            []string
	username, server  string
}

// fakeSubmitter fails for the sample ids in fail.
type fakeSubmitter struct {
	fail  map[string]bool
	calls []submitCall
}

func (s *fakeSubmitter) Submit(_ context.Context, wdl, inputs, depsPath string, labels []string, username, server string) (string, error) {
	s.calls = append(s.calls, submitCall{wdl, inputs, depsPath, labels, username, server})
	id := filepath.Base(filepath.Dir(wdl))
	if s.fail[id] {
		return "", fmt.Errorf("engine rejected %s", id)
	}
	return "wf-" + id, nil
}

type fakeRecorder struct{ runs []*model.BatchRun }

func (r *fakeRecorder) CreateBatch(_ context.Context, run *model.BatchRun) error {
	r.runs = append(r.runs, run)
	return nil
}

type noGit struct{}

func (noGit) Run(context.Context, string, string, ...string) (string, string, int, error) {
	return "", "fatal: not a git repository", 128, nil
}
func (noGit) LookPath(string) (string, error) { return "", errors.New("no git") }

func newTestOrchestrator(sub *fakeSubmitter, pkg *fakePackager) *Orchestrator {
	o := New(render.New(), pkg, sub, logging.Discard())
	o.SetRunner(noGit{})
	return o
}

func records(ids ...string) []*model.Record {
	out := make([]*model.Record, len(ids))
	for i, id := range ids {
		out[i] = model.RecordFromPairs("sample_id", id, "fastq", "/data/"+id+".fq")
	}
	return out
}

func sampleIDs(recs []*model.Record) []string {
	var ids []string
	for _, r := range recs {
		ids = append(ids, r.SampleID())
	}
	return ids
}

func TestRun_OneFailureDoesNotStopBatch(t *testing.T) {
	sub := &fakeSubmitter{fail: map[string]bool{"s2": true}}
	o := newTestOrchestrator(sub, &fakePackager{})
	work := t.TempDir()

	out, err := o.Run(context.Background(), Options{
		ProjectName: "proj",
		AppDir:      makeApp(t),
		Records:     records("s1", "s2"),
		Labels:      []string{"batch:b1"},
		Username:    "alice",
		Server:      "remote",
		WorkDir:     work,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := sampleIDs(out.Succeeded); !reflect.DeepEqual(got, []string{"s1"}) {
		t.Errorf("succeeded = %v", got)
	}
	if len(out.Failed) != 1 || out.Failed[0].Record.SampleID() != "s2" || !strings.Contains(out.Failed[0].Err, "engine rejected s2") {
		t.Errorf("failed = %+v", out.Failed)
	}
	if out.Succeeded[0].Value(model.WorkflowIDKey) != "wf-s1" {
		t.Errorf("workflow_id = %q", out.Succeeded[0].Value(model.WorkflowIDKey))
	}

	projectDir := filepath.Join(work, "proj")
	for _, f := range []string{SubmittedManifest, FailedManifest, VersionFile, LogFile} {
		if _, err := os.Stat(filepath.Join(projectDir, f)); err != nil {
			t.Errorf("%s not written: %v", f, err)
		}
	}
	if out.SubmittedManifest == "" || out.FailedManifest == "" {
		t.Errorf("manifest paths = %q, %q", out.SubmittedManifest, out.FailedManifest)
	}

	header, err := samples.Header(out.SubmittedManifest)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"sample_id", "fastq", "threads", "project_name", "workflow_id"}
	if !reflect.DeepEqual(header, want) {
		t.Errorf("submitted header = %v, want %v", header, want)
	}
	failed, _ := samples.Parse(out.FailedManifest)
	if failed[0].Value(model.ErrorKey) != "engine rejected s2" {
		t.Errorf("failed manifest error = %q", failed[0].Value(model.ErrorKey))
	}

	data, _ := os.ReadFile(filepath.Join(projectDir, VersionFile))
	if string(data) != `{"app_name":"","commit_id":"","version":""}` {
		t.Errorf("version = %s", data)
	}

	if len(sub.calls) != 2 {
		t.Fatalf("submit calls = %d", len(sub.calls))
	}
	c := sub.calls[0]
	if c.username != "alice" || c.server != "remote" || filepath.Base(c.deps) != "tasks.zip" {
		t.Errorf("submit call = %+v", c)
	}
	if !reflect.DeepEqual(sub.calls[0].labels, []string{"batch:b1", "sample-id:s1"}) ||
		!reflect.DeepEqual(sub.calls[1].labels, []string{"batch:b1", "sample-id:s2"}) {
		t.Errorf("labels leak across records: %v / %v", sub.calls[0].labels, sub.calls[1].labels)
	}
}

func TestRun_FailureCountsMatch(t *testing.T) {
	ids := []string{"a", "b", "c", "d", "e", "f"}
	subsets := [][]string{nil, {"a"}, {"f"}, {"b", "d"}, {"a", "c", "e"}, ids}
	for _, failing := range subsets {
		t.Run(strings.Join(failing, "+"), func(t *testing.T) {
			fail := map[string]bool{}
			for _, id := range failing {
				fail[id] = true
			}
			o := newTestOrchestrator(&fakeSubmitter{fail: fail}, &fakePackager{})
			out, err := o.Run(context.Background(), Options{
				ProjectName: "p",
				AppDir:      makeApp(t),
				Records:     records(ids...),
				WorkDir:     t.TempDir(),
			})
			if err != nil {
				t.Fatal(err)
			}
			if out.Total() != len(ids) || len(out.Failed) != len(failing) {
				t.Errorf("total %d failed %d, want %d/%d", out.Total(), len(out.Failed), len(ids), len(failing))
			}
			var gotFailed []string
			for _, f := range out.Failed {
				gotFailed = append(gotFailed, f.Record.SampleID())
			}
			if len(failing) > 0 && !reflect.DeepEqual(gotFailed, failing) {
				t.Errorf("failed order = %v, want %v", gotFailed, failing)
			}
			if (out.SubmittedManifest != "") != (len(failing) < len(ids)) {
				t.Errorf("submitted manifest = %q", out.SubmittedManifest)
			}
			if (out.FailedManifest != "") != (len(failing) > 0) {
				t.Errorf("failed manifest = %q", out.FailedManifest)
			}
		})
	}
}

func TestRun_MissingSampleIDHasNoSideEffects(t *testing.T) {
	work := t.TempDir()
	sub := &fakeSubmitter{}
	o := newTestOrchestrator(sub, &fakePackager{})

	recs := records("s1")
	recs = append(recs, model.RecordFromPairs("fastq", "/x.fq"))
	_, err := o.Run(context.Background(), Options{ProjectName: "proj", AppDir: makeApp(t), Records: recs, WorkDir: work})
	if !errors.Is(err, model.ErrMissingSampleID) {
		t.Fatalf("Run = %v, want ErrMissingSampleID", err)
	}
	if _, err := os.Stat(filepath.Join(work, "proj")); !os.IsNotExist(err) {
		t.Error("project dir must not be created")
	}
	if len(sub.calls) != 0 {
		t.Error("nothing may be submitted")
	}

	csvPath := filepath.Join(t.TempDir(), "samples.csv")
	write(t, csvPath, "id,fastq\ns1,/a.fq\n")
	_, err = o.Run(context.Background(), Options{ProjectName: "proj", AppDir: makeApp(t), SamplesPath: csvPath, WorkDir: work})
	if !errors.Is(err, model.ErrMissingSampleID) {
		t.Errorf("csv without sample_id = %v", err)
	}
}

func TestRun_DryRun(t *testing.T) {
	work := t.TempDir()
	sub := &fakeSubmitter{}
	pkg := &fakePackager{}
	o := newTestOrchestrator(sub, pkg)

	out, err := o.Run(context.Background(), Options{
		ProjectName: "proj",
		AppDir:      makeApp(t),
		Records:     records("s1", "s2"),
		DryRun:      true,
		WorkDir:     work,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(sub.calls) != 0 || pkg.calls != 0 {
		t.Errorf("dry run submitted %d, packaged %d", len(sub.calls), pkg.calls)
	}
	if len(out.Succeeded) != 2 || len(out.Failed) != 0 || !out.DryRun {
		t.Errorf("outcome = %+v", out)
	}
	for _, r := range out.Succeeded {
		if r.Has(model.WorkflowIDKey) {
			t.Errorf("%s has a workflow id in dry run", r.SampleID())
		}
	}
	for _, f := range []string{"inputs", "workflow.wdl", "defaults", "tasks/align.wdl"} {
		if _, err := os.Stat(filepath.Join(work, "proj", "s1", filepath.FromSlash(f))); err != nil {
			t.Errorf("s1/%s missing: %v", f, err)
		}
	}
}

func TestRun_DefaultsAndRendering(t *testing.T) {
	work := t.TempDir()
	o := newTestOrchestrator(&fakeSubmitter{}, &fakePackager{})

	recs := []*model.Record{model.RecordFromPairs("sample_id", "S1", "fastq", "/sample.fq")}
	out, err := o.Run(context.Background(), Options{ProjectName: "proj", AppDir: makeApp(t), Records: recs, WorkDir: work, DryRun: true})
	if err != nil {
		t.Fatal(err)
	}
	got := out.Succeeded[0]
	if got.Value("fastq") != "/sample.fq" || got.Value("threads") != "4" || got.Value("project_name") != "proj" {
		t.Errorf("merged record = %v", got.Map())
	}
	if recs[0].Has("threads") {
		t.Error("caller's record must not be mutated")
	}

	data, _ := os.ReadFile(filepath.Join(work, "proj", "S1", "inputs"))
	want := `{
  "wes.sample": "S1",
  "wes.fastq": "/sample.fq",
  "wes.threads": 4,
  "wes.project": "proj"
}`
	if string(data) != want {
		t.Errorf("rendered inputs =\n%s", data)
	}
}

func TestRun_InvalidRenderedJSONFailsOnlyThatRecord(t *testing.T) {
	o := newTestOrchestrator(&fakeSubmitter{}, &fakePackager{})
	recs := records("s1", "s2")
	recs[0].Set("threads", "four")

	out, err := o.Run(context.Background(), Options{ProjectName: "proj", AppDir: makeApp(t), Records: recs, WorkDir: t.TempDir()})
	if err != nil {
		t.Fatal(err)
	}
	if len(out.Failed) != 1 || out.Failed[0].Record.SampleID() != "s1" {
		t.Fatalf("failed = %+v", out.Failed)
	}
	if !strings.Contains(out.Failed[0].Err, "line 4") {
		t.Errorf("error should locate the problem: %s", out.Failed[0].Err)
	}
	if len(out.Succeeded) != 1 {
		t.Errorf("succeeded = %d", len(out.Succeeded))
	}
}

func TestRun_ProjectDirRules(t *testing.T) {
	work := t.TempDir()
	appDir := makeApp(t)
	o := newTestOrchestrator(&fakeSubmitter{}, &fakePackager{})
	opts := Options{ProjectName: "proj", AppDir: appDir, Records: records("s1"), WorkDir: work}

	if _, err := o.Run(context.Background(), opts); err != nil {
		t.Fatal(err)
	}
	if _, err := o.Run(context.Background(), opts); !errors.Is(err, model.ErrDirExists) {
		t.Fatalf("second run = %v, want ErrDirExists", err)
	}

	opts.Force = true
	out, err := o.Run(context.Background(), opts)
	if err != nil {
		t.Fatalf("forced run: %v", err)
	}
	if len(out.Succeeded) != 1 {
		t.Errorf("forced run outcome = %+v", out)
	}
}

func TestRun_SampleDirCollisionIsPerRecord(t *testing.T) {
	o := newTestOrchestrator(&fakeSubmitter{}, &fakePackager{})
	out, err := o.Run(context.Background(), Options{
		ProjectName: "proj",
		AppDir:      makeApp(t),
		Records:     records("s1", "s1", "s2"),
		WorkDir:     t.TempDir(),
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(out.Succeeded) != 2 || len(out.Failed) != 1 {
		t.Fatalf("succeeded %d failed %d", len(out.Succeeded), len(out.Failed))
	}
	if !strings.Contains(out.Failed[0].Err, "directory exists") {
		t.Errorf("err = %s", out.Failed[0].Err)
	}
}

func TestRun_UnsafeSampleID(t *testing.T) {
	o := newTestOrchestrator(&fakeSubmitter{}, &fakePackager{})
	work := t.TempDir()
	out, err := o.Run(context.Background(), Options{
		ProjectName: "proj",
		AppDir:      makeApp(t),
		Records:     records("../escape", "ok"),
		WorkDir:     work,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(out.Failed) != 1 || len(out.Succeeded) != 1 {
		t.Errorf("outcome = %+v", out)
	}
	if _, err := os.Stat(filepath.Join(work, "escape")); !os.IsNotExist(err) {
		t.Error("sample dir escaped the project")
	}
}

func TestRun_FatalErrors(t *testing.T) {
	o := newTestOrchestrator(&fakeSubmitter{}, &fakePackager{})
	work := t.TempDir()

	_, err := o.Run(context.Background(), Options{ProjectName: "p", AppDir: t.TempDir(), Records: records("s1"), WorkDir: work})
	if !errors.Is(err, model.ErrInvalidApp) {
		t.Errorf("invalid app = %v", err)
	}
	_, err = o.Run(context.Background(), Options{ProjectName: "p", AppDir: makeApp(t), Records: records("s1"), Labels: []string{"nocolon"}, WorkDir: work})
	if !errors.Is(err, model.ErrInvalidLabel) {
		t.Errorf("invalid label = %v", err)
	}
	_, err = o.Run(context.Background(), Options{ProjectName: "p", AppDir: makeApp(t), Records: []*model.Record{}, WorkDir: work})
	if !errors.Is(err, model.ErrNoSamples) {
		t.Errorf("no samples = %v", err)
	}
	if entries, _ := os.ReadDir(work); len(entries) != 0 {
		t.Errorf("fatal errors left files behind: %d entries", len(entries))
	}
}

func TestRun_Recorder(t *testing.T) {
	rec := &fakeRecorder{}
	o := newTestOrchestrator(&fakeSubmitter{fail: map[string]bool{"s2": true}}, &fakePackager{})
	o.SetRecorder(rec)

	out, err := o.Run(context.Background(), Options{
		ProjectName: "proj",
		AppDir:      makeApp(t),
		AppName:     "choppy/wes-latest",
		Records:     records("s1", "s2"),
		Username:    "alice",
		WorkDir:     t.TempDir(),
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(rec.runs) != 1 {
		t.Fatalf("recorded runs = %d", len(rec.runs))
	}
	run := rec.runs[0]
	if run.ID != out.ID || run.App != "choppy/wes-latest" || run.Server != "localhost" || run.Succeeded != 1 || run.Failed != 1 {
		t.Errorf("run = %+v", run)
	}
	if len(run.Records) != 2 || run.Records[0].State != model.RecordSubmitted || run.Records[1].State != model.RecordFailed || run.Records[1].Position != 1 {
		t.Errorf("records = %+v", run.Records)
	}
}

func TestRun_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	o := newTestOrchestrator(&fakeSubmitter{}, &fakePackager{})
	out, err := o.Run(ctx, Options{ProjectName: "p", AppDir: makeApp(t), Records: records("s1", "s2"), WorkDir: t.TempDir()})
	if err != nil {
		t.Fatal(err)
	}
	if len(out.Failed) != 2 {
		t.Errorf("cancelled run failed = %d, want 2", len(out.Failed))
	}
}
