package cromwell

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/me/choppy/internal/config"
	"github.com/me/choppy/internal/logging"
	"github.com/me/choppy/pkg/model"
)

func tempFile(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestClient_Submit(t *testing.T) {
	var gotFields map[string]string
	var gotUser, gotPass string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/workflows/v1" {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		gotUser, gotPass, _ = r.BasicAuth()
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("ParseMultipartForm: %v", err)
			return
		}
		gotFields = map[string]string{}
		for k, v := range r.MultipartForm.Value {
			gotFields[k] = v[0]
		}
		for k, fhs := range r.MultipartForm.File {
			f, _ := fhs[0].Open()
			b, _ := io.ReadAll(f)
			f.Close()
			gotFields[k] = string(b)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"id":"wf-123","status":"Submitted"}`))
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL}.WithAuth("u", "p"), logging.Discard())
	status, err := c.Submit(context.Background(), &SubmitRequest{
		WorkflowPath:     tempFile(t, "workflow.wdl", "workflow w {}"),
		InputsPath:       tempFile(t, "inputs", `{"w.x": 1}`),
		DependenciesPath: tempFile(t, "tasks.zip", "PK"),
		Labels:           map[string]string{"sample-id": "s1", "username": "alice"},
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if status.ID != "wf-123" || status.Status != StatusSubmitted {
		t.Errorf("status = %+v", status)
	}
	if gotUser != "u" || gotPass != "p" {
		t.Errorf("basic auth = %q/%q", gotUser, gotPass)
	}
	if gotFields["workflowSource"] != "workflow w {}" || gotFields["workflowInputs"] != `{"w.x": 1}` || gotFields["workflowDependencies"] != "PK" {
		t.Errorf("files = %v", gotFields)
	}
	var labels map[string]string
	json.Unmarshal([]byte(gotFields["labels"]), &labels)
	if labels["sample-id"] != "s1" || labels["username"] != "alice" {
		t.Errorf("labels = %v", labels)
	}
	if _, ok := gotFields["workflowOptions"]; ok {
		t.Error("empty options must not be sent")
	}
}

func TestClient_SubmitMissingFile(t *testing.T) {
	c := NewClient(Config{BaseURL: "http://127.0.0.1:1"}, nil)
	_, err := c.Submit(context.Background(), &SubmitRequest{WorkflowPath: filepath.Join(t.TempDir(), "nope")})
	var e *Error
	if !errors.As(err, &e) || e.Op != "submit" {
		t.Errorf("err = %v, want *Error{Op: submit}", err)
	}
}

type failWriter struct{}

func (failWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestWriteJSONField(t *testing.T) {
	var body strings.Builder
	mw := multipart.NewWriter(&body)
	if err := writeJSONField(mw, "labels", map[string]string{"project": "p1"}); err != nil {
		t.Fatalf("writeJSONField: %v", err)
	}
	mw.Close()
	if !strings.Contains(body.String(), `{"project":"p1"}`) {
		t.Errorf("body missing labels JSON: %s", body.String())
	}

	if err := writeJSONField(multipart.NewWriter(io.Discard), "workflowOptions", map[string]any{"bad": make(chan int)}); err == nil || !strings.Contains(err.Error(), "encode workflowOptions") {
		t.Errorf("unencodable value: err = %v", err)
	}
	if err := writeJSONField(multipart.NewWriter(failWriter{}), "labels", map[string]string{"a": "b"}); err == nil {
		t.Error("write failure should be returned")
	}
}

func TestClient_StatusAbortMetadata(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/api/workflows/v1/wf-1/status":
			w.Write([]byte(`{"id":"wf-1","status":"Running"}`))
		case r.Method == http.MethodPost && r.URL.Path == "/api/workflows/v1/wf-1/abort":
			w.Write([]byte(`{"id":"wf-1","status":"Aborting"}`))
		case r.Method == http.MethodGet && r.URL.Path == "/api/workflows/v1/wf-1/metadata":
			w.Write([]byte(`{"id":"wf-1","workflowName":"wes","calls":{}}`))
		case r.Method == http.MethodPatch && r.URL.Path == "/api/workflows/v1/wf-1/labels":
			var in map[string]string
			json.NewDecoder(r.Body).Decode(&in)
			json.NewEncoder(w).Encode(LabelsResponse{ID: "wf-1", Labels: in})
		default:
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"status":"fail","message":"Unrecognized workflow ID: wf-2"}`))
		}
	}))
	defer srv.Close()
	c := NewClient(Config{BaseURL: srv.URL + "/"}, logging.Discard())
	ctx := context.Background()

	st, err := c.Status(ctx, "wf-1")
	if err != nil || st.Status != StatusRunning {
		t.Errorf("Status = %+v, %v", st, err)
	}
	st, err = c.Abort(ctx, "wf-1")
	if err != nil || st.Status != StatusAborting {
		t.Errorf("Abort = %+v, %v", st, err)
	}
	md, err := c.Metadata(ctx, "wf-1")
	if err != nil || md["workflowName"] != "wes" {
		t.Errorf("Metadata = %v, %v", md, err)
	}
	lr, err := c.UpdateLabels(ctx, "wf-1", map[string]string{"batch": "b1"})
	if err != nil || lr.Labels["batch"] != "b1" {
		t.Errorf("UpdateLabels = %+v, %v", lr, err)
	}

	_, err = c.Status(ctx, "wf-2")
	if !IsNotFoundError(err) {
		t.Errorf("Status(wf-2) = %v, want not found", err)
	}
	if !strings.Contains(err.Error(), "Unrecognized workflow ID") {
		t.Errorf("error should carry engine message: %v", err)
	}
}

func TestClient_Query(t *testing.T) {
	var gotLabels []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotLabels = r.URL.Query()["label"]
		w.Write([]byte(`{"results":[{"id":"a","status":"Succeeded","submission":"2024-01-02T03:04:05.000Z"},{"id":"b","status":"Failed"}],"totalResultsCount":2}`))
	}))
	defer srv.Close()

	res, err := NewClient(Config{BaseURL: srv.URL}, nil).Query(context.Background(),
		map[string]string{"username": "alice", "sample-id": "s1"})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if !reflect.DeepEqual(gotLabels, []string{"sample-id:s1", "username:alice"}) {
		t.Errorf("label params = %v", gotLabels)
	}
	if len(res) != 2 || res[0].ID != "a" || res[0].Submission == nil || res[1].Status != StatusFailed {
		t.Errorf("results = %+v", res)
	}
}

func TestParseLabels(t *testing.T) {
	tests := []struct {
		name    string
		in      []string
		want    map[string]string
		wantErr bool
	}{
		{"empty", nil, map[string]string{}, false},
		{"pairs", []string{"batch:b1", "sample-id:s1"}, map[string]string{"batch": "b1", "sample-id": "s1"}, false},
		{"value with colon", []string{"url:http://x"}, map[string]string{"url": "http://x"}, false},
		{"no colon", []string{"batch"}, nil, true},
		{"uppercase key", []string{"Batch:b1"}, nil, true},
		{"trailing dash", []string{"batch-:b1"}, nil, true},
		{"long value", []string{"k:" + strings.Repeat("v", 256)}, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseLabels(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				if !errors.Is(err, model.ErrInvalidLabel) {
					t.Errorf("err = %v, want ErrInvalidLabel", err)
				}
				return
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSampleLabelAndFormat(t *testing.T) {
	if got := SampleLabel("Sample_A"); got != "sample-id:sample_a" {
		t.Errorf("SampleLabel = %q", got)
	}
	got := FormatLabels(map[string]string{"b": "2", "a": "1"})
	if !reflect.DeepEqual(got, []string{"a:1", "b:2"}) {
		t.Errorf("FormatLabels = %v", got)
	}
}

func TestDispatcher_Submit(t *testing.T) {
	var labels map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.ParseMultipartForm(1 << 20)
		json.Unmarshal([]byte(r.FormValue("labels")), &labels)
		w.Write([]byte(`{"id":"wf-9","status":"Submitted"}`))
	}))
	defer srv.Close()

	cfg := config.Default()
	cfg.General.Username = "alice"
	cfg.Servers["lab"] = config.Server{Host: srv.URL}
	d := NewDispatcher(cfg, logging.Discard())

	wdl := tempFile(t, "workflow.wdl", "workflow w {}")
	inputs := tempFile(t, "inputs", "{}")
	id, err := d.Submit(context.Background(), wdl, inputs, "", []string{"batch:b1", "sample-id:s1"}, "", "lab")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if id != "wf-9" {
		t.Errorf("id = %q", id)
	}
	want := map[string]string{"batch": "b1", "sample-id": "s1", "username": "alice"}
	if !reflect.DeepEqual(labels, want) {
		t.Errorf("labels = %v, want %v", labels, want)
	}

	if _, err := d.Submit(context.Background(), wdl, inputs, "", nil, "", "nowhere"); !errors.Is(err, model.ErrServerNotConfigured) {
		t.Errorf("unknown server err = %v", err)
	}
	if _, err := d.Submit(context.Background(), wdl, inputs, "", []string{"bad"}, "", "lab"); !errors.Is(err, model.ErrInvalidLabel) {
		t.Errorf("bad label err = %v", err)
	}
}
