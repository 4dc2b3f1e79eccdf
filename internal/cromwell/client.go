package cromwell

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Client talks to one Cromwell server.
type Client struct {
	httpClient *http.Client
	config     Config
	logger     *slog.Logger
}

// NewClient creates a client for the engine described by config.
func NewClient(config Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if config.Timeout == 0 {
		config.Timeout = DefaultTimeout
	}
	return &Client{
		httpClient: &http.Client{Timeout: config.Timeout},
		config:     config,
		logger:     logger.With("component", "cromwell-client", "url", config.BaseURL),
	}
}

// BaseURL returns the engine URL the client was built for.
func (c *Client) BaseURL() string {
	return c.config.BaseURL
}

func (c *Client) endpoint(parts ...string) string {
	return strings.TrimRight(c.config.BaseURL, "/") + APIPrefix + strings.Join(parts, "")
}

// Submit uploads a workflow, its inputs and optional dependency zip.
func (c *Client) Submit(ctx context.Context, req *SubmitRequest) (*WorkflowStatus, error) {
	const op = "submit"

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	files := []struct{ field, path string }{
		{"workflowSource", req.WorkflowPath},
		{"workflowInputs", req.InputsPath},
		{"workflowDependencies", req.DependenciesPath},
	}
	for _, f := range files {
		if f.path == "" {
			continue
		}
		if err := attachFile(mw, f.field, f.path); err != nil {
			return nil, wrapError(op, err)
		}
	}
	if len(req.Labels) > 0 {
		if err := writeJSONField(mw, "labels", req.Labels); err != nil {
			return nil, wrapError(op, err)
		}
	}
	if len(req.Options) > 0 {
		if err := writeJSONField(mw, "workflowOptions", req.Options); err != nil {
			return nil, wrapError(op, err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, wrapError(op, err)
	}

	var status WorkflowStatus
	if err := c.do(ctx, http.MethodPost, c.endpoint(), mw.FormDataContentType(), &body, &status); err != nil {
		return nil, wrapError(op, err)
	}
	c.logger.Debug("workflow submitted", "workflow_id", status.ID, "status", status.Status)
	return &status, nil
}

func writeJSONField(mw *multipart.Writer, field string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", field, err)
	}
	return mw.WriteField(field, string(b))
}

func attachFile(mw *multipart.Writer, field, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", field, err)
	}
	defer f.Close()
	part, err := mw.CreateFormFile(field, filepath.Base(path))
	if err != nil {
		return err
	}
	_, err = io.Copy(part, f)
	return err
}

// Status returns the current state of a workflow.
func (c *Client) Status(ctx context.Context, id string) (*WorkflowStatus, error) {
	var status WorkflowStatus
	if err := c.do(ctx, http.MethodGet, c.endpoint("/", url.PathEscape(id), "/status"), "", nil, &status); err != nil {
		return nil, wrapError("status", err)
	}
	return &status, nil
}

// Abort asks the engine to stop a workflow.
func (c *Client) Abort(ctx context.Context, id string) (*WorkflowStatus, error) {
	var status WorkflowStatus
	if err := c.do(ctx, http.MethodPost, c.endpoint("/", url.PathEscape(id), "/abort"), "", nil, &status); err != nil {
		return nil, wrapError("abort", err)
	}
	return &status, nil
}

// Metadata returns the engine's full metadata document for a workflow.
func (c *Client) Metadata(ctx context.Context, id string) (map[string]any, error) {
	var md map[string]any
	if err := c.do(ctx, http.MethodGet, c.endpoint("/", url.PathEscape(id), "/metadata"), "", nil, &md); err != nil {
		return nil, wrapError("metadata", err)
	}
	return md, nil
}

// UpdateLabels adds or replaces labels on a workflow.
func (c *Client) UpdateLabels(ctx context.Context, id string, labels map[string]string) (*LabelsResponse, error) {
	b, err := json.Marshal(labels)
	if err != nil {
		return nil, wrapError("labels", err)
	}
	var resp LabelsResponse
	if err := c.do(ctx, http.MethodPatch, c.endpoint("/", url.PathEscape(id), "/labels"), "application/json", bytes.NewReader(b), &resp); err != nil {
		return nil, wrapError("labels", err)
	}
	return &resp, nil
}

// Query lists workflows carrying every given label.
func (c *Client) Query(ctx context.Context, labels map[string]string) ([]QueryResult, error) {
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	q := url.Values{}
	for _, k := range keys {
		q.Add("label", k+":"+labels[k])
	}
	u := c.endpoint("/query")
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	var resp queryResponse
	if err := c.do(ctx, http.MethodGet, u, "", nil, &resp); err != nil {
		return nil, wrapError("query", err)
	}
	return resp.Results, nil
}

// do performs one request and decodes a JSON response into out.
func (c *Client) do(ctx context.Context, method, u, contentType string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return fmt.Errorf("creating HTTP request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.config.Username != "" {
		req.SetBasicAuth(c.config.Username, c.config.Password)
	}

	c.logger.Debug("sending request", "method", method, "endpoint", u)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &HTTPError{StatusCode: resp.StatusCode, Body: errorMessage(respBody)}
	}
	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("unmarshaling response: %w", err)
	}
	return nil
}

// errorMessage extracts Cromwell's {"status":"fail","message":...} text.
func errorMessage(body []byte) string {
	var fail struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &fail) == nil && fail.Message != "" {
		return fail.Message
	}
	return strings.TrimSpace(string(body))
}
