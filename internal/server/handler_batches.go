package server

import (
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/me/choppy/internal/app"
	"github.com/me/choppy/internal/batch"
	"github.com/me/choppy/pkg/model"
)

var projectNameRe = regexp.MustCompile(`^[-\w.]+$`)

type createBatchRequest struct {
	ProjectName string          `json:"project_name"`
	App         string          `json:"app"`
	Samples     []*model.Record `json:"samples"`
	Labels      []string        `json:"labels"`
	Server      string          `json:"server"`
	Username    string          `json:"username"`
	DryRun      bool            `json:"dry_run"`
	Force       bool            `json:"force"`
}

func (req *createBatchRequest) validate() []model.FieldError {
	var details []model.FieldError
	if !projectNameRe.MatchString(req.ProjectName) || req.ProjectName == "." || req.ProjectName == ".." {
		details = append(details, model.FieldError{Field: "project_name", Message: "must be a plain directory name"})
	}
	if !validAppPath(req.App) {
		details = append(details, model.FieldError{Field: "app", Message: "invalid app name"})
	}
	if len(req.Samples) == 0 {
		details = append(details, model.FieldError{Field: "samples", Message: "at least one sample is required"})
	}
	for i, rec := range req.Samples {
		if rec == nil {
			details = append(details, model.FieldError{Field: fmt.Sprintf("samples[%d]", i), Message: "must be an object"})
		}
	}
	return details
}

// batchErrorStatus maps whole-batch failures to HTTP status codes.
func batchErrorStatus(err error) (int, *model.APIError) {
	switch {
	case errors.Is(err, model.ErrInvalidApp):
		return http.StatusNotFound, &model.APIError{Code: model.ErrNotFound, Message: err.Error()}
	case errors.Is(err, model.ErrDirExists):
		return http.StatusConflict, &model.APIError{Code: model.ErrConflict, Message: err.Error()}
	case errors.Is(err, model.ErrNoSamples),
		errors.Is(err, model.ErrMissingSampleID),
		errors.Is(err, model.ErrInvalidLabel):
		return http.StatusBadRequest, model.NewValidationError(err.Error())
	default:
		return http.StatusInternalServerError, model.NewInternalError(err)
	}
}

func (s *Server) handleCreateBatch(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	if s.batches == nil {
		respondUnavailable(w, reqID, "batch runs are not enabled on this server")
		return
	}

	var req createBatchRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if details := req.validate(); len(details) > 0 {
		respondError(w, reqID, http.StatusBadRequest, model.NewValidationError("invalid batch request", details...))
		return
	}

	a, err := app.OpenNamed(s.appRoot, req.App)
	if err != nil {
		status, apiErr := batchErrorStatus(err)
		respondError(w, reqID, status, apiErr)
		return
	}

	outcome, err := s.batches.Run(r.Context(), batch.Options{
		ProjectName: req.ProjectName,
		AppDir:      a.Dir,
		AppName:     req.App,
		Records:     req.Samples,
		Labels:      req.Labels,
		Server:      req.Server,
		Username:    req.Username,
		DryRun:      req.DryRun,
		Force:       req.Force,
		WorkDir:     s.workDir,
	})
	if err != nil {
		s.logger.Error("batch failed", "project", req.ProjectName, "app", req.App, "error", err)
		status, apiErr := batchErrorStatus(err)
		respondError(w, reqID, status, apiErr)
		return
	}

	s.logger.Info("batch completed",
		"batch_id", outcome.ID,
		"succeeded", len(outcome.Succeeded),
		"failed", len(outcome.Failed),
	)
	respondCreated(w, reqID, outcome)
}

func (s *Server) handleListBatches(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	if !s.requireStore(w, reqID) {
		return
	}

	opts := model.DefaultListOptions()
	q := r.URL.Query()
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			opts.Limit = n
		}
	}
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			opts.Offset = n
		}
	}
	opts.Project = q.Get("project")
	opts.Username = q.Get("username")
	opts.Clamp()

	runs, total, err := s.store.ListBatches(r.Context(), opts)
	if err != nil {
		s.logger.Error("list batches", "error", err)
		respondError(w, reqID, http.StatusInternalServerError, model.NewInternalError(err))
		return
	}
	if runs == nil {
		runs = []*model.BatchRun{}
	}

	respondList(w, reqID, runs, &model.Pagination{
		Total:   total,
		Limit:   opts.Limit,
		Offset:  opts.Offset,
		HasMore: opts.Offset+len(runs) < total,
	})
}

func (s *Server) handleGetBatch(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	if !s.requireStore(w, reqID) {
		return
	}
	id := chi.URLParam(r, "id")

	run, err := s.store.GetBatch(r.Context(), id)
	if err != nil {
		s.logger.Error("get batch", "id", id, "error", err)
		respondError(w, reqID, http.StatusInternalServerError, model.NewInternalError(err))
		return
	}
	if run == nil {
		respondError(w, reqID, http.StatusNotFound, model.NewNotFoundError("batch", id))
		return
	}
	respondOK(w, reqID, run)
}

func (s *Server) requireStore(w http.ResponseWriter, reqID string) bool {
	if s.store != nil {
		return true
	}
	respondUnavailable(w, reqID, "batch history is not configured")
	return false
}
