package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/me/choppy/internal/app"
	"github.com/me/choppy/internal/jsondoc"
	"github.com/me/choppy/internal/schema"
	"github.com/me/choppy/internal/validator"
	"github.com/me/choppy/pkg/model"
)

// validateRequest names the workflow either by path or by app, and carries
// the inputs document either inline or by path.
type validateRequest struct {
	Workflow   string          `json:"workflow"`
	App        string          `json:"app"`
	Inputs     json.RawMessage `json:"inputs"`
	InputsPath string          `json:"inputs_path"`
}

type validateResponse struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors"`
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	if s.extractor == nil {
		respondUnavailable(w, reqID, "validation is not available: womtool is not configured")
		return
	}

	var req validateRequest
	if !decodeBody(w, r, &req) {
		return
	}

	var details []model.FieldError
	workflow := req.Workflow
	if req.App != "" {
		if !validAppPath(req.App) {
			details = append(details, model.FieldError{Field: "app", Message: "invalid app name"})
		} else if a, err := app.OpenNamed(s.appRoot, req.App); err != nil {
			details = append(details, model.FieldError{Field: "app", Message: err.Error()})
		} else {
			workflow = a.WorkflowPath()
		}
	}
	if workflow == "" && len(details) == 0 {
		details = append(details, model.FieldError{Field: "workflow", Message: "workflow or app is required"})
	}
	if len(req.Inputs) == 0 && req.InputsPath == "" {
		details = append(details, model.FieldError{Field: "inputs", Message: "inputs or inputs_path is required"})
	}
	if len(details) > 0 {
		respondError(w, reqID, http.StatusBadRequest, model.NewValidationError("invalid validate request", details...))
		return
	}

	var (
		doc *jsondoc.Object
		err error
	)
	if len(req.Inputs) > 0 {
		doc, err = jsondoc.Decode(req.Inputs)
	} else {
		doc, err = jsondoc.DecodeFile(req.InputsPath)
	}
	if err != nil {
		msg := err.Error()
		var se *jsondoc.SyntaxError
		if errors.As(err, &se) {
			msg = se.Diagnostic()
		}
		respondError(w, reqID, http.StatusBadRequest, model.NewValidationError(
			"inputs is not a JSON object", model.FieldError{Field: "inputs", Message: msg}))
		return
	}

	sch, err := s.extractor.GetParameterTypes(r.Context(), workflow)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, schema.ErrExtractor) {
			status = http.StatusBadGateway
		}
		s.logger.Error("schema extraction failed", "workflow", workflow, "error", err)
		respondError(w, reqID, status, model.NewInternalError(fmt.Errorf("extract parameters: %w", err)))
		return
	}

	errs := validator.Validate(sch, doc, s.fs)
	if errs == nil {
		errs = []string{}
	}
	respondOK(w, reqID, validateResponse{Valid: len(errs) == 0, Errors: errs})
}
