package server

import (
	"errors"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/me/choppy/internal/app"
	"github.com/me/choppy/pkg/model"
)

// appPathRe matches "app" and "namespace/app"; dot-only segments are
// rejected separately.
var appPathRe = regexp.MustCompile(`^[-\w.]+(/[-\w.]+)?$`)

type appSummary struct {
	Name      string   `json:"name"`
	Dir       string   `json:"dir"`
	Variables []string `json:"variables,omitempty"`
}

// openApp resolves the {app} URL parameter under the server's app root and
// writes the error response itself when it cannot.
func (s *Server) openApp(w http.ResponseWriter, r *http.Request) (*app.App, bool) {
	reqID := RequestIDFromContext(r.Context())
	raw := chi.URLParam(r, "app")
	name, err := url.PathUnescape(raw)
	if err != nil || !validAppPath(name) {
		respondError(w, reqID, http.StatusBadRequest, model.NewValidationError(
			"invalid app name", model.FieldError{Field: "app", Message: raw}))
		return nil, false
	}
	a, err := app.OpenNamed(s.appRoot, name)
	if err != nil {
		if errors.Is(err, model.ErrInvalidApp) {
			respondError(w, reqID, http.StatusNotFound, model.NewNotFoundError("app", name))
			return nil, false
		}
		respondError(w, reqID, http.StatusInternalServerError, model.NewInternalError(err))
		return nil, false
	}
	return a, true
}

func validAppPath(name string) bool {
	if !appPathRe.MatchString(name) {
		return false
	}
	for _, part := range strings.Split(name, "/") {
		if part == "." || part == ".." {
			return false
		}
	}
	return true
}

func (s *Server) handleListApps(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	names, err := app.List(s.appRoot)
	if err != nil {
		respondError(w, reqID, http.StatusInternalServerError, model.NewInternalError(err))
		return
	}
	apps := make([]appSummary, 0, len(names))
	for _, n := range names {
		apps = append(apps, appSummary{Name: n})
	}
	respondList(w, reqID, apps, &model.Pagination{
		Total:  len(apps),
		Limit:  len(apps),
		Offset: 0,
	})
}

func (s *Server) handleGetApp(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	a, ok := s.openApp(w, r)
	if !ok {
		return
	}
	vars, err := app.Variables(a, false)
	if err != nil {
		respondError(w, reqID, http.StatusInternalServerError, model.NewInternalError(err))
		return
	}
	respondOK(w, reqID, appSummary{Name: a.Name, Dir: a.Dir, Variables: vars})
}

func (s *Server) handleAppDefaults(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	a, ok := s.openApp(w, r)
	if !ok {
		return
	}
	d, err := app.LoadDefaults(a)
	if err != nil {
		respondError(w, reqID, http.StatusInternalServerError, model.NewInternalError(err))
		return
	}
	respondOK(w, reqID, d.Show())
}

func (s *Server) handleAppVariables(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	a, ok := s.openApp(w, r)
	if !ok {
		return
	}
	noDefault := r.URL.Query().Get("no_default") == "true"
	vars, err := app.Variables(a, noDefault)
	if err != nil {
		respondError(w, reqID, http.StatusInternalServerError, model.NewInternalError(err))
		return
	}
	if vars == nil {
		vars = []string{}
	}
	respondOK(w, reqID, vars)
}
