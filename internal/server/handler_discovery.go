package server

import "net/http"

type endpointInfo struct {
	Path        string   `json:"path"`
	Methods     []string `json:"methods"`
	Description string   `json:"description"`
}

type discoveryResponse struct {
	Name        string         `json:"name"`
	Version     string         `json:"version"`
	Description string         `json:"description"`
	Endpoints   []endpointInfo `json:"endpoints"`
}

func (s *Server) handleDiscovery(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	respondOK(w, reqID, discoveryResponse{
		Name:        "choppy API",
		Version:     "v1",
		Description: "WDL input validation and batch submission to Cromwell",
		Endpoints: []endpointInfo{
			{"/api/v1/apps", []string{"GET"}, "List installed apps"},
			{"/api/v1/apps/{app}", []string{"GET"}, "Single app detail; escape namespaced names as ns%2Fapp"},
			{"/api/v1/apps/{app}/defaults", []string{"GET"}, "Default template values of an app"},
			{"/api/v1/apps/{app}/variables", []string{"GET"}, "Template variables of an app. ?no_default=true hides defaulted ones"},
			{"/api/v1/validate", []string{"POST"}, "Validate a workflow inputs document against the workflow's parameters"},
			{"/api/v1/batches", []string{"GET", "POST"}, "Batch run history; POST runs a batch. Accepts dry_run in the body"},
			{"/api/v1/batches/{id}", []string{"GET"}, "Single batch run with per-record outcomes"},
			{"/api/v1/health", []string{"GET"}, "Server health and version"},
		},
	})
}
