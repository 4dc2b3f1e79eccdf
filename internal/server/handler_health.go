package server

import (
	"net/http"
	"runtime"
	"time"
)

type healthResponse struct {
	Status    string `json:"status"`
	Version   string `json:"version"`
	GoVersion string `json:"go_version"`
	Uptime    string `json:"uptime"`
	Store     string `json:"store"`
	Validator string `json:"validator"`
	Batches   string `json:"batches"`
	AppRoot   string `json:"app_root"`
}

func availability(ok bool) string {
	if ok {
		return "available"
	}
	return "unavailable"
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	respondOK(w, reqID, healthResponse{
		Status:    "healthy",
		Version:   Version,
		GoVersion: runtime.Version(),
		Uptime:    time.Since(s.startTime).Round(time.Second).String(),
		Store:     availability(s.store != nil),
		Validator: availability(s.extractor != nil),
		Batches:   availability(s.batches != nil),
		AppRoot:   s.appRoot,
	})
}
