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
	Scheduler string `json:"scheduler"`
	Catalog   string `json:"catalog"`
	Machines  int    `json:"machines"`
	Orders    int    `json:"orders"`
	LastPass  string `json:"last_pass,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	resp := healthResponse{
		Status:    "healthy",
		Version:   "0.1.0",
		GoVersion: runtime.Version(),
		Uptime:    time.Since(s.startTime).Round(time.Second).String(),
		Scheduler: "manual",
		Catalog:   "none",
		Machines:  len(s.svc.Pool()),
		Orders:    s.svc.Summary().TotalOrders,
	}
	if s.scheduler != nil {
		resp.Scheduler = "periodic"
	}
	if s.catalog != nil {
		resp.Catalog = "sqlite"
	}
	if p := s.svc.LastPass(); p != nil {
		resp.LastPass = p.At.Format(time.RFC3339)
	}
	respondOK(w, reqID, resp)
}
