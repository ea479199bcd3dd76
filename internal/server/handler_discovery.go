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
		Name:        "opsched API",
		Version:     "v1",
		Description: "Shop-floor operation scheduling with priority overrides and preemption",
		Endpoints: []endpointInfo{
			{"/api/v1/orders", []string{"GET"}, "List orders with progress. Filters: state, forced, limit, offset"},
			{"/api/v1/orders/{code}", []string{"GET"}, "Single order with operations, progress and remaining time"},
			{"/api/v1/orders/{code}/force", []string{"POST"}, "Give a pending order top priority and run a pass"},
			{"/api/v1/orders/{code}/unforce", []string{"POST"}, "Remove a priority override and run a pass"},
			{"/api/v1/orders/{code}/estimate", []string{"POST"}, "Estimate total processing time for a machine selection"},
			{"/api/v1/orders/{code}/operations/{op}/start", []string{"POST"}, "Start an operation on a machine"},
			{"/api/v1/orders/{code}/operations/{op}/complete", []string{"POST"}, "Complete a running operation"},
			{"/api/v1/orders/{code}/operations/{op}/halt", []string{"POST"}, "Halt a running operation, keeping its elapsed time"},
			{"/api/v1/orders/{code}/operations/{op}/resume", []string{"POST"}, "Resume a halted operation on its machine"},
			{"/api/v1/machines", []string{"GET"}, "Status of every machine in the pool"},
			{"/api/v1/machines/{id}", []string{"GET"}, "Single machine status with upcoming work"},
			{"/api/v1/schedule", []string{"GET"}, "Result of the last scheduling pass"},
			{"/api/v1/schedule/pass", []string{"POST"}, "Run a scheduling pass now"},
			{"/api/v1/summary", []string{"GET"}, "Dashboard totals and orders by state"},
			{"/api/v1/events", []string{"GET"}, "Recent scheduling events, newest first"},
			{"/api/v1/reset", []string{"POST"}, "Drop all state and reload from the catalog"},
			{"/api/v1/import", []string{"POST"}, "Replace the catalog with a descriptor CSV and reload"},
			{"/api/v1/export", []string{"GET"}, "Current orders as descriptor CSV"},
			{"/api/v1/sse/machines/{id}", []string{"GET"}, "Stream machine status changes"},
			{"/api/v1/health", []string{"GET"}, "Server health and version"},
		},
	})
}
