package server

import (
	"net/http"
	"time"

	"github.com/me/opsched/internal/loader"
)

const maxImportBytes = 32 << 20

type resetResponse struct {
	Orders      int `json:"orders"`
	Descriptors int `json:"descriptors,omitempty"`
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	n, err := s.svc.Reset(r.Context())
	if err != nil {
		respondErr(w, reqID, err)
		return
	}
	respondOK(w, reqID, resetResponse{Orders: n})
}

// handleImport replaces the catalog with the CSV request body and reloads.
// A malformed file changes nothing.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	ds, err := loader.ReadDescriptors(http.MaxBytesReader(w, r.Body, maxImportBytes))
	if err != nil {
		respondErr(w, reqID, err)
		return
	}
	orders, err := loader.BuildOrders(ds, time.Now().UTC())
	if err != nil {
		respondErr(w, reqID, err)
		return
	}

	var n int
	if s.catalog != nil {
		if err := s.catalog.ReplaceDescriptors(r.Context(), ds); err != nil {
			respondErr(w, reqID, err)
			return
		}
		n, err = s.svc.Reset(r.Context())
	} else {
		if _, err = s.svc.Reset(r.Context()); err == nil {
			err = s.svc.Load(r.Context(), orders)
			n = len(orders)
		}
	}
	if err != nil {
		respondErr(w, reqID, err)
		return
	}
	s.logger.Info("catalog imported", "descriptors", len(ds), "orders", n)
	respondOK(w, reqID, resetResponse{Orders: n, Descriptors: len(ds)})
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	ds := loader.Descriptors(s.svc.Snapshot())

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="orders.csv"`)
	if err := loader.WriteDescriptors(w, ds); err != nil {
		s.logger.Error("export", "request_id", reqID, "error", err)
	}
}
