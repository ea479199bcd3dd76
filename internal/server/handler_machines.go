package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/me/opsched/pkg/model"
)

func (s *Server) handleListMachines(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	machines := s.svc.Machines()
	respondList(w, reqID, machines, &model.Pagination{
		Total:   len(machines),
		Limit:   len(machines),
		Offset:  0,
		HasMore: false,
	})
}

func (s *Server) handleGetMachine(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	m, err := s.svc.Machine(chi.URLParam(r, "id"))
	if err != nil {
		respondErr(w, reqID, err)
		return
	}
	respondOK(w, reqID, m)
}
