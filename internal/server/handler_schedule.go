package server

import (
	"net/http"
	"strconv"

	"github.com/me/opsched/pkg/model"
)

// handleGetSchedule returns the last pass. Before the first pass data is null.
func (s *Server) handleGetSchedule(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	respondOK(w, reqID, s.svc.LastPass())
}

func (s *Server) handleRunPass(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	pass, err := s.svc.RunPass(r.Context())
	if err != nil {
		respondErr(w, reqID, err)
		return
	}
	respondOK(w, reqID, pass)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	respondOK(w, reqID, s.svc.Summary())
}

func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			respondError(w, reqID, http.StatusBadRequest,
				model.NewValidationError("invalid query",
					model.FieldError{Field: "limit", Message: "must be a non-negative integer"}))
			return
		}
		limit = n
	}

	evs := []model.Event{}
	if s.events != nil {
		got, err := s.events.RecentEvents(r.Context(), limit)
		if err != nil {
			respondErr(w, reqID, err)
			return
		}
		if got != nil {
			evs = got
		}
	}
	respondList(w, reqID, evs, &model.Pagination{
		Total:   len(evs),
		Limit:   limit,
		Offset:  0,
		HasMore: limit > 0 && len(evs) == limit,
	})
}
