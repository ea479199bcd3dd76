package server

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/me/opsched/pkg/model"
)

func (s *Server) handleListOrders(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	q := r.URL.Query()

	opts := model.DefaultListOptions()
	opts.State = q.Get("state")
	var problems []model.FieldError
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			problems = append(problems, model.FieldError{Field: "limit", Message: "not an integer"})
		}
		opts.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			problems = append(problems, model.FieldError{Field: "offset", Message: "not an integer"})
		}
		opts.Offset = n
	}
	if v := q.Get("forced"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			problems = append(problems, model.FieldError{Field: "forced", Message: "not a boolean"})
		}
		opts.Forced = &b
	}
	if len(problems) > 0 {
		respondError(w, reqID, http.StatusBadRequest, model.NewValidationError("invalid query", problems...))
		return
	}

	orders, pg, err := s.svc.Orders(opts)
	if err != nil {
		respondErr(w, reqID, err)
		return
	}
	respondList(w, reqID, orders, pg)
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	o, err := s.svc.Order(chi.URLParam(r, "code"))
	if err != nil {
		respondErr(w, reqID, err)
		return
	}
	respondOK(w, reqID, o)
}

func (s *Server) handleForceOrder(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	code := chi.URLParam(r, "code")

	pass, err := s.svc.ForceOrder(r.Context(), code)
	if err != nil {
		respondErr(w, reqID, err)
		return
	}
	respondOK(w, reqID, model.ForceResponse{OrderCode: code, Forced: true, Pass: pass})
}

func (s *Server) handleUnforceOrder(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	code := chi.URLParam(r, "code")

	pass, err := s.svc.UnforceOrder(r.Context(), code)
	if err != nil {
		respondErr(w, reqID, err)
		return
	}
	respondOK(w, reqID, model.ForceResponse{OrderCode: code, Forced: false, Pass: pass})
}

type estimateResponse struct {
	OrderCode string            `json:"order_code"`
	Selection map[string]string `json:"selection,omitempty"`
	Total     int64             `json:"total_seconds"`
	Human     string            `json:"total"`
}

func (s *Server) handleEstimateOrder(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	code := chi.URLParam(r, "code")

	var req model.EstimateRequest
	if apiErr := decodeBody(r, &req); apiErr != nil {
		respondError(w, reqID, http.StatusBadRequest, apiErr)
		return
	}
	total, err := s.svc.EstimateOrder(code, req.Selection)
	if err != nil {
		respondErr(w, reqID, err)
		return
	}
	respondOK(w, reqID, estimateResponse{
		OrderCode: code,
		Selection: req.Selection,
		Total:     int64(total.Seconds()),
		Human:     total.String(),
	})
}

type operationResponse struct {
	OrderCode   string            `json:"order_code"`
	OperationID string            `json:"operation_id"`
	Action      string            `json:"action"`
	Halt        *model.HaltRecord `json:"halt,omitempty"`
	Order       *model.OrderView  `json:"order"`
}

// operationResult responds with the order as it stands after an operator
// action on one of its operations.
func (s *Server) operationResult(w http.ResponseWriter, reqID, code, opID, action string, halt *model.HaltRecord) {
	o, err := s.svc.Order(code)
	if err != nil {
		respondErr(w, reqID, err)
		return
	}
	respondOK(w, reqID, operationResponse{
		OrderCode:   code,
		OperationID: opID,
		Action:      action,
		Halt:        halt,
		Order:       o,
	})
}

func (s *Server) handleStartOperation(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	code, opID := chi.URLParam(r, "code"), chi.URLParam(r, "opID")

	var req model.StartOperationRequest
	if apiErr := decodeBody(r, &req); apiErr != nil {
		respondError(w, reqID, http.StatusBadRequest, apiErr)
		return
	}
	if req.MachineID == "" {
		respondError(w, reqID, http.StatusBadRequest,
			model.NewValidationError("missing required field",
				model.FieldError{Field: "machine_id", Message: "machine_id is required"}))
		return
	}
	if err := s.svc.StartOperation(r.Context(), code, opID, req.MachineID); err != nil {
		respondErr(w, reqID, err)
		return
	}
	s.operationResult(w, reqID, code, opID, "started", nil)
}

func (s *Server) handleCompleteOperation(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	code, opID := chi.URLParam(r, "code"), chi.URLParam(r, "opID")

	var req model.CompleteOperationRequest
	if apiErr := decodeBody(r, &req); apiErr != nil {
		respondError(w, reqID, http.StatusBadRequest, apiErr)
		return
	}
	if err := s.svc.CompleteOperation(r.Context(), code, opID, req.CompletedQuantity); err != nil {
		respondErr(w, reqID, err)
		return
	}
	s.operationResult(w, reqID, code, opID, "completed", nil)
}

func (s *Server) handleHaltOperation(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	code, opID := chi.URLParam(r, "code"), chi.URLParam(r, "opID")

	halt, err := s.svc.HaltOperation(r.Context(), code, opID)
	if err != nil {
		respondErr(w, reqID, err)
		return
	}
	action := "halted"
	if halt == nil {
		action = "unchanged"
	}
	s.operationResult(w, reqID, code, opID, action, halt)
}

func (s *Server) handleResumeOperation(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	code, opID := chi.URLParam(r, "code"), chi.URLParam(r, "opID")

	if err := s.svc.ResumeOperation(r.Context(), code, opID); err != nil {
		respondErr(w, reqID, err)
		return
	}
	s.operationResult(w, reqID, code, opID, "resumed", nil)
}
