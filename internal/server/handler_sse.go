package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/me/opsched/pkg/model"
)

// handleSSEMachine streams machine status via Server-Sent Events. An
// "update" event is sent whenever the machine's state or current operation
// changes; otherwise a heartbeat comment keeps the connection open.
// GET /api/v1/sse/machines/{id}
func (s *Server) handleSSEMachine(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	reqID := RequestIDFromContext(r.Context())

	m, err := s.svc.Machine(id)
	if err != nil {
		respondErr(w, reqID, err)
		return
	}

	// Set headers for SSE.
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}

	if err := sendSSEEvent(w, flusher, "init", m); err != nil {
		s.logger.Debug("sse client disconnected", "machine", id, "error", err)
		return
	}

	ticker := time.NewTicker(s.sseInterval)
	defer ticker.Stop()

	last := machineKey(m)
	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			m, err = s.svc.Machine(id)
			if err != nil {
				// Left the pool view: an outside machine finished its work.
				return
			}
			if key := machineKey(m); key != last {
				if err := sendSSEEvent(w, flusher, "update", m); err != nil {
					s.logger.Debug("sse client disconnected", "machine", id)
					return
				}
				last = key
			} else {
				fmt.Fprintf(w, ": heartbeat\n\n")
				flusher.Flush()
			}
		}
	}
}

func machineKey(m model.MachineStatus) string {
	if m.Current == nil {
		return string(m.State)
	}
	return string(m.State) + "/" + m.Current.OrderCode + "/" + m.Current.OperationID
}

func sendSSEEvent(w http.ResponseWriter, flusher http.Flusher, event string, data any) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}

	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, jsonData)
	if err != nil {
		return err
	}

	flusher.Flush()
	return nil
}
