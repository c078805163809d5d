package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/me/tessera/pkg/model"
)

// handleSSEWorkflow streams workflow status updates via Server-Sent Events.
// The stream reads the poller-maintained tree; it never issues its own
// backend queries.
// GET /api/v1/sse/workflows/{id}
func (s *Server) handleSSEWorkflow(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	reqID := RequestIDFromContext(r.Context())

	orc, ok := s.manager.Get(id)
	if !ok {
		respondError(w, reqID, http.StatusNotFound, model.NewNotFoundError("workflow", id))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}

	wf := orc.Snapshot()
	last, err := json.Marshal(wf)
	if err != nil {
		s.logger.Error("sse marshal failed", "id", id, "error", err)
		return
	}
	if err := writeSSEEvent(w, flusher, "init", last); err != nil {
		s.logger.Debug("sse client disconnected", "id", id, "error", err)
		return
	}

	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			wf = orc.Snapshot()
			payload, err := json.Marshal(wf)
			if err != nil {
				s.logger.Error("sse marshal failed", "id", id, "error", err)
				return
			}

			// Change detection covers the whole tree. Step and job progress
			// moves while the root status stays equal, and must still flush.
			if !bytes.Equal(payload, last) {
				if err := writeSSEEvent(w, flusher, "update", payload); err != nil {
					s.logger.Debug("sse client disconnected", "id", id)
					return
				}
				last = payload
			} else {
				fmt.Fprintf(w, ": heartbeat\n\n")
				flusher.Flush()
			}

			if wf.Status.State.IsTerminal() {
				writeSSEEvent(w, flusher, "complete", payload)
				return
			}
		}
	}
}

func writeSSEEvent(w http.ResponseWriter, flusher http.Flusher, event string, payload []byte) error {
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, payload); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}
