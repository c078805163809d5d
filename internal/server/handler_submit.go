package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/me/tessera/internal/orchestrator"
	"github.com/me/tessera/pkg/model"
)

func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (*orchestrator.Orchestrator, string, bool) {
	reqID := RequestIDFromContext(r.Context())
	id := chi.URLParam(r, "id")
	orc, ok := s.manager.Get(id)
	if !ok {
		respondError(w, reqID, http.StatusNotFound, model.NewNotFoundError("workflow", id))
		return nil, reqID, false
	}
	return orc, reqID, true
}

// handleSubmit forwards the workflow to the batch backend, processing stages
// up to and including the requested index.
// POST /api/v1/workflows/{id}/submit {"index": 2}
func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	orc, reqID, ok := s.lookup(w, r)
	if !ok {
		return
	}

	var req struct {
		Index int `json:"index"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, reqID, http.StatusBadRequest, &model.APIError{
			Code:    model.ErrValidation,
			Message: "invalid JSON body: " + err.Error(),
		})
		return
	}

	if err := orc.Submit(r.Context(), req.Index); err != nil {
		respondEngineError(w, reqID, err)
		return
	}
	// Pollers outlive the request; shutdown goes through the manager.
	s.manager.StartPolling(context.Background(), orc.ID())

	respondOK(w, reqID, map[string]any{
		"backend_id": orc.BackendID(),
		"state":      model.StateSubmitted,
	})
}

// handleResubmit re-forwards the workflow, resuming at an earlier stage.
// POST /api/v1/workflows/{id}/resubmit {"index": 3, "from": 2}
func (s *Server) handleResubmit(w http.ResponseWriter, r *http.Request) {
	orc, reqID, ok := s.lookup(w, r)
	if !ok {
		return
	}

	var req struct {
		Index int `json:"index"`
		From  int `json:"from"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, reqID, http.StatusBadRequest, &model.APIError{
			Code:    model.ErrValidation,
			Message: "invalid JSON body: " + err.Error(),
		})
		return
	}

	if err := orc.Resubmit(r.Context(), req.Index, req.From); err != nil {
		respondEngineError(w, reqID, err)
		return
	}
	s.manager.StartPolling(context.Background(), orc.ID())

	respondOK(w, reqID, map[string]any{
		"backend_id": orc.BackendID(),
		"state":      model.StateSubmitted,
	})
}

// handleKill requests cancellation of the whole workflow.
// POST /api/v1/workflows/{id}/kill
func (s *Server) handleKill(w http.ResponseWriter, r *http.Request) {
	orc, reqID, ok := s.lookup(w, r)
	if !ok {
		return
	}
	if err := orc.Kill(r.Context()); err != nil {
		respondEngineError(w, reqID, err)
		return
	}
	respondOK(w, reqID, map[string]any{"killed": true})
}

// handleSave persists the current description.
// POST /api/v1/workflows/{id}/save
func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	orc, reqID, ok := s.lookup(w, r)
	if !ok {
		return
	}
	if err := orc.Save(r.Context()); err != nil {
		respondEngineError(w, reqID, err)
		return
	}
	respondOK(w, reqID, map[string]any{"saved": true})
}

// handleLoad rebuilds the workflow from its last-saved description.
// POST /api/v1/workflows/{id}/load
func (s *Server) handleLoad(w http.ResponseWriter, r *http.Request) {
	orc, reqID, ok := s.lookup(w, r)
	if !ok {
		return
	}
	if err := orc.Load(r.Context()); err != nil {
		respondEngineError(w, reqID, err)
		return
	}
	respondOK(w, reqID, orc.Snapshot())
}

// handleGetStatus runs one reconciliation pass and returns the full tree.
// A transient backend failure still returns the last-known tree, flagged
// with the error.
// GET /api/v1/workflows/{id}/status
func (s *Server) handleGetStatus(w http.ResponseWriter, r *http.Request) {
	orc, reqID, ok := s.lookup(w, r)
	if !ok {
		return
	}

	wf, err := orc.GetStatus(r.Context())
	if err != nil {
		var terr *model.TransientBackendError
		if errors.As(err, &terr) {
			respondJSON(w, http.StatusOK, reqID, wf, &model.APIError{
				Code:    model.ErrTransient,
				Message: "status may be stale: " + terr.Error(),
			})
			return
		}
		respondEngineError(w, reqID, err)
		return
	}
	respondOK(w, reqID, wf)
}

// handleJobLog returns the raw output text for one job.
// GET /api/v1/workflows/{id}/jobs/{sourceID}/logs
func (s *Server) handleJobLog(w http.ResponseWriter, r *http.Request) {
	orc, reqID, ok := s.lookup(w, r)
	if !ok {
		return
	}
	sourceID := chi.URLParam(r, "sourceID")

	text, err := orc.JobLog(r.Context(), sourceID)
	if err != nil {
		respondEngineError(w, reqID, err)
		return
	}
	respondOK(w, reqID, map[string]any{"source_id": sourceID, "log": text})
}
