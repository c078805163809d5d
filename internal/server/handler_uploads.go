package server

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/me/tessera/internal/upload"
	"github.com/me/tessera/pkg/model"
)

// handleListUploads returns the registered upload units and the synthetic
// status of the upload stage they derive.
// GET /api/v1/workflows/{id}/uploads
func (s *Server) handleListUploads(w http.ResponseWriter, r *http.Request) {
	orc, reqID, ok := s.lookup(w, r)
	if !ok {
		return
	}
	tracker := orc.Uploads()
	respondOK(w, reqID, map[string]any{
		"units":  tracker.Units(),
		"status": tracker.Summary(),
	})
}

// handleRegisterUploads registers acquisition files as upload units in
// WAITING state.
// POST /api/v1/workflows/{id}/uploads {"names": ["a.png", "b.png"]}
func (s *Server) handleRegisterUploads(w http.ResponseWriter, r *http.Request) {
	orc, reqID, ok := s.lookup(w, r)
	if !ok {
		return
	}

	var req struct {
		Names []string `json:"names"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Names) == 0 {
		respondError(w, reqID, http.StatusBadRequest, &model.APIError{
			Code:    model.ErrValidation,
			Message: "body must carry a non-empty names list",
		})
		return
	}

	tracker := orc.Uploads()
	for _, name := range req.Names {
		tracker.Register(name)
	}
	respondCreated(w, reqID, map[string]any{"registered": len(req.Names)})
}

// handleSetUploadState records an upload-state transition reported by an
// external transfer agent.
// PUT /api/v1/workflows/{id}/uploads/{unit} {"state": "COMPLETE"}
func (s *Server) handleSetUploadState(w http.ResponseWriter, r *http.Request) {
	orc, reqID, ok := s.lookup(w, r)
	if !ok {
		return
	}
	unit := chi.URLParam(r, "unit")

	var req struct {
		State upload.UnitState `json:"state"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, reqID, http.StatusBadRequest, &model.APIError{
			Code:    model.ErrValidation,
			Message: "invalid JSON body: " + err.Error(),
		})
		return
	}
	switch req.State {
	case upload.UnitWaiting, upload.UnitUploading, upload.UnitComplete, upload.UnitFailed:
	default:
		respondError(w, reqID, http.StatusBadRequest,
			model.NewValidationAPIError("unknown upload state: "+string(req.State)))
		return
	}

	if err := orc.Uploads().SetState(unit, req.State); err != nil {
		respondError(w, reqID, http.StatusNotFound, model.NewNotFoundError("upload unit", unit))
		return
	}
	respondOK(w, reqID, map[string]any{"unit": unit, "state": req.State})
}

// handleStageUpload streams a server-local acquisition file into object
// storage via the configured stager.
// POST /api/v1/workflows/{id}/uploads/{unit}/stage {"path": "/data/a.png"}
func (s *Server) handleStageUpload(w http.ResponseWriter, r *http.Request) {
	orc, reqID, ok := s.lookup(w, r)
	if !ok {
		return
	}
	if s.stager == nil {
		respondError(w, reqID, http.StatusNotImplemented, &model.APIError{
			Code:    model.ErrInternal,
			Message: "no upload stager configured",
		})
		return
	}

	var req struct {
		Path string `json:"path"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Path == "" {
		respondError(w, reqID, http.StatusBadRequest,
			model.NewValidationAPIError("body must carry a file path"))
		return
	}

	if err := s.stager.Stage(r.Context(), orc.Uploads(), req.Path); err != nil {
		respondError(w, reqID, http.StatusBadGateway, &model.APIError{
			Code:    model.ErrTransient,
			Message: err.Error(),
		})
		return
	}
	respondOK(w, reqID, map[string]any{"staged": true})
}
