package server

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/me/tessera/pkg/model"
)

func (s *Server) handleCreateWorkflow(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	var desc model.WorkflowDescription
	if err := json.NewDecoder(r.Body).Decode(&desc); err != nil {
		respondError(w, reqID, http.StatusBadRequest, &model.APIError{
			Code:    model.ErrValidation,
			Message: "invalid JSON body: " + err.Error(),
		})
		return
	}

	orc, err := s.manager.Create(r.Context(), &desc)
	if err != nil {
		respondError(w, reqID, http.StatusBadRequest, model.NewValidationAPIError(err.Error()))
		return
	}

	respondCreated(w, reqID, orc.Snapshot())
}

func (s *Server) handleListWorkflows(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	orcs := s.manager.List()
	summaries := make([]model.WorkflowSummary, 0, len(orcs))
	for _, orc := range orcs {
		wf := orc.Snapshot()
		summaries = append(summaries, model.WorkflowSummary{
			ID:        wf.ID,
			Type:      wf.Type,
			Status:    wf.AggregateStages(),
			Stages:    len(wf.Stages),
			CreatedAt: wf.CreatedAt,
			UpdatedAt: wf.UpdatedAt,
		})
	}
	respondOK(w, reqID, summaries)
}

func (s *Server) handleGetWorkflow(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	id := chi.URLParam(r, "id")

	orc, ok := s.manager.Get(id)
	if !ok {
		respondError(w, reqID, http.StatusNotFound, model.NewNotFoundError("workflow", id))
		return
	}
	respondOK(w, reqID, orc.Snapshot())
}

func (s *Server) handleDeleteWorkflow(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	id := chi.URLParam(r, "id")

	if err := s.manager.Delete(r.Context(), id); err != nil {
		respondEngineError(w, reqID, err)
		return
	}
	respondOK(w, reqID, map[string]any{"deleted": true})
}

// handleSetArgument edits one argument value of the workflow description.
// PUT /api/v1/workflows/{id}/arguments
func (s *Server) handleSetArgument(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	id := chi.URLParam(r, "id")

	orc, ok := s.manager.Get(id)
	if !ok {
		respondError(w, reqID, http.StatusNotFound, model.NewNotFoundError("workflow", id))
		return
	}

	var req struct {
		Stage string `json:"stage"`
		Step  string `json:"step"`
		Set   string `json:"set"`
		Name  string `json:"name"`
		Value string `json:"value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, reqID, http.StatusBadRequest, &model.APIError{
			Code:    model.ErrValidation,
			Message: "invalid JSON body: " + err.Error(),
		})
		return
	}

	if err := orc.SetArgumentValue(req.Stage, req.Step, req.Set, req.Name, req.Value); err != nil {
		respondError(w, reqID, http.StatusBadRequest, model.NewValidationAPIError(err.Error()))
		return
	}
	respondOK(w, reqID, map[string]any{"updated": true})
}

// handleListSubmissions returns the submission history, oldest first.
// GET /api/v1/workflows/{id}/submissions
func (s *Server) handleListSubmissions(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	id := chi.URLParam(r, "id")

	if _, ok := s.manager.Get(id); !ok {
		respondError(w, reqID, http.StatusNotFound, model.NewNotFoundError("workflow", id))
		return
	}

	recs, err := s.store.ListSubmissions(r.Context(), id)
	if err != nil {
		respondError(w, reqID, http.StatusInternalServerError, model.NewInternalError(err.Error()))
		return
	}
	if recs == nil {
		recs = []*model.SubmissionRecord{}
	}
	respondOK(w, reqID, recs)
}
