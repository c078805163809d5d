package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/me/tessera/pkg/model"
)

// requestID generates a unique request identifier.
func requestID() string {
	return "req_" + uuid.New().String()[:8]
}

// respondOK writes a success response with the standard envelope.
func respondOK(w http.ResponseWriter, reqID string, data any) {
	respondJSON(w, http.StatusOK, reqID, data, nil)
}

// respondCreated writes a 201 response with the standard envelope.
func respondCreated(w http.ResponseWriter, reqID string, data any) {
	respondJSON(w, http.StatusCreated, reqID, data, nil)
}

// respondError writes an error response with the standard envelope.
func respondError(w http.ResponseWriter, reqID string, status int, apiErr *model.APIError) {
	respondJSON(w, status, reqID, nil, apiErr)
}

// respondEngineError maps the engine's error taxonomy onto HTTP statuses:
// validation 400, state conflict 409, backend rejection 502, transient
// backend failure 503, not found 404, anything else 500.
func respondEngineError(w http.ResponseWriter, reqID string, err error) {
	var verr *model.ValidationError
	if errors.As(err, &verr) {
		details := make([]model.FieldError, len(verr.Unsatisfied))
		for i, ref := range verr.Unsatisfied {
			details[i] = model.FieldError{Field: ref.String(), Message: "required argument is not set"}
		}
		respondError(w, reqID, http.StatusBadRequest, model.NewValidationAPIError(err.Error(), details...))
		return
	}

	var cerr *model.StateConflictError
	if errors.As(err, &cerr) {
		respondError(w, reqID, http.StatusConflict, &model.APIError{
			Code:    model.ErrStateConflict,
			Message: cerr.Error(),
		})
		return
	}

	var rerr *model.BackendRejectionError
	if errors.As(err, &rerr) {
		respondError(w, reqID, http.StatusBadGateway, &model.APIError{
			Code:    model.ErrBackend,
			Message: rerr.Error(),
		})
		return
	}

	var terr *model.TransientBackendError
	if errors.As(err, &terr) {
		respondError(w, reqID, http.StatusServiceUnavailable, &model.APIError{
			Code:    model.ErrTransient,
			Message: terr.Error(),
		})
		return
	}

	var aerr *model.APIError
	if errors.As(err, &aerr) {
		status := http.StatusInternalServerError
		switch aerr.Code {
		case model.ErrNotFound:
			status = http.StatusNotFound
		case model.ErrValidation:
			status = http.StatusBadRequest
		case model.ErrStateConflict:
			status = http.StatusConflict
		}
		respondError(w, reqID, status, aerr)
		return
	}

	respondError(w, reqID, http.StatusInternalServerError, model.NewInternalError(err.Error()))
}

func respondJSON(w http.ResponseWriter, status int, reqID string, data any, apiErr *model.APIError) {
	resp := model.Response{
		RequestID: reqID,
		Timestamp: time.Now().UTC(),
		Data:      data,
		Error:     apiErr,
	}
	if apiErr != nil {
		resp.Status = "error"
	} else {
		resp.Status = "ok"
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(resp)
}
