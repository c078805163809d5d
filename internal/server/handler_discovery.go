package server

import "net/http"

type endpointInfo struct {
	Path        string   `json:"path"`
	Methods     []string `json:"methods"`
	Description string   `json:"description"`
}

type discoveryResponse struct {
	Name        string         `json:"name"`
	Version     string         `json:"version"`
	Description string         `json:"description"`
	Endpoints   []endpointInfo `json:"endpoints"`
}

func (s *Server) handleDiscovery(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	respondOK(w, reqID, discoveryResponse{
		Name:        "tessera API",
		Version:     "v1",
		Description: "tessera: image-processing workflow orchestration against a batch-execution backend",
		Endpoints: []endpointInfo{
			{"/api/v1/workflows", []string{"GET", "POST"}, "Workflow management"},
			{"/api/v1/workflows/{id}", []string{"GET", "DELETE"}, "Single workflow tree with statuses"},
			{"/api/v1/workflows/{id}/status", []string{"GET"}, "Reconcile once and return the tree"},
			{"/api/v1/workflows/{id}/submit", []string{"POST"}, "Submit stages up to an index"},
			{"/api/v1/workflows/{id}/resubmit", []string{"POST"}, "Resubmit, resuming at an earlier stage"},
			{"/api/v1/workflows/{id}/kill", []string{"POST"}, "Cancel the whole workflow"},
			{"/api/v1/workflows/{id}/save", []string{"POST"}, "Persist the description"},
			{"/api/v1/workflows/{id}/load", []string{"POST"}, "Rebuild from the saved description"},
			{"/api/v1/workflows/{id}/arguments", []string{"PUT"}, "Edit one argument value"},
			{"/api/v1/workflows/{id}/submissions", []string{"GET"}, "Submission history"},
			{"/api/v1/workflows/{id}/uploads", []string{"GET", "POST"}, "Upload units of the reserved upload stage"},
			{"/api/v1/workflows/{id}/uploads/{unit}", []string{"PUT"}, "Record an upload-state transition"},
			{"/api/v1/workflows/{id}/uploads/{unit}/stage", []string{"POST"}, "Stage a server-local file to object storage"},
			{"/api/v1/workflows/{id}/jobs/{sourceID}/logs", []string{"GET"}, "Raw job output text"},
			{"/api/v1/sse/workflows/{id}", []string{"GET"}, "Status stream (Server-Sent Events)"},
			{"/api/v1/health", []string{"GET"}, "Server health and version"},
		},
	})
}
