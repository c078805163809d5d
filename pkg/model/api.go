package model

import "time"

// Response is the standard API response envelope.
type Response struct {
	Status    string    `json:"status"`
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
	Error     *APIError `json:"error"`
}

// WorkflowSummary is the list-view projection of a managed workflow.
type WorkflowSummary struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Status    Status    `json:"status"`
	Stages    int       `json:"stages"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SubmissionRecord is one entry of a workflow's submission history: every
// accepted submit or resubmit is recorded with its target and resume
// indexes so resubmission chains can be audited.
type SubmissionRecord struct {
	ID         string    `json:"id"`
	WorkflowID string    `json:"workflow_id"`
	BackendID  string    `json:"backend_id"`
	Index      int       `json:"index"`
	ResumeFrom *int      `json:"resume_from,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}
