package batch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/me/tessera/pkg/model"
)

// Service is the typed wrapper around the batch-execution backend's
// workflow RPCs. Submit is async: it returns a backend workflow id
// immediately and the orchestrator polls QueryStatus until terminal.
type Service struct {
	caller RPCCaller
	logger *slog.Logger
}

// NewService creates a Service using the given RPC caller.
func NewService(caller RPCCaller, logger *slog.Logger) *Service {
	return &Service{
		caller: caller,
		logger: logger.With("component", "batch"),
	}
}

// SubmitWorkflow forwards a trimmed workflow description. resumeFrom, when
// non-nil, tells the backend to skip re-executing stages strictly before
// that index. Returns the backend-assigned workflow identity.
func (s *Service) SubmitWorkflow(ctx context.Context, desc *model.WorkflowDescription, resumeFrom *int) (string, error) {
	params := []any{desc}
	if resumeFrom != nil {
		params = append(params, *resumeFrom)
	}

	result, err := s.caller.Call(ctx, "WorkflowService.submit_workflow", params)
	if err != nil {
		return "", fmt.Errorf("submit_workflow: %w", err)
	}

	var resp struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(result, &resp); err != nil {
		return "", fmt.Errorf("parse submit_workflow response: %w", err)
	}
	if resp.ID == "" {
		return "", fmt.Errorf("submit_workflow returned no workflow id")
	}

	s.logger.Info("workflow submitted", "backend_id", resp.ID, "resume_from", resumeFrom)
	return resp.ID, nil
}

// QueryStatus fetches the complete nested status snapshot for a workflow in
// a single round trip, so the caller never sees an inconsistent read across
// tree levels.
func (s *Service) QueryStatus(ctx context.Context, backendID string) (*TaskNode, error) {
	result, err := s.caller.Call(ctx, "WorkflowService.query_status", []any{backendID})
	if err != nil {
		return nil, fmt.Errorf("query_status: %w", err)
	}
	return DecodeTaskNode(result)
}

// KillWorkflow requests cancellation of the whole workflow. The call does
// not block for completion: the next status poll observes the resulting
// TERMINATING transition. Cancellation is whole-workflow only.
func (s *Service) KillWorkflow(ctx context.Context, backendID string) error {
	if _, err := s.caller.Call(ctx, "WorkflowService.kill_workflow", []any{backendID}); err != nil {
		return fmt.Errorf("kill_workflow: %w", err)
	}
	s.logger.Info("workflow kill requested", "backend_id", backendID)
	return nil
}

// QueryJobLog returns the raw standard-output/error text for one job,
// keyed by the backend-assigned source id. Pass-through, no parsing.
func (s *Service) QueryJobLog(ctx context.Context, sourceID string) (string, error) {
	result, err := s.caller.Call(ctx, "WorkflowService.query_job_log", []any{sourceID})
	if err != nil {
		return "", fmt.Errorf("query_job_log: %w", err)
	}

	var text string
	if err := json.Unmarshal(result, &text); err != nil {
		// Some deployments return the log as a raw body.
		text = string(result)
	}
	return text, nil
}
