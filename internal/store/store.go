package store

import (
	"context"

	"github.com/me/tessera/pkg/model"
)

// Store defines the persistence layer for workflow descriptions and the
// submission history. Descriptions are user-authored and persisted
// independently of status: status is a read replica of the backend and is
// never written here.
type Store interface {
	// Descriptions
	SaveDescription(ctx context.Context, id string, desc *model.WorkflowDescription) error
	LoadDescription(ctx context.Context, id string) (*model.WorkflowDescription, error)
	ListDescriptionIDs(ctx context.Context) ([]string, error)
	DeleteDescription(ctx context.Context, id string) error

	// Submission history
	RecordSubmission(ctx context.Context, rec *model.SubmissionRecord) error
	ListSubmissions(ctx context.Context, workflowID string) ([]*model.SubmissionRecord, error)

	// Lifecycle
	Close() error
	Migrate(ctx context.Context) error
}
