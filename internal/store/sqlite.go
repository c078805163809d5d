package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/me/tessera/pkg/model"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and returns
// a Store. Use ":memory:" for an in-memory database (useful in tests).
func NewSQLiteStore(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dbPath, err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma wal: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma fk: %w", err)
	}

	return &SQLiteStore{
		db:     db,
		logger: logger.With("component", "store"),
	}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Migrate creates all required tables and indexes.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	s.logger.Debug("sql", "op", "migrate")
	return migrate(ctx, s.db)
}

// SaveDescription persists the description verbatim, inserting or replacing.
func (s *SQLiteStore) SaveDescription(ctx context.Context, id string, desc *model.WorkflowDescription) error {
	s.logger.Debug("sql", "op", "upsert", "table", "descriptions", "id", id)

	stagesJSON, err := json.Marshal(desc.Stages)
	if err != nil {
		return fmt.Errorf("marshal stages: %w", err)
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO descriptions (id, type, stages, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET type = excluded.type, stages = excluded.stages, updated_at = excluded.updated_at`,
		id, desc.Type, string(stagesJSON), now, now,
	)
	return err
}

// LoadDescription returns the last-saved description, or nil if none exists.
func (s *SQLiteStore) LoadDescription(ctx context.Context, id string) (*model.WorkflowDescription, error) {
	s.logger.Debug("sql", "op", "select", "table", "descriptions", "id", id)

	var desc model.WorkflowDescription
	var stagesJSON string

	err := s.db.QueryRowContext(ctx,
		`SELECT type, stages FROM descriptions WHERE id = ?`, id,
	).Scan(&desc.Type, &stagesJSON)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(stagesJSON), &desc.Stages); err != nil {
		return nil, fmt.Errorf("unmarshal stages: %w", err)
	}
	return &desc, nil
}

// ListDescriptionIDs returns all stored description ids, oldest first.
func (s *SQLiteStore) ListDescriptionIDs(ctx context.Context) ([]string, error) {
	s.logger.Debug("sql", "op", "list", "table", "descriptions")

	rows, err := s.db.QueryContext(ctx, `SELECT id FROM descriptions ORDER BY created_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// DeleteDescription removes a stored description.
func (s *SQLiteStore) DeleteDescription(ctx context.Context, id string) error {
	s.logger.Debug("sql", "op", "delete", "table", "descriptions", "id", id)
	_, err := s.db.ExecContext(ctx, `DELETE FROM descriptions WHERE id = ?`, id)
	return err
}

// RecordSubmission appends one submit/resubmit event to the history.
func (s *SQLiteStore) RecordSubmission(ctx context.Context, rec *model.SubmissionRecord) error {
	s.logger.Debug("sql", "op", "insert", "table", "submissions", "id", rec.ID)

	var resumeFrom any
	if rec.ResumeFrom != nil {
		resumeFrom = *rec.ResumeFrom
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO submissions (id, workflow_id, backend_id, target_idx, resume_from, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.WorkflowID, rec.BackendID, rec.Index, resumeFrom,
		rec.CreatedAt.Format(time.RFC3339Nano),
	)
	return err
}

// ListSubmissions returns the submission history for one workflow, oldest
// first.
func (s *SQLiteStore) ListSubmissions(ctx context.Context, workflowID string) ([]*model.SubmissionRecord, error) {
	s.logger.Debug("sql", "op", "list", "table", "submissions", "workflow_id", workflowID)

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, workflow_id, backend_id, target_idx, resume_from, created_at
		 FROM submissions WHERE workflow_id = ? ORDER BY created_at ASC`, workflowID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []*model.SubmissionRecord
	for rows.Next() {
		var rec model.SubmissionRecord
		var resumeFrom sql.NullInt64
		var createdAt string
		if err := rows.Scan(&rec.ID, &rec.WorkflowID, &rec.BackendID, &rec.Index, &resumeFrom, &createdAt); err != nil {
			return nil, err
		}
		if resumeFrom.Valid {
			v := int(resumeFrom.Int64)
			rec.ResumeFrom = &v
		}
		rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		recs = append(recs, &rec)
	}
	return recs, rows.Err()
}
