// Package history implements an optional, non-authoritative sqlite audit
// log of terminal tasks: a durable record of what the Registry held in
// memory at completion, for after-the-fact inspection once a task has
// been evicted. Nothing in the Workflow Engine or Coordinator's success
// path depends on this package; a write failure here is logged and
// swallowed, never surfaced to the caller.
//
// Grounded on the teacher's pkg/database/sqlite.go (NewSQLiteDB's
// open-then-migrate shape, parameterized-query style) and migrate.go
// (the migration-runner pattern, adapted in migrate.go alongside this
// file to embed its one migration rather than glob a migrations
// directory).
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/agentforge/taskrunner/pkg/model"
)

// Store is a durable, append-mostly record of terminal TaskResponses.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the sqlite database at path and
// applies any pending migrations.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping history database: %w", err)
	}
	if err := newMigrationRunner(db).run(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate history database: %w", err)
	}

	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Record upserts a terminal TaskResponse into the audit log.
func (s *Store) Record(ctx context.Context, response *model.TaskResponse) error {
	artifacts, err := json.Marshal(response.Artifacts)
	if err != nil {
		return fmt.Errorf("failed to marshal artifacts: %w", err)
	}

	now := time.Now()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO tasks (task_id, status, answer, success, artifacts, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(task_id) DO UPDATE SET
			status = excluded.status,
			answer = excluded.answer,
			success = excluded.success,
			artifacts = excluded.artifacts,
			updated_at = excluded.updated_at
	`, response.ID, string(response.Status), response.Answer, response.Success, string(artifacts), now, now)
	if err != nil {
		return fmt.Errorf("failed to record task %s: %w", response.ID, err)
	}
	return nil
}

// Get retrieves a previously recorded TaskResponse by task-id. This is a
// fallback path for callers asking about a task the in-memory Registry
// has already evicted; it is never consulted on the Registry's hot path.
func (s *Store) Get(ctx context.Context, taskID string) (*model.TaskResponse, error) {
	var status, answer, artifactsJSON string
	var success bool

	err := s.db.QueryRowContext(ctx, `
		SELECT status, answer, success, artifacts FROM tasks WHERE task_id = ?
	`, taskID).Scan(&status, &answer, &success, &artifactsJSON)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load task %s: %w", taskID, err)
	}

	var artifacts []model.ArtifactResponse
	if err := json.Unmarshal([]byte(artifactsJSON), &artifacts); err != nil {
		return nil, fmt.Errorf("failed to unmarshal artifacts for task %s: %w", taskID, err)
	}

	return &model.TaskResponse{
		ID:        taskID,
		Status:    model.TaskStatus(status),
		Answer:    answer,
		Success:   success,
		Artifacts: artifacts,
	}, nil
}
