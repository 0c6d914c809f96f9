// Package history archives terminal task outcomes. The archive is an audit
// trail, not operational state: tasks are owned by the orchestrator until
// they reach a terminal state and only then handed here.
package history

import (
	"context"
	"fmt"
	"time"

	"github.com/Gourav1632/into-the-repo/internal/logging"
	"github.com/Gourav1632/into-the-repo/internal/storage"
)

// Entry is one archived task outcome.
type Entry struct {
	RequestID   string    `json:"requestId"`
	UserID      string    `json:"userId,omitempty"`
	Repo        string    `json:"repo"`
	Branch      string    `json:"branch"`
	Commit      string    `json:"commit,omitempty"`
	State       string    `json:"state"`
	ErrorCode   string    `json:"errorCode,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	CompletedAt time.Time `json:"completedAt"`
}

// Recorder accepts terminal task records.
type Recorder interface {
	Record(ctx context.Context, entry Entry) error
}

// Store is the SQLite-backed recorder.
type Store struct {
	db     *storage.DB
	logger *logging.Logger
}

func NewStore(db *storage.DB, logger *logging.Logger) *Store {
	return &Store{db: db, logger: logger}
}

func (s *Store) Record(ctx context.Context, entry Entry) error {
	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO task_archive
		 (request_id, user_id, repo, branch, commit_id, state, error_code, created_at, completed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.RequestID, entry.UserID, entry.Repo, entry.Branch, entry.Commit,
		entry.State, entry.ErrorCode,
		entry.CreatedAt.UTC().Format(time.RFC3339),
		entry.CompletedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("archiving task %s: %w", entry.RequestID, err)
	}
	return nil
}

// List returns archived outcomes for one repository, newest first.
func (s *Store) List(ctx context.Context, repo, branch string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(
		`SELECT request_id, user_id, repo, branch, commit_id, state, error_code, created_at, completed_at
		 FROM task_archive
		 WHERE repo = ? AND (? = '' OR branch = ?)
		 ORDER BY created_at DESC
		 LIMIT ?`,
		repo, branch, branch, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing task archive: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var created, completed string
		if err := rows.Scan(&e.RequestID, &e.UserID, &e.Repo, &e.Branch, &e.Commit,
			&e.State, &e.ErrorCode, &created, &completed); err != nil {
			return nil, err
		}
		e.CreatedAt, _ = time.Parse(time.RFC3339, created)
		e.CompletedAt, _ = time.Parse(time.RFC3339, completed)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
