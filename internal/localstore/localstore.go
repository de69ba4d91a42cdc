// Package localstore provides the on-device task store used in guest mode.
//
// Guest tasks live in a local SQLite database with no owning-user linkage;
// the data is implicitly scoped to the device. Rows are keyed by an
// autoincrement local id, a namespace fully separate from the string ids the
// server mints. After a successful sync pass the synced rows are deleted.
//
// The database runs embedded with WAL mode enabled so CLI commands and a
// long-lived process can share it safely.
package localstore

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/glimmerhq/glimpse/internal/task"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// Store wraps the guest-mode SQLite database.
type Store struct {
	conn *sql.DB
	path string
}

// Open creates a new store at the specified path.
//
// The parent directory is created if needed, the schema is applied, and WAL
// mode is enabled. The caller must call Close when done.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", "file:"+path)
	if err != nil {
		return nil, fmt.Errorf("failed to open local store: %w", err)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping local store: %w", err)
	}

	s := &Store{conn: conn, path: path}

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := s.conn.Exec(pragma); err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	if err := s.initSchema(); err != nil {
		_ = s.Close()
		return nil, err
	}

	return s, nil
}

// Close closes the database connection after checkpointing the WAL.
func (s *Store) Close() error {
	if s.conn == nil {
		return nil
	}

	if _, err := s.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint WAL: %v\n", err)
	}

	if err := s.conn.Close(); err != nil {
		return fmt.Errorf("failed to close local store: %w", err)
	}

	s.conn = nil
	return nil
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS tasks (
		local_id INTEGER PRIMARY KEY AUTOINCREMENT,
		title TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		due_date TEXT,
		priority TEXT NOT NULL DEFAULT 'medium',
		completed TEXT NOT NULL DEFAULT 'false',
		color TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_tasks_due ON tasks(due_date);
	`

	if _, err := s.conn.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize local store schema: %w", err)
	}
	return nil
}

// Tasks returns all guest tasks in insertion order.
func (s *Store) Tasks(ctx context.Context) ([]*task.Task, error) {
	query := `
	SELECT local_id, title, description, due_date, priority, completed,
	       color, created_at, updated_at
	FROM tasks
	ORDER BY local_id ASC
	`

	rows, err := s.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query local tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*task.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating local tasks: %w", err)
	}

	return tasks, nil
}

// Add inserts a guest task and returns its newly assigned local id.
func (s *Store) Add(ctx context.Context, t *task.Task) (int64, error) {
	if err := t.Validate(); err != nil {
		return 0, fmt.Errorf("invalid task: %w", err)
	}
	t.SetDefaults()

	query := `
	INSERT INTO tasks (title, description, due_date, priority, completed,
	                   color, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	res, err := s.conn.ExecContext(ctx, query,
		t.Title,
		t.Description,
		timeToNullString(t.DueDate),
		string(t.Priority),
		strconv.FormatBool(t.Completed),
		t.Color,
		t.CreatedAt.Format(time.RFC3339),
		t.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to add local task: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read local task id: %w", err)
	}
	return id, nil
}

// Update overwrites the stored row for t.LocalID.
//
// Updating a row that does not exist is not an error; the call is a no-op.
func (s *Store) Update(ctx context.Context, t *task.Task) error {
	if err := t.Validate(); err != nil {
		return fmt.Errorf("invalid task: %w", err)
	}
	t.UpdateTimestamp()

	query := `
	UPDATE tasks SET
		title = ?,
		description = ?,
		due_date = ?,
		priority = ?,
		completed = ?,
		color = ?,
		updated_at = ?
	WHERE local_id = ?
	`

	_, err := s.conn.ExecContext(ctx, query,
		t.Title,
		t.Description,
		timeToNullString(t.DueDate),
		string(t.Priority),
		strconv.FormatBool(t.Completed),
		t.Color,
		t.UpdatedAt.Format(time.RFC3339),
		t.LocalID,
	)
	if err != nil {
		return fmt.Errorf("failed to update local task %d: %w", t.LocalID, err)
	}
	return nil
}

// Delete removes a guest task. Deleting a missing row is a no-op.
func (s *Store) Delete(ctx context.Context, localID int64) error {
	_, err := s.conn.ExecContext(ctx, `DELETE FROM tasks WHERE local_id = ?`, localID)
	if err != nil {
		return fmt.Errorf("failed to delete local task %d: %w", localID, err)
	}
	return nil
}

// Count returns the number of guest tasks.
func (s *Store) Count(ctx context.Context) (int, error) {
	var count int
	err := s.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM tasks").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count local tasks: %w", err)
	}
	return count, nil
}

func scanTask(rows *sql.Rows) (*task.Task, error) {
	var t task.Task
	var due sql.NullString
	var priority, completed, createdAt, updatedAt string

	err := rows.Scan(
		&t.LocalID,
		&t.Title,
		&t.Description,
		&due,
		&priority,
		&completed,
		&t.Color,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan local task: %w", err)
	}

	t.Priority = task.Priority(priority)
	// Completion state is stored as the strings "true"/"false"; anything
	// unparseable reads back as not completed.
	t.Completed, _ = strconv.ParseBool(completed)
	t.DueDate = nullStringToTime(due)

	if ts, err := time.Parse(time.RFC3339, createdAt); err == nil {
		t.CreatedAt = ts
	}
	if ts, err := time.Parse(time.RFC3339, updatedAt); err == nil {
		t.UpdatedAt = ts
	}

	return &t, nil
}

func timeToNullString(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.Format(time.RFC3339), Valid: true}
}

func nullStringToTime(ns sql.NullString) *time.Time {
	if !ns.Valid {
		return nil
	}
	t, err := time.Parse(time.RFC3339, ns.String)
	if err != nil {
		return nil
	}
	return &t
}
