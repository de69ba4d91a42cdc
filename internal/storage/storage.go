// Package storage provides the server-side task repository.
//
// The Postgres implementation backs production; the in-memory implementation
// backs tests and local development. Every mutating query is scoped by the
// owning user as defense in depth on top of the callers' authorization
// checks. No optimistic versioning is applied: concurrent writers to the
// same task race and the last write wins.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/glimmerhq/glimpse/internal/task"
)

// ErrNotFound is returned when no task matches the id/owner pair.
var ErrNotFound = errors.New("task not found")

// Repository is the server's task table.
type Repository interface {
	// TasksInRange returns the user's tasks whose due date falls inside
	// [start, end], ordered by due date then creation time.
	TasksInRange(ctx context.Context, userID string, start, end time.Time) ([]*task.Task, error)

	// AllTasks returns every task in the table. Used by the real-time
	// channel's catch-up push for new room joiners.
	AllTasks(ctx context.Context) ([]*task.Task, error)

	// Create inserts a task, minting its identifier. The input's ID field
	// is ignored.
	Create(ctx context.Context, t *task.Task) (*task.Task, error)

	// Update overwrites the task with t.ID, scoped to t.UserID. Returns
	// ErrNotFound when no row matches.
	Update(ctx context.Context, t *task.Task) (*task.Task, error)

	// Delete removes the task, scoped to the owner. Returns ErrNotFound
	// when no row matches.
	Delete(ctx context.Context, id, userID string) error

	// TaskByID fetches a single task, scoped to the owner. Returns
	// ErrNotFound when no row matches.
	TaskByID(ctx context.Context, id, userID string) (*task.Task, error)

	// DueBetween returns tasks of any user due inside (start, end], used
	// by the reminder scheduler.
	DueBetween(ctx context.Context, start, end time.Time) ([]*task.Task, error)
}
