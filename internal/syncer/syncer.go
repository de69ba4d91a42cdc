// Package syncer migrates guest-mode tasks into the authenticated account.
//
// The engine runs one reconciliation pass per login: it drains the local
// guest store into the server's task set, reusing existing server tasks when
// a duplicate is detected, then purges the synced local rows. Individual
// task failures never abort the pass; failed rows stay local for a later
// attempt, which is the documented recovery path.
package syncer

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/glimmerhq/glimpse/internal/task"
)

// LocalStore is the slice of the guest store the engine reads and purges.
type LocalStore interface {
	Tasks(ctx context.Context) ([]*task.Task, error)
	Delete(ctx context.Context, localID int64) error
}

// API is the slice of the remote task client the engine writes through.
type API interface {
	WeekTasks(ctx context.Context, start, end time.Time) ([]*task.Task, error)
	CreateTask(ctx context.Context, t *task.Task) (*task.Task, error)
	UpdateTask(ctx context.Context, t *task.Task) (*task.Task, error)
}

// outcome is the per-task result of one sync pass. Jobs are built at the
// start of a pass and discarded when it completes; they are never persisted.
type outcome string

const (
	outcomeCreated outcome = "created"
	outcomeUpdated outcome = "updated"
	outcomeFailed  outcome = "failed"
)

// Engine performs the one-shot login sync.
type Engine struct {
	local  LocalStore
	api    API
	logger *log.Logger

	// now is overridable in tests to pin the candidate-pool window.
	now func() time.Time
}

// New creates a sync engine. If logger is nil, a default logger writing to
// stderr is used.
func New(local LocalStore, api API, logger *log.Logger) *Engine {
	if logger == nil {
		logger = log.New(os.Stderr, "[sync] ", log.LstdFlags)
	}
	return &Engine{
		local:  local,
		api:    api,
		logger: logger,
		now:    time.Now,
	}
}

// SyncOnLogin drains the guest store into the server's task set and returns
// the number of tasks synced.
//
// An empty guest store returns 0 immediately with no network calls, which
// also makes a second pass after a successful sync a cheap no-op. The
// initial local read and the initial server fetch are fatal; everything
// after that is tolerated per task.
func (e *Engine) SyncOnLogin(ctx context.Context) (int, error) {
	localTasks, err := e.local.Tasks(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to read local tasks: %w", err)
	}

	if len(localTasks) == 0 {
		e.logger.Printf("No local tasks to sync")
		return 0, nil
	}

	e.logger.Printf("Starting sync of %d local tasks", len(localTasks))

	// Build the duplicate-candidate pool from a generously wide window:
	// six months behind to six months ahead of now. The window is a
	// heuristic that avoids pagination while catching any plausible
	// pre-existing match, not a correctness guarantee.
	now := e.now()
	pool, err := e.api.WeekTasks(ctx, now.AddDate(0, -6, 0), now.AddDate(0, 6, 0))
	if err != nil {
		return 0, fmt.Errorf("failed to fetch server tasks: %w", err)
	}

	var synced []int64
	for _, localTask := range localTasks {
		switch e.syncOne(ctx, localTask, pool) {
		case outcomeCreated, outcomeUpdated:
			synced = append(synced, localTask.LocalID)
		case outcomeFailed:
			// Row stays in the guest store for a future pass.
		}
	}

	// Purge only the rows that made it to the server.
	for _, id := range synced {
		if err := e.local.Delete(ctx, id); err != nil {
			e.logger.Printf("WARNING: failed to remove synced local task %d: %v", id, err)
		}
	}

	e.logger.Printf("Synced %d tasks successfully", len(synced))
	return len(synced), nil
}

// syncOne pushes a single guest task to the server, reusing a pool task when
// one matches the duplicate-detection rule.
func (e *Engine) syncOne(ctx context.Context, localTask *task.Task, pool []*task.Task) outcome {
	if match := findDuplicate(localTask, pool); match != nil {
		// Overlay the local fields onto the matched server task,
		// explicitly preserving the server-assigned identifier.
		overlay := *match
		overlay.Title = localTask.Title
		overlay.Description = localTask.Description
		overlay.Priority = localTask.Priority
		overlay.Completed = localTask.Completed

		if _, err := e.api.UpdateTask(ctx, &overlay); err != nil {
			e.logger.Printf("Error syncing task %d: %v", localTask.LocalID, err)
			return outcomeFailed
		}
		return outcomeUpdated
	}

	create := &task.Task{
		Title:       localTask.Title,
		Description: localTask.Description,
		DueDate:     localTask.DueDate,
		Priority:    localTask.Priority,
		Completed:   localTask.Completed,
		Color:       localTask.Color,
	}
	if _, err := e.api.CreateTask(ctx, create); err != nil {
		e.logger.Printf("Error syncing task %d: %v", localTask.LocalID, err)
		return outcomeFailed
	}
	return outcomeCreated
}

// findDuplicate returns the first pool task whose title and due date both
// match the local task exactly. First match wins; pool order breaks ties.
func findDuplicate(localTask *task.Task, pool []*task.Task) *task.Task {
	for _, candidate := range pool {
		if candidate.SameSlot(localTask) {
			return candidate
		}
	}
	return nil
}
