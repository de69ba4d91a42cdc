// Package importer loads tasks from JSON files, either one-shot or by
// watching a drop directory.
//
// Files hold an array of tasks (or a single task object) and may use
// relaxed JSON with comments and trailing commas. Entries that already
// exist (same title and due date) are skipped, so re-importing a file is
// harmless.
package importer

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/tailscale/hujson"

	"github.com/glimmerhq/glimpse/internal/data"
	"github.com/glimmerhq/glimpse/internal/task"
)

// ImportFile reads tasks from a JSON file and creates the ones that do not
// already exist. Invalid entries are logged and skipped. Returns the number
// of tasks created.
func ImportFile(ctx context.Context, backend data.Backend, path string, logger *log.Logger) (int, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("failed to read %s: %w", path, err)
	}

	tasks, err := ParseTasks(raw)
	if err != nil {
		return 0, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	return importTasks(ctx, backend, tasks, logger), nil
}

// ParseTasks decodes a relaxed-JSON task array. A single task object is
// accepted as a one-element array.
func ParseTasks(raw []byte) ([]*task.Task, error) {
	std, err := hujson.Standardize(raw)
	if err != nil {
		return nil, err
	}

	var tasks []*task.Task
	if err := json.Unmarshal(std, &tasks); err == nil {
		return tasks, nil
	}

	var single task.Task
	if err := json.Unmarshal(std, &single); err != nil {
		return nil, err
	}
	return []*task.Task{&single}, nil
}

func importTasks(ctx context.Context, backend data.Backend, tasks []*task.Task, logger *log.Logger) int {
	// Existing tasks form the duplicate pool; the guest backend returns
	// everything regardless of range.
	now := time.Now()
	existing, err := backend.WeekTasks(ctx, now.AddDate(-1, 0, 0), now.AddDate(1, 0, 0))
	if err != nil {
		logger.Printf("Failed to load existing tasks, importing without dedupe: %v", err)
	}

	imported := 0
	for i, t := range tasks {
		t.SetDefaults()
		if err := t.Validate(); err != nil {
			logger.Printf("Skipping entry %d: %v", i, err)
			continue
		}

		if hasDuplicate(t, existing) {
			continue
		}

		created, err := backend.Create(ctx, t)
		if err != nil {
			logger.Printf("Failed to import entry %d (%s): %v", i, t.Title, err)
			continue
		}

		existing = append(existing, created)
		imported++
	}

	return imported
}

func hasDuplicate(t *task.Task, pool []*task.Task) bool {
	for _, candidate := range pool {
		if candidate.SameSlot(t) {
			return true
		}
	}
	return false
}
