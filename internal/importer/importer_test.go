package importer

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/glimmerhq/glimpse/internal/task"
)

type fakeBackend struct {
	mu       sync.Mutex
	existing []*task.Task
	created  []*task.Task
}

func (b *fakeBackend) WeekTasks(context.Context, time.Time, time.Time) ([]*task.Task, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.existing, nil
}

func (b *fakeBackend) Create(_ context.Context, t *task.Task) (*task.Task, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.created = append(b.created, t)
	return t, nil
}

func (b *fakeBackend) createdTasks() []*task.Task {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*task.Task(nil), b.created...)
}

func (b *fakeBackend) Update(_ context.Context, t *task.Task) (*task.Task, error) { return t, nil }
func (b *fakeBackend) Delete(context.Context, *task.Task) error                   { return nil }

var testLogger = log.New(os.Stderr, "[test] ", 0)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

func TestImportFileRelaxedJSON(t *testing.T) {
	path := writeFile(t, "tasks.json", `[
		// weekend chores
		{"title": "Mow the lawn", "priority": "low"},
		{"title": "Buy milk"},
	]`)

	backend := &fakeBackend{}
	imported, err := ImportFile(context.Background(), backend, path, testLogger)
	if err != nil {
		t.Fatalf("ImportFile failed: %v", err)
	}
	if imported != 2 || len(backend.created) != 2 {
		t.Fatalf("expected 2 imports, got %d", imported)
	}
	if backend.created[0].Priority != task.PriorityLow {
		t.Errorf("priority not preserved: %+v", backend.created[0])
	}
	if backend.created[1].Priority != task.PriorityMedium {
		t.Errorf("missing priority must default to medium: %+v", backend.created[1])
	}
}

func TestImportFileSingleObject(t *testing.T) {
	path := writeFile(t, "one.json", `{"title": "Buy milk"}`)

	backend := &fakeBackend{}
	imported, err := ImportFile(context.Background(), backend, path, testLogger)
	if err != nil {
		t.Fatalf("ImportFile failed: %v", err)
	}
	if imported != 1 {
		t.Errorf("expected 1 import, got %d", imported)
	}
}

func TestImportFileSkipsInvalidAndDuplicate(t *testing.T) {
	due := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	path := writeFile(t, "tasks.json", `[
		{"title": ""},
		{"title": "Standup", "dueDate": "2026-03-02T09:00:00Z"},
		{"title": "New task"}
	]`)

	backend := &fakeBackend{
		existing: []*task.Task{{Title: "Standup", DueDate: &due}},
	}
	imported, err := ImportFile(context.Background(), backend, path, testLogger)
	if err != nil {
		t.Fatalf("ImportFile failed: %v", err)
	}
	if imported != 1 || len(backend.created) != 1 {
		t.Fatalf("expected 1 import, got %d", imported)
	}
	if backend.created[0].Title != "New task" {
		t.Errorf("unexpected import %+v", backend.created[0])
	}
}

func TestImportFileMissing(t *testing.T) {
	backend := &fakeBackend{}
	if _, err := ImportFile(context.Background(), backend, "/nonexistent/tasks.json", testLogger); err == nil {
		t.Error("expected an error for a missing file")
	}
}

func TestWatcherImportsDroppedFile(t *testing.T) {
	dir := t.TempDir()
	backend := &fakeBackend{}

	w, err := NewWatcher(backend, testLogger)
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}
	if err := w.Start(dir); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer w.Stop()

	path := filepath.Join(dir, "drop.json")
	if err := os.WriteFile(path, []byte(`[{"title": "Buy milk"}]`), 0644); err != nil {
		t.Fatalf("failed to drop file: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for len(backend.createdTasks()) == 0 {
		select {
		case <-deadline:
			t.Fatal("dropped file was not imported")
		case <-time.After(10 * time.Millisecond):
		}
	}

	created := backend.createdTasks()
	if created[0].Title != "Buy milk" {
		t.Errorf("unexpected import %+v", created[0])
	}
}

func TestWatcherDoubleStart(t *testing.T) {
	w, err := NewWatcher(&fakeBackend{}, testLogger)
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}

	dir := t.TempDir()
	if err := w.Start(dir); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer w.Stop()

	if err := w.Start(dir); err == nil {
		t.Error("expected an error starting a running watcher")
	}
}
