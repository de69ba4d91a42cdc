package syncer

import (
	"context"
	"errors"
	"log"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/glimmerhq/glimpse/internal/localstore"
	"github.com/glimmerhq/glimpse/internal/task"
)

// fakeAPI is an in-memory stand-in for the remote task client.
type fakeAPI struct {
	pool []*task.Task

	fetchCalls  int
	created     []*task.Task
	updated     []*task.Task
	fetchErr    error
	failCreates map[string]error // keyed by title
}

func (a *fakeAPI) WeekTasks(_ context.Context, _, _ time.Time) ([]*task.Task, error) {
	a.fetchCalls++
	if a.fetchErr != nil {
		return nil, a.fetchErr
	}
	return a.pool, nil
}

func (a *fakeAPI) CreateTask(_ context.Context, t *task.Task) (*task.Task, error) {
	if err, ok := a.failCreates[t.Title]; ok {
		return nil, err
	}
	created := *t
	created.ID = "srv-new"
	a.created = append(a.created, &created)
	return &created, nil
}

func (a *fakeAPI) UpdateTask(_ context.Context, t *task.Task) (*task.Task, error) {
	a.updated = append(a.updated, t)
	return t, nil
}

// fakeLocal records deletions without touching disk.
type fakeLocal struct {
	tasks   []*task.Task
	deleted []int64
	readErr error
}

func (l *fakeLocal) Tasks(_ context.Context) ([]*task.Task, error) {
	if l.readErr != nil {
		return nil, l.readErr
	}
	return l.tasks, nil
}

func (l *fakeLocal) Delete(_ context.Context, localID int64) error {
	l.deleted = append(l.deleted, localID)
	return nil
}

func testLogger() *log.Logger {
	return log.New(os.Stderr, "[test] ", 0)
}

func dueOn(t *testing.T, s string) *time.Time {
	t.Helper()
	ts, err := time.Parse("2006-01-02", s)
	if err != nil {
		t.Fatalf("bad date %q: %v", s, err)
	}
	return &ts
}

func TestEmptyStoreSkipsNetwork(t *testing.T) {
	api := &fakeAPI{}
	engine := New(&fakeLocal{}, api, testLogger())

	count, err := engine.SyncOnLogin(context.Background())
	if err != nil {
		t.Fatalf("SyncOnLogin failed: %v", err)
	}
	if count != 0 {
		t.Errorf("expected 0 synced, got %d", count)
	}
	if api.fetchCalls != 0 {
		t.Errorf("expected no server fetch, got %d", api.fetchCalls)
	}
}

func TestCreatesWhenNoDuplicate(t *testing.T) {
	local := &fakeLocal{tasks: []*task.Task{
		{LocalID: 1, Title: "Buy milk", DueDate: dueOn(t, "2024-06-01")},
	}}
	api := &fakeAPI{} // empty candidate pool
	engine := New(local, api, testLogger())

	count, err := engine.SyncOnLogin(context.Background())
	if err != nil {
		t.Fatalf("SyncOnLogin failed: %v", err)
	}

	if count != 1 {
		t.Errorf("expected 1 synced, got %d", count)
	}
	if api.fetchCalls != 1 {
		t.Errorf("expected exactly one server fetch, got %d", api.fetchCalls)
	}
	if len(api.created) != 1 || api.created[0].Title != "Buy milk" {
		t.Fatalf("expected one create for Buy milk, got %+v", api.created)
	}
	if len(api.updated) != 0 {
		t.Errorf("expected no updates, got %d", len(api.updated))
	}
	if len(local.deleted) != 1 || local.deleted[0] != 1 {
		t.Errorf("expected local row 1 deleted, got %v", local.deleted)
	}
}

func TestUpdatesWhenDuplicateFound(t *testing.T) {
	due := dueOn(t, "2024-06-01")
	local := &fakeLocal{tasks: []*task.Task{
		{LocalID: 1, Title: "Buy milk", DueDate: due, Priority: task.PriorityHigh, Completed: true},
	}}
	api := &fakeAPI{pool: []*task.Task{
		{ID: "srv-9", Title: "Buy milk", DueDate: due, UserID: "u1"},
	}}
	engine := New(local, api, testLogger())

	count, err := engine.SyncOnLogin(context.Background())
	if err != nil {
		t.Fatalf("SyncOnLogin failed: %v", err)
	}

	if count != 1 {
		t.Errorf("expected 1 synced, got %d", count)
	}
	if len(api.created) != 0 {
		t.Errorf("expected no creates, got %d", len(api.created))
	}
	if len(api.updated) != 1 {
		t.Fatalf("expected one update, got %d", len(api.updated))
	}

	got := api.updated[0]
	if got.ID != "srv-9" {
		t.Errorf("update must preserve the server id, got %q", got.ID)
	}
	if got.Priority != task.PriorityHigh || !got.Completed {
		t.Errorf("update must overlay local fields, got %+v", got)
	}
	if len(local.deleted) != 1 || local.deleted[0] != 1 {
		t.Errorf("expected local row 1 deleted, got %v", local.deleted)
	}
}

func TestFirstPoolMatchWins(t *testing.T) {
	due := dueOn(t, "2024-06-01")
	local := &fakeLocal{tasks: []*task.Task{
		{LocalID: 1, Title: "Buy milk", DueDate: due},
	}}
	api := &fakeAPI{pool: []*task.Task{
		{ID: "srv-1", Title: "Buy milk", DueDate: due},
		{ID: "srv-2", Title: "Buy milk", DueDate: due},
	}}
	engine := New(local, api, testLogger())

	if _, err := engine.SyncOnLogin(context.Background()); err != nil {
		t.Fatalf("SyncOnLogin failed: %v", err)
	}
	if len(api.updated) != 1 || api.updated[0].ID != "srv-1" {
		t.Errorf("expected first pool match srv-1, got %+v", api.updated)
	}
}

func TestPartialFailureRetainsFailedRow(t *testing.T) {
	local := &fakeLocal{tasks: []*task.Task{
		{LocalID: 1, Title: "Task A"},
		{LocalID: 2, Title: "Task B"},
	}}
	api := &fakeAPI{failCreates: map[string]error{
		"Task A": errors.New("network timeout"),
	}}
	engine := New(local, api, testLogger())

	count, err := engine.SyncOnLogin(context.Background())
	if err != nil {
		t.Fatalf("a single task failure must not fail the pass: %v", err)
	}

	if count != 1 {
		t.Errorf("expected 1 synced, got %d", count)
	}
	if len(local.deleted) != 1 || local.deleted[0] != 2 {
		t.Errorf("only the synced row may be purged, got %v", local.deleted)
	}
}

func TestFetchFailureIsFatal(t *testing.T) {
	local := &fakeLocal{tasks: []*task.Task{{LocalID: 1, Title: "Task A"}}}
	api := &fakeAPI{fetchErr: errors.New("server unreachable")}
	engine := New(local, api, testLogger())

	if _, err := engine.SyncOnLogin(context.Background()); err == nil {
		t.Fatal("expected error when the candidate-pool fetch fails")
	}
	if len(api.created) != 0 || len(local.deleted) != 0 {
		t.Error("no partial sync may be attempted after a fatal fetch failure")
	}
}

func TestReadFailureIsFatal(t *testing.T) {
	local := &fakeLocal{readErr: errors.New("store corrupted")}
	api := &fakeAPI{}
	engine := New(local, api, testLogger())

	if _, err := engine.SyncOnLogin(context.Background()); err == nil {
		t.Fatal("expected error when the local read fails")
	}
	if api.fetchCalls != 0 {
		t.Error("no network calls may happen after a fatal local-read failure")
	}
}

// TestIdempotentAgainstRealStore runs two passes against the actual guest
// store: the first drains it, the second finds it empty and makes no
// network calls.
func TestIdempotentAgainstRealStore(t *testing.T) {
	store, err := localstore.Open(filepath.Join(t.TempDir(), "guest.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	if _, err := store.Add(ctx, &task.Task{Title: "Buy milk"}); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	api := &fakeAPI{}
	engine := New(store, api, testLogger())

	count, err := engine.SyncOnLogin(ctx)
	if err != nil {
		t.Fatalf("first pass failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 synced on first pass, got %d", count)
	}

	remaining, err := store.Count(ctx)
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if remaining != 0 {
		t.Fatalf("expected empty store after sync, got %d rows", remaining)
	}

	count, err = engine.SyncOnLogin(ctx)
	if err != nil {
		t.Fatalf("second pass failed: %v", err)
	}
	if count != 0 {
		t.Errorf("expected 0 synced on second pass, got %d", count)
	}
	if api.fetchCalls != 1 {
		t.Errorf("second pass must not refetch, got %d fetches total", api.fetchCalls)
	}
}
