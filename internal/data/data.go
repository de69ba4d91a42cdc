// Package data provides a single task-CRUD surface regardless of whether the
// caller is authenticated.
//
// Authenticated calls go to the remote task API; guest calls go to the
// on-device local store. The backend is selected per call from an injected
// authentication-state func, never from global state, so the façade is
// trivially testable with fakes.
package data

import (
	"context"
	"time"

	"github.com/glimmerhq/glimpse/internal/localstore"
	"github.com/glimmerhq/glimpse/internal/remote"
	"github.com/glimmerhq/glimpse/internal/task"
)

// Backend is one of the two task storage variants behind the façade.
//
// Delete takes the full task rather than a bare identifier because the two
// backends key tasks in different namespaces: the local backend deletes by
// LocalID, the remote backend by the server-assigned ID.
type Backend interface {
	WeekTasks(ctx context.Context, start, end time.Time) ([]*task.Task, error)
	Create(ctx context.Context, t *task.Task) (*task.Task, error)
	Update(ctx context.Context, t *task.Task) (*task.Task, error)
	Delete(ctx context.Context, t *task.Task) error
}

// Facade chooses the local or remote backend per call.
//
// The façade applies no error handling of its own; whatever the selected
// backend returns propagates to the caller.
type Facade struct {
	local  Backend
	remote Backend
	authed func() bool
}

// New creates a façade over the two backends. The authed func reports the
// current authentication state and is consulted on every call.
func New(local, remote Backend, authed func() bool) *Facade {
	return &Facade{local: local, remote: remote, authed: authed}
}

func (f *Facade) backend() Backend {
	if f.authed() {
		return f.remote
	}
	return f.local
}

// WeekTasks returns tasks for the date range.
//
// In guest mode the range is ignored and all local tasks are returned; date
// filtering is left to the caller. This mirrors the documented simplification
// of the local store and is not a contract callers may rely on.
func (f *Facade) WeekTasks(ctx context.Context, start, end time.Time) ([]*task.Task, error) {
	return f.backend().WeekTasks(ctx, start, end)
}

// Create stores a new task. Authenticated creates let the server mint the
// identifier; guest creates return the input merged with the new local id.
func (f *Facade) Create(ctx context.Context, t *task.Task) (*task.Task, error) {
	return f.backend().Create(ctx, t)
}

// Update overwrites an existing task. Guest updates return the input
// unchanged with no server-side normalization applied.
func (f *Facade) Update(ctx context.Context, t *task.Task) (*task.Task, error) {
	return f.backend().Update(ctx, t)
}

// Delete removes a task. Guest deletes of missing rows are a no-op.
func (f *Facade) Delete(ctx context.Context, t *task.Task) error {
	return f.backend().Delete(ctx, t)
}

// LocalBackend adapts the guest store to the Backend interface.
type LocalBackend struct {
	store *localstore.Store
}

// NewLocalBackend wraps the guest store.
func NewLocalBackend(store *localstore.Store) *LocalBackend {
	return &LocalBackend{store: store}
}

// WeekTasks returns all guest tasks; the range is intentionally unused.
func (b *LocalBackend) WeekTasks(ctx context.Context, _, _ time.Time) ([]*task.Task, error) {
	return b.store.Tasks(ctx)
}

func (b *LocalBackend) Create(ctx context.Context, t *task.Task) (*task.Task, error) {
	id, err := b.store.Add(ctx, t)
	if err != nil {
		return nil, err
	}
	created := *t
	created.LocalID = id
	return &created, nil
}

func (b *LocalBackend) Update(ctx context.Context, t *task.Task) (*task.Task, error) {
	if err := b.store.Update(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

func (b *LocalBackend) Delete(ctx context.Context, t *task.Task) error {
	return b.store.Delete(ctx, t.LocalID)
}

// RemoteBackend adapts the task API client to the Backend interface.
type RemoteBackend struct {
	client *remote.Client
}

// NewRemoteBackend wraps the task API client.
func NewRemoteBackend(client *remote.Client) *RemoteBackend {
	return &RemoteBackend{client: client}
}

func (b *RemoteBackend) WeekTasks(ctx context.Context, start, end time.Time) ([]*task.Task, error) {
	return b.client.WeekTasks(ctx, start, end)
}

func (b *RemoteBackend) Create(ctx context.Context, t *task.Task) (*task.Task, error) {
	return b.client.CreateTask(ctx, t)
}

func (b *RemoteBackend) Update(ctx context.Context, t *task.Task) (*task.Task, error) {
	return b.client.UpdateTask(ctx, t)
}

func (b *RemoteBackend) Delete(ctx context.Context, t *task.Task) error {
	return b.client.DeleteTask(ctx, t.ID)
}
