package data

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glimmerhq/glimpse/internal/task"
)

// fakeBackend records which operations were invoked on it.
type fakeBackend struct {
	name  string
	calls []string
	err   error
}

func (b *fakeBackend) WeekTasks(_ context.Context, _, _ time.Time) ([]*task.Task, error) {
	b.calls = append(b.calls, "week")
	if b.err != nil {
		return nil, b.err
	}
	return []*task.Task{{Title: "from " + b.name}}, nil
}

func (b *fakeBackend) Create(_ context.Context, t *task.Task) (*task.Task, error) {
	b.calls = append(b.calls, "create")
	if b.err != nil {
		return nil, b.err
	}
	return t, nil
}

func (b *fakeBackend) Update(_ context.Context, t *task.Task) (*task.Task, error) {
	b.calls = append(b.calls, "update")
	if b.err != nil {
		return nil, b.err
	}
	return t, nil
}

func (b *fakeBackend) Delete(_ context.Context, _ *task.Task) error {
	b.calls = append(b.calls, "delete")
	return b.err
}

func TestFacadeSelectsBackendPerCall(t *testing.T) {
	local := &fakeBackend{name: "local"}
	remote := &fakeBackend{name: "remote"}

	authed := false
	facade := New(local, remote, func() bool { return authed })
	ctx := context.Background()
	now := time.Now()

	// Guest: everything goes to the local backend.
	tasks, err := facade.WeekTasks(ctx, now, now)
	require.NoError(t, err)
	assert.Equal(t, "from local", tasks[0].Title)

	_, err = facade.Create(ctx, &task.Task{Title: "a"})
	require.NoError(t, err)
	_, err = facade.Update(ctx, &task.Task{Title: "a"})
	require.NoError(t, err)
	require.NoError(t, facade.Delete(ctx, &task.Task{LocalID: 1}))

	assert.Equal(t, []string{"week", "create", "update", "delete"}, local.calls)
	assert.Empty(t, remote.calls)

	// Login flips the selection without rebuilding the façade.
	authed = true
	tasks, err = facade.WeekTasks(ctx, now, now)
	require.NoError(t, err)
	assert.Equal(t, "from remote", tasks[0].Title)
	assert.Equal(t, []string{"week"}, remote.calls)
}

func TestFacadePropagatesErrors(t *testing.T) {
	boom := errors.New("remote unreachable")
	facade := New(&fakeBackend{name: "local"}, &fakeBackend{name: "remote", err: boom}, func() bool { return true })

	_, err := facade.Create(context.Background(), &task.Task{Title: "a"})
	assert.ErrorIs(t, err, boom)
}

func TestLocalBackendCreateAssignsLocalID(t *testing.T) {
	store := newTestStore(t)
	backend := NewLocalBackend(store)
	ctx := context.Background()

	created, err := backend.Create(ctx, &task.Task{Title: "Buy milk"})
	require.NoError(t, err)
	assert.NotZero(t, created.LocalID)
	assert.Empty(t, created.ID, "guest tasks must not carry a server id")

	// The range is ignored in guest mode; everything comes back.
	farFuture := time.Now().AddDate(10, 0, 0)
	tasks, err := backend.WeekTasks(ctx, farFuture, farFuture)
	require.NoError(t, err)
	assert.Len(t, tasks, 1)
}

func TestLocalBackendDeleteMissingRowIsNoOp(t *testing.T) {
	backend := NewLocalBackend(newTestStore(t))

	err := backend.Delete(context.Background(), &task.Task{LocalID: 12345})
	assert.NoError(t, err)
}
