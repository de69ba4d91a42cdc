package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/glimmerhq/glimpse/internal/task"
)

// Postgres implements Repository on a pgx connection pool.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres wraps an existing pool.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// OpenPostgres connects to the database at url and ensures the schema.
func OpenPostgres(ctx context.Context, url string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	p := &Postgres{pool: pool}
	if err := p.initSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return p, nil
}

// Close releases the pool.
func (p *Postgres) Close() {
	p.pool.Close()
}

func (p *Postgres) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS tasks (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		title TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		due_date TIMESTAMPTZ,
		priority TEXT NOT NULL DEFAULT 'medium',
		completed BOOLEAN NOT NULL DEFAULT FALSE,
		color TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_tasks_user ON tasks(user_id);
	CREATE INDEX IF NOT EXISTS idx_tasks_user_due ON tasks(user_id, due_date);
	`

	if _, err := p.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize tasks schema: %w", err)
	}
	return nil
}

const taskColumns = `id, user_id, title, description, due_date, priority, completed, color, created_at, updated_at`

func (p *Postgres) TasksInRange(ctx context.Context, userID string, start, end time.Time) ([]*task.Task, error) {
	query := `
	SELECT ` + taskColumns + `
	FROM tasks
	WHERE user_id = $1 AND due_date BETWEEN $2 AND $3
	ORDER BY due_date ASC, created_at ASC
	`

	rows, err := p.pool.Query(ctx, query, userID, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks in range: %w", err)
	}
	defer rows.Close()

	return collectTasks(rows)
}

func (p *Postgres) AllTasks(ctx context.Context) ([]*task.Task, error) {
	rows, err := p.pool.Query(ctx, `SELECT `+taskColumns+` FROM tasks ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query all tasks: %w", err)
	}
	defer rows.Close()

	return collectTasks(rows)
}

func (p *Postgres) Create(ctx context.Context, t *task.Task) (*task.Task, error) {
	if err := t.Validate(); err != nil {
		return nil, fmt.Errorf("invalid task: %w", err)
	}

	created := *t
	created.ID = uuid.NewString()
	created.SetDefaults()

	query := `
	INSERT INTO tasks (` + taskColumns + `)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := p.pool.Exec(ctx, query,
		created.ID,
		created.UserID,
		created.Title,
		created.Description,
		created.DueDate,
		string(created.Priority),
		created.Completed,
		created.Color,
		created.CreatedAt,
		created.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert task: %w", err)
	}

	return &created, nil
}

func (p *Postgres) Update(ctx context.Context, t *task.Task) (*task.Task, error) {
	if err := t.Validate(); err != nil {
		return nil, fmt.Errorf("invalid task: %w", err)
	}

	updated := *t
	updated.UpdateTimestamp()

	query := `
	UPDATE tasks SET
		title = $1,
		description = $2,
		due_date = $3,
		priority = $4,
		completed = $5,
		color = $6,
		updated_at = $7
	WHERE id = $8 AND user_id = $9
	`

	tag, err := p.pool.Exec(ctx, query,
		updated.Title,
		updated.Description,
		updated.DueDate,
		string(updated.Priority),
		updated.Completed,
		updated.Color,
		updated.UpdatedAt,
		updated.ID,
		updated.UserID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update task %s: %w", t.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrNotFound
	}

	return &updated, nil
}

func (p *Postgres) Delete(ctx context.Context, id, userID string) error {
	tag, err := p.pool.Exec(ctx, `DELETE FROM tasks WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("failed to delete task %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) TaskByID(ctx context.Context, id, userID string) (*task.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = $1 AND user_id = $2`

	rows, err := p.pool.Query(ctx, query, id, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query task %s: %w", id, err)
	}
	defer rows.Close()

	tasks, err := collectTasks(rows)
	if err != nil {
		return nil, err
	}
	if len(tasks) == 0 {
		return nil, ErrNotFound
	}
	return tasks[0], nil
}

func (p *Postgres) DueBetween(ctx context.Context, start, end time.Time) ([]*task.Task, error) {
	query := `
	SELECT ` + taskColumns + `
	FROM tasks
	WHERE due_date > $1 AND due_date <= $2 AND NOT completed
	ORDER BY due_date ASC
	`

	rows, err := p.pool.Query(ctx, query, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to query due tasks: %w", err)
	}
	defer rows.Close()

	return collectTasks(rows)
}

func collectTasks(rows pgx.Rows) ([]*task.Task, error) {
	var tasks []*task.Task
	for rows.Next() {
		var t task.Task
		var priority string
		var due *time.Time

		err := rows.Scan(
			&t.ID,
			&t.UserID,
			&t.Title,
			&t.Description,
			&due,
			&priority,
			&t.Completed,
			&t.Color,
			&t.CreatedAt,
			&t.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}

		t.Priority = task.Priority(priority)
		t.DueDate = due
		tasks = append(tasks, &t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tasks: %w", err)
	}
	return tasks, nil
}
