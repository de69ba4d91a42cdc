// Package task provides the core task data structures shared by the
// local guest store, the server repository, and the sync engine.
package task

import (
	"fmt"
	"strings"
	"time"
)

// Priority is the task urgency level.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Valid reports whether p is one of the known priority levels.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

// Task represents a calendar task.
//
// A task carries two identifiers in different namespaces. ID is the
// server-assigned identifier and is empty for tasks that only exist in the
// guest store. LocalID is the guest store row id and is never sent to the
// server as the authoritative identifier for a new task; it is used only to
// correlate local rows for deletion after a sync pass. The two are never
// compared with each other.
type Task struct {
	ID      string `json:"id,omitempty"`
	LocalID int64  `json:"-"`

	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	DueDate     *time.Time `json:"dueDate,omitempty"`
	Priority    Priority   `json:"priority"`
	Completed   bool       `json:"completed"`

	// UserID is empty for guest-store tasks (guest data is implicitly
	// scoped to the device); tasks in the server task set always have it.
	UserID string `json:"userId,omitempty"`

	// Color is an optional #RRGGBB display hint.
	Color string `json:"color,omitempty"`

	CreatedAt time.Time `json:"createdAt,omitempty"`
	UpdatedAt time.Time `json:"updatedAt,omitempty"`
}

// Validate checks the task's field constraints.
func (t *Task) Validate() error {
	if strings.TrimSpace(t.Title) == "" {
		return fmt.Errorf("title is required")
	}
	if len(t.Title) > 100 {
		return fmt.Errorf("title must be 100 characters or less (got %d)", len(t.Title))
	}
	if len(t.Description) > 1000 {
		return fmt.Errorf("description must be 1000 characters or less (got %d)", len(t.Description))
	}
	if t.Priority != "" && !t.Priority.Valid() {
		return fmt.Errorf("priority must be one of low, medium, high (got %q)", t.Priority)
	}
	if t.Color != "" && !validColor(t.Color) {
		return fmt.Errorf("color must be in #RRGGBB format (got %q)", t.Color)
	}
	return nil
}

// SetDefaults applies default values for optional fields.
func (t *Task) SetDefaults() {
	if t.Priority == "" {
		t.Priority = PriorityMedium
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	if t.UpdatedAt.IsZero() {
		t.UpdatedAt = time.Now()
	}
}

// UpdateTimestamp sets UpdatedAt to the current time.
func (t *Task) UpdateTimestamp() {
	t.UpdatedAt = time.Now()
}

// SameSlot reports whether the other task has an exactly matching title and
// due date. This is the duplicate-detection rule used by the sync engine and
// the calendar import: string equality on the title, value equality on the
// due timestamp. It is deliberately exact; timezone-shifted renderings of the
// same instant with different wall clocks do not match.
func (t *Task) SameSlot(other *Task) bool {
	if t.Title != other.Title {
		return false
	}
	if t.DueDate == nil || other.DueDate == nil {
		return t.DueDate == other.DueDate
	}
	return t.DueDate.Equal(*other.DueDate)
}

func validColor(s string) bool {
	if len(s) != 7 || s[0] != '#' {
		return false
	}
	for _, c := range s[1:] {
		switch {
		case c >= '0' && c <= '9':
		case c >= 'a' && c <= 'f':
		case c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}
