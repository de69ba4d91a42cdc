package gcal

import (
	"context"
	"log"
	"os"
	"strings"
	"testing"
	"time"

	"google.golang.org/api/calendar/v3"

	"github.com/glimmerhq/glimpse/internal/task"
)

func TestEventToTaskTimed(t *testing.T) {
	event := &calendar.Event{
		Summary:     "Dentist",
		Description: "Bring insurance card",
		Start:       &calendar.EventDateTime{DateTime: "2024-06-05T09:30:00Z"},
	}

	got, err := EventToTask(event)
	if err != nil {
		t.Fatalf("EventToTask failed: %v", err)
	}
	if got.Title != "Dentist" || got.Description != "Bring insurance card" {
		t.Errorf("unexpected task %+v", got)
	}
	if got.Priority != task.PriorityMedium {
		t.Errorf("imported tasks default to medium priority, got %q", got.Priority)
	}

	want := time.Date(2024, 6, 5, 9, 30, 0, 0, time.UTC)
	if got.DueDate == nil || !got.DueDate.Equal(want) {
		t.Errorf("expected due date %v, got %v", want, got.DueDate)
	}
}

func TestEventToTaskAllDay(t *testing.T) {
	event := &calendar.Event{
		Summary: "Holiday",
		Start:   &calendar.EventDateTime{Date: "2024-12-25"},
	}

	got, err := EventToTask(event)
	if err != nil {
		t.Fatalf("EventToTask failed: %v", err)
	}
	want := time.Date(2024, 12, 25, 0, 0, 0, 0, time.UTC)
	if got.DueDate == nil || !got.DueDate.Equal(want) {
		t.Errorf("expected due date %v, got %v", want, got.DueDate)
	}
}

func TestEventToTaskNoSummary(t *testing.T) {
	if _, err := EventToTask(&calendar.Event{}); err == nil {
		t.Error("expected an error for an event without a summary")
	}
}

func TestEventToTaskNoStart(t *testing.T) {
	got, err := EventToTask(&calendar.Event{Summary: "Someday"})
	if err != nil {
		t.Fatalf("EventToTask failed: %v", err)
	}
	if got.DueDate != nil {
		t.Errorf("events without a start must import undated, got %v", got.DueDate)
	}
}

func TestEventToTaskTruncatesLongSummary(t *testing.T) {
	got, err := EventToTask(&calendar.Event{Summary: strings.Repeat("x", 150)})
	if err != nil {
		t.Fatalf("EventToTask failed: %v", err)
	}
	if len(got.Title) != 100 {
		t.Errorf("expected title truncated to 100 chars, got %d", len(got.Title))
	}
	if err := got.Validate(); err != nil {
		t.Errorf("truncated task must validate: %v", err)
	}
}

type importBackend struct {
	existing []*task.Task
	created  []*task.Task
	err      error
}

func (b *importBackend) WeekTasks(context.Context, time.Time, time.Time) ([]*task.Task, error) {
	return b.existing, nil
}

func (b *importBackend) Create(_ context.Context, t *task.Task) (*task.Task, error) {
	if b.err != nil {
		return nil, b.err
	}
	b.created = append(b.created, t)
	return t, nil
}

func (b *importBackend) Update(_ context.Context, t *task.Task) (*task.Task, error) { return t, nil }
func (b *importBackend) Delete(context.Context, *task.Task) error                   { return nil }

func TestImportDedupe(t *testing.T) {
	due := time.Date(2024, 6, 5, 9, 30, 0, 0, time.UTC)
	backend := &importBackend{
		existing: []*task.Task{{Title: "Dentist", DueDate: &due}},
	}

	logger := log.New(os.Stderr, "[test] ", 0)

	// The importer only ever touches the backend once the events are in
	// hand, so the conversion and dedupe pass can be driven directly.
	events := []*calendar.Event{
		{Summary: "Dentist", Start: &calendar.EventDateTime{DateTime: "2024-06-05T09:30:00Z"}},
		{Summary: "Team lunch", Start: &calendar.EventDateTime{DateTime: "2024-06-06T12:00:00Z"}},
		{Summary: "Team lunch", Start: &calendar.EventDateTime{DateTime: "2024-06-06T12:00:00Z"}},
		{}, // no summary, skipped
	}

	imported := importEvents(context.Background(), backend, events, time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), logger)
	if imported != 1 {
		t.Fatalf("expected 1 import, got %d", imported)
	}
	if len(backend.created) != 1 || backend.created[0].Title != "Team lunch" {
		t.Errorf("unexpected created tasks %+v", backend.created)
	}
}

func TestImportEventsToleratesBackendFailures(t *testing.T) {
	backend := &importBackend{err: context.DeadlineExceeded}
	logger := log.New(os.Stderr, "[test] ", 0)

	events := []*calendar.Event{
		{Summary: "Dentist", Start: &calendar.EventDateTime{DateTime: "2024-06-05T09:30:00Z"}},
	}

	since := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	if got := importEvents(context.Background(), backend, events, since, logger); got != 0 {
		t.Errorf("expected 0 imports when the backend fails, got %d", got)
	}
}
