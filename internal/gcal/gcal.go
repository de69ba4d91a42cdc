// Package gcal imports Google Calendar events as tasks.
//
// Events are converted to tasks (summary becomes the title, the event start
// becomes the due date) and stored through the data façade, so imports land
// in the guest store or the account depending on authentication state.
// Re-imports are de-duplicated with the same exact title+due-date rule the
// sync engine uses.
package gcal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/natefinch/atomic"
	"golang.org/x/oauth2"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"github.com/glimmerhq/glimpse/internal/data"
	"github.com/glimmerhq/glimpse/internal/task"
)

// LoadToken reads a cached oauth2 token from disk.
func LoadToken(path string) (*oauth2.Token, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("unable to read token file %s: %w", path, err)
	}

	var tok oauth2.Token
	if err := json.Unmarshal(b, &tok); err != nil {
		return nil, fmt.Errorf("unable to parse token file %s: %w", path, err)
	}
	return &tok, nil
}

// SaveToken writes an oauth2 token to disk atomically.
func SaveToken(path string, tok *oauth2.Token) error {
	b, err := json.MarshalIndent(tok, "", "  ")
	if err != nil {
		return fmt.Errorf("unable to encode token: %w", err)
	}
	if err := atomic.WriteFile(path, bytes.NewReader(b)); err != nil {
		return fmt.Errorf("unable to write token file %s: %w", path, err)
	}
	return os.Chmod(path, 0600)
}

// NewService builds a calendar service from client credentials and a cached
// token. Obtaining the token in the first place (the consent flow) is the
// identity provider's concern, not this package's.
func NewService(ctx context.Context, clientID, clientSecret, tokenFile string) (*calendar.Service, error) {
	config := &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint: oauth2.Endpoint{
			AuthURL:  "https://accounts.google.com/o/oauth2/auth",
			TokenURL: "https://oauth2.googleapis.com/token",
		},
		Scopes: []string{calendar.CalendarReadonlyScope},
	}

	tok, err := LoadToken(tokenFile)
	if err != nil {
		return nil, err
	}

	srv, err := calendar.NewService(ctx, option.WithHTTPClient(config.Client(ctx, tok)))
	if err != nil {
		return nil, fmt.Errorf("unable to create calendar client: %w", err)
	}
	return srv, nil
}

// Importer pulls calendar events into the task store.
type Importer struct {
	srv     *calendar.Service
	backend data.Backend
	logger  *log.Logger
}

// NewImporter creates an importer writing through the given backend. If
// logger is nil, a default logger writing to stderr is used.
func NewImporter(srv *calendar.Service, backend data.Backend, logger *log.Logger) *Importer {
	if logger == nil {
		logger = log.New(os.Stderr, "[gcal] ", log.LstdFlags)
	}
	return &Importer{srv: srv, backend: backend, logger: logger}
}

// Import fetches events starting at or after since and creates a task per
// event that does not already exist. Individual event failures are logged
// and skipped. Returns the number of tasks created.
func (i *Importer) Import(ctx context.Context, calendarID string, since time.Time) (int, error) {
	events, err := i.srv.Events.List(calendarID).
		TimeMin(since.Format(time.RFC3339)).
		SingleEvents(true).
		OrderBy("startTime").
		Context(ctx).
		Do()
	if err != nil {
		return 0, fmt.Errorf("unable to retrieve events from calendar: %w", err)
	}

	imported := importEvents(ctx, i.backend, events.Items, since, i.logger)
	i.logger.Printf("Imported %d events from calendar %s", imported, calendarID)
	return imported, nil
}

// importEvents converts and stores events, skipping duplicates and logging
// per-event failures. Returns the number of tasks created.
func importEvents(ctx context.Context, backend data.Backend, events []*calendar.Event, since time.Time, logger *log.Logger) int {
	// Existing tasks form the duplicate pool; in guest mode the backend
	// returns everything regardless of range.
	existing, err := backend.WeekTasks(ctx, since, since.AddDate(1, 0, 0))
	if err != nil {
		logger.Printf("Failed to load existing tasks, importing without dedupe: %v", err)
	}

	imported := 0
	for _, event := range events {
		t, err := EventToTask(event)
		if err != nil {
			logger.Printf("Skipping event %q: %v", event.Id, err)
			continue
		}

		if hasDuplicate(t, existing) {
			continue
		}

		created, err := backend.Create(ctx, t)
		if err != nil {
			logger.Printf("Failed to import event %q: %v", event.Id, err)
			continue
		}

		existing = append(existing, created)
		imported++
	}

	return imported
}

// EventToTask converts a calendar event into a task.
func EventToTask(event *calendar.Event) (*task.Task, error) {
	if event.Summary == "" {
		return nil, fmt.Errorf("event has no summary")
	}

	title := event.Summary
	if len(title) > 100 {
		title = title[:100]
	}

	t := &task.Task{
		Title:       title,
		Description: event.Description,
		Priority:    task.PriorityMedium,
	}

	due, err := eventStart(event)
	if err != nil {
		return nil, err
	}
	t.DueDate = due

	return t, nil
}

// eventStart extracts the event start as the task due date. All-day events
// carry a date only; timed events carry RFC 3339 datetimes.
func eventStart(event *calendar.Event) (*time.Time, error) {
	if event.Start == nil {
		return nil, nil
	}

	if event.Start.DateTime != "" {
		ts, err := time.Parse(time.RFC3339, event.Start.DateTime)
		if err != nil {
			return nil, fmt.Errorf("bad event start time %q: %w", event.Start.DateTime, err)
		}
		return &ts, nil
	}

	if event.Start.Date != "" {
		ts, err := time.Parse("2006-01-02", event.Start.Date)
		if err != nil {
			return nil, fmt.Errorf("bad event start date %q: %w", event.Start.Date, err)
		}
		return &ts, nil
	}

	return nil, nil
}

func hasDuplicate(t *task.Task, pool []*task.Task) bool {
	for _, candidate := range pool {
		if candidate.SameSlot(t) {
			return true
		}
	}
	return false
}
