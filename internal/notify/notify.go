// Package notify schedules task due-date reminders.
//
// Reminders live in an in-memory queue sorted by fire time and are consumed
// when fired. Scheduling the same task twice before the first reminder fires
// yields two pending reminders; no de-duplication is performed.
package notify

import (
	"context"
	"log"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/glimmerhq/glimpse/internal/storage"
)

// Lead is how long before the due date a reminder fires.
const Lead = 30 * time.Minute

// Job is one pending reminder. Jobs exist only in memory and are discarded
// once fired.
type Job struct {
	TaskID       string
	UserID       string
	ScheduledFor time.Time
}

// Notifier delivers a fired reminder. Message formatting and transport are
// out of scope here; the default implementation logs.
type Notifier interface {
	SendTaskReminder(ctx context.Context, taskID, userID string) error
}

// LogNotifier writes reminders to a logger.
type LogNotifier struct {
	Logger *log.Logger
}

func (n *LogNotifier) SendTaskReminder(_ context.Context, taskID, userID string) error {
	n.Logger.Printf("Reminder due: task=%s user=%s", taskID, userID)
	return nil
}

// Scheduler holds the reminder queue and drains it on a fixed interval.
type Scheduler struct {
	repo     storage.Repository
	notifier Notifier
	logger   *log.Logger
	interval time.Duration

	mu    sync.Mutex
	queue []Job

	done chan struct{}
	once sync.Once
}

// NewScheduler creates a scheduler that checks the queue every interval.
// A zero interval defaults to one minute. If logger is nil, a default
// logger writing to stderr is used.
func NewScheduler(repo storage.Repository, notifier Notifier, interval time.Duration, logger *log.Logger) *Scheduler {
	if interval == 0 {
		interval = time.Minute
	}
	if logger == nil {
		logger = log.New(os.Stderr, "[notify] ", log.LstdFlags)
	}
	if notifier == nil {
		notifier = &LogNotifier{Logger: logger}
	}

	s := &Scheduler{
		repo:     repo,
		notifier: notifier,
		logger:   logger,
		interval: interval,
		done:     make(chan struct{}),
	}

	go s.run()
	return s
}

// Schedule enqueues a reminder 30 minutes before the due date. Reminders
// whose fire time has already passed are dropped. A second call for the same
// task before the first fires simply adds a second entry.
func (s *Scheduler) Schedule(taskID, userID string, due time.Time) {
	fireAt := due.Add(-Lead)
	if !fireAt.After(time.Now()) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.queue = append(s.queue, Job{TaskID: taskID, UserID: userID, ScheduledFor: fireAt})
	sort.SliceStable(s.queue, func(i, j int) bool {
		return s.queue[i].ScheduledFor.Before(s.queue[j].ScheduledFor)
	})
}

// ScheduleUpcoming scans the repository for tasks due within the next 24
// hours and schedules a reminder for each.
func (s *Scheduler) ScheduleUpcoming(ctx context.Context) error {
	now := time.Now()
	tasks, err := s.repo.DueBetween(ctx, now, now.Add(24*time.Hour))
	if err != nil {
		return err
	}

	for _, t := range tasks {
		if t.DueDate != nil {
			s.Schedule(t.ID, t.UserID, *t.DueDate)
		}
	}
	return nil
}

// Pending returns the number of queued reminders.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// Close stops the drain loop. Queued reminders are lost; the queue is not
// persisted anywhere.
func (s *Scheduler) Close() {
	s.once.Do(func() { close(s.done) })
}

func (s *Scheduler) run() {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.drain()
		}
	}
}

// drain fires every reminder whose time has come. Delivery failures are
// logged; the job is consumed either way.
func (s *Scheduler) drain() {
	now := time.Now()

	s.mu.Lock()
	var due []Job
	remaining := s.queue[:0]
	for _, job := range s.queue {
		if !job.ScheduledFor.After(now) {
			due = append(due, job)
		} else {
			remaining = append(remaining, job)
		}
	}
	s.queue = remaining
	s.mu.Unlock()

	for _, job := range due {
		if err := s.notifier.SendTaskReminder(context.Background(), job.TaskID, job.UserID); err != nil {
			s.logger.Printf("Failed to send reminder for task %s: %v", job.TaskID, err)
		}
	}
}
