// Package events mirrors task mutations to a Kafka topic for downstream
// consumers. Publishing is best-effort: a broker outage never blocks or
// fails the mutation that triggered it.
package events

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/glimmerhq/glimpse/internal/task"
)

// Producer is the slice of the Kafka client the publisher needs.
type Producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
}

// Mutation is the record value published per task change.
type Mutation struct {
	Action string     `json:"action"` // created, updated, deleted
	Task   *task.Task `json:"task"`
	At     time.Time  `json:"at"`
}

// Publisher writes task mutations to a topic, keyed by the owning user so a
// user's mutations stay ordered within a partition.
type Publisher struct {
	client Producer
	topic  string
	logger *log.Logger
}

// NewPublisher creates a publisher for the given topic. If logger is nil, a
// default logger writing to stderr is used.
func NewPublisher(client Producer, topic string, logger *log.Logger) *Publisher {
	if logger == nil {
		logger = log.New(os.Stderr, "[events] ", log.LstdFlags)
	}
	return &Publisher{client: client, topic: topic, logger: logger}
}

// TaskMutated publishes one mutation. Errors are logged, never returned;
// the task table remains the source of truth.
func (p *Publisher) TaskMutated(ctx context.Context, action string, t *task.Task) {
	value, err := json.Marshal(Mutation{Action: action, Task: t, At: time.Now()})
	if err != nil {
		p.logger.Printf("Failed to encode mutation: %v", err)
		return
	}

	record := &kgo.Record{
		Topic: p.topic,
		Key:   []byte(t.UserID),
		Value: value,
	}
	if err := p.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		p.logger.Printf("Failed to publish mutation for task %s: %v", t.ID, err)
	}
}
