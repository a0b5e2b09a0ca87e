// Package mail builds transactional emails and hands them to delivery.
// The API enqueues messages on a Redis stream; the worker sends them over SMTP.
package mail

import (
	"context"
	"errors"
	"fmt"
)

// TaskType tags outbox entries carrying a Message.
const TaskType = "email"

type Message struct {
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	Text    string   `json:"text"`
	HTML    string   `json:"html"`
}

func (m Message) Validate() error {
	if len(m.To) == 0 {
		return errors.New("no recipients specified")
	}
	if m.Subject == "" {
		return errors.New("missing subject")
	}
	return nil
}

// Dispatcher accepts a message for delivery and returns its delivery id.
type Dispatcher interface {
	Dispatch(ctx context.Context, msg Message) (string, error)
}

type Enqueuer interface {
	Enqueue(ctx context.Context, taskType string, payload any) (string, error)
}

// QueueDispatcher writes messages to the outbox stream. The stream entry id
// is the delivery id.
type QueueDispatcher struct {
	queue Enqueuer
}

func NewQueueDispatcher(queue Enqueuer) *QueueDispatcher {
	return &QueueDispatcher{queue: queue}
}

func (d *QueueDispatcher) Dispatch(ctx context.Context, msg Message) (string, error) {
	if err := msg.Validate(); err != nil {
		return "", err
	}
	id, err := d.queue.Enqueue(ctx, TaskType, msg)
	if err != nil {
		return "", fmt.Errorf("enqueue email: %w", err)
	}
	return id, nil
}
