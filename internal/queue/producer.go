package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const (
	FieldType    = "type"
	FieldPayload = "payload"
)

// Producer appends tasks to a Redis stream as {type, payload} entries, with
// payload JSON-encoded.
type Producer struct {
	client redis.Cmdable
	stream string
}

func NewProducer(client redis.Cmdable, stream string) *Producer {
	return &Producer{client: client, stream: stream}
}

// Enqueue returns the stream entry id.
func (p *Producer) Enqueue(ctx context.Context, taskType string, payload any) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode %s task: %w", taskType, err)
	}
	id, err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		Values: map[string]any{
			FieldType:    taskType,
			FieldPayload: string(body),
		},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("xadd %s: %w", p.stream, err)
	}
	return id, nil
}

// Decode splits a stream entry written by Producer.
func Decode(msg redis.XMessage) (string, json.RawMessage, error) {
	taskType, _ := msg.Values[FieldType].(string)
	if taskType == "" {
		return "", nil, fmt.Errorf("message %s: missing %q", msg.ID, FieldType)
	}
	payload, _ := msg.Values[FieldPayload].(string)
	if payload == "" {
		payload = "{}"
	}
	return taskType, json.RawMessage(payload), nil
}
