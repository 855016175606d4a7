package retry

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisDLQPublisher keeps dead letters in a Redis list, newest first
type RedisDLQPublisher struct {
	client *redis.Client
	key    string
}

// NewRedisDLQPublisher creates a publisher pushing to the list at key
func NewRedisDLQPublisher(client *redis.Client, key string) *RedisDLQPublisher {
	return &RedisDLQPublisher{client: client, key: key}
}

// PublishToDLQ pushes the message onto the DLQ list
func (p *RedisDLQPublisher) PublishToDLQ(ctx context.Context, msg *DLQMessage) error {
	if msg == nil {
		return fmt.Errorf("DLQ message cannot be nil")
	}
	stamp(msg)

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal DLQ message: %w", err)
	}
	if err := p.client.LPush(ctx, p.key, data).Err(); err != nil {
		return fmt.Errorf("failed to push DLQ message: %w", err)
	}
	return nil
}

// List returns up to limit dead letters, newest first
func (p *RedisDLQPublisher) List(ctx context.Context, limit int64) ([]*DLQMessage, error) {
	raw, err := p.client.LRange(ctx, p.key, 0, limit-1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read DLQ: %w", err)
	}

	out := make([]*DLQMessage, 0, len(raw))
	for _, r := range raw {
		var msg DLQMessage
		if err := json.Unmarshal([]byte(r), &msg); err != nil {
			return nil, fmt.Errorf("failed to decode DLQ message: %w", err)
		}
		out = append(out, &msg)
	}
	return out, nil
}

// Len returns the number of dead letters
func (p *RedisDLQPublisher) Len(ctx context.Context) (int64, error) {
	return p.client.LLen(ctx, p.key).Result()
}
