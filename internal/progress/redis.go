package progress

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// ChannelPrefix prefixes the pub/sub channel of each job.
const ChannelPrefix = "docingest:job:"

// Publisher is the slice of the redis client used for notifications.
type Publisher interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

// RedisNotifier publishes events as JSON on docingest:job:<id> so that
// processes other than the one running the job can follow it.
type RedisNotifier struct {
	client Publisher
}

var _ Notifier = (*RedisNotifier)(nil)

// NewRedisNotifier creates a notifier publishing through client.
func NewRedisNotifier(client Publisher) *RedisNotifier {
	return &RedisNotifier{client: client}
}

// Channel returns the pub/sub channel for jobID.
func Channel(jobID string) string {
	return ChannelPrefix + jobID
}

func (n *RedisNotifier) Notify(ctx context.Context, e Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := n.client.Publish(ctx, Channel(e.JobID), payload).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", Channel(e.JobID), err)
	}
	return nil
}

// Connect opens a redis client and verifies it with PING.
func Connect(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return client, nil
}
