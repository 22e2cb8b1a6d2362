// internal/cache/redis.go
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/jason-s-yu/tabletop/internal/models"
)

// DefaultQueueName is the Redis list (queue) name for session action logs.
const DefaultQueueName = "tabletop_actions"

// DefaultFinishChannel is the channel finish events are published on.
const DefaultFinishChannel = "tabletop_finished"

// ConnectRedis opens a client for addr/db and pings it.
func ConnectRedis(ctx context.Context, addr string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}
	return rdb, nil
}

// ActionRecord holds the minimal info needed by the historian to persist one applied action.
type ActionRecord struct {
	ID          uuid.UUID              `json:"id"`
	SessionID   string                 `json:"session_id"`
	ActionIndex int                    `json:"action_index"`
	ActorID     string                 `json:"actor_id"`
	ActorIsBot  bool                   `json:"actor_is_bot"`
	ActionType  string                 `json:"action_type"`
	Payload     map[string]interface{} `json:"payload"`
	Timestamp   int64                  `json:"timestamp"` // epoch millis
}

// ActionLog pushes action records onto the historian queue.
type ActionLog struct {
	rdb   *redis.Client
	queue string
}

// NewActionLog returns an ActionLog writing to queue (DefaultQueueName if empty).
func NewActionLog(rdb *redis.Client, queue string) *ActionLog {
	if queue == "" {
		queue = DefaultQueueName
	}
	return &ActionLog{rdb: rdb, queue: queue}
}

// PublishAction serializes the given record to JSON, then pushes it to the Redis queue.
// This does not block the calling logic (other than a quick network send).
func (l *ActionLog) PublishAction(ctx context.Context, record ActionRecord) error {
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	if record.Timestamp == 0 {
		record.Timestamp = time.Now().UnixMilli()
	}
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal ActionRecord: %w", err)
	}
	if err := l.rdb.RPush(ctx, l.queue, data).Err(); err != nil {
		return fmt.Errorf("failed to RPush to Redis list '%s': %w", l.queue, err)
	}
	return nil
}

// Queue is the list name records are pushed to.
func (l *ActionLog) Queue() string { return l.queue }

// EventBus publishes finish events to subscribers and appends them to a durable list
// (<channel>:log) for consumers that were not listening.
type EventBus struct {
	rdb     *redis.Client
	channel string
}

// NewEventBus returns an EventBus on channel (DefaultFinishChannel if empty).
func NewEventBus(rdb *redis.Client, channel string) *EventBus {
	if channel == "" {
		channel = DefaultFinishChannel
	}
	return &EventBus{rdb: rdb, channel: channel}
}

// PublishFinish sends ev in a single MULTI so the pub/sub message and the log entry go together.
func (b *EventBus) PublishFinish(ctx context.Context, ev models.FinishEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal FinishEvent: %w", err)
	}
	_, err = b.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Publish(ctx, b.channel, data)
		pipe.RPush(ctx, b.LogKey(), data)
		return nil
	})
	if err != nil {
		return fmt.Errorf("publish finish event for %s: %w", ev.SessionID, err)
	}
	return nil
}

// Channel is the pub/sub channel name.
func (b *EventBus) Channel() string { return b.channel }

// LogKey is the list that keeps every published finish event.
func (b *EventBus) LogKey() string { return b.channel + ":log" }
