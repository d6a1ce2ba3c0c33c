package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Cache holds the most recent messages of each conversation in a bounded
// Redis list, newest first. Entries are denormalized Message copies; the
// durable store remains the system of record.
type Cache struct {
	client *redis.Client
	limit  int
	ttl    time.Duration
	logger *slog.Logger
}

// NewCache creates a message cache. limit bounds entries per conversation,
// ttl expires idle conversations. logger may be nil.
func NewCache(client *redis.Client, limit int, ttl time.Duration, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{client: client, limit: limit, ttl: ttl, logger: logger}
}

func cacheKey(conversationID uuid.UUID) string {
	return fmt.Sprintf("conv:%s:messages", conversationID)
}

// Push prepends msg to the conversation's list, trims to the limit, and
// resets the TTL, all in one pipeline round trip.
func (c *Cache) Push(ctx context.Context, msg Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encoding cache entry: %w", err)
	}

	key := cacheKey(msg.ConversationID)
	pipe := c.client.TxPipeline()
	pipe.LPush(ctx, key, payload)
	pipe.LTrim(ctx, key, 0, int64(c.limit)-1)
	pipe.Expire(ctx, key, c.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("pushing cache entry for %s: %w", msg.ConversationID, err)
	}
	return nil
}

// Replace rebuilds the conversation's list from messages (chronological
// order, oldest first), keeping only the most recent limit entries.
func (c *Cache) Replace(ctx context.Context, conversationID uuid.UUID, messages []Message) error {
	key := cacheKey(conversationID)

	recent := messages
	if len(recent) > c.limit {
		recent = recent[len(recent)-c.limit:]
	}

	pipe := c.client.TxPipeline()
	pipe.Del(ctx, key)
	// LPush in chronological order leaves the newest message at the head.
	for _, msg := range recent {
		payload, err := json.Marshal(msg)
		if err != nil {
			return fmt.Errorf("encoding cache entry: %w", err)
		}
		pipe.LPush(ctx, key, payload)
	}
	pipe.Expire(ctx, key, c.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("replacing cache for %s: %w", conversationID, err)
	}
	return nil
}

// Recent returns up to max cached messages in chronological order, oldest
// first. A missing key returns an empty slice, not an error.
func (c *Cache) Recent(ctx context.Context, conversationID uuid.UUID, max int) ([]Message, error) {
	if max <= 0 || max > c.limit {
		max = c.limit
	}
	raw, err := c.client.LRange(ctx, cacheKey(conversationID), 0, int64(max)-1).Result()
	if err != nil {
		return nil, fmt.Errorf("reading cache for %s: %w", conversationID, err)
	}

	// The list is newest first; reverse into chronological order.
	messages := make([]Message, len(raw))
	for i, entry := range raw {
		var msg Message
		if err := json.Unmarshal([]byte(entry), &msg); err != nil {
			return nil, fmt.Errorf("decoding cache entry for %s: %w", conversationID, err)
		}
		messages[len(raw)-1-i] = msg
	}
	return messages, nil
}

// Invalidate drops the conversation's cached list.
func (c *Cache) Invalidate(ctx context.Context, conversationID uuid.UUID) error {
	if err := c.client.Del(ctx, cacheKey(conversationID)).Err(); err != nil {
		return fmt.Errorf("invalidating cache for %s: %w", conversationID, err)
	}
	return nil
}
