// Package memory provides the recall layer: a best-effort, per-observer
// log of turn summaries held in Redis. The event log in the store remains
// the source of truth; recall exists so prompts can cheaply surface "what
// do I remember about X" without scanning the full log.
package memory

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/redis/go-redis/v9"
)

// maxEntriesPerObserver bounds each observer's recall list. Old entries
// fall off the far end.
const maxEntriesPerObserver = 200

// Recall is the interface the engine writes turn summaries through and
// queries during remember/recall actions.
type Recall interface {
	// Record appends a summary to the observer's recall list. Failures are
	// reported but never fatal to the turn.
	Record(ctx context.Context, gameID, observerID, summary string) error

	// Search returns the observer's remembered summaries containing the
	// query, newest first.
	Search(ctx context.Context, gameID, observerID, query string) ([]string, error)

	// Recent returns the observer's last n summaries, newest first.
	Recent(ctx context.Context, gameID, observerID string, n int) ([]string, error)

	// Reset drops all recall data for the game.
	Reset(ctx context.Context, gameID string) error

	Close() error
}

// RedisRecall implements Recall on a Redis list per (game, observer).
type RedisRecall struct {
	client *redis.Client
	logger *slog.Logger
}

var _ Recall = (*RedisRecall)(nil)

// NewRedisRecall connects to Redis at the given URL and verifies the
// connection.
func NewRedisRecall(ctx context.Context, redisURL string, logger *slog.Logger) (*RedisRecall, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}
	return &RedisRecall{client: client, logger: logger}, nil
}

func recallKey(gameID, observerID string) string {
	return fmt.Sprintf("recall:%s:%s", gameID, observerID)
}

func (r *RedisRecall) Record(ctx context.Context, gameID, observerID, summary string) error {
	key := recallKey(gameID, observerID)
	pipe := r.client.Pipeline()
	pipe.LPush(ctx, key, summary)
	pipe.LTrim(ctx, key, 0, maxEntriesPerObserver-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("recording recall entry: %w", err)
	}
	return nil
}

func (r *RedisRecall) Search(ctx context.Context, gameID, observerID, query string) ([]string, error) {
	entries, err := r.Recent(ctx, gameID, observerID, maxEntriesPerObserver)
	if err != nil {
		return nil, err
	}
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return entries, nil
	}
	var matched []string
	for _, e := range entries {
		if strings.Contains(strings.ToLower(e), q) {
			matched = append(matched, e)
		}
	}
	return matched, nil
}

func (r *RedisRecall) Recent(ctx context.Context, gameID, observerID string, n int) ([]string, error) {
	if n <= 0 {
		return nil, nil
	}
	entries, err := r.client.LRange(ctx, recallKey(gameID, observerID), 0, int64(n-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("reading recall entries: %w", err)
	}
	return entries, nil
}

func (r *RedisRecall) Reset(ctx context.Context, gameID string) error {
	var cursor uint64
	pattern := fmt.Sprintf("recall:%s:*", gameID)
	for {
		keys, next, err := r.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return fmt.Errorf("scanning recall keys: %w", err)
		}
		if len(keys) > 0 {
			if err := r.client.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("deleting recall keys: %w", err)
			}
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}

func (r *RedisRecall) Close() error {
	return r.client.Close()
}

// NullRecall is the no-op recall used when Redis is not configured. Turns
// proceed without remembered context.
type NullRecall struct{}

var _ Recall = NullRecall{}

func (NullRecall) Record(ctx context.Context, gameID, observerID, summary string) error {
	return nil
}

func (NullRecall) Search(ctx context.Context, gameID, observerID, query string) ([]string, error) {
	return nil, nil
}

func (NullRecall) Recent(ctx context.Context, gameID, observerID string, n int) ([]string, error) {
	return nil, nil
}

func (NullRecall) Reset(ctx context.Context, gameID string) error { return nil }

func (NullRecall) Close() error { return nil }
