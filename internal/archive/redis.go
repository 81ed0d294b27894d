package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"credibot/internal/session"
)

const (
	// Redis key prefix for archived transcripts
	transcriptKeyPrefix = "transcript:"
	// Default retention for archived transcripts (30 days)
	defaultTTL = 30 * 24 * time.Hour
)

// record is the serialized form of one archived conversation.
type record struct {
	UserID   string         `json:"user_id"`
	ClosedAt time.Time      `json:"closed_at"`
	History  []session.Turn `json:"history"`
}

// commander is the slice of the Redis API the archiver uses. *redis.Client
// satisfies it.
type commander interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Keys(ctx context.Context, pattern string) *redis.StringSliceCmd
	Get(ctx context.Context, key string) *redis.StringCmd
}

// RedisArchiver keeps transcripts of finished conversations in Redis as JSON
// blobs with a retention TTL, so closed sessions stay inspectable after the
// in-memory store has dropped them.
type RedisArchiver struct {
	client commander
	ttl    time.Duration
}

func NewRedis(client commander, ttl time.Duration) *RedisArchiver {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &RedisArchiver{client: client, ttl: ttl}
}

func (a *RedisArchiver) Archive(ctx context.Context, userID string, history []session.Turn) error {
	closedAt := time.Now().UTC()
	val, err := json.Marshal(record{UserID: userID, ClosedAt: closedAt, History: history})
	if err != nil {
		return fmt.Errorf("marshal transcript: %w", err)
	}

	key := fmt.Sprintf("%s%s:%d", transcriptKeyPrefix, userID, closedAt.UnixNano())
	if err := a.client.Set(ctx, key, val, a.ttl).Err(); err != nil {
		return fmt.Errorf("store transcript: %w", err)
	}
	return nil
}

// Load returns the archived transcripts of a user, oldest first.
func (a *RedisArchiver) Load(ctx context.Context, userID string) ([][]session.Turn, error) {
	pattern := fmt.Sprintf("%s%s:*", transcriptKeyPrefix, userID)
	keys, err := a.client.Keys(ctx, pattern).Result()
	if err != nil {
		return nil, fmt.Errorf("list transcripts: %w", err)
	}
	// Keys end in the close timestamp, so lexicographic order is age order.
	sort.Strings(keys)

	var out [][]session.Turn
	for _, key := range keys {
		val, err := a.client.Get(ctx, key).Result()
		if err == redis.Nil {
			continue // expired between KEYS and GET
		}
		if err != nil {
			return nil, fmt.Errorf("read transcript %s: %w", key, err)
		}
		var rec record
		if err := json.Unmarshal([]byte(val), &rec); err != nil {
			return nil, fmt.Errorf("decode transcript %s: %w", key, err)
		}
		out = append(out, rec.History)
	}
	return out, nil
}
