package journal

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/michaelpento.lv/arbengine/types"
)

// listClient is the subset of *redis.Client the journal uses
type listClient interface {
	LPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	LTrim(ctx context.Context, key string, start, stop int64) *redis.StatusCmd
}

// RedisRecorder keeps the most recent outcomes in a capped Redis list
type RedisRecorder struct {
	client listClient
	key    string
	maxLen int64
	now    func() time.Time
}

// NewRedisClient parses url and verifies the connection
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		// the parse error echoes the url, which can carry a password
		return nil, fmt.Errorf("redis: invalid url")
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}
	return rdb, nil
}

func NewRedisRecorder(client listClient, key string, maxLen int64) *RedisRecorder {
	return &RedisRecorder{client: client, key: key, maxLen: maxLen, now: time.Now}
}

func (r *RedisRecorder) Record(ctx context.Context, out types.ExecutionOutcome) error {
	data, err := json.Marshal(NewEntry(out, r.now()))
	if err != nil {
		return fmt.Errorf("failed to encode outcome: %w", err)
	}
	if err := r.client.LPush(ctx, r.key, data).Err(); err != nil {
		return fmt.Errorf("redis: lpush: %w", err)
	}
	if r.maxLen > 0 {
		if err := r.client.LTrim(ctx, r.key, 0, r.maxLen-1).Err(); err != nil {
			return fmt.Errorf("redis: ltrim: %w", err)
		}
	}
	return nil
}
