package diagnostics

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"api_config/internal/config"
)

// RedisSink appends diagnostics to a capped Redis list.
type RedisSink struct {
	client *redis.Client
	key    string
	maxLen int64
}

// NewRedisSink connects to Redis and verifies the connection.
func NewRedisSink(ctx context.Context, cfg config.RedisConfig) (*RedisSink, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewRedisSinkWithClient(client, cfg.Key, cfg.MaxLen), nil
}

// NewRedisSinkWithClient wraps an existing client. maxLen <= 0 keeps the
// list unbounded.
func NewRedisSinkWithClient(client *redis.Client, key string, maxLen int64) *RedisSink {
	return &RedisSink{client: client, key: key, maxLen: maxLen}
}

// Publish pushes diags as JSON and trims the list to the newest maxLen entries.
func (s *RedisSink) Publish(ctx context.Context, diags []Diagnostic) error {
	if len(diags) == 0 {
		return nil
	}

	values := make([]interface{}, 0, len(diags))
	for _, d := range diags {
		data, err := json.Marshal(d)
		if err != nil {
			return fmt.Errorf("failed to marshal diagnostic: %w", err)
		}
		values = append(values, data)
	}

	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, s.key, values...)
	if s.maxLen > 0 {
		pipe.LTrim(ctx, s.key, -s.maxLen, -1)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to push to Redis: %w", err)
	}
	return nil
}

// Recent returns up to n of the newest diagnostics, oldest first.
func (s *RedisSink) Recent(ctx context.Context, n int64) ([]Diagnostic, error) {
	if n <= 0 {
		return nil, nil
	}

	raw, err := s.client.LRange(ctx, s.key, -n, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read from Redis: %w", err)
	}

	out := make([]Diagnostic, 0, len(raw))
	for _, item := range raw {
		var d Diagnostic
		if err := json.Unmarshal([]byte(item), &d); err != nil {
			return nil, fmt.Errorf("failed to unmarshal diagnostic: %w", err)
		}
		out = append(out, d)
	}
	return out, nil
}

// Length returns the current list length
func (s *RedisSink) Length(ctx context.Context) (int64, error) {
	return s.client.LLen(ctx, s.key).Result()
}

func (s *RedisSink) Close() error {
	return s.client.Close()
}
