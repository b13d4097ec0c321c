// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultKey is the Redis list holding pending jobs.
const DefaultKey = "gyz:email:jobs"

// pollTimeout bounds each BRPOP so Consume notices cancellation.
const pollTimeout = 2 * time.Second

// Redis is a queue backed by a Redis list (LPUSH / BRPOP).
type Redis struct {
	client *redis.Client
	key    string
}

// NewRedis connects to the Redis server at url, e.g. redis://localhost:6379/0.
func NewRedis(url, key string) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	return NewRedisClient(redis.NewClient(opts), key), nil
}

// NewRedisClient wraps an existing client.
func NewRedisClient(client *redis.Client, key string) *Redis {
	if key == "" {
		key = DefaultKey
	}
	return &Redis{client: client, key: key}
}

// Key returns the list name.
func (r *Redis) Key() string {
	return r.key
}

// Submit pushes the job onto the list.
func (r *Redis) Submit(ctx context.Context, job Job) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encoding job: %w", err)
	}
	if err := r.client.LPush(ctx, r.key, payload).Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return nil
}

// Consume pops the oldest job, waiting until one arrives or ctx is done.
func (r *Redis) Consume(ctx context.Context) (Job, error) {
	for {
		if err := ctx.Err(); err != nil {
			return Job{}, err
		}

		res, err := r.client.BRPop(ctx, pollTimeout, r.key).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if errors.Is(err, redis.ErrClosed) {
			return Job{}, ErrClosed
		}
		if err != nil {
			if ctx.Err() != nil {
				return Job{}, ctx.Err()
			}
			return Job{}, fmt.Errorf("%w: %w", ErrUnavailable, err)
		}

		// BRPOP replies with [key, value].
		var job Job
		if len(res) != 2 {
			return Job{}, fmt.Errorf("%w: unexpected reply %v", ErrMalformed, res)
		}
		if err := json.Unmarshal([]byte(res[1]), &job); err != nil {
			return Job{}, fmt.Errorf("%w: %w", ErrMalformed, err)
		}
		return job, nil
	}
}

// Ping checks the connection.
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close closes the client.
func (r *Redis) Close() error {
	return r.client.Close()
}
