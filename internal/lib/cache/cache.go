// Package cache keeps recently read tasks in Redis.
//
// The cache is an optimization only: every Redis failure is logged and
// treated as a miss, so the database stays the source of truth.
//
// Writers and readers use different commands so that a read finishing late
// cannot overwrite a newer write:
//   - updates store the new task with Set (write-through)
//   - deletes store a tombstone with Set
//   - reads populate with Fill, which uses SetNX and never replaces an
//     entry or a tombstone
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/deppfellow/go-taskapi/internal/model"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// KeyPrefix namespaces task entries.
const KeyPrefix = "taskapi:task:"

// Tombstone is the value stored for a deleted task. It is not valid JSON
// for a task, so it cannot be mistaken for one.
const Tombstone = "deleted"

// Result says what Get found.
type Result int

const (
	Miss Result = iota
	Hit
	// Deleted means the task was deleted recently and must be reported as
	// not found.
	Deleted
)

// TaskCache stores tasks as JSON under KeyPrefix+id.
type TaskCache struct {
	client redis.Cmdable
	ttl    time.Duration
}

// NewTaskCache returns a cache writing entries and tombstones that expire
// after ttl.
func NewTaskCache(client redis.Cmdable, ttl time.Duration) *TaskCache {
	return &TaskCache{client: client, ttl: ttl}
}

// Key returns the Redis key of the task with id.
func Key(id uuid.UUID) string {
	return KeyPrefix + id.String()
}

// Get returns the cached task on Hit. Redis errors report Miss.
func (c *TaskCache) Get(ctx context.Context, id uuid.UUID) (*model.Task, Result) {
	if c == nil {
		return nil, Miss
	}

	data, err := c.client.Get(ctx, Key(id)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			zerolog.Ctx(ctx).Warn().Err(err).Str("task_id", id.String()).Msg("task cache read failed")
		}
		return nil, Miss
	}

	if string(data) == Tombstone {
		return nil, Deleted
	}

	var task model.Task
	if err := json.Unmarshal(data, &task); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("task_id", id.String()).Msg("dropping undecodable task cache entry")
		c.Invalidate(ctx, id)
		return nil, Miss
	}
	return &task, Hit
}

// Fill stores a task read from the database unless the key already holds an
// entry or a tombstone.
func (c *TaskCache) Fill(ctx context.Context, task *model.Task) {
	if c == nil || task == nil {
		return
	}

	data, err := json.Marshal(task)
	if err != nil {
		return
	}
	if err := c.client.SetNX(ctx, Key(task.ID), data, c.ttl).Err(); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("task_id", task.ID.String()).Msg("task cache fill failed")
	}
}

// Set stores task, replacing whatever the key holds.
func (c *TaskCache) Set(ctx context.Context, task *model.Task) {
	if c == nil || task == nil {
		return
	}

	data, err := json.Marshal(task)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, Key(task.ID), data, c.ttl).Err(); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("task_id", task.ID.String()).Msg("task cache write failed")
	}
}

// MarkDeleted replaces the entry for id with a tombstone.
func (c *TaskCache) MarkDeleted(ctx context.Context, id uuid.UUID) {
	if c == nil {
		return
	}
	if err := c.client.Set(ctx, Key(id), Tombstone, c.ttl).Err(); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("task_id", id.String()).Msg("task cache tombstone failed")
	}
}

// Invalidate removes the entry for id.
func (c *TaskCache) Invalidate(ctx context.Context, id uuid.UUID) {
	if c == nil {
		return
	}
	if err := c.client.Del(ctx, Key(id)).Err(); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("task_id", id.String()).Msg("task cache invalidation failed")
	}
}
