package cache

import (
	"context"
	"testing"
	"time"

	"github.com/deppfellow/go-taskapi/internal/lib/cache/cachetest"
	"github.com/deppfellow/go-taskapi/internal/model"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// unreachable returns a client whose every command fails fast.
func unreachable(t *testing.T) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestKey(t *testing.T) {
	id := uuid.MustParse("7d9f3c1e-2b4a-4c8e-9f0a-1b2c3d4e5f60")
	assert.Equal(t, "taskapi:task:7d9f3c1e-2b4a-4c8e-9f0a-1b2c3d4e5f60", Key(id))
}

func TestRedisFailuresAreMisses(t *testing.T) {
	ctx := context.Background()
	c := NewTaskCache(unreachable(t), time.Minute)
	task := &model.Task{ID: uuid.New(), Title: "x"}

	c.Set(ctx, task)
	c.Fill(ctx, task)
	c.MarkDeleted(ctx, task.ID)
	_, result := c.Get(ctx, task.ID)
	assert.Equal(t, Miss, result)
	assert.NotPanics(t, func() { c.Invalidate(ctx, task.ID) })
}

func TestNilCacheIsNoop(t *testing.T) {
	var c *TaskCache
	ctx := context.Background()

	_, result := c.Get(ctx, uuid.New())
	assert.Equal(t, Miss, result)
	assert.NotPanics(t, func() {
		c.Set(ctx, &model.Task{ID: uuid.New()})
		c.Fill(ctx, &model.Task{ID: uuid.New()})
		c.MarkDeleted(ctx, uuid.New())
		c.Invalidate(ctx, uuid.New())
	})
}

func TestSetThenGet(t *testing.T) {
	ctx := context.Background()
	rdb := cachetest.NewRedis()
	c := NewTaskCache(rdb, 30*time.Second)

	description := "notes"
	task := &model.Task{ID: uuid.New(), Title: "cached", Description: &description, Done: true}

	_, result := c.Get(ctx, task.ID)
	assert.Equal(t, Miss, result)

	c.Set(ctx, task)
	assert.Equal(t, 30*time.Second, rdb.TTL(Key(task.ID)))

	got, result := c.Get(ctx, task.ID)
	require.Equal(t, Hit, result)
	assert.Equal(t, task, got)
}

func TestFillNeverReplaces(t *testing.T) {
	ctx := context.Background()
	c := NewTaskCache(cachetest.NewRedis(), time.Minute)
	id := uuid.New()

	c.Set(ctx, &model.Task{ID: id, Title: "new"})
	c.Fill(ctx, &model.Task{ID: id, Title: "old"})

	got, result := c.Get(ctx, id)
	require.Equal(t, Hit, result)
	assert.Equal(t, "new", got.Title)

	c.MarkDeleted(ctx, id)
	c.Fill(ctx, &model.Task{ID: id, Title: "old"})

	_, result = c.Get(ctx, id)
	assert.Equal(t, Deleted, result)
}

func TestFillPopulatesEmptyKey(t *testing.T) {
	ctx := context.Background()
	rdb := cachetest.NewRedis()
	c := NewTaskCache(rdb, time.Minute)
	task := &model.Task{ID: uuid.New(), Title: "read"}

	c.Fill(ctx, task)

	got, result := c.Get(ctx, task.ID)
	require.Equal(t, Hit, result)
	assert.Equal(t, task, got)
	assert.Equal(t, time.Minute, rdb.TTL(Key(task.ID)))
}

func TestTombstoneExpires(t *testing.T) {
	ctx := context.Background()
	rdb := cachetest.NewRedis()
	c := NewTaskCache(rdb, 10*time.Second)
	id := uuid.New()

	c.MarkDeleted(ctx, id)

	value, ok := rdb.Value(Key(id))
	require.True(t, ok)
	assert.Equal(t, Tombstone, value)
	assert.Equal(t, 10*time.Second, rdb.TTL(Key(id)))
}

func TestUndecodableEntryIsDropped(t *testing.T) {
	ctx := context.Background()
	rdb := cachetest.NewRedis()
	c := NewTaskCache(rdb, time.Minute)
	id := uuid.New()
	rdb.Put(Key(id), "{not json")

	_, result := c.Get(ctx, id)
	assert.Equal(t, Miss, result)

	_, ok := rdb.Value(Key(id))
	assert.False(t, ok)
}
