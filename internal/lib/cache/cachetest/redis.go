// Package cachetest provides an in-memory stand-in for the Redis commands
// the task cache uses.
package cachetest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis implements redis.Cmdable for GET, SET, SETNX and DEL. Any other
// command panics through the nil embedded interface. Expiry is recorded,
// not enforced.
type Redis struct {
	redis.Cmdable

	mu     sync.Mutex
	values map[string]string
	ttls   map[string]time.Duration
}

func NewRedis() *Redis {
	return &Redis{
		values: make(map[string]string),
		ttls:   make(map[string]time.Duration),
	}
}

// Value returns the stored value of key.
func (r *Redis) Value(key string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.values[key]
	return v, ok
}

// TTL returns the expiration key was last written with.
func (r *Redis) TTL(key string) time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ttls[key]
}

// Put stores a raw value, e.g. to plant a corrupt entry.
func (r *Redis) Put(key, value string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.values[key] = value
}

func (r *Redis) Get(ctx context.Context, key string) *redis.StringCmd {
	r.mu.Lock()
	defer r.mu.Unlock()

	v, ok := r.values[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (r *Redis) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.values[key] = toString(value)
	r.ttls[key] = expiration
	return redis.NewStatusResult("OK", nil)
}

func (r *Redis) SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.values[key]; exists {
		return redis.NewBoolResult(false, nil)
	}
	r.values[key] = toString(value)
	r.ttls[key] = expiration
	return redis.NewBoolResult(true, nil)
}

func (r *Redis) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for _, key := range keys {
		if _, ok := r.values[key]; ok {
			delete(r.values, key)
			delete(r.ttls, key)
			n++
		}
	}
	return redis.NewIntResult(n, nil)
}

func toString(value interface{}) string {
	switch v := value.(type) {
	case string:
		return v
	case []byte:
		return string(v)
	default:
		return fmt.Sprint(v)
	}
}
