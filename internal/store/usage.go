package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// usageTTL keeps a month's counter around a little past the month end.
const usageTTL = 40 * 24 * time.Hour

// MemoryMeter counts API calls per key and calendar month in memory.
type MemoryMeter struct {
	mu     sync.Mutex
	counts map[string]int64
}

// NewMemoryMeter creates an empty MemoryMeter.
func NewMemoryMeter() *MemoryMeter {
	return &MemoryMeter{counts: make(map[string]int64)}
}

// Increment adds one call for key in month and returns the new total.
func (m *MemoryMeter) Increment(_ context.Context, key, month string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := usageKey(key, month)
	m.counts[k]++
	return m.counts[k], nil
}

// RedisMeter counts API calls per key and calendar month in redis.
type RedisMeter struct {
	client *redis.Client
}

// NewRedisMeter returns a redis-backed meter.
func NewRedisMeter(client *redis.Client) *RedisMeter {
	return &RedisMeter{client: client}
}

// Increment atomically adds one call for key in month and returns the new total.
func (m *RedisMeter) Increment(ctx context.Context, key, month string) (int64, error) {
	k := usageKey(key, month)
	n, err := m.client.Incr(ctx, k).Result()
	if err != nil {
		return 0, err
	}
	if n == 1 {
		if err := m.client.Expire(ctx, k, usageTTL).Err(); err != nil {
			return n, err
		}
	}
	return n, nil
}

func usageKey(key, month string) string {
	return fmt.Sprintf("usage:%s:%s", key, month)
}

const (
	defaultDialTimeout  = 5 * time.Second
	defaultReadTimeout  = 3 * time.Second
	defaultWriteTimeout = 3 * time.Second
)

// NewRedisClient returns a configured go-redis client and validates the connection with PING.
func NewRedisClient(addr, password string, db int) (*redis.Client, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, errors.New("redis: addr is empty")
	}

	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  defaultDialTimeout,
		ReadTimeout:  defaultReadTimeout,
		WriteTimeout: defaultWriteTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), defaultDialTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}
	return client, nil
}
