package ratelimit

import (
	"testing"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
)

func TestMemoryLimiter_Window(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l := newMemory(func() time.Time { return now })
	defer l.Close()

	for i := 1; i <= 3; i++ {
		d := l.Allow("ip:1", 3, time.Minute)
		assert.True(t, d.Allowed, "hit %d", i)
		assert.Equal(t, i, d.Count)
	}
	d := l.Allow("ip:1", 3, time.Minute)
	assert.False(t, d.Allowed)
	assert.Equal(t, 0, d.Remaining(3))

	assert.True(t, l.Allow("ip:2", 3, time.Minute).Allowed, "keys are independent")

	now = now.Add(time.Minute + time.Second)
	d = l.Allow("ip:1", 3, time.Minute)
	assert.True(t, d.Allowed)
	assert.Equal(t, 1, d.Count)
	assert.Equal(t, 2, d.Remaining(3))
}

func TestMemoryLimiter_Disabled(t *testing.T) {
	l := newMemory(time.Now)
	defer l.Close()

	for range 100 {
		assert.True(t, l.Allow("k", 0, time.Minute).Allowed)
	}
}

func TestMemoryLimiter_Cleanup(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l := newMemory(func() time.Time { return now })
	defer l.Close()

	l.Allow("a", 1, time.Second)
	l.cleanup(now.Add(2 * time.Second))

	l.mu.Lock()
	defer l.mu.Unlock()
	assert.Empty(t, l.entries)
}

func TestMemoryLimiter_CloseIdempotent(t *testing.T) {
	l := NewMemory()
	l.Close()
	l.Close()
}

func TestRedisLimiter_FailsOpen(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 50 * time.Millisecond})
	l := newRedisWithClient(client, nil)
	defer l.Close()

	d := l.Allow("k", 1, time.Minute)
	assert.True(t, d.Allowed)
}

func TestWindowDecision(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		count   int64
		ttl     time.Duration
		allowed bool
		expire  bool
		end     time.Time
	}{
		{name: "first hit has no ttl yet", count: 1, ttl: -1, allowed: true, expire: true, end: now.Add(time.Minute)},
		{name: "within window", count: 2, ttl: 30 * time.Second, allowed: true, end: now.Add(30 * time.Second)},
		{name: "over limit", count: 4, ttl: 10 * time.Second, allowed: false, end: now.Add(10 * time.Second)},
		{name: "over limit without ttl is repaired", count: 40, ttl: -1, allowed: false, expire: true, end: now.Add(time.Minute)},
		{name: "key vanished between commands", count: 1, ttl: -2, allowed: true, expire: true, end: now.Add(time.Minute)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, expire := windowDecision(tt.count, tt.ttl, 3, time.Minute, now)
			assert.Equal(t, tt.allowed, d.Allowed)
			assert.Equal(t, int(tt.count), d.Count)
			assert.Equal(t, tt.expire, expire)
			assert.Equal(t, tt.end, d.WindowEnd)
		})
	}
}
