package ratelimit

import (
	"context"
	"log/slog"
	"time"

	redis "github.com/redis/go-redis/v9"
)

type redisLimiter struct {
	client  *redis.Client
	logger  *slog.Logger
	prefix  string
	timeout time.Duration
}

// NewRedis constructs a Redis backed limiter shared by every API instance.
// Redis errors fail open: the request is allowed and the error is logged.
func NewRedis(addr, password string, db int, logger *slog.Logger) (Limiter, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return newRedisWithClient(client, logger), nil
}

func newRedisWithClient(client *redis.Client, logger *slog.Logger) *redisLimiter {
	return &redisLimiter{
		client:  client,
		logger:  logger,
		prefix:  "authsrv:ratelimit:",
		timeout: 250 * time.Millisecond,
	}
}

func (l *redisLimiter) Allow(key string, limit int, window time.Duration) Decision {
	if limit <= 0 {
		return Decision{Allowed: true}
	}
	if window <= 0 {
		window = time.Minute
	}
	ctx, cancel := context.WithTimeout(context.Background(), l.timeout)
	defer cancel()

	redisKey := l.prefix + key
	var incr *redis.IntCmd
	var pttl *redis.DurationCmd
	_, err := l.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, redisKey)
		pttl = pipe.PTTL(ctx, redisKey)
		return nil
	})
	if err != nil {
		l.logError("incr", err)
		return Decision{Allowed: true}
	}

	decision, expire := windowDecision(incr.Val(), pttl.Val(), limit, window, time.Now())
	if expire {
		// Also repairs a key left without a TTL by an earlier failed PEXPIRE.
		if err := l.client.PExpire(ctx, redisKey, window).Err(); err != nil {
			l.logError("expire", err)
		}
	}
	return decision
}

// windowDecision turns the counter and its remaining TTL into a Decision.
// expire reports that the key has no TTL and must be given one; a negative
// ttl means none is set.
func windowDecision(count int64, ttl time.Duration, limit int, window time.Duration, now time.Time) (d Decision, expire bool) {
	if ttl <= 0 {
		expire = true
		ttl = window
	}
	return Decision{
		Allowed:   count <= int64(limit),
		Count:     int(count),
		WindowEnd: now.Add(ttl),
	}, expire
}

func (l *redisLimiter) Close() {
	if l.client != nil {
		_ = l.client.Close()
	}
}

func (l *redisLimiter) logError(op string, err error) {
	if l.logger == nil {
		return
	}
	l.logger.Error("redis rate limiter error", "op", op, "error", err)
}
