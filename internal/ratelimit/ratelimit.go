// Package ratelimit implements a fixed-window request limiter backed by
// redis. A nil client degrades to allowing everything, which keeps local
// development and the test suite free of a redis dependency.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

// Limiter enforces at most max operations per window for a given key.
type Limiter struct {
	client *redis.Client
	prefix string
	max    int64
	window time.Duration
}

func NewLimiter(client *redis.Client, prefix string, max int64, window time.Duration) *Limiter {
	return &Limiter{client: client, prefix: prefix, max: max, window: window}
}

// Allow consumes one slot for key and reports whether the operation may
// proceed. Redis failures are logged and treated as allow, so a degraded
// redis never takes the gated endpoint down with it.
func (l *Limiter) Allow(ctx context.Context, key string) bool {
	if l == nil || l.client == nil || l.max <= 0 {
		return true
	}
	windowStart := time.Now().Unix() / int64(l.window.Seconds())
	redisKey := fmt.Sprintf("%s:%s:%d", l.prefix, key, windowStart)

	pipe := l.client.TxPipeline()
	count := pipe.Incr(ctx, redisKey)
	pipe.Expire(ctx, redisKey, l.window)
	if _, errExec := pipe.Exec(ctx); errExec != nil {
		log.WithError(errExec).Warnf("ratelimit: redis error (key=%s)", l.prefix)
		return true
	}
	return count.Val() <= l.max
}
