// Package ratelimit throttles match requests, messages and reports per fingerprint
// using Redis INCR + EXPIRE fixed windows. A missing or failing Redis lets
// every request through.
package ratelimit

import (
	"context"
	"log/slog"
	"time"

	"pairchat/backend/internal/config"

	"github.com/redis/go-redis/v9"
)

// Rule defines a rate limiting policy: the Redis key prefix, maximum number of
// requests allowed in the window, and the window duration.
type Rule struct {
	Key    string
	Limit  int
	Window time.Duration
}

var (
	// RuleMatch limits request-match per fingerprint.
	RuleMatch = Rule{Key: "rl:match:", Limit: config.MatchRequestLimit, Window: config.MatchRequestWindow}

	// RuleMessage limits send-message per fingerprint.
	RuleMessage = Rule{Key: "rl:msg:", Limit: config.MessageLimit, Window: config.MessageWindow}

	// RuleReport limits partner reports per fingerprint.
	RuleReport = Rule{Key: "rl:report:", Limit: config.ReportLimit, Window: config.ReportWindow}
)

// Limiter performs rate limiting checks against Redis.
type Limiter struct {
	client *redis.Client
	log    *slog.Logger
}

// NewLimiter creates a Limiter backed by the given Redis client, which may be nil.
func NewLimiter(client *redis.Client, log *slog.Logger) *Limiter {
	return &Limiter{client: client, log: log}
}

// Allow increments the identifier's counter for rule and reports whether it
// is still within the limit. Redis errors fail open.
func (l *Limiter) Allow(ctx context.Context, identifier string, rule Rule) bool {
	if l == nil || l.client == nil {
		return true
	}
	key := rule.Key + identifier

	count, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		l.log.Warn("ratelimit incr failed, failing open", "key", key, "err", err)
		return true
	}
	if count == 1 {
		if err := l.client.Expire(ctx, key, rule.Window).Err(); err != nil {
			l.log.Warn("ratelimit expire failed, failing open", "key", key, "err", err)
			l.client.Del(ctx, key)
			return true
		}
	}
	return int(count) <= rule.Limit
}
