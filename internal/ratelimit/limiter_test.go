package ratelimit_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"pairchat/backend/internal/ratelimit"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestAllow_NilClientFailsOpen(t *testing.T) {
	l := ratelimit.NewLimiter(nil, discardLogger())
	for i := 0; i < 100; i++ {
		assert.True(t, l.Allow(context.Background(), "fp", ratelimit.RuleMessage))
	}

	var nilLimiter *ratelimit.Limiter
	assert.True(t, nilLimiter.Allow(context.Background(), "fp", ratelimit.RuleMessage))
}

func TestAllow_EnforcesLimit(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	ctx := context.Background()
	if err := rdb.Ping(ctx).Err(); err != nil {
		t.Skipf("redis not available: %v", err)
	}
	rule := ratelimit.Rule{Key: "rl:test:", Limit: 3, Window: 5 * time.Second}
	id := "test_enforce_limit"
	rdb.Del(ctx, rule.Key+id)
	t.Cleanup(func() {
		rdb.Del(ctx, rule.Key+id)
		rdb.Close()
	})

	l := ratelimit.NewLimiter(rdb, discardLogger())
	for i := 0; i < rule.Limit; i++ {
		assert.True(t, l.Allow(ctx, id, rule), "request %d should pass", i+1)
	}
	assert.False(t, l.Allow(ctx, id, rule), "request over the limit must be rejected")

	ttl, err := rdb.TTL(ctx, rule.Key+id).Result()
	assert.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))
}
