package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/smallbiznis/qpayrelay/internal/cache/redistest"
	"github.com/smallbiznis/qpayrelay/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientLimiterDisabled(t *testing.T) {
	limiter, err := NewClientLimiter(config.Config{}, nil)
	require.NoError(t, err)
	assert.False(t, limiter.Enabled())

	res, err := limiter.AllowInvoice(context.Background(), "10.0.0.1")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestClientLimiterRequiresRedis(t *testing.T) {
	cfg := config.Config{RateLimit: config.RateLimitConfig{Enabled: true, InvoiceRate: 1, InvoiceBurst: 1, ContactRate: 1, ContactBurst: 1}}
	_, err := NewClientLimiter(cfg, nil)
	require.EqualError(t, err, "rate limiting requires REDIS_ADDR")
}

func TestNilLockerGrants(t *testing.T) {
	var l *Locker
	token, ok, err := l.TryLock(context.Background(), "k", time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, token)
	assert.NoError(t, l.Release(context.Background(), "k", token))
}

func TestLocalLockerExclusive(t *testing.T) {
	l := NewLocker(nil)
	ctx := context.Background()

	token, ok, err := l.TryLock(ctx, "receipt:1", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = l.TryLock(ctx, "receipt:1", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, l.Release(ctx, "receipt:1", "someone-else"))
	_, ok, _ = l.TryLock(ctx, "receipt:1", time.Minute)
	assert.False(t, ok)

	require.NoError(t, l.Release(ctx, "receipt:1", token))
	_, ok, err = l.TryLock(ctx, "receipt:1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestClientLimiterExhaustsBurst(t *testing.T) {
	client := redistest.NewClient(t, 13)
	cfg := config.Config{RateLimit: config.RateLimitConfig{
		Enabled:      true,
		InvoiceRate:  0.001,
		InvoiceBurst: 2,
		ContactRate:  0.001,
		ContactBurst: 1,
	}}
	limiter, err := NewClientLimiter(cfg, client)
	require.NoError(t, err)

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		res, err := limiter.AllowInvoice(ctx, "10.0.0.1")
		require.NoError(t, err)
		assert.True(t, res.Allowed)
	}
	res, err := limiter.AllowInvoice(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Positive(t, res.RetryAfter)

	res, err = limiter.AllowInvoice(ctx, "10.0.0.2")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestLockerExclusive(t *testing.T) {
	client := redistest.NewClient(t, 13)
	l := NewLocker(client)
	ctx := context.Background()

	token, ok, err := l.TryLock(ctx, "receipt:1", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = l.TryLock(ctx, "receipt:1", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, l.Release(ctx, "receipt:1", token))
	_, ok, err = l.TryLock(ctx, "receipt:1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}
