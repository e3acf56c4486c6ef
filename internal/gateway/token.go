package gateway

import (
	"context"
	"sync"
	"time"

	"github.com/smallbiznis/qpayrelay/internal/clock"
	"golang.org/x/sync/singleflight"
)

// TokenMargin is subtracted from expires_in so a token is never used right at its expiry.
const TokenMargin = 60 * time.Second

type refreshFunc func(ctx context.Context) (TokenResponse, error)

// tokenCache holds the process-wide bearer credential. Concurrent misses share one refresh.
type tokenCache struct {
	clock   clock.Clock
	refresh refreshFunc
	onHit   func(hit bool)

	mu        sync.Mutex
	token     string
	expiresAt time.Time

	group singleflight.Group
}

func newTokenCache(c clock.Clock, refresh refreshFunc) *tokenCache {
	if c == nil {
		c = clock.System{}
	}
	return &tokenCache{clock: c, refresh: refresh}
}

func (t *tokenCache) cached(now time.Time) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.token != "" && now.Before(t.expiresAt) {
		return t.token, true
	}
	return "", false
}

// Token returns the cached token while now < expiresAt, otherwise refreshes it.
func (t *tokenCache) Token(ctx context.Context) (string, error) {
	if token, ok := t.cached(t.clock.Now()); ok {
		t.report(true)
		return token, nil
	}

	v, err, _ := t.group.Do("token", func() (any, error) {
		now := t.clock.Now()
		if token, ok := t.cached(now); ok {
			return token, nil
		}

		// The refresh outlives a cancelled leader; followers still need the token.
		resp, err := t.refresh(context.WithoutCancel(ctx))
		if err != nil {
			return "", err
		}

		t.mu.Lock()
		t.token = resp.AccessToken
		t.expiresAt = now.Add(time.Duration(resp.ExpiresIn)*time.Second - TokenMargin)
		t.mu.Unlock()
		return resp.AccessToken, nil
	})
	t.report(false)
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// Invalidate drops the cached token, forcing the next call to refresh.
func (t *tokenCache) Invalidate() {
	t.mu.Lock()
	t.token = ""
	t.expiresAt = time.Time{}
	t.mu.Unlock()
}

// ExpiresAt reports the current expiry, zero when nothing is cached.
func (t *tokenCache) ExpiresAt() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.expiresAt
}

func (t *tokenCache) report(hit bool) {
	if t.onHit != nil {
		t.onHit(hit)
	}
}
