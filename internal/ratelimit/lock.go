package ratelimit

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

const lockReleaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

// Locker is a best-effort SETNX lock. Without redis it locks within the process only.
// A nil Locker always grants the lock.
type Locker struct {
	client *redis.Client
	script *redis.Script

	mu    sync.Mutex
	local map[string]localLock
}

type localLock struct {
	token     string
	expiresAt time.Time
}

func NewLocker(client *redis.Client) *Locker {
	l := &Locker{client: client}
	if client != nil {
		l.script = redis.NewScript(lockReleaseScript)
	} else {
		l.local = map[string]localLock{}
	}
	return l
}

func (l *Locker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	if l == nil {
		return "", true, nil
	}
	if key == "" {
		return "", false, errors.New("lock key is empty")
	}
	if ttl <= 0 {
		return "", false, errors.New("lock ttl must be positive")
	}

	token := uuid.NewString()
	if l.client == nil {
		return token, l.tryLocal(key, token, ttl), nil
	}
	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return "", false, err
	}
	return token, ok, nil
}

// Release deletes key only while it still holds token.
func (l *Locker) Release(ctx context.Context, key, token string) error {
	if l == nil || key == "" || token == "" {
		return nil
	}
	if l.client == nil {
		l.mu.Lock()
		if held, ok := l.local[key]; ok && held.token == token {
			delete(l.local, key)
		}
		l.mu.Unlock()
		return nil
	}
	return l.script.Run(ctx, l.client, []string{key}, token).Err()
}

func (l *Locker) tryLocal(key, token string, ttl time.Duration) bool {
	now := time.Now()
	l.mu.Lock()
	defer l.mu.Unlock()
	if held, ok := l.local[key]; ok && now.Before(held.expiresAt) {
		return false
	}
	l.local[key] = localLock{token: token, expiresAt: now.Add(ttl)}
	return true
}
