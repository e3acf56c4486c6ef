package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/qpayrelay/internal/clock"
	"github.com/smallbiznis/qpayrelay/internal/payment/domain"
)

const (
	keyRecord  = "qpayrelay:payment:record:%s"
	keyInvoice = "qpayrelay:payment:invoice:%s"

	maxUpsertAttempts = 8
)

// compareAndSetScript writes ARGV[2] only while the key still holds ARGV[1]
// ("" meaning absent). Returns 1 on write, 0 on conflict.
const compareAndSetScript = `
local current = redis.call("GET", KEYS[1])
if (current or "") ~= ARGV[1] then
  return 0
end
local ttl = tonumber(ARGV[3])
if ttl > 0 then
  redis.call("SET", KEYS[1], ARGV[2], "PX", ttl)
else
  redis.call("SET", KEYS[1], ARGV[2])
end
return 1
`

var errUpsertConflict = errors.New("payment record upsert kept conflicting")

// RedisStore shares payment records between replicas. The merge rule runs in Go and
// the write is a compare-and-set, so a verified record is never overwritten by an
// unverified one regardless of interleaving.
type RedisStore struct {
	client *redis.Client
	script *redis.Script
	clock  clock.Clock
	ttl    time.Duration
}

func NewRedisStore(client *redis.Client, c clock.Clock, ttl time.Duration) *RedisStore {
	if c == nil {
		c = clock.System{}
	}
	return &RedisStore{
		client: client,
		script: redis.NewScript(compareAndSetScript),
		clock:  c,
		ttl:    ttl,
	}
}

func (s *RedisStore) Get(ctx context.Context, key string) (domain.PaymentRecord, bool, error) {
	raw, err := s.client.Get(ctx, recordKey(key)).Result()
	if errors.Is(err, redis.Nil) {
		return domain.PaymentRecord{}, false, nil
	}
	if err != nil {
		return domain.PaymentRecord{}, false, err
	}
	var rec domain.PaymentRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return domain.PaymentRecord{}, false, fmt.Errorf("decode payment record: %w", err)
	}
	return rec, true, nil
}

func (s *RedisStore) Upsert(ctx context.Context, key string, rec domain.PaymentRecord) (domain.PaymentRecord, error) {
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = s.clock.Now()
	}
	k := recordKey(key)

	for attempt := 0; attempt < maxUpsertAttempts; attempt++ {
		current, err := s.client.Get(ctx, k).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return domain.PaymentRecord{}, err
		}

		next := rec
		if current != "" {
			var existing domain.PaymentRecord
			if err := json.Unmarshal([]byte(current), &existing); err != nil {
				return domain.PaymentRecord{}, fmt.Errorf("decode payment record: %w", err)
			}
			next = existing.Merge(rec)
		}

		encoded, err := json.Marshal(next)
		if err != nil {
			return domain.PaymentRecord{}, err
		}
		written, err := s.script.Run(ctx, s.client, []string{k}, current, string(encoded), s.ttl.Milliseconds()).Int()
		if err != nil {
			return domain.PaymentRecord{}, err
		}
		if written == 1 {
			return next, nil
		}
	}
	return domain.PaymentRecord{}, errUpsertConflict
}

func (s *RedisStore) MapInvoice(ctx context.Context, invoiceID, paymentID string) error {
	return s.client.Set(ctx, invoiceKey(invoiceID), strings.TrimSpace(paymentID), s.ttl).Err()
}

func (s *RedisStore) ResolvePaymentID(ctx context.Context, invoiceID string) (string, bool, error) {
	paymentID, err := s.client.Get(ctx, invoiceKey(invoiceID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return paymentID, true, nil
}

func recordKey(key string) string {
	return fmt.Sprintf(keyRecord, strings.TrimSpace(key))
}

func invoiceKey(invoiceID string) string {
	return fmt.Sprintf(keyInvoice, strings.TrimSpace(invoiceID))
}

var _ domain.Store = (*RedisStore)(nil)
