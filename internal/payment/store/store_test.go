package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/smallbiznis/qpayrelay/internal/cache/redistest"
	"github.com/smallbiznis/qpayrelay/internal/clock"
	"github.com/smallbiznis/qpayrelay/internal/payment/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func runStoreContract(t *testing.T, newStore func(t *testing.T) domain.Store) {
	t.Run("get_missing", func(t *testing.T) {
		s := newStore(t)
		_, ok, err := s.Get(context.Background(), "nope")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("verified_is_never_downgraded", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		_, err := s.Upsert(ctx, "pay-1", domain.PaymentRecord{
			Status:   domain.StatusPaid,
			Verified: true,
			Details:  datatypes.JSON(`{"payment_id":"pay-1","payment_status":"PAID"}`),
		})
		require.NoError(t, err)

		stored, err := s.Upsert(ctx, "pay-1", domain.PaymentRecord{Status: domain.StatusPending})
		require.NoError(t, err)
		assert.True(t, stored.Verified)
		assert.Equal(t, domain.StatusPaid, stored.Status)

		rec, ok, err := s.Get(ctx, "pay-1")
		require.NoError(t, err)
		require.True(t, ok)
		assert.True(t, rec.Verified)
		assert.JSONEq(t, `{"payment_id":"pay-1","payment_status":"PAID"}`, string(rec.Details))
	})

	t.Run("verified_overwrites_verified", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		_, err := s.Upsert(ctx, "pay-2", domain.PaymentRecord{Status: domain.StatusPaid, Verified: true, Email: "a@b.mn"})
		require.NoError(t, err)
		stored, err := s.Upsert(ctx, "pay-2", domain.PaymentRecord{Status: domain.StatusRefunded, Verified: true})
		require.NoError(t, err)
		assert.Equal(t, domain.StatusRefunded, stored.Status)
		assert.Equal(t, "a@b.mn", stored.Email)
	})

	t.Run("cross_map", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		_, ok, err := s.ResolvePaymentID(ctx, "inv-1")
		require.NoError(t, err)
		assert.False(t, ok)

		require.NoError(t, s.MapInvoice(ctx, "inv-1", "pay-1"))
		paymentID, ok, err := s.ResolvePaymentID(ctx, "inv-1")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "pay-1", paymentID)
	})

	t.Run("concurrent_writers_end_verified", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				rec := domain.PaymentRecord{Status: domain.StatusPending}
				if i%2 == 0 {
					rec = domain.PaymentRecord{Status: domain.StatusPaid, Verified: true}
				}
				_, err := s.Upsert(ctx, "pay-race", rec)
				assert.NoError(t, err)
			}(i)
		}
		wg.Wait()

		rec, ok, err := s.Get(ctx, "pay-race")
		require.NoError(t, err)
		require.True(t, ok)
		assert.True(t, rec.Verified)
		assert.Equal(t, domain.StatusPaid, rec.Status)
	})
}

func TestMemoryStore(t *testing.T) {
	runStoreContract(t, func(t *testing.T) domain.Store {
		return NewMemoryStore(clock.System{}, 0)
	})
}

func TestRedisStore(t *testing.T) {
	runStoreContract(t, func(t *testing.T) domain.Store {
		return NewRedisStore(redistest.NewClient(t, 12), clock.System{}, time.Hour)
	})
}

func TestMemoryStoreSweep(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	s := NewMemoryStore(clk, time.Hour)
	ctx := context.Background()

	_, err := s.Upsert(ctx, "inv-old", domain.PaymentRecord{Status: domain.StatusPending})
	require.NoError(t, err)
	_, err = s.Upsert(ctx, "pay-old", domain.PaymentRecord{Status: domain.StatusPaid, Verified: true})
	require.NoError(t, err)
	require.NoError(t, s.MapInvoice(ctx, "inv-old", "pay-old"))

	clk.Advance(30 * time.Minute)
	_, err = s.Upsert(ctx, "inv-new", domain.PaymentRecord{Status: domain.StatusPending})
	require.NoError(t, err)

	clk.Advance(31 * time.Minute)
	assert.Equal(t, 2, s.Sweep())
	assert.Equal(t, 1, s.Len())

	_, ok, err := s.ResolvePaymentID(ctx, "inv-old")
	require.NoError(t, err)
	assert.False(t, ok, "cross-map must not point at a swept record")
}

func TestMemoryStoreSweepDisabled(t *testing.T) {
	s := NewMemoryStore(clock.System{}, 0)
	_, err := s.Upsert(context.Background(), "inv-1", domain.PaymentRecord{Status: domain.StatusPending})
	require.NoError(t, err)
	assert.Equal(t, 0, s.Sweep())
	assert.Equal(t, 1, s.Len())
}
