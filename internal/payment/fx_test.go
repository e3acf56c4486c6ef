package payment

import (
	"testing"
	"time"

	"github.com/smallbiznis/qpayrelay/internal/config"
	"github.com/smallbiznis/qpayrelay/internal/payment/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx/fxtest"
	"go.uber.org/zap"
)

func TestNewStoreDefaultsToMemory(t *testing.T) {
	lc := fxtest.NewLifecycle(t)
	s, err := NewStore(StoreParams{Lc: lc, Cfg: config.Config{}, Log: zap.NewNop()})
	require.NoError(t, err)
	assert.IsType(t, &store.MemoryStore{}, s)
}

func TestNewStoreRunsSweeperWithTTL(t *testing.T) {
	lc := fxtest.NewLifecycle(t)
	cfg := config.Config{PaymentStore: config.PaymentStoreMemory, PaymentRecordTTL: time.Hour}
	_, err := NewStore(StoreParams{Lc: lc, Cfg: cfg, Log: zap.NewNop()})
	require.NoError(t, err)

	lc.RequireStart()
	lc.RequireStop()
}

func TestNewStoreRedisNeedsClient(t *testing.T) {
	lc := fxtest.NewLifecycle(t)
	_, err := NewStore(StoreParams{Lc: lc, Cfg: config.Config{PaymentStore: config.PaymentStoreRedis}, Log: zap.NewNop()})
	require.EqualError(t, err, `payment store "redis" requires REDIS_ADDR`)

	_, err = NewStore(StoreParams{Lc: lc, Cfg: config.Config{PaymentStore: "disk"}, Log: zap.NewNop()})
	require.EqualError(t, err, `unsupported PAYMENT_STORE "disk"`)
}
