package payment

import (
	"context"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/qpayrelay/internal/clock"
	"github.com/smallbiznis/qpayrelay/internal/config"
	"github.com/smallbiznis/qpayrelay/internal/payment/domain"
	paymentservice "github.com/smallbiznis/qpayrelay/internal/payment/service"
	"github.com/smallbiznis/qpayrelay/internal/payment/store"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("payment.service",
	fx.Provide(NewStore),
	fx.Provide(paymentservice.NewService),
	fx.Provide(func(s *paymentservice.Service) domain.Service { return s }),
)

type StoreParams struct {
	fx.In

	Lc     fx.Lifecycle
	Cfg    config.Config
	Log    *zap.Logger
	Clock  clock.Clock   `optional:"true"`
	Client *redis.Client `optional:"true"`
}

// NewStore selects the payment record store named by PAYMENT_STORE.
func NewStore(p StoreParams) (domain.Store, error) {
	log := p.Log.Named("payment.store")

	switch p.Cfg.PaymentStore {
	case config.PaymentStoreRedis:
		if p.Client == nil {
			return nil, fmt.Errorf("payment store %q requires REDIS_ADDR", p.Cfg.PaymentStore)
		}
		log.Info("using redis payment store", zap.Duration("ttl", p.Cfg.PaymentRecordTTL))
		return store.NewRedisStore(p.Client, p.Clock, p.Cfg.PaymentRecordTTL), nil
	case config.PaymentStoreMemory, "":
		s := store.NewMemoryStore(p.Clock, p.Cfg.PaymentRecordTTL)
		if p.Cfg.PaymentRecordTTL > 0 {
			startSweeper(p.Lc, s, p.Cfg.PaymentRecordTTL, log)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unsupported PAYMENT_STORE %q", p.Cfg.PaymentStore)
	}
}

func startSweeper(lc fx.Lifecycle, s *store.MemoryStore, ttl time.Duration, log *zap.Logger) {
	interval := ttl / 4
	if interval < time.Minute {
		interval = time.Minute
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				defer close(done)
				s.RunSweeper(ctx, interval, func(removed int) {
					log.Info("expired payment records swept", zap.Int("removed", removed), zap.Int("remaining", s.Len()))
				})
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			select {
			case <-done:
			case <-stopCtx.Done():
			}
			return nil
		},
	})
}
