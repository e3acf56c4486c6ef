package service

import (
	"context"

	"github.com/smallbiznis/qpayrelay/internal/observability/logger"
	"github.com/smallbiznis/qpayrelay/internal/observability/metrics"
	"github.com/smallbiznis/qpayrelay/internal/promo/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	Repo    domain.Repository
	Metrics *metrics.Metrics `optional:"true"`
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	repo    domain.Repository
	metrics *metrics.Metrics
}

func New(p Params) domain.Resolver {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("promo.service"),
		repo:    p.Repo,
		metrics: p.Metrics,
	}
}

func (s *Service) ResolveDiscount(ctx context.Context, code string) int {
	code = domain.NormalizeCode(code)
	if code == "" {
		return 0
	}

	discount, err := s.repo.FindActiveDiscount(ctx, s.db, code)
	if err != nil {
		logger.WithContext(ctx, s.log).Warn("promo lookup failed, applying no discount", zap.Error(err))
		s.metrics.RecordPromoLookupFailure(ctx)
		return 0
	}
	if discount == nil {
		return 0
	}

	switch {
	case *discount < 0:
		return 0
	case *discount > 100:
		return 100
	}
	return *discount
}
