package service_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	obscontext "github.com/smallbiznis/qpayrelay/internal/observability/context"
	"github.com/smallbiznis/qpayrelay/internal/promo/domain"
	"github.com/smallbiznis/qpayrelay/internal/promo/repository"
	"github.com/smallbiznis/qpayrelay/internal/promo/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/gorm"
)

type mockRepo struct {
	mock.Mock
}

func (m *mockRepo) FindActiveDiscount(ctx context.Context, db *gorm.DB, code string) (*int, error) {
	args := m.Called(ctx, db, code)
	v, _ := args.Get(0).(*int)
	return v, args.Error(1)
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:promo_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&domain.PromoCode{}))

	now := time.Now().UTC()
	rows := []domain.PromoCode{
		{PromoCode: "SPRING", DiscountPercentage: 20, IsActive: true, CreatedAt: now, UpdatedAt: now},
		{PromoCode: "EXPIRED", DiscountPercentage: 50, IsActive: false, CreatedAt: now, UpdatedAt: now},
		{PromoCode: "GENEROUS", DiscountPercentage: 150, IsActive: true, CreatedAt: now, UpdatedAt: now},
		{PromoCode: "NEGATIVE", DiscountPercentage: -10, IsActive: true, CreatedAt: now, UpdatedAt: now},
	}
	require.NoError(t, db.Create(&rows).Error)
	return db
}

func newService(db *gorm.DB, repo domain.Repository) domain.Resolver {
	return service.New(service.Params{DB: db, Log: zap.NewNop(), Repo: repo})
}

func TestResolveDiscount(t *testing.T) {
	svc := newService(setupTestDB(t), repository.Provide())
	ctx := context.Background()

	cases := []struct {
		code string
		want int
	}{
		{"SPRING", 20},
		{"  spring ", 20},
		{"EXPIRED", 0},
		{"UNKNOWN", 0},
		{"GENEROUS", 100},
		{"NEGATIVE", 0},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, svc.ResolveDiscount(ctx, tc.code), tc.code)
	}
}

func TestInactiveCodeStaysInactive(t *testing.T) {
	db := setupTestDB(t)

	var stored domain.PromoCode
	require.NoError(t, db.Where("promo_code = ?", "EXPIRED").First(&stored).Error)
	assert.False(t, stored.IsActive)

	svc := newService(db, repository.Provide())
	assert.Equal(t, 0, svc.ResolveDiscount(context.Background(), "expired"))
}

func TestResolveDiscountBlankSkipsQuery(t *testing.T) {
	repo := &mockRepo{}
	svc := newService(nil, repo)

	assert.Equal(t, 0, svc.ResolveDiscount(context.Background(), ""))
	assert.Equal(t, 0, svc.ResolveDiscount(context.Background(), "   "))
	repo.AssertNotCalled(t, "FindActiveDiscount", mock.Anything, mock.Anything, mock.Anything)
}

func TestResolveDiscountFailsOpen(t *testing.T) {
	repo := &mockRepo{}
	repo.On("FindActiveDiscount", mock.Anything, mock.Anything, "SPRING").
		Return(nil, errors.New("dial tcp: connection refused"))

	svc := newService(nil, repo)
	assert.Equal(t, 0, svc.ResolveDiscount(context.Background(), "spring"))
	repo.AssertExpectations(t)
}

func TestResolveDiscountFailureLogCarriesRequestID(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	repo := &mockRepo{}
	repo.On("FindActiveDiscount", mock.Anything, mock.Anything, "SPRING").
		Return(nil, errors.New("dial tcp: connection refused"))

	svc := service.New(service.Params{Log: zap.New(core), Repo: repo})
	ctx := obscontext.WithRequestID(context.Background(), "req-42")
	assert.Equal(t, 0, svc.ResolveDiscount(ctx, "spring"))

	entries := logs.FilterMessage("promo lookup failed, applying no discount").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "req-42", entries[0].ContextMap()["request_id"])
}
