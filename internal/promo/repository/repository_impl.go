package repository

import (
	"context"

	"github.com/smallbiznis/qpayrelay/internal/promo/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindActiveDiscount(ctx context.Context, db *gorm.DB, code string) (*int, error) {
	var rows []int
	err := db.WithContext(ctx).Raw(
		`SELECT discount_percentage FROM promo_codes WHERE promo_code = ? AND is_active = ? LIMIT 1`,
		code,
		true,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}
