package domain

import (
	"context"

	"gorm.io/gorm"
)

type Repository interface {
	// FindActiveDiscount returns nil when no active row matches code.
	FindActiveDiscount(ctx context.Context, db *gorm.DB, code string) (*int, error)
}
