package domain

import "time"

// PromoCode is a row of promo_codes. Codes are stored uppercased.
type PromoCode struct {
	ID                 uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	PromoCode          string    `gorm:"column:promo_code;size:64;not null;uniqueIndex" json:"promo_code"`
	DiscountPercentage int       `gorm:"column:discount_percentage;not null;default:0" json:"discount_percentage"`
	IsActive           bool      `gorm:"column:is_active;not null" json:"is_active"`
	CreatedAt          time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt          time.Time `gorm:"not null" json:"updated_at"`
}

func (PromoCode) TableName() string {
	return "promo_codes"
}
