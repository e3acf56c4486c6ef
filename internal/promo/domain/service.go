package domain

import (
	"context"
	"strings"
)

// Resolver turns a promo code into a discount percentage in [0,100]. It never fails:
// unknown, inactive or unreadable codes resolve to 0.
type Resolver interface {
	ResolveDiscount(ctx context.Context, code string) int
}

// NormalizeCode trims and uppercases a user supplied code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
