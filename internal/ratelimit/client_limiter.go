package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/qpayrelay/internal/config"
)

const (
	keyInvoiceClient = "qpayrelay:ratelimit:invoice:%s"
	keyContactClient = "qpayrelay:ratelimit:contact:%s"
)

// ClientLimiter throttles invoice creation and contact submissions per client IP.
type ClientLimiter struct {
	bucket *TokenBucket

	invoiceRate  float64
	invoiceBurst int
	contactRate  float64
	contactBurst int
}

// NewClientLimiter returns nil when rate limiting is disabled.
func NewClientLimiter(cfg config.Config, client *redis.Client) (*ClientLimiter, error) {
	limitCfg := cfg.RateLimit
	if !limitCfg.Enabled {
		return nil, nil
	}
	if client == nil {
		return nil, errors.New("rate limiting requires REDIS_ADDR")
	}
	if limitCfg.InvoiceRate <= 0 || limitCfg.InvoiceBurst <= 0 {
		return nil, errors.New("invoice rate limit must be positive")
	}
	if limitCfg.ContactRate <= 0 || limitCfg.ContactBurst <= 0 {
		return nil, errors.New("contact rate limit must be positive")
	}

	return &ClientLimiter{
		bucket:       NewTokenBucket(client),
		invoiceRate:  limitCfg.InvoiceRate,
		invoiceBurst: limitCfg.InvoiceBurst,
		contactRate:  limitCfg.ContactRate,
		contactBurst: limitCfg.ContactBurst,
	}, nil
}

func (l *ClientLimiter) Enabled() bool {
	return l != nil && l.bucket != nil
}

func (l *ClientLimiter) AllowInvoice(ctx context.Context, clientIP string) (*RateLimitResult, error) {
	if !l.Enabled() {
		return &RateLimitResult{Allowed: true}, nil
	}
	return l.bucket.Allow(ctx, fmt.Sprintf(keyInvoiceClient, strings.TrimSpace(clientIP)), l.invoiceRate, l.invoiceBurst)
}

func (l *ClientLimiter) AllowContact(ctx context.Context, clientIP string) (*RateLimitResult, error) {
	if !l.Enabled() {
		return &RateLimitResult{Allowed: true}, nil
	}
	return l.bucket.Allow(ctx, fmt.Sprintf(keyContactClient, strings.TrimSpace(clientIP)), l.contactRate, l.contactBurst)
}
