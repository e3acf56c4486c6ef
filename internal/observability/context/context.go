package context

import (
	stdctx "context"
	"strings"
)

type requestIDKey struct{}
type paymentRefKey struct{}

// WithRequestID stores the inbound request identifier.
func WithRequestID(ctx stdctx.Context, requestID string) stdctx.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return stdctx.WithValue(ctx, requestIDKey{}, requestID)
}

func RequestIDFromContext(ctx stdctx.Context) string {
	if ctx == nil {
		return ""
	}
	value, _ := ctx.Value(requestIDKey{}).(string)
	return value
}

// WithPaymentRef annotates the context with the invoice or payment id being worked on.
func WithPaymentRef(ctx stdctx.Context, ref string) stdctx.Context {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ctx
	}
	return stdctx.WithValue(ctx, paymentRefKey{}, ref)
}

func PaymentRefFromContext(ctx stdctx.Context) string {
	if ctx == nil {
		return ""
	}
	value, _ := ctx.Value(paymentRefKey{}).(string)
	return value
}
