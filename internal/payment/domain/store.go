package domain

import "context"

// Store holds payment records keyed by invoice id or gateway payment id, plus the
// invoice id -> payment id cross-map.
type Store interface {
	Get(ctx context.Context, key string) (PaymentRecord, bool, error)
	// Upsert writes rec under key following PaymentRecord.Merge and returns what is stored.
	Upsert(ctx context.Context, key string, rec PaymentRecord) (PaymentRecord, error)
	MapInvoice(ctx context.Context, invoiceID, paymentID string) error
	ResolvePaymentID(ctx context.Context, invoiceID string) (string, bool, error)
}
