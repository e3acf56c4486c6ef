package domain

import "context"

type Service interface {
	CreateInvoice(ctx context.Context, req CreateInvoiceRequest) (*InvoiceResult, error)
	CheckStatus(ctx context.Context, id string) (PaymentRecord, error)
	HandleCallback(ctx context.Context, paymentID string) (PaymentRecord, error)
	// Lookup reads the stored record for an invoice or payment id without calling the gateway.
	Lookup(ctx context.Context, id string) (string, PaymentRecord, error)
}
