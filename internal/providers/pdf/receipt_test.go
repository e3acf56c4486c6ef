package pdf

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateReceipt(t *testing.T) {
	p := NewMaroto(Config{MerchantName: "academia.mn", MerchantEmail: "no-reply@academia.mn"})

	doc, err := p.GenerateReceipt(context.Background(), ReceiptData{
		InvoiceID:   "inv-1",
		PaymentID:   "901234567890",
		Email:       "student@academia.mn",
		Description: "academiacareer",
		PromoCode:   "SAVE20",
		Status:      "PAID",
		Amount:      "1200.00",
		Currency:    "MNT",
		DatePaid:    "2026-02-01",
	})
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(doc, []byte("%PDF")))
}

func TestGenerateReceiptHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewMaroto(Config{}).GenerateReceipt(ctx, ReceiptData{})
	assert.ErrorIs(t, err, context.Canceled)
}
