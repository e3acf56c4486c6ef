package domain

import (
	"encoding/json"
	"maps"
	"time"

	"gorm.io/datatypes"
)

// Gateway payment statuses. Unknown values are stored verbatim.
const (
	StatusNew      = "NEW"
	StatusPending  = "PENDING"
	StatusPaid     = "PAID"
	StatusFailed   = "FAILED"
	StatusRefunded = "REFUNDED"
)

// PaymentRecord is the locally known state of an invoice or gateway payment.
type PaymentRecord struct {
	Status    string         `json:"status"`
	Verified  bool           `json:"verified"`
	Details   datatypes.JSON `json:"details"`
	PromoCode string         `json:"promoCode,omitempty"`
	Email     string         `json:"email,omitempty"`
	InvoiceID string         `json:"invoiceId,omitempty"`
	// Amount and Currency are what the invoice charged, after any discount.
	Amount    float64        `json:"amount,omitempty"`
	Currency  string         `json:"currency,omitempty"`
	UpdatedAt time.Time      `json:"updatedAt,omitzero"`
}

// PendingRecord is returned when neither the store nor the gateway knows of a payment.
func PendingRecord() PaymentRecord {
	return PaymentRecord{Status: StatusPending}
}

func (r PaymentRecord) IsPaid() bool {
	return r.Verified && r.Status == StatusPaid
}

// Merge applies next over r without ever clearing verified or the customer fields.
// It is the single rule every store implementation follows.
func (r PaymentRecord) Merge(next PaymentRecord) PaymentRecord {
	if r.Verified && !next.Verified {
		return r
	}
	if next.PromoCode == "" {
		next.PromoCode = r.PromoCode
	}
	if next.Email == "" {
		next.Email = r.Email
	}
	if next.InvoiceID == "" {
		next.InvoiceID = r.InvoiceID
	}
	if next.Amount == 0 {
		next.Amount = r.Amount
	}
	if next.Currency == "" {
		next.Currency = r.Currency
	}
	return next
}

type CreateInvoiceRequest struct {
	PromoCode string
	Email     string
}

// InvoiceResult is the gateway invoice merged with the computed amounts.
type InvoiceResult struct {
	InvoiceID       string
	Gateway         map[string]any
	OriginalAmount  float64
	DiscountApplied float64
	FinalAmount     float64
}

func (r InvoiceResult) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(r.Gateway)+3)
	maps.Copy(out, r.Gateway)
	out["originalAmount"] = r.OriginalAmount
	out["discountApplied"] = r.DiscountApplied
	out["finalAmount"] = r.FinalAmount
	return json.Marshal(out)
}

// DetailsMap decodes the stored gateway payload, or returns nil when there is none.
func (r PaymentRecord) DetailsMap() map[string]any {
	if len(r.Details) == 0 {
		return nil
	}
	var out map[string]any
	if err := json.Unmarshal(r.Details, &out); err != nil {
		return nil
	}
	return out
}
