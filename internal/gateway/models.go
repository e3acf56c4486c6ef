package gateway

import (
	"bytes"
	"encoding/json"
	"strings"
)

type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	TokenType    string `json:"token_type,omitempty"`
	ExpiresIn    int64  `json:"expires_in"`
}

type CreateInvoiceRequest struct {
	InvoiceCode         string  `json:"invoice_code"`
	SenderInvoiceNo     string  `json:"sender_invoice_no"`
	InvoiceReceiverCode string  `json:"invoice_receiver_code"`
	InvoiceDescription  string  `json:"invoice_description"`
	SenderBranchCode    string  `json:"sender_branch_code"`
	Amount              float64 `json:"amount"`
	CallbackURL         string  `json:"callback_url"`
}

// Invoice is the gateway's invoice response kept verbatim so that every field
// (qr_text, qr_image, urls, ...) reaches the client.
type Invoice map[string]any

func (i Invoice) InvoiceID() string {
	if i == nil {
		return ""
	}
	return idString(i["invoice_id"])
}

// ID is a gateway identifier that may arrive as a JSON string or number.
type ID string

func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*id = ID(n.String())
	return nil
}

func (id ID) String() string {
	return string(id)
}

// Payment is the body of GET /v2/payment/{id}.
type Payment struct {
	PaymentID     ID     `json:"payment_id"`
	ObjectType    string `json:"object_type"`
	ObjectID      ID     `json:"object_id"`
	PaymentStatus string `json:"payment_status"`

	Raw json.RawMessage `json:"-"`
}

type PaymentCheckRequest struct {
	ObjectType string     `json:"object_type"`
	ObjectID   string     `json:"object_id"`
	Offset     PageOffset `json:"offset"`
}

type PageOffset struct {
	PageNumber int `json:"page_number"`
	PageLimit  int `json:"page_limit"`
}

type PaymentCheckResult struct {
	Count int          `json:"count"`
	Rows  []PaymentRow `json:"rows"`
}

type PaymentRow struct {
	PaymentID     ID     `json:"payment_id"`
	PaymentStatus string `json:"payment_status"`

	Raw json.RawMessage `json:"-"`
}

func (r *PaymentRow) UnmarshalJSON(data []byte) error {
	type alias PaymentRow
	var row alias
	if err := json.Unmarshal(data, &row); err != nil {
		return err
	}
	*r = PaymentRow(row)
	r.Raw = append(json.RawMessage(nil), data...)
	return nil
}

// First returns the authoritative row, if any.
func (r *PaymentCheckResult) First() (PaymentRow, bool) {
	if r == nil || len(r.Rows) == 0 {
		return PaymentRow{}, false
	}
	return r.Rows[0], true
}

func idString(v any) string {
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val)
	case json.Number:
		return val.String()
	}
	return ""
}
