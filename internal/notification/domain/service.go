package domain

import (
	"context"
	"errors"
	"fmt"
)

const (
	KindDocument = "document"
	KindReceipt  = "receipt"
	KindContact  = "contact"
)

var (
	ErrInvalidRequest    = errors.New("invalid_request")
	ErrReceiptInProgress = errors.New("receipt_in_progress")
	ErrCaptchaRejected   = errors.New("captcha_rejected")
)

// DeliveryError wraps a failure of the email provider or another upstream the
// notification depended on.
type DeliveryError struct {
	Kind string
	Err  error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("%s email failed: %v", e.Kind, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

type SendDocumentRequest struct {
	Email string
	// Path is a temporary upload; it is removed once the send attempt finishes.
	Path     string
	FileName string
}

type ContactRequest struct {
	Name           string
	Email          string
	Message        string
	RecaptchaToken string
	RemoteIP       string
}

type Service interface {
	SendDocument(ctx context.Context, req SendDocumentRequest) (string, error)
	SendReceipt(ctx context.Context, id string) (string, error)
	SendContact(ctx context.Context, req ContactRequest) (string, error)
}
