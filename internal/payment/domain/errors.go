package domain

import (
	"errors"
	"fmt"
)

// OpStore marks a failure of the record store rather than of the gateway.
const OpStore = "store"

var (
	ErrInvalidRequest    = errors.New("invalid_request")
	ErrInvalidEmail      = errors.New("invalid_email")
	ErrPaymentNotFound   = errors.New("payment_not_found")
	ErrPaymentNotSettled = errors.New("payment_not_settled")
)

// InvoiceCreationError is returned when the gateway could not create an invoice.
type InvoiceCreationError struct {
	Op         string
	StatusCode int
	Body       string
	Err        error
}

func (e *InvoiceCreationError) Error() string {
	return fmt.Sprintf("invoice creation failed (%s): %v", e.Op, e.Err)
}

func (e *InvoiceCreationError) Unwrap() error { return e.Err }

// StatusCheckError is returned when a status lookup needed the gateway and the gateway failed.
type StatusCheckError struct {
	Op         string
	ID         string
	StatusCode int
	Body       string
	Err        error
}

func (e *StatusCheckError) Error() string {
	return fmt.Sprintf("payment status check for %s failed (%s): %v", e.ID, e.Op, e.Err)
}

func (e *StatusCheckError) Unwrap() error { return e.Err }

// CallbackProcessingError is returned when a gateway callback could not be resolved.
type CallbackProcessingError struct {
	Op         string
	PaymentID  string
	StatusCode int
	Body       string
	Err        error
}

func (e *CallbackProcessingError) Error() string {
	return fmt.Sprintf("payment callback %s failed (%s): %v", e.PaymentID, e.Op, e.Err)
}

func (e *CallbackProcessingError) Unwrap() error { return e.Err }
