package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	notificationdomain "github.com/smallbiznis/qpayrelay/internal/notification/domain"
	paymentdomain "github.com/smallbiznis/qpayrelay/internal/payment/domain"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrRateLimited        = errors.New("rate_limited")
	ErrServiceUnavailable = errors.New("service_unavailable")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	if field, code, message, ok := validationDetail(err); ok {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  []ValidationError{{Field: field, Code: code, Message: message}},
		}
	}

	if message, ok := upstreamMessage(err); ok {
		return http.StatusBadGateway, errorPayload{
			Type:    "upstream_error",
			Message: message,
		}
	}

	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, paymentdomain.ErrPaymentNotFound):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case errors.Is(err, paymentdomain.ErrPaymentNotSettled):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: "payment is not settled",
		}
	case errors.Is(err, notificationdomain.ErrReceiptInProgress):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: "receipt is already being sent",
		}
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests, errorPayload{
			Type:    "rate_limited",
			Message: "too many requests",
		}
	case errors.Is(err, ErrServiceUnavailable):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "service_unavailable",
			Message: "service unavailable",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func validationDetail(err error) (field, code, message string, ok bool) {
	switch {
	case errors.Is(err, paymentdomain.ErrInvalidEmail):
		return "email", "invalid_email", "a valid email is required", true
	case errors.Is(err, notificationdomain.ErrCaptchaRejected):
		return "recaptchaToken", "captcha_rejected", "reCAPTCHA verification failed", true
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, paymentdomain.ErrInvalidRequest),
		errors.Is(err, notificationdomain.ErrInvalidRequest):
		return "request", "invalid_request", "invalid request", true
	}
	return "", "", "", false
}

// upstreamMessage reports whether err is a failure of the payment gateway or the
// email/captcha providers, which surface as 502.
func upstreamMessage(err error) (string, bool) {
	var invoiceErr *paymentdomain.InvoiceCreationError
	if errors.As(err, &invoiceErr) && invoiceErr.Op != paymentdomain.OpStore {
		return "failed to create invoice", true
	}
	var statusErr *paymentdomain.StatusCheckError
	if errors.As(err, &statusErr) && statusErr.Op != paymentdomain.OpStore {
		return "failed to check payment status", true
	}
	var callbackErr *paymentdomain.CallbackProcessingError
	if errors.As(err, &callbackErr) && callbackErr.Op != paymentdomain.OpStore {
		return "failed to process payment callback", true
	}
	var deliveryErr *notificationdomain.DeliveryError
	if errors.As(err, &deliveryErr) {
		return "failed to send email", true
	}
	return "", false
}

func classifyErrorForLog(err error) (string, string) {
	if err == nil {
		return "", ""
	}
	_, payload := mapError(err)
	code := payload.Type
	if len(payload.Errors) > 0 {
		code = payload.Errors[0].Code
	}
	return payload.Type, code
}
