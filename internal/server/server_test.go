package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/qpayrelay/internal/cache/redistest"
	"github.com/smallbiznis/qpayrelay/internal/config"
	"github.com/smallbiznis/qpayrelay/internal/gateway"
	notificationdomain "github.com/smallbiznis/qpayrelay/internal/notification/domain"
	"github.com/smallbiznis/qpayrelay/internal/observability"
	paymentdomain "github.com/smallbiznis/qpayrelay/internal/payment/domain"
	"github.com/smallbiznis/qpayrelay/internal/ratelimit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakePayments struct {
	createInvoice  func(context.Context, paymentdomain.CreateInvoiceRequest) (*paymentdomain.InvoiceResult, error)
	checkStatus    func(context.Context, string) (paymentdomain.PaymentRecord, error)
	handleCallback func(context.Context, string) (paymentdomain.PaymentRecord, error)
}

func (f *fakePayments) CreateInvoice(ctx context.Context, req paymentdomain.CreateInvoiceRequest) (*paymentdomain.InvoiceResult, error) {
	return f.createInvoice(ctx, req)
}

func (f *fakePayments) CheckStatus(ctx context.Context, id string) (paymentdomain.PaymentRecord, error) {
	return f.checkStatus(ctx, id)
}

func (f *fakePayments) HandleCallback(ctx context.Context, paymentID string) (paymentdomain.PaymentRecord, error) {
	return f.handleCallback(ctx, paymentID)
}

func (f *fakePayments) Lookup(context.Context, string) (string, paymentdomain.PaymentRecord, error) {
	return "", paymentdomain.PaymentRecord{}, paymentdomain.ErrPaymentNotFound
}

type fakeNotifications struct {
	sendDocument func(context.Context, notificationdomain.SendDocumentRequest) (string, error)
	sendReceipt  func(context.Context, string) (string, error)
	sendContact  func(context.Context, notificationdomain.ContactRequest) (string, error)
}

func (f *fakeNotifications) SendDocument(ctx context.Context, req notificationdomain.SendDocumentRequest) (string, error) {
	return f.sendDocument(ctx, req)
}

func (f *fakeNotifications) SendReceipt(ctx context.Context, id string) (string, error) {
	return f.sendReceipt(ctx, id)
}

func (f *fakeNotifications) SendContact(ctx context.Context, req notificationdomain.ContactRequest) (string, error) {
	return f.sendContact(ctx, req)
}

func newTestServer(t *testing.T, payments *fakePayments, notifications *fakeNotifications, limiter *ratelimit.ClientLimiter) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := config.Config{CORSAllowedOrigins: []string{"https://academia.mn"}}
	engine := NewEngine(EngineParams{Cfg: cfg, ObsCfg: observability.Config{Environment: "test"}})
	return NewServer(ServerParams{
		Gin:             engine,
		Cfg:             cfg,
		Log:             zap.NewNop(),
		PaymentSvc:      payments,
		NotificationSvc: notifications,
		Limiter:         limiter,
	})
}

func doJSON(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Engine().ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorPayload {
	t.Helper()
	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Error
}

func TestCreateInvoice(t *testing.T) {
	var got paymentdomain.CreateInvoiceRequest
	payments := &fakePayments{
		createInvoice: func(_ context.Context, req paymentdomain.CreateInvoiceRequest) (*paymentdomain.InvoiceResult, error) {
			got = req
			return &paymentdomain.InvoiceResult{
				InvoiceID:       "inv-1",
				Gateway:         map[string]any{"invoice_id": "inv-1", "qr_text": "qr"},
				OriginalAmount:  1500,
				DiscountApplied: 300,
				FinalAmount:     1200,
			}, nil
		},
	}
	s := newTestServer(t, payments, &fakeNotifications{}, nil)

	rec := doJSON(t, s, http.MethodPost, "/api/create-invoice", map[string]string{"promoCode": "save20", "email": "a@b.mn"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "save20", got.PromoCode)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "inv-1", body["invoice_id"])
	assert.Equal(t, 1200.0, body["finalAmount"])
	assert.Equal(t, 300.0, body["discountApplied"])
}

func TestCreateInvoiceErrors(t *testing.T) {
	cases := []struct {
		name     string
		body     any
		err      error
		status   int
		wantType string
	}{
		{"missing_email", map[string]string{"promoCode": "X"}, nil, http.StatusBadRequest, "validation_error"},
		{"invalid_email", map[string]string{"email": "nope"}, paymentdomain.ErrInvalidEmail, http.StatusBadRequest, "validation_error"},
		{"gateway", map[string]string{"email": "a@b.mn"}, &paymentdomain.InvoiceCreationError{Op: "create_invoice", StatusCode: 400, Err: &gateway.APIError{StatusCode: 400}}, http.StatusBadGateway, "upstream_error"},
		{"auth", map[string]string{"email": "a@b.mn"}, &paymentdomain.InvoiceCreationError{Op: "auth", Err: errors.New("denied")}, http.StatusBadGateway, "upstream_error"},
		{"store", map[string]string{"email": "a@b.mn"}, &paymentdomain.InvoiceCreationError{Op: paymentdomain.OpStore, Err: errors.New("redis down")}, http.StatusInternalServerError, "internal_error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			payments := &fakePayments{
				createInvoice: func(context.Context, paymentdomain.CreateInvoiceRequest) (*paymentdomain.InvoiceResult, error) {
					return nil, tc.err
				},
			}
			s := newTestServer(t, payments, &fakeNotifications{}, nil)

			rec := doJSON(t, s, http.MethodPost, "/api/create-invoice", tc.body)
			assert.Equal(t, tc.status, rec.Code)
			assert.Equal(t, tc.wantType, decodeError(t, rec).Type)
		})
	}
}

func TestCheckPayment(t *testing.T) {
	payments := &fakePayments{
		checkStatus: func(_ context.Context, id string) (paymentdomain.PaymentRecord, error) {
			switch id {
			case "paid":
				return paymentdomain.PaymentRecord{Status: paymentdomain.StatusPaid, Verified: true, InvoiceID: "inv-1"}, nil
			case "broken":
				return paymentdomain.PaymentRecord{}, &paymentdomain.StatusCheckError{Op: "check_payment", ID: id, Err: errors.New("502")}
			}
			return paymentdomain.PendingRecord(), nil
		},
	}
	s := newTestServer(t, payments, &fakeNotifications{}, nil)

	rec := doJSON(t, s, http.MethodGet, "/api/check-payment/paid", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var record paymentdomain.PaymentRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &record))
	assert.True(t, record.IsPaid())

	rec = doJSON(t, s, http.MethodGet, "/api/check-payment/unknown", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &record))
	assert.Equal(t, paymentdomain.StatusPending, record.Status)
	assert.False(t, record.Verified)

	rec = doJSON(t, s, http.MethodGet, "/api/check-payment/broken", nil)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestPaymentCallback(t *testing.T) {
	var calls []string
	payments := &fakePayments{
		handleCallback: func(_ context.Context, id string) (paymentdomain.PaymentRecord, error) {
			calls = append(calls, id)
			if id == "bad" {
				return paymentdomain.PaymentRecord{}, &paymentdomain.CallbackProcessingError{Op: "get_payment", PaymentID: id, Err: errors.New("404")}
			}
			return paymentdomain.PaymentRecord{Status: paymentdomain.StatusPaid, Verified: true}, nil
		},
	}
	s := newTestServer(t, payments, &fakeNotifications{}, nil)

	for _, method := range []string{http.MethodGet, http.MethodPost} {
		rec := doJSON(t, s, method, "/api/payment-callback?qpay_payment_id=pay-1", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "SUCCESS", rec.Body.String())
	}
	assert.Equal(t, []string{"pay-1", "pay-1"}, calls)

	rec := doJSON(t, s, http.MethodGet, "/api/payment-callback", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, s, http.MethodPost, "/api/payment-callback?qpay_payment_id=bad", nil)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestSendReceiptStatusCodes(t *testing.T) {
	notifications := &fakeNotifications{
		sendReceipt: func(_ context.Context, id string) (string, error) {
			switch id {
			case "unknown":
				return "", paymentdomain.ErrPaymentNotFound
			case "pending":
				return "", paymentdomain.ErrPaymentNotSettled
			case "busy":
				return "", notificationdomain.ErrReceiptInProgress
			case "brevo":
				return "", &notificationdomain.DeliveryError{Kind: notificationdomain.KindReceipt, Err: errors.New("401")}
			}
			return "Receipt sent: msg-1", nil
		},
	}
	s := newTestServer(t, &fakePayments{}, notifications, nil)

	cases := map[string]int{
		"inv-1":   http.StatusOK,
		"unknown": http.StatusNotFound,
		"pending": http.StatusConflict,
		"busy":    http.StatusConflict,
		"brevo":   http.StatusBadGateway,
	}
	for id, status := range cases {
		rec := doJSON(t, s, http.MethodPost, "/api/payments/"+id+"/receipt", nil)
		assert.Equal(t, status, rec.Code, id)
	}
}

func TestSendPDF(t *testing.T) {
	var staged notificationdomain.SendDocumentRequest
	notifications := &fakeNotifications{
		sendDocument: func(_ context.Context, req notificationdomain.SendDocumentRequest) (string, error) {
			staged = req
			content, err := os.ReadFile(req.Path)
			require.NoError(t, err)
			assert.Equal(t, "%PDF-1.4 test", string(content))
			_ = os.Remove(req.Path)
			return "Email sent: msg-1", nil
		},
	}
	s := newTestServer(t, &fakePayments{}, notifications, nil)

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	require.NoError(t, w.WriteField("email", "a@b.mn"))
	part, err := w.CreateFormFile("file", "report.pdf")
	require.NoError(t, err)
	_, err = part.Write([]byte("%PDF-1.4 test"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/send-pdf", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	rec := httptest.NewRecorder()
	s.Engine().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"message":"Email sent: msg-1"}`, rec.Body.String())
	assert.Equal(t, "a@b.mn", staged.Email)
	assert.Equal(t, "report.pdf", staged.FileName)
}

func TestSendPDFRequiresFile(t *testing.T) {
	s := newTestServer(t, &fakePayments{}, &fakeNotifications{}, nil)

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	require.NoError(t, w.WriteField("email", "a@b.mn"))
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/send-pdf", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	rec := httptest.NewRecorder()
	s.Engine().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "file", decodeError(t, rec).Errors[0].Field)
}

func TestContact(t *testing.T) {
	notifications := &fakeNotifications{
		sendContact: func(_ context.Context, req notificationdomain.ContactRequest) (string, error) {
			switch req.RecaptchaToken {
			case "":
				return "", notificationdomain.ErrInvalidRequest
			case "bot":
				return "", notificationdomain.ErrCaptchaRejected
			}
			return "Email sent: msg-2", nil
		},
	}
	s := newTestServer(t, &fakePayments{}, notifications, nil)

	rec := doJSON(t, s, http.MethodPost, "/api/contact", map[string]string{"name": "Bat", "email": "a@b.mn", "message": "hi", "recaptchaToken": "ok"})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, s, http.MethodPost, "/api/contact", map[string]string{"name": "Bat", "email": "a@b.mn", "message": "hi", "recaptchaToken": "bot"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "captcha_rejected", decodeError(t, rec).Errors[0].Code)

	rec = doJSON(t, s, http.MethodPost, "/api/contact", map[string]string{"name": "Bat"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCORS(t *testing.T) {
	s := newTestServer(t, &fakePayments{}, &fakeNotifications{}, nil)

	req := httptest.NewRequest(http.MethodOptions, "/api/create-invoice", nil)
	req.Header.Set("Origin", "https://academia.mn")
	rec := httptest.NewRecorder()
	s.Engine().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://academia.mn", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodOptions, "/api/create-invoice", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec = httptest.NewRecorder()
	s.Engine().ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestUnknownRoute(t *testing.T) {
	s := newTestServer(t, &fakePayments{}, &fakeNotifications{}, nil)

	rec := doJSON(t, s, http.MethodGet, "/api/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", decodeError(t, rec).Type)
}

func TestHealthWithoutDatabase(t *testing.T) {
	s := newTestServer(t, &fakePayments{}, &fakeNotifications{}, nil)

	rec := doJSON(t, s, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestClientRateLimit(t *testing.T) {
	client := redistest.NewClient(t, 14)
	limiter, err := ratelimit.NewClientLimiter(config.Config{RateLimit: config.RateLimitConfig{
		Enabled:      true,
		InvoiceRate:  0.001,
		InvoiceBurst: 1,
		ContactRate:  0.001,
		ContactBurst: 1,
	}}, client)
	require.NoError(t, err)

	payments := &fakePayments{
		createInvoice: func(context.Context, paymentdomain.CreateInvoiceRequest) (*paymentdomain.InvoiceResult, error) {
			return &paymentdomain.InvoiceResult{InvoiceID: "inv-1"}, nil
		},
	}
	s := newTestServer(t, payments, &fakeNotifications{}, limiter)

	rec := doJSON(t, s, http.MethodPost, "/api/create-invoice", map[string]string{"email": "a@b.mn"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, s, http.MethodPost, "/api/create-invoice", map[string]string{"email": "a@b.mn"})
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
}

func TestStoreFailuresAreInternal(t *testing.T) {
	storeErr := errors.New("redis down")
	cases := []error{
		&paymentdomain.InvoiceCreationError{Op: paymentdomain.OpStore, Err: storeErr},
		&paymentdomain.StatusCheckError{Op: paymentdomain.OpStore, ID: "inv-1", Err: storeErr},
		&paymentdomain.CallbackProcessingError{Op: paymentdomain.OpStore, PaymentID: "pay-1", Err: storeErr},
	}
	for _, err := range cases {
		status, payload := mapError(err)
		assert.Equal(t, http.StatusInternalServerError, status, err.Error())
		assert.Equal(t, "internal_error", payload.Type)
	}

	status, _ := mapError(&paymentdomain.StatusCheckError{Op: "check_payment", ID: "inv-1", Err: storeErr})
	assert.Equal(t, http.StatusBadGateway, status)
}

func TestClassifyErrorForLog(t *testing.T) {
	typ, code := classifyErrorForLog(paymentdomain.ErrInvalidEmail)
	assert.Equal(t, "validation_error", typ)
	assert.Equal(t, "invalid_email", code)

	typ, code = classifyErrorForLog(ErrRateLimited)
	assert.Equal(t, "rate_limited", typ)
	assert.Equal(t, "rate_limited", code)
}
