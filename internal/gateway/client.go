package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/smallbiznis/qpayrelay/internal/clock"
	"github.com/smallbiznis/qpayrelay/internal/config"
	"github.com/smallbiznis/qpayrelay/internal/observability/metrics"
	"github.com/smallbiznis/qpayrelay/internal/observability/tracing"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	pathAuthToken    = "/v2/auth/token"
	pathInvoice      = "/v2/invoice"
	pathPayment      = "/v2/payment/"
	pathPaymentCheck = "/v2/payment/check"

	objectTypeInvoice = "INVOICE"
	checkPageLimit    = 100
)

// API is the subset of the QPay v2 merchant API used by the payment service.
type API interface {
	Token(ctx context.Context) (string, error)
	CreateInvoice(ctx context.Context, req CreateInvoiceRequest) (Invoice, error)
	GetPayment(ctx context.Context, paymentID string) (*Payment, error)
	CheckPayment(ctx context.Context, invoiceID string) (*PaymentCheckResult, error)
}

type Params struct {
	fx.In

	Cfg        config.Config
	Log        *zap.Logger
	Clock      clock.Clock             `optional:"true"`
	HTTPClient *http.Client            `optional:"true"`
	Metrics    *metrics.Metrics        `optional:"true"`
	Upstream   *metrics.GatewayMetrics `optional:"true"`
}

// Client talks to the QPay v2 merchant API. It is safe for concurrent use.
type Client struct {
	httpClient *http.Client
	baseURL    string
	username   string
	password   string

	tokens   *tokenCache
	log      *zap.Logger
	metrics  *metrics.Metrics
	upstream *metrics.GatewayMetrics
	tracer   trace.Tracer
}

func New(p Params) *Client {
	httpClient := p.HTTPClient
	if httpClient == nil {
		timeout := p.Cfg.QPay.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	log := p.Log
	if log == nil {
		log = zap.NewNop()
	}

	c := &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimSuffix(p.Cfg.QPay.BaseURL, "/"),
		username:   p.Cfg.QPay.Username,
		password:   p.Cfg.QPay.Password,
		log:        log.Named("gateway.qpay"),
		metrics:    p.Metrics,
		upstream:   p.Upstream,
		tracer:     otel.Tracer("qpayrelay/gateway"),
	}
	c.tokens = newTokenCache(p.Clock, c.authorize)
	c.tokens.onHit = c.upstream.IncTokenLookup
	return c
}

// Token returns a valid bearer token, refreshing it when the cached one is within
// TokenMargin of expiry. Failures are *AuthError.
func (c *Client) Token(ctx context.Context) (string, error) {
	return c.tokens.Token(ctx)
}

func (c *Client) authorize(ctx context.Context) (TokenResponse, error) {
	_, body, err := c.doRequest(ctx, metrics.GatewayOpAuth, http.MethodPost, pathAuthToken, "", nil)
	c.metrics.RecordTokenRefresh(ctx, err)
	if err != nil {
		authErr := &AuthError{Err: err}
		authErr.StatusCode, authErr.Body = StatusAndBody(err)
		c.log.Error("token refresh failed", zap.Int("status", authErr.StatusCode), zap.Error(err))
		return TokenResponse{}, authErr
	}

	var resp TokenResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return TokenResponse{}, &AuthError{Err: &DecodeError{Op: metrics.GatewayOpAuth, Err: err}}
	}
	if strings.TrimSpace(resp.AccessToken) == "" {
		return TokenResponse{}, &AuthError{Err: fmt.Errorf("%w: missing access_token", ErrInvalidResponse)}
	}

	c.log.Info("token refreshed", zap.Int64("expires_in", resp.ExpiresIn))
	return resp, nil
}

func (c *Client) CreateInvoice(ctx context.Context, req CreateInvoiceRequest) (Invoice, error) {
	token, err := c.Token(ctx)
	if err != nil {
		return nil, err
	}

	_, body, err := c.doRequest(ctx, metrics.GatewayOpCreateInvoice, http.MethodPost, pathInvoice, token, req)
	if err != nil {
		return nil, err
	}

	var invoice Invoice
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&invoice); err != nil {
		return nil, &DecodeError{Op: metrics.GatewayOpCreateInvoice, Err: err}
	}
	if invoice.InvoiceID() == "" {
		return nil, fmt.Errorf("%w: missing invoice_id", ErrInvalidResponse)
	}
	return invoice, nil
}

func (c *Client) GetPayment(ctx context.Context, paymentID string) (*Payment, error) {
	paymentID = strings.TrimSpace(paymentID)
	if paymentID == "" {
		return nil, errors.New("payment id is required")
	}

	token, err := c.Token(ctx)
	if err != nil {
		return nil, err
	}

	_, body, err := c.doRequest(ctx, metrics.GatewayOpGetPayment, http.MethodGet, pathPayment+paymentID, token, nil)
	if err != nil {
		return nil, err
	}

	var payment Payment
	if err := json.Unmarshal(body, &payment); err != nil {
		return nil, &DecodeError{Op: metrics.GatewayOpGetPayment, Err: err}
	}
	if payment.PaymentID == "" {
		payment.PaymentID = ID(paymentID)
	}
	payment.Raw = body
	return &payment, nil
}

// CheckPayment lists the payments made against an invoice (first page only).
func (c *Client) CheckPayment(ctx context.Context, invoiceID string) (*PaymentCheckResult, error) {
	token, err := c.Token(ctx)
	if err != nil {
		return nil, err
	}

	req := PaymentCheckRequest{
		ObjectType: objectTypeInvoice,
		ObjectID:   invoiceID,
		Offset:     PageOffset{PageNumber: 1, PageLimit: checkPageLimit},
	}
	_, body, err := c.doRequest(ctx, metrics.GatewayOpCheckPayment, http.MethodPost, pathPaymentCheck, token, req)
	if err != nil {
		return nil, err
	}

	var result PaymentCheckResult
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, &DecodeError{Op: metrics.GatewayOpCheckPayment, Err: err}
	}
	return &result, nil
}

func (c *Client) doRequest(ctx context.Context, op, method, path, token string, payload any) (int, []byte, error) {
	ctx, span := c.tracer.Start(ctx, "qpay."+op, trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(
		attribute.String("http.method", method),
		attribute.String("gateway.operation", op),
	)

	start := time.Now()
	status, data, err := c.send(ctx, op, method, path, token, payload)
	c.upstream.Observe(op, time.Since(start), err)
	c.metrics.RecordGatewayRequest(ctx, op, status)

	span.SetAttributes(attribute.Int("http.status_code", status))
	if err != nil {
		span.RecordError(tracing.SafeError(err))
		span.SetStatus(codes.Error, op+" failed")
		if status == http.StatusUnauthorized && token != "" {
			c.tokens.Invalidate()
		}
	}
	return status, data, err
}

func (c *Client) send(ctx context.Context, op, method, path, token string, payload any) (int, []byte, error) {
	var body io.Reader
	if payload != nil {
		buf := &bytes.Buffer{}
		if err := json.NewEncoder(buf).Encode(payload); err != nil {
			return 0, nil, err
		}
		body = buf
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return 0, nil, err
	}

	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	} else {
		req.SetBasicAuth(c.username, c.password)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.StatusCode, data, &APIError{Op: op, StatusCode: resp.StatusCode, Body: string(data)}
	}
	return resp.StatusCode, data, nil
}
