// Package recaptcha verifies reCAPTCHA v3 tokens against Google's siteverify endpoint.
package recaptcha

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/smallbiznis/qpayrelay/internal/config"
	"github.com/smallbiznis/qpayrelay/internal/observability/metrics"
	"go.uber.org/fx"
)

const DefaultMinScore = 0.5

var Module = fx.Module("providers.recaptcha",
	fx.Provide(NewFromConfig),
)

var ErrMissingToken = errors.New("recaptcha token is required")

// RejectedError means siteverify answered but the token did not pass.
type RejectedError struct {
	Score      float64
	ErrorCodes []string
}

func (e *RejectedError) Error() string {
	if len(e.ErrorCodes) > 0 {
		return fmt.Sprintf("reCAPTCHA verification failed. Score: %.1f (%s)", e.Score, strings.Join(e.ErrorCodes, ","))
	}
	return fmt.Sprintf("reCAPTCHA verification failed. Score: %.1f", e.Score)
}

type Result struct {
	Success    bool     `json:"success"`
	Score      float64  `json:"score"`
	Action     string   `json:"action"`
	Hostname   string   `json:"hostname"`
	ErrorCodes []string `json:"error-codes"`
}

type Verifier interface {
	Verify(ctx context.Context, token, remoteIP string) (Result, error)
}

type Params struct {
	fx.In

	Cfg        config.Config
	HTTPClient *http.Client            `optional:"true"`
	Upstream   *metrics.GatewayMetrics `optional:"true"`
}

type Client struct {
	secret     string
	verifyURL  string
	minScore   float64
	httpClient *http.Client
	upstream   *metrics.GatewayMetrics
}

func NewFromConfig(p Params) Verifier {
	return New(p.Cfg.Recaptcha, p.HTTPClient, p.Upstream)
}

func New(cfg config.RecaptchaConfig, httpClient *http.Client, upstream *metrics.GatewayMetrics) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	minScore := cfg.MinScore
	if minScore <= 0 {
		minScore = DefaultMinScore
	}
	return &Client{
		secret:     cfg.SecretKey,
		verifyURL:  cfg.VerifyURL,
		minScore:   minScore,
		httpClient: httpClient,
		upstream:   upstream,
	}
}

// Verify accepts the token when siteverify reports success with a score of at least
// the configured minimum. Transport and decode failures are returned as plain errors,
// a failed check as *RejectedError.
func (c *Client) Verify(ctx context.Context, token, remoteIP string) (result Result, err error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Result{}, ErrMissingToken
	}

	start := time.Now()
	defer func() {
		var rejected *RejectedError
		if errors.As(err, &rejected) {
			c.upstream.Observe(metrics.GatewayOpVerifyCaptcha, time.Since(start), nil)
			return
		}
		c.upstream.Observe(metrics.GatewayOpVerifyCaptcha, time.Since(start), err)
	}()

	form := url.Values{"secret": {c.secret}, "response": {token}}
	if remoteIP != "" {
		form.Set("remoteip", remoteIP)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.verifyURL, strings.NewReader(form.Encode()))
	if err != nil {
		return Result{}, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("recaptcha siteverify: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<10))
		return Result{}, fmt.Errorf("recaptcha siteverify returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return Result{}, fmt.Errorf("decode siteverify response: %w", err)
	}

	if !result.Success || result.Score < c.minScore {
		return result, &RejectedError{Score: result.Score, ErrorCodes: result.ErrorCodes}
	}
	return result, nil
}
