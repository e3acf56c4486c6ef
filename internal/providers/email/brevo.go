package email

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/smallbiznis/qpayrelay/internal/observability/metrics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const maxErrorBody = 4 << 10

type BrevoConfig struct {
	APIURL      string
	APIKey      string
	SenderName  string
	SenderEmail string
}

// BrevoProvider sends through the Brevo transactional email API.
type BrevoProvider struct {
	cfg        BrevoConfig
	httpClient *http.Client
	upstream   *metrics.GatewayMetrics
	tracer     trace.Tracer
}

func NewBrevo(cfg BrevoConfig, httpClient *http.Client, upstream *metrics.GatewayMetrics) *BrevoProvider {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &BrevoProvider{
		cfg:        cfg,
		httpClient: httpClient,
		upstream:   upstream,
		tracer:     otel.Tracer("qpayrelay/email"),
	}
}

type brevoAddress struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email"`
}

type brevoAttachment struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

type brevoRequest struct {
	Sender      brevoAddress      `json:"sender"`
	To          []brevoAddress    `json:"to"`
	Subject     string            `json:"subject"`
	TextContent string            `json:"textContent,omitempty"`
	HTMLContent string            `json:"htmlContent,omitempty"`
	Attachment  []brevoAttachment `json:"attachment,omitempty"`
}

type brevoResponse struct {
	MessageID string `json:"messageId"`
	Code      string `json:"code"`
	Message   string `json:"message"`
}

func (p *BrevoProvider) Send(ctx context.Context, msg Message) (messageID string, err error) {
	if len(msg.To) == 0 {
		return "", ErrNoRecipients
	}

	ctx, span := p.tracer.Start(ctx, "brevo.send", trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.Int("email.attachments", len(msg.Attachments))))
	start := time.Now()
	defer func() {
		p.upstream.Observe(metrics.GatewayOpSendEmail, time.Since(start), err)
		if err != nil {
			span.SetStatus(codes.Error, "send failed")
		}
		span.End()
	}()

	payload := brevoRequest{
		Sender:      brevoAddress{Name: p.cfg.SenderName, Email: p.cfg.SenderEmail},
		Subject:     msg.Subject,
		TextContent: msg.Text,
		HTMLContent: msg.HTML,
	}
	for _, to := range msg.To {
		payload.To = append(payload.To, brevoAddress{Email: to})
	}
	for _, a := range msg.Attachments {
		payload.Attachment = append(payload.Attachment, brevoAttachment{
			Name:    a.Name,
			Content: base64.StdEncoding.EncodeToString(a.Content),
		})
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.APIURL, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("accept", "application/json")
	req.Header.Set("api-key", p.cfg.APIKey)
	req.Header.Set("content-type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("brevo request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("brevo response: %w", err)
	}
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	var decoded brevoResponse
	_ = json.Unmarshal(raw, &decoded)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if len(raw) > maxErrorBody {
			raw = raw[:maxErrorBody]
		}
		return "", &SendError{
			Provider:   "brevo",
			StatusCode: resp.StatusCode,
			Message:    decoded.Message,
			Body:       string(raw),
		}
	}
	return decoded.MessageID, nil
}
