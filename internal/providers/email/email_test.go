package email

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/smtp"
	"strings"
	"testing"

	"github.com/smallbiznis/qpayrelay/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBrevoSendRequestShape(t *testing.T) {
	var got map[string]any
	var headers http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		headers = r.Header.Clone()
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"messageId":"<abc@smtp-relay.mailin.fr>"}`))
	}))
	defer srv.Close()

	p := NewBrevo(BrevoConfig{
		APIURL:      srv.URL,
		APIKey:      "xkeysib-test",
		SenderName:  "academia.mn",
		SenderEmail: "no-reply@academia.mn",
	}, srv.Client(), nil)

	id, err := p.Send(context.Background(), Message{
		To:          []string{"student@academia.mn"},
		Subject:     "Report",
		Text:        "See attachment",
		Attachments: []Attachment{{Name: "document.pdf", Content: []byte("%PDF-1.4")}},
	})
	require.NoError(t, err)
	assert.Equal(t, "<abc@smtp-relay.mailin.fr>", id)

	assert.Equal(t, "xkeysib-test", headers.Get("api-key"))
	assert.Equal(t, "application/json", headers.Get("accept"))
	assert.Equal(t, map[string]any{"name": "academia.mn", "email": "no-reply@academia.mn"}, got["sender"])
	assert.Equal(t, []any{map[string]any{"email": "student@academia.mn"}}, got["to"])
	assert.Equal(t, "See attachment", got["textContent"])
	assert.NotContains(t, got, "htmlContent")

	attachments := got["attachment"].([]any)
	require.Len(t, attachments, 1)
	first := attachments[0].(map[string]any)
	assert.Equal(t, "document.pdf", first["name"])
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("%PDF-1.4")), first["content"])
}

func TestBrevoSendError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"code":"unauthorized","message":"Key not found"}`))
	}))
	defer srv.Close()

	p := NewBrevo(BrevoConfig{APIURL: srv.URL}, srv.Client(), nil)
	_, err := p.Send(context.Background(), Message{To: []string{"a@b.mn"}, Subject: "x"})

	var sendErr *SendError
	require.ErrorAs(t, err, &sendErr)
	assert.Equal(t, http.StatusUnauthorized, sendErr.StatusCode)
	assert.Equal(t, "Key not found", sendErr.Message)
	assert.Equal(t, http.StatusUnauthorized, sendErr.UpstreamStatus())
}

func TestSendRequiresRecipients(t *testing.T) {
	for _, p := range []Provider{NewBrevo(BrevoConfig{}, nil, nil), NewSMTP(SMTPConfig{}, nil), &NoOpProvider{}} {
		_, err := p.Send(context.Background(), Message{Subject: "x"})
		assert.ErrorIs(t, err, ErrNoRecipients)
	}
}

func TestSMTPBuildsMultipartMessage(t *testing.T) {
	p := NewSMTP(SMTPConfig{Host: "mail.example.mn", Port: 587, SenderName: "academia.mn", From: "no-reply@academia.mn"}, nil)

	var sentTo []string
	var sentBody string
	p.sendMail = func(addr string, _ smtp.Auth, from string, to []string, msg []byte) error {
		assert.Equal(t, "mail.example.mn:587", addr)
		assert.Equal(t, "no-reply@academia.mn", from)
		sentTo, sentBody = to, string(msg)
		return nil
	}

	id, err := p.Send(context.Background(), Message{
		To:          []string{"a@b.mn"},
		Subject:     "Receipt",
		Text:        "hello",
		Attachments: []Attachment{{Name: "receipt.pdf", Content: []byte("%PDF")}},
	})
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(id, "@mail.example.mn>"))
	assert.Equal(t, []string{"a@b.mn"}, sentTo)
	assert.Contains(t, sentBody, "Content-Type: multipart/mixed; boundary=")
	assert.Contains(t, sentBody, `Content-Disposition: attachment; filename="receipt.pdf"`)
	assert.Contains(t, sentBody, "Content-Type: application/pdf")
	assert.Contains(t, sentBody, base64.StdEncoding.EncodeToString([]byte("hello")))
}

func TestNewFromConfig(t *testing.T) {
	p, err := NewFromConfig(Params{Cfg: config.Config{}})
	require.NoError(t, err)
	assert.IsType(t, &BrevoProvider{}, p)

	_, err = NewFromConfig(Params{Cfg: config.Config{Email: config.EmailConfig{Provider: config.EmailProviderSMTP}}})
	require.EqualError(t, err, `email provider "smtp" requires SMTP_HOST`)

	_, err = NewFromConfig(Params{Cfg: config.Config{Email: config.EmailConfig{Provider: "ses"}}})
	require.EqualError(t, err, `unsupported EMAIL_PROVIDER "ses"`)
}
