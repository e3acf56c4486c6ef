package email

import (
	"context"
	"errors"
	"fmt"
)

var ErrNoRecipients = errors.New("email has no recipients")

type Attachment struct {
	Name    string
	Content []byte
}

type Message struct {
	To          []string
	Subject     string
	Text        string
	HTML        string
	Attachments []Attachment
}

// Provider delivers transactional email. Send returns the provider message id when
// one is reported.
type Provider interface {
	Send(ctx context.Context, msg Message) (string, error)
}

// SendError is returned when the email provider rejected a message.
type SendError struct {
	Provider   string
	StatusCode int
	Message    string
	Body       string
}

func (e *SendError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: failed to send email (%d): %s", e.Provider, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: failed to send email (%d)", e.Provider, e.StatusCode)
}

func (e *SendError) UpstreamStatus() int {
	return e.StatusCode
}

type NoOpProvider struct{}

func (p *NoOpProvider) Send(ctx context.Context, msg Message) (string, error) {
	if len(msg.To) == 0 {
		return "", ErrNoRecipients
	}
	return "", nil
}
