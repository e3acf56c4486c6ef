package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/smallbiznis/qpayrelay/internal/clock"
	"github.com/smallbiznis/qpayrelay/internal/config"
	notificationdomain "github.com/smallbiznis/qpayrelay/internal/notification/domain"
	"github.com/smallbiznis/qpayrelay/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/qpayrelay/internal/observability/metrics"
	paymentdomain "github.com/smallbiznis/qpayrelay/internal/payment/domain"
	"github.com/smallbiznis/qpayrelay/internal/providers/email"
	"github.com/smallbiznis/qpayrelay/internal/providers/pdf"
	"github.com/smallbiznis/qpayrelay/internal/providers/recaptcha"
	"github.com/smallbiznis/qpayrelay/internal/ratelimit"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	documentSubject = "Таны Мэргэжил сонголтын репорт"
	documentText    = "Хавсаргасан PDF document -ийг татаж авна уу!"
	receiptSubject  = "Төлбөрийн баримт"
	receiptText     = "Таны төлбөрийн баримтыг хавсаргав."

	receiptLockTTL = time.Minute
)

type Params struct {
	fx.In

	Cfg        config.Config
	Log        *zap.Logger
	Email      email.Provider
	PDF        pdf.Provider
	Captcha    recaptcha.Verifier
	Payments   paymentdomain.Service
	Pricing    *config.PricingHolder
	Locker     *ratelimit.Locker   `optional:"true"`
	Clock      clock.Clock         `optional:"true"`
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	cfg        config.Config
	log        *zap.Logger
	email      email.Provider
	pdf        pdf.Provider
	captcha    recaptcha.Verifier
	payments   paymentdomain.Service
	pricing    *config.PricingHolder
	locker     *ratelimit.Locker
	clock      clock.Clock
	validate   *validator.Validate
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) notificationdomain.Service {
	c := p.Clock
	if c == nil {
		c = clock.System{}
	}
	pricing := p.Pricing
	if pricing == nil {
		pricing = config.NewStaticPricingHolder(config.DefaultPricing())
	}
	return &Service{
		cfg:        p.Cfg,
		log:        p.Log.Named("notification.service"),
		email:      p.Email,
		pdf:        p.PDF,
		captcha:    p.Captcha,
		payments:   p.Payments,
		pricing:    pricing,
		locker:     p.Locker,
		clock:      c,
		validate:   validator.New(),
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) SendDocument(ctx context.Context, req notificationdomain.SendDocumentRequest) (string, error) {
	log := logger.WithContext(ctx, s.log)
	if strings.TrimSpace(req.Path) != "" {
		defer func() {
			if err := os.Remove(req.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
				log.Warn("failed to remove uploaded document", zap.Error(err))
			}
		}()
	}

	to := strings.TrimSpace(req.Email)
	if err := s.validate.Var(to, "required,email"); err != nil {
		return "", notificationdomain.ErrInvalidRequest
	}
	if strings.TrimSpace(req.Path) == "" {
		return "", notificationdomain.ErrInvalidRequest
	}

	content, err := os.ReadFile(req.Path)
	if err != nil {
		return "", fmt.Errorf("read uploaded document: %w", err)
	}

	messageID, err := s.send(ctx, notificationdomain.KindDocument, email.Message{
		To:          []string{to},
		Subject:     documentSubject,
		Text:        documentText,
		Attachments: []email.Attachment{{Name: "document.pdf", Content: content}},
	})
	if err != nil {
		return "", err
	}
	return "Email sent: " + messageID, nil
}

func (s *Service) SendReceipt(ctx context.Context, id string) (string, error) {
	key, record, err := s.payments.Lookup(ctx, id)
	if err != nil {
		return "", err
	}
	if !record.IsPaid() {
		return "", paymentdomain.ErrPaymentNotSettled
	}
	if strings.TrimSpace(record.Email) == "" {
		return "", fmt.Errorf("%w: payment %s has no email on record", paymentdomain.ErrInvalidRequest, key)
	}

	lockKey := "qpayrelay:receipt:" + key
	token, ok, err := s.locker.TryLock(ctx, lockKey, receiptLockTTL)
	if err != nil {
		return "", fmt.Errorf("acquire receipt lock: %w", err)
	}
	if !ok {
		return "", notificationdomain.ErrReceiptInProgress
	}
	defer func() {
		if err := s.locker.Release(context.WithoutCancel(ctx), lockKey, token); err != nil {
			logger.WithContext(ctx, s.log).Warn("failed to release receipt lock", zap.Error(err))
		}
	}()

	data := s.receiptData(key, record)
	doc, err := s.pdf.GenerateReceipt(ctx, data)
	if err != nil {
		return "", fmt.Errorf("render receipt: %w", err)
	}

	messageID, err := s.send(ctx, notificationdomain.KindReceipt, email.Message{
		To:          []string{record.Email},
		Subject:     receiptSubject,
		Text:        receiptText,
		Attachments: []email.Attachment{{Name: "receipt-" + data.InvoiceID + ".pdf", Content: doc}},
	})
	if err != nil {
		return "", err
	}
	return "Receipt sent: " + messageID, nil
}

func (s *Service) SendContact(ctx context.Context, req notificationdomain.ContactRequest) (string, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.TrimSpace(req.Email)
	req.Message = strings.TrimSpace(req.Message)
	if req.Name == "" || req.Message == "" || s.validate.Var(req.Email, "required,email") != nil {
		return "", notificationdomain.ErrInvalidRequest
	}

	result, err := s.captcha.Verify(ctx, req.RecaptchaToken, req.RemoteIP)
	if err != nil {
		var rejected *recaptcha.RejectedError
		switch {
		case errors.Is(err, recaptcha.ErrMissingToken):
			return "", notificationdomain.ErrInvalidRequest
		case errors.As(err, &rejected):
			logger.WithContext(ctx, s.log).Warn("contact message rejected by reCAPTCHA",
				zap.Float64("score", rejected.Score),
				zap.Strings("error_codes", rejected.ErrorCodes),
			)
			return "", fmt.Errorf("%w: %v", notificationdomain.ErrCaptchaRejected, err)
		default:
			return "", &notificationdomain.DeliveryError{Kind: notificationdomain.KindContact, Err: err}
		}
	}

	messageID, err := s.send(ctx, notificationdomain.KindContact, email.Message{
		To:      []string{s.cfg.Email.ContactTo},
		Subject: "Шинэ мессеж: " + req.Name,
		Text: fmt.Sprintf("Нэр: %s\nИ-мэйл: %s\nМессеж: %s\nreCAPTCHA Score: %s",
			req.Name, req.Email, req.Message, strconv.FormatFloat(result.Score, 'f', -1, 64)),
	})
	if err != nil {
		return "", err
	}
	return "Contact message sent: " + messageID, nil
}

func (s *Service) send(ctx context.Context, kind string, msg email.Message) (string, error) {
	messageID, err := s.email.Send(ctx, msg)
	s.obsMetrics.RecordEmail(ctx, kind, err)
	if err != nil {
		logger.WithContext(ctx, s.log).Error("email delivery failed", zap.String("kind", kind), zap.Error(err))
		return "", &notificationdomain.DeliveryError{Kind: kind, Err: err}
	}
	logger.WithContext(ctx, s.log).Info("email sent", zap.String("kind", kind), zap.String("message_id", messageID))
	return messageID, nil
}

func (s *Service) receiptData(key string, record paymentdomain.PaymentRecord) pdf.ReceiptData {
	pricing := s.pricing.Get()
	details := record.DetailsMap()

	invoiceID := record.InvoiceID
	if invoiceID == "" {
		invoiceID = key
	}
	amount := detailString(details, "payment_amount")
	if amount == "" {
		charged := record.Amount
		if charged == 0 {
			charged = pricing.BaseAmount
		}
		amount = strconv.FormatFloat(charged, 'f', 2, 64)
	}
	currency := detailString(details, "payment_currency")
	if currency == "" {
		currency = record.Currency
	}
	if currency == "" {
		currency = pricing.Currency
	}
	paidAt := record.UpdatedAt
	if paidAt.IsZero() {
		paidAt = s.clock.Now()
	}

	return pdf.ReceiptData{
		InvoiceID:   invoiceID,
		PaymentID:   key,
		Email:       record.Email,
		Description: pricing.Description,
		PromoCode:   record.PromoCode,
		Status:      record.Status,
		Amount:      amount,
		Currency:    currency,
		DatePaid:    paidAt.UTC().Format("2006-01-02"),
	}
}

func detailString(details map[string]any, key string) string {
	switch v := details[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', 2, 64)
	}
	return ""
}
