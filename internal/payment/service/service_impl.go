package service

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/go-playground/validator/v10"
	"github.com/smallbiznis/qpayrelay/internal/clock"
	"github.com/smallbiznis/qpayrelay/internal/config"
	"github.com/smallbiznis/qpayrelay/internal/gateway"
	"github.com/smallbiznis/qpayrelay/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/qpayrelay/internal/observability/metrics"
	paymentdomain "github.com/smallbiznis/qpayrelay/internal/payment/domain"
	promodomain "github.com/smallbiznis/qpayrelay/internal/promo/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

const (
	opAuth          = "auth"
	opCreateInvoice = "create_invoice"
	opCheckPayment  = "check_payment"
	opGetPayment    = "get_payment"
)

type Params struct {
	fx.In

	Cfg        config.Config
	Log        *zap.Logger
	Store      paymentdomain.Store
	Gateway    gateway.API
	Promo      promodomain.Resolver
	Pricing    *config.PricingHolder
	GenID      *snowflake.Node
	Clock      clock.Clock         `optional:"true"`
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	cfg        config.Config
	log        *zap.Logger
	store      paymentdomain.Store
	gateway    gateway.API
	promo      promodomain.Resolver
	pricing    *config.PricingHolder
	genID      *snowflake.Node
	clock      clock.Clock
	validate   *validator.Validate
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) *Service {
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
		log:        p.Log.Named("payment.service"),
		store:      p.Store,
		gateway:    p.Gateway,
		promo:      p.Promo,
		pricing:    pricing,
		genID:      p.GenID,
		clock:      c,
		validate:   validator.New(),
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) CreateInvoice(ctx context.Context, req paymentdomain.CreateInvoiceRequest) (*paymentdomain.InvoiceResult, error) {
	email := strings.TrimSpace(req.Email)
	if err := s.validate.Var(email, "required,email"); err != nil {
		return nil, paymentdomain.ErrInvalidEmail
	}
	promoCode := promodomain.NormalizeCode(req.PromoCode)
	log := logger.WithContext(ctx, s.log)

	result, err := s.createInvoice(ctx, promoCode, email)
	s.obsMetrics.RecordInvoice(ctx, promoCode != "" && result != nil && result.DiscountApplied > 0, err)
	if err != nil {
		log.Error("invoice creation failed", zap.Error(err))
		return nil, err
	}

	log.Info("invoice created",
		zap.String("invoice_id", result.InvoiceID),
		zap.Float64("final_amount", result.FinalAmount),
		zap.Bool("promo_applied", result.DiscountApplied > 0),
	)
	return result, nil
}

func (s *Service) createInvoice(ctx context.Context, promoCode, email string) (*paymentdomain.InvoiceResult, error) {
	if _, err := s.gateway.Token(ctx); err != nil {
		return nil, invoiceError(opAuth, err)
	}

	discount := s.promo.ResolveDiscount(ctx, promoCode)
	pricing := s.pricing.Get()
	base := pricing.BaseAmount
	discountApplied := base * float64(discount) / 100
	finalAmount := roundAmount(base * (1 - float64(discount)/100))

	description := pricing.Description
	if promoCode != "" {
		description = fmt.Sprintf("%s (Promo: %s)", description, promoCode)
	}

	invoice, err := s.gateway.CreateInvoice(ctx, gateway.CreateInvoiceRequest{
		InvoiceCode:         s.cfg.QPay.InvoiceCode,
		SenderInvoiceNo:     s.genID.Generate().String(),
		InvoiceReceiverCode: s.cfg.QPay.ReceiverCode,
		InvoiceDescription:  description,
		SenderBranchCode:    s.cfg.QPay.BranchCode,
		Amount:              finalAmount,
		CallbackURL:         s.cfg.CallbackURL(),
	})
	if err != nil {
		return nil, invoiceError(opCreateInvoice, err)
	}

	invoiceID := invoice.InvoiceID()
	if invoiceID == "" {
		return nil, invoiceError(opCreateInvoice, gateway.ErrInvalidResponse)
	}

	record := paymentdomain.PendingRecord()
	record.PromoCode = promoCode
	record.Email = email
	record.InvoiceID = invoiceID
	record.Amount = finalAmount
	record.Currency = pricing.Currency
	record.UpdatedAt = s.clock.Now()
	if _, err := s.store.Upsert(ctx, invoiceID, record); err != nil {
		return nil, invoiceError(paymentdomain.OpStore, err)
	}

	return &paymentdomain.InvoiceResult{
		InvoiceID:       invoiceID,
		Gateway:         invoice,
		OriginalAmount:  base,
		DiscountApplied: discountApplied,
		FinalAmount:     finalAmount,
	}, nil
}

func (s *Service) CheckStatus(ctx context.Context, id string) (paymentdomain.PaymentRecord, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return paymentdomain.PaymentRecord{}, paymentdomain.ErrInvalidRequest
	}

	_, current, found, err := s.resolve(ctx, id)
	if err != nil {
		err = &paymentdomain.StatusCheckError{Op: paymentdomain.OpStore, ID: id, Err: err}
		s.obsMetrics.RecordStatusCheck(ctx, false, err)
		return paymentdomain.PaymentRecord{}, err
	}
	if found && current.Verified {
		s.obsMetrics.RecordStatusCheck(ctx, true, nil)
		return current, nil
	}

	record, err := s.checkWithGateway(ctx, id, current)
	s.obsMetrics.RecordStatusCheck(ctx, false, err)
	if err != nil {
		logger.WithContext(ctx, s.log).Error("payment status check failed",
			zap.String("id", id),
			zap.Error(err),
		)
		return paymentdomain.PaymentRecord{}, err
	}
	return record, nil
}

func (s *Service) checkWithGateway(ctx context.Context, id string, origin paymentdomain.PaymentRecord) (paymentdomain.PaymentRecord, error) {
	if _, err := s.gateway.Token(ctx); err != nil {
		return paymentdomain.PaymentRecord{}, statusError(opAuth, id, err)
	}

	result, err := s.gateway.CheckPayment(ctx, id)
	if err != nil {
		return paymentdomain.PaymentRecord{}, statusError(opCheckPayment, id, err)
	}

	row, ok := result.First()
	paymentID := row.PaymentID.String()
	if !ok || paymentID == "" {
		return paymentdomain.PendingRecord(), nil
	}

	next := paymentdomain.PaymentRecord{
		Status:    row.PaymentStatus,
		Verified:  true,
		Details:   datatypes.JSON(row.Raw),
		PromoCode: origin.PromoCode,
		Email:     origin.Email,
		InvoiceID: id,
		Amount:    origin.Amount,
		Currency:  origin.Currency,
		UpdatedAt: s.clock.Now(),
	}
	stored, err := s.store.Upsert(ctx, paymentID, next)
	if err != nil {
		return paymentdomain.PaymentRecord{}, statusError(paymentdomain.OpStore, id, err)
	}
	if err := s.store.MapInvoice(ctx, id, paymentID); err != nil {
		return paymentdomain.PaymentRecord{}, statusError(paymentdomain.OpStore, id, err)
	}

	logger.WithContext(ctx, s.log).Info("payment status reconciled",
		zap.String("invoice_id", id),
		zap.String("payment_id", paymentID),
		zap.String("status", stored.Status),
	)
	return stored, nil
}

func (s *Service) HandleCallback(ctx context.Context, paymentID string) (paymentdomain.PaymentRecord, error) {
	paymentID = strings.TrimSpace(paymentID)
	if paymentID == "" {
		return paymentdomain.PaymentRecord{}, paymentdomain.ErrInvalidRequest
	}

	record, err := s.handleCallback(ctx, paymentID)
	s.obsMetrics.RecordCallback(ctx, err)
	if err != nil {
		logger.WithContext(ctx, s.log).Error("payment callback failed",
			zap.String("payment_id", paymentID),
			zap.Error(err),
		)
		return paymentdomain.PaymentRecord{}, err
	}

	logger.WithContext(ctx, s.log).Info("payment callback processed",
		zap.String("payment_id", paymentID),
		zap.String("invoice_id", record.InvoiceID),
		zap.String("status", record.Status),
	)
	return record, nil
}

func (s *Service) handleCallback(ctx context.Context, paymentID string) (paymentdomain.PaymentRecord, error) {
	if _, err := s.gateway.Token(ctx); err != nil {
		return paymentdomain.PaymentRecord{}, callbackError(opAuth, paymentID, err)
	}

	payment, err := s.gateway.GetPayment(ctx, paymentID)
	if err != nil {
		return paymentdomain.PaymentRecord{}, callbackError(opGetPayment, paymentID, err)
	}

	invoiceID := payment.ObjectID.String()
	next := paymentdomain.PaymentRecord{
		Status:    payment.PaymentStatus,
		Verified:  true,
		Details:   datatypes.JSON(payment.Raw),
		InvoiceID: invoiceID,
		UpdatedAt: s.clock.Now(),
	}
	if invoiceID != "" {
		if origin, ok, err := s.store.Get(ctx, invoiceID); err == nil && ok {
			next.PromoCode = origin.PromoCode
			next.Email = origin.Email
			next.Amount = origin.Amount
			next.Currency = origin.Currency
		}
	}

	stored, err := s.store.Upsert(ctx, paymentID, next)
	if err != nil {
		return paymentdomain.PaymentRecord{}, callbackError(paymentdomain.OpStore, paymentID, err)
	}
	if invoiceID != "" {
		if err := s.store.MapInvoice(ctx, invoiceID, paymentID); err != nil {
			return paymentdomain.PaymentRecord{}, callbackError(paymentdomain.OpStore, paymentID, err)
		}
	}
	return stored, nil
}

// Lookup returns the key and record stored for an invoice or payment id.
func (s *Service) Lookup(ctx context.Context, id string) (string, paymentdomain.PaymentRecord, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", paymentdomain.PaymentRecord{}, paymentdomain.ErrInvalidRequest
	}
	key, record, found, err := s.resolve(ctx, id)
	if err != nil {
		return "", paymentdomain.PaymentRecord{}, err
	}
	if !found {
		return "", paymentdomain.PaymentRecord{}, paymentdomain.ErrPaymentNotFound
	}
	return key, record, nil
}

// resolve follows the cross-map from an invoice id to its payment id. When the mapped
// record is missing it falls back to the record stored under id itself.
func (s *Service) resolve(ctx context.Context, id string) (string, paymentdomain.PaymentRecord, bool, error) {
	paymentID, mapped, err := s.store.ResolvePaymentID(ctx, id)
	if err != nil {
		return "", paymentdomain.PaymentRecord{}, false, err
	}
	if mapped {
		record, ok, err := s.store.Get(ctx, paymentID)
		if err != nil {
			return "", paymentdomain.PaymentRecord{}, false, err
		}
		if ok {
			return paymentID, record, true, nil
		}
	}

	record, ok, err := s.store.Get(ctx, id)
	if err != nil {
		return "", paymentdomain.PaymentRecord{}, false, err
	}
	return id, record, ok, nil
}

func roundAmount(v float64) float64 {
	return math.Round(v*100) / 100
}

func invoiceError(op string, err error) error {
	status, body := gateway.StatusAndBody(err)
	return &paymentdomain.InvoiceCreationError{Op: op, StatusCode: status, Body: body, Err: err}
}

func statusError(op, id string, err error) error {
	status, body := gateway.StatusAndBody(err)
	return &paymentdomain.StatusCheckError{Op: op, ID: id, StatusCode: status, Body: body, Err: err}
}

func callbackError(op, paymentID string, err error) error {
	status, body := gateway.StatusAndBody(err)
	return &paymentdomain.CallbackProcessingError{Op: op, PaymentID: paymentID, StatusCode: status, Body: body, Err: err}
}

var _ paymentdomain.Service = (*Service)(nil)
