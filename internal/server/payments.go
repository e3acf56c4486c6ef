package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/qpayrelay/internal/observability/context"
	paymentdomain "github.com/smallbiznis/qpayrelay/internal/payment/domain"
)

type createInvoiceRequest struct {
	PromoCode string `json:"promoCode"`
	Email     string `json:"email"`
}

func (s *Server) CreateInvoice(c *gin.Context) {
	var req createInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, newValidationError("body", "invalid_json", "invalid request body"))
		return
	}
	if strings.TrimSpace(req.Email) == "" {
		AbortWithError(c, newValidationError("email", "required", "email is required"))
		return
	}

	result, err := s.paymentSvc.CreateInvoice(c.Request.Context(), paymentdomain.CreateInvoiceRequest{
		PromoCode: req.PromoCode,
		Email:     req.Email,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	s.setPaymentRef(c, result.InvoiceID)
	c.JSON(http.StatusOK, result)
}

func (s *Server) CheckPayment(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		AbortWithError(c, newValidationError("id", "required", "payment id is required"))
		return
	}
	s.setPaymentRef(c, id)

	record, err := s.paymentSvc.CheckStatus(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, record)
}

// PaymentCallback is invoked by the gateway once an invoice is paid.
func (s *Server) PaymentCallback(c *gin.Context) {
	paymentID := strings.TrimSpace(c.Query("qpay_payment_id"))
	if paymentID == "" {
		AbortWithError(c, newValidationError("qpay_payment_id", "required", "qpay_payment_id is required"))
		return
	}
	s.setPaymentRef(c, paymentID)

	if _, err := s.paymentSvc.HandleCallback(c.Request.Context(), paymentID); err != nil {
		AbortWithError(c, err)
		return
	}

	c.String(http.StatusOK, "SUCCESS")
}

func (s *Server) SendReceipt(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		AbortWithError(c, newValidationError("id", "required", "payment id is required"))
		return
	}
	s.setPaymentRef(c, id)

	message, err := s.notificationSvc.SendReceipt(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": message})
}

func (s *Server) setPaymentRef(c *gin.Context, ref string) {
	if ref == "" {
		return
	}
	c.Set("payment_ref", ref)
	c.Request = c.Request.WithContext(obscontext.WithPaymentRef(c.Request.Context(), ref))
}
