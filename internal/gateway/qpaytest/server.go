// Package qpaytest runs an in-process fake of the QPay v2 merchant API.
package qpaytest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/smallbiznis/qpayrelay/internal/config"
	"github.com/smallbiznis/qpayrelay/internal/gateway"
)

const (
	Username = "test_user"
	Password = "test_pass"
	Token    = "test-access-token"
)

type Server struct {
	*httptest.Server

	AuthCalls    atomic.Int64
	InvoiceCalls atomic.Int64
	PaymentCalls atomic.Int64
	CheckCalls   atomic.Int64

	mu            sync.Mutex
	expiresIn     int64
	failures      map[string]int
	payments      map[string]map[string]any
	checkRows     map[string][]map[string]any
	lastInvoice   gateway.CreateInvoiceRequest
	invoiceSerial int
}

func New(t *testing.T) *Server {
	t.Helper()
	s := &Server{
		expiresIn: 3600,
		failures:  map[string]int{},
		payments:  map[string]map[string]any{},
		checkRows: map[string][]map[string]any{},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v2/auth/token", s.handleAuth)
	mux.HandleFunc("POST /v2/invoice", s.handleInvoice)
	mux.HandleFunc("POST /v2/payment/check", s.handleCheck)
	mux.HandleFunc("GET /v2/payment/{id}", s.handlePayment)

	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Close)
	return s
}

// Config returns an application config pointing at the fake.
func (s *Server) Config() config.Config {
	return config.Config{
		ServerURL: "https://relay.example.mn",
		QPay: config.QPayConfig{
			BaseURL:      s.URL,
			Username:     Username,
			Password:     Password,
			InvoiceCode:  "TEST_INVOICE",
			BranchCode:   "BRANCH",
			ReceiverCode: "terminal",
		},
	}
}

func (s *Server) SetExpiresIn(seconds int64) {
	s.mu.Lock()
	s.expiresIn = seconds
	s.mu.Unlock()
}

// Fail makes every request to path answer with status until cleared with status 0.
func (s *Server) Fail(path string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if status == 0 {
		delete(s.failures, path)
		return
	}
	s.failures[path] = status
}

// SetPayment registers the body served for GET /v2/payment/{paymentID}.
func (s *Server) SetPayment(paymentID, invoiceID, status string) {
	s.mu.Lock()
	s.payments[paymentID] = map[string]any{
		"payment_id":       paymentID,
		"object_type":      "INVOICE",
		"object_id":        invoiceID,
		"payment_status":   status,
		"payment_amount":   "1500.00",
		"payment_currency": "MNT",
	}
	s.mu.Unlock()
}

// SetCheckRows registers the rows returned by payment/check for invoiceID.
func (s *Server) SetCheckRows(invoiceID string, rows ...map[string]any) {
	s.mu.Lock()
	s.checkRows[invoiceID] = rows
	s.mu.Unlock()
}

func (s *Server) LastInvoice() gateway.CreateInvoiceRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastInvoice
}

func (s *Server) failure(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failures[path]
}

func (s *Server) handleAuth(w http.ResponseWriter, r *http.Request) {
	s.AuthCalls.Add(1)
	if status := s.failure("/v2/auth/token"); status != 0 {
		writeJSON(w, status, map[string]any{"error": "AUTHENTICATION_FAILED"})
		return
	}
	user, pass, ok := r.BasicAuth()
	if !ok || user != Username || pass != Password {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "CLIENT_NOTFOUND"})
		return
	}
	s.mu.Lock()
	expires := s.expiresIn
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{
		"token_type":   "bearer",
		"access_token": Token,
		"expires_in":   expires,
	})
}

func (s *Server) authorized(w http.ResponseWriter, r *http.Request) bool {
	if r.Header.Get("Authorization") != "Bearer "+Token {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "NO_CREDENDIALS"})
		return false
	}
	return true
}

func (s *Server) handleInvoice(w http.ResponseWriter, r *http.Request) {
	s.InvoiceCalls.Add(1)
	if !s.authorized(w, r) {
		return
	}
	if status := s.failure("/v2/invoice"); status != 0 {
		writeJSON(w, status, map[string]any{"error": "INVOICE_CODE_INVALID"})
		return
	}
	var req gateway.CreateInvoiceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return
	}

	s.mu.Lock()
	s.lastInvoice = req
	s.invoiceSerial++
	id := fmt.Sprintf("inv-%d", s.invoiceSerial)
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{
		"invoice_id":    id,
		"qr_text":       "0002010102121531" + id,
		"qr_image":      "iVBORw0KGgo=",
		"qPay_shortUrl": "https://s.qpay.mn/" + id,
		"urls": []map[string]any{
			{"name": "Khan bank", "link": "khanbank://q?qPay_QRcode=" + id},
		},
	})
}

func (s *Server) handleCheck(w http.ResponseWriter, r *http.Request) {
	s.CheckCalls.Add(1)
	if !s.authorized(w, r) {
		return
	}
	if status := s.failure("/v2/payment/check"); status != 0 {
		writeJSON(w, status, map[string]any{"error": "INTERNAL"})
		return
	}
	var req gateway.PaymentCheckRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ObjectType != "INVOICE" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "INVALID_OBJECT_TYPE"})
		return
	}

	s.mu.Lock()
	rows := s.checkRows[req.ObjectID]
	s.mu.Unlock()
	if rows == nil {
		rows = []map[string]any{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"count": len(rows), "rows": rows})
}

func (s *Server) handlePayment(w http.ResponseWriter, r *http.Request) {
	s.PaymentCalls.Add(1)
	if !s.authorized(w, r) {
		return
	}
	if status := s.failure("/v2/payment"); status != 0 {
		writeJSON(w, status, map[string]any{"error": "INTERNAL"})
		return
	}
	id := strings.TrimSpace(r.PathValue("id"))

	s.mu.Lock()
	payment, ok := s.payments[id]
	s.mu.Unlock()
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "PAYMENT_NOTFOUND"})
		return
	}
	writeJSON(w, http.StatusOK, payment)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
