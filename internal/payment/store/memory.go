package store

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/smallbiznis/qpayrelay/internal/clock"
	"github.com/smallbiznis/qpayrelay/internal/payment/domain"
)

// MemoryStore keeps records for the process lifetime, or for ttl when it is positive
// and Sweep runs.
type MemoryStore struct {
	clock clock.Clock
	ttl   time.Duration

	mu       sync.RWMutex
	records  map[string]domain.PaymentRecord
	invoices map[string]string
}

func NewMemoryStore(c clock.Clock, ttl time.Duration) *MemoryStore {
	if c == nil {
		c = clock.System{}
	}
	return &MemoryStore{
		clock:    c,
		ttl:      ttl,
		records:  map[string]domain.PaymentRecord{},
		invoices: map[string]string{},
	}
}

func (s *MemoryStore) Get(_ context.Context, key string) (domain.PaymentRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[strings.TrimSpace(key)]
	return rec, ok, nil
}

func (s *MemoryStore) Upsert(_ context.Context, key string, rec domain.PaymentRecord) (domain.PaymentRecord, error) {
	key = strings.TrimSpace(key)
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = s.clock.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if current, ok := s.records[key]; ok {
		rec = current.Merge(rec)
	}
	s.records[key] = rec
	return rec, nil
}

func (s *MemoryStore) MapInvoice(_ context.Context, invoiceID, paymentID string) error {
	s.mu.Lock()
	s.invoices[strings.TrimSpace(invoiceID)] = strings.TrimSpace(paymentID)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) ResolvePaymentID(_ context.Context, invoiceID string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	paymentID, ok := s.invoices[strings.TrimSpace(invoiceID)]
	return paymentID, ok, nil
}

// Sweep drops records not updated within ttl, and any cross-map entry that would
// point at a dropped record. It returns the number of records removed.
func (s *MemoryStore) Sweep() int {
	if s.ttl <= 0 {
		return 0
	}
	cutoff := s.clock.Now().Add(-s.ttl)

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, rec := range s.records {
		if rec.UpdatedAt.Before(cutoff) {
			delete(s.records, key)
			removed++
		}
	}
	for invoiceID, paymentID := range s.invoices {
		if _, ok := s.records[paymentID]; !ok {
			delete(s.invoices, invoiceID)
		}
	}
	return removed
}

// Len reports the number of stored records.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// RunSweeper calls Sweep every interval until ctx is done.
func (s *MemoryStore) RunSweeper(ctx context.Context, interval time.Duration, onSweep func(removed int)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := s.Sweep(); removed > 0 && onSweep != nil {
				onSweep(removed)
			}
		}
	}
}

var _ domain.Store = (*MemoryStore)(nil)
