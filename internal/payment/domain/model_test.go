package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPendingRecordJSON(t *testing.T) {
	out, err := json.Marshal(PendingRecord())
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"PENDING","verified":false,"details":null}`, string(out))
}

func TestRecordJSONKeepsUpdatedAt(t *testing.T) {
	record := PaymentRecord{Status: StatusPaid, Verified: true, UpdatedAt: time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)}
	out, err := json.Marshal(record)
	require.NoError(t, err)
	assert.Contains(t, string(out), `"updatedAt":"2026-02-01T09:00:00Z"`)
}

func TestMergeCarriesChargedAmount(t *testing.T) {
	invoice := PaymentRecord{Status: StatusPending, Email: "a@b.mn", Amount: 1200, Currency: "MNT"}
	merged := invoice.Merge(PaymentRecord{Status: StatusPaid, Verified: true})

	assert.True(t, merged.IsPaid())
	assert.Equal(t, 1200.0, merged.Amount)
	assert.Equal(t, "MNT", merged.Currency)
	assert.Equal(t, "a@b.mn", merged.Email)
}
