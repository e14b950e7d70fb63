package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stockflow/stockflow-backend/internal/stockout/domain"
	"github.com/stockflow/stockflow-backend/pkg/errors"
)

func candidate(barcode string, available int) *domain.CandidateItem {
	return &domain.CandidateItem{
		Barcode:           barcode,
		BatchItemID:       "item-" + barcode,
		ProductID:         "prod-1",
		ProductName:       "Saline 0.9%",
		BatchNumber:       "LOT-1",
		LocationName:      "Shelf A3",
		AvailableQuantity: available,
	}
}

func TestLedger_ConfirmMergesRescans(t *testing.T) {
	ledger := NewLedger()
	now := time.Now()

	ledger.Confirm(candidate("BC-001", 10), 2, now)
	entry := ledger.Confirm(candidate("BC-001", 10), 3, now.Add(time.Minute))

	assert.Equal(t, 5, entry.QuantityDeducted)
	assert.Equal(t, now.Add(time.Minute), entry.Timestamp)
	assert.Equal(t, 1, ledger.Len(), "rescans merge instead of adding entries")
	assert.Equal(t, 5, ledger.TotalDeducted())
}

func TestLedger_OrderIsFirstConfirmation(t *testing.T) {
	ledger := NewLedger()
	now := time.Now()

	ledger.Confirm(candidate("BC-001", 10), 1, now)
	ledger.Confirm(candidate("BC-002", 10), 1, now)
	ledger.Confirm(candidate("BC-001", 10), 1, now)

	entries := ledger.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "BC-001", entries[0].Barcode)
	assert.Equal(t, "BC-002", entries[1].Barcode)
}

func TestLedger_Remove(t *testing.T) {
	ledger := NewLedger()
	now := time.Now()

	ledger.Confirm(candidate("BC-001", 10), 2, now)
	ledger.Confirm(candidate("BC-002", 10), 3, now)

	removed, err := ledger.Remove("BC-001")
	require.NoError(t, err)

	assert.Equal(t, 2, removed.QuantityDeducted)
	assert.Equal(t, 3, ledger.TotalDeducted())
	assert.Equal(t, 1, ledger.Len())

	_, err = ledger.Remove("BC-001")
	assert.True(t, errors.Is(err, errors.ErrNotFound))
}

func TestLedger_RemoveThenRescan(t *testing.T) {
	// Scenario: confirm, remove, scan the same barcode again. The removal
	// must fully clear the slot so the rescan is a fresh entry.
	ledger := NewLedger()
	request := testRequest()
	now := time.Now()

	ledger.Confirm(candidate("BC-001", 10), 4, now)
	_, err := ledger.Remove("BC-001")
	require.NoError(t, err)

	require.NoError(t, ledger.CheckConfirm(candidate("BC-001", 10), request, false))

	entry := ledger.Confirm(candidate("BC-001", 10), 2, now)
	assert.Equal(t, 2, entry.QuantityDeducted)
	assert.Equal(t, 8, ledger.RemainingFor(request))
}

func TestLedger_CheckConfirmUsesCurrentEntries(t *testing.T) {
	ledger := NewLedger()
	request := testRequest() // requests 10
	now := time.Now()

	ledger.Confirm(candidate("BC-001", 10), 10, now)

	err := ledger.CheckConfirm(candidate("BC-002", 5), request, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already fully fulfilled")

	_, err = ledger.Remove("BC-001")
	require.NoError(t, err)
	assert.NoError(t, ledger.CheckConfirm(candidate("BC-002", 5), request, false))
}

func TestLedger_Hydrate(t *testing.T) {
	ledger := NewLedger()
	ledger.Confirm(candidate("BC-OLD", 10), 1, time.Now())

	replayed := []*domain.DeductedBatch{
		{ID: "ev-1", Barcode: "BC-001", QuantityDeducted: 2},
		{ID: "ev-2", Barcode: "BC-002", QuantityDeducted: 3},
	}
	ledger.Hydrate(replayed)

	entries := ledger.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "BC-001", entries[0].Barcode)
	assert.Equal(t, 5, ledger.TotalDeducted())

	// the hydrated ledger must not alias the caller's slice
	replayed[0].QuantityDeducted = 99
	assert.Equal(t, 5, ledger.TotalDeducted())
}

func TestLedger_EntriesAreCopies(t *testing.T) {
	ledger := NewLedger()
	ledger.Confirm(candidate("BC-001", 10), 2, time.Now())

	ledger.Entries()[0].QuantityDeducted = 99
	assert.Equal(t, 2, ledger.TotalDeducted())
}
