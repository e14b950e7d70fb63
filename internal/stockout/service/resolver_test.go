package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stockflow/stockflow-backend/internal/stockout/domain"
	"github.com/stockflow/stockflow-backend/internal/stockout/repository"
	"github.com/stockflow/stockflow-backend/pkg/errors"
	"github.com/stockflow/stockflow-backend/pkg/logger"
)

type fakeLookupStore struct {
	consolidated map[string]*repository.ConsolidatedRow
	registry     map[string]*repository.RegistryEntry
	batchItems   map[string]*repository.BatchItemRow
	products     map[string]*repository.ProductRow

	consolidatedCalls int
	registryCalls     int
}

func (f *fakeLookupStore) FindConsolidatedByBarcode(_ context.Context, barcode string) (*repository.ConsolidatedRow, error) {
	f.consolidatedCalls++
	return f.consolidated[barcode], nil
}

func (f *fakeLookupStore) FindRegistryEntry(_ context.Context, barcode string) (*repository.RegistryEntry, error) {
	f.registryCalls++
	return f.registry[barcode], nil
}

func (f *fakeLookupStore) FindBatchItemByBox(_ context.Context, boxID string) (*repository.BatchItemRow, error) {
	return f.batchItems[boxID], nil
}

func (f *fakeLookupStore) FindProduct(_ context.Context, productID string) (*repository.ProductRow, error) {
	return f.products[productID], nil
}

func valid(s string) sql.NullString {
	return sql.NullString{String: s, Valid: true}
}

func testRequest() *domain.StockOutRequest {
	return &domain.StockOutRequest{
		ID:                "req-1",
		ProductID:         "prod-1",
		ProductName:       "Saline 0.9%",
		QuantityRequested: 10,
		Status:            domain.StatusProcessing,
		Version:           1,
	}
}

func TestResolver_ConsolidatedHit(t *testing.T) {
	lookups := &fakeLookupStore{
		consolidated: map[string]*repository.ConsolidatedRow{
			"BC-001": {
				Barcode:      "BC-001",
				BatchItemID:  "item-1",
				ProductID:    valid("prod-1"),
				ProductName:  valid("Saline 0.9%"),
				BatchNumber:  valid("LOT-42"),
				LocationName: valid("Shelf A3"),
				Quantity:     sql.NullInt64{Int64: 7, Valid: true},
				Status:       valid("active"),
			},
		},
		registry: map[string]*repository.RegistryEntry{
			"BC-001": {Barcode: "BC-001", BoxID: "box-1"},
		},
	}
	resolver := NewResolver(lookups, false, logger.New("test", "test"))

	candidate, err := resolver.Resolve(context.Background(), "BC-001", testRequest())
	require.NoError(t, err)

	assert.Equal(t, "item-1", candidate.BatchItemID)
	assert.Equal(t, "Saline 0.9%", candidate.ProductName)
	assert.Equal(t, 7, candidate.AvailableQuantity)
	assert.Equal(t, 0, lookups.registryCalls, "registry must not be consulted on a consolidated hit")
}

func TestResolver_RegistryFallback(t *testing.T) {
	lookups := &fakeLookupStore{
		registry: map[string]*repository.RegistryEntry{
			"BC-002": {Barcode: "BC-002", BoxID: "box-2"},
		},
		batchItems: map[string]*repository.BatchItemRow{
			"box-2": {
				ID:           "item-2",
				BoxID:        "box-2",
				ProductID:    valid("prod-1"),
				BatchNumber:  valid("LOT-43"),
				LocationName: valid("Shelf B1"),
				Quantity:     sql.NullInt64{Int64: 3, Valid: true},
			},
		},
		products: map[string]*repository.ProductRow{
			"prod-1": {ID: "prod-1", Name: valid("Saline 0.9%")},
		},
	}
	resolver := NewResolver(lookups, false, logger.New("test", "test"))

	candidate, err := resolver.Resolve(context.Background(), "BC-002", testRequest())
	require.NoError(t, err)

	assert.Equal(t, 1, lookups.consolidatedCalls)
	assert.Equal(t, "item-2", candidate.BatchItemID)
	assert.Equal(t, "Saline 0.9%", candidate.ProductName)
	assert.Equal(t, 3, candidate.AvailableQuantity)
}

func TestResolver_NullNormalization(t *testing.T) {
	lookups := &fakeLookupStore{
		consolidated: map[string]*repository.ConsolidatedRow{
			"BC-003": {
				Barcode:     "BC-003",
				BatchItemID: "item-3",
				// product, location and quantity all absent from the view
			},
		},
	}
	resolver := NewResolver(lookups, false, logger.New("test", "test"))

	candidate, err := resolver.Resolve(context.Background(), "BC-003", testRequest())
	require.NoError(t, err)

	assert.Equal(t, domain.UnknownProduct, candidate.ProductName)
	assert.Equal(t, domain.UnknownLocation, candidate.LocationName)
	assert.Equal(t, 1, candidate.AvailableQuantity, "missing quantity floors to one unit")
}

func TestResolver_ZeroQuantityPassesThrough(t *testing.T) {
	lookups := &fakeLookupStore{
		consolidated: map[string]*repository.ConsolidatedRow{
			"BC-004": {
				Barcode:     "BC-004",
				BatchItemID: "item-4",
				Quantity:    sql.NullInt64{Int64: 0, Valid: true},
			},
		},
	}
	resolver := NewResolver(lookups, false, logger.New("test", "test"))

	candidate, err := resolver.Resolve(context.Background(), "BC-004", testRequest())
	require.NoError(t, err)

	assert.Equal(t, 0, candidate.AvailableQuantity, "a stored zero is real and must reach validation")
}

func TestResolver_RegistryWithoutBatchItem(t *testing.T) {
	lookups := &fakeLookupStore{
		registry: map[string]*repository.RegistryEntry{
			"BC-005": {Barcode: "BC-005", BoxID: "box-gone"},
		},
	}
	resolver := NewResolver(lookups, false, logger.New("test", "test"))

	_, err := resolver.Resolve(context.Background(), "BC-005", testRequest())
	assert.True(t, errors.Is(err, errors.ErrNotFound))
}

func TestResolver_DemoBarcode(t *testing.T) {
	lookups := &fakeLookupStore{}

	t.Run("enabled", func(t *testing.T) {
		resolver := NewResolver(lookups, true, logger.New("test", "test"))

		candidate, err := resolver.Resolve(context.Background(), "DEMO-001", testRequest())
		require.NoError(t, err)

		assert.Equal(t, "prod-1", candidate.ProductID)
		assert.Equal(t, "Saline 0.9%", candidate.ProductName)
		assert.Equal(t, 10, candidate.AvailableQuantity)
	})

	t.Run("lowercase prefix", func(t *testing.T) {
		resolver := NewResolver(lookups, true, logger.New("test", "test"))

		candidate, err := resolver.Resolve(context.Background(), "test-7", testRequest())
		require.NoError(t, err)
		assert.Equal(t, "test-7", candidate.Barcode)
	})

	t.Run("disabled", func(t *testing.T) {
		resolver := NewResolver(lookups, false, logger.New("test", "test"))

		_, err := resolver.Resolve(context.Background(), "DEMO-001", testRequest())
		assert.True(t, errors.Is(err, errors.ErrNotFound))
	})
}

func TestResolver_Unresolvable(t *testing.T) {
	resolver := NewResolver(&fakeLookupStore{}, true, logger.New("test", "test"))

	_, err := resolver.Resolve(context.Background(), "NOPE-123", testRequest())
	assert.True(t, errors.Is(err, errors.ErrNotFound))
}
