package repository

import (
	"context"
	"database/sql"

	"github.com/stockflow/stockflow-backend/pkg/database"
)

// ConsolidatedRow is one row of the item_lookup view, which joins batch
// items, products and locations into a single barcode-keyed lookup.
type ConsolidatedRow struct {
	Barcode      string         `db:"barcode"`
	BatchItemID  string         `db:"batch_item_id"`
	ProductID    sql.NullString `db:"product_id"`
	ProductName  sql.NullString `db:"product_name"`
	BatchNumber  sql.NullString `db:"batch_number"`
	LocationName sql.NullString `db:"location_name"`
	Quantity     sql.NullInt64  `db:"quantity"`
	Status       sql.NullString `db:"status"`
}

// RegistryEntry is a raw barcode-registry row mapping a barcode to a box
type RegistryEntry struct {
	Barcode   string         `db:"barcode"`
	BoxID     string         `db:"box_id"`
	ProductID sql.NullString `db:"product_id"`
}

// BatchItemRow is a raw batch_items row
type BatchItemRow struct {
	ID           string         `db:"id"`
	BoxID        string         `db:"box_id"`
	ProductID    sql.NullString `db:"product_id"`
	BatchNumber  sql.NullString `db:"batch_number"`
	LocationName sql.NullString `db:"location_name"`
	Quantity     sql.NullInt64  `db:"quantity"`
	Status       sql.NullString `db:"status"`
}

// ProductRow is a product catalog row
type ProductRow struct {
	ID   string         `db:"id"`
	Name sql.NullString `db:"name"`
}

// LookupRepository answers the read-only queries of the barcode resolution
// chain. All finders return (nil, nil) when nothing matches so the resolver
// can fall through to the next strategy.
type LookupRepository struct {
	db *database.DB
}

// NewLookupRepository creates a new lookup repository
func NewLookupRepository(db *database.DB) *LookupRepository {
	return &LookupRepository{db: db}
}

// FindConsolidatedByBarcode queries the consolidated item lookup view by
// exact barcode match
func (r *LookupRepository) FindConsolidatedByBarcode(ctx context.Context, barcode string) (*ConsolidatedRow, error) {
	var row ConsolidatedRow
	query := `SELECT * FROM item_lookup WHERE barcode = $1`
	if err := r.db.GetContext(ctx, &row, query, barcode); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

// FindRegistryEntry queries the raw barcode registry by exact match
func (r *LookupRepository) FindRegistryEntry(ctx context.Context, barcode string) (*RegistryEntry, error) {
	var entry RegistryEntry
	query := `SELECT * FROM barcode_registry WHERE barcode = $1`
	if err := r.db.GetContext(ctx, &entry, query, barcode); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &entry, nil
}

// FindBatchItemByBox queries the batch item table by box identifier
func (r *LookupRepository) FindBatchItemByBox(ctx context.Context, boxID string) (*BatchItemRow, error) {
	var row BatchItemRow
	query := `SELECT * FROM batch_items WHERE box_id = $1`
	if err := r.db.GetContext(ctx, &row, query, boxID); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

// FindProduct queries the product catalog
func (r *LookupRepository) FindProduct(ctx context.Context, productID string) (*ProductRow, error) {
	var row ProductRow
	query := `SELECT id, name FROM products WHERE id = $1`
	if err := r.db.GetContext(ctx, &row, query, productID); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}
