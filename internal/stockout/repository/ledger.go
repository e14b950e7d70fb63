package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/stockflow/stockflow-backend/internal/stockout/domain"
	"github.com/stockflow/stockflow-backend/pkg/database"
)

// Ledger event types
const (
	LedgerEventConfirmed = "confirmed"
	LedgerEventRemoved   = "removed"
)

// LedgerEvent is one row of the per-request recovery log. Every ledger
// mutation appends exactly one event; replaying the log in sequence order
// reconstructs the ledger after a reload or crash.
type LedgerEvent struct {
	ID           string    `db:"id"`
	RequestID    string    `db:"request_id"`
	Seq          int64     `db:"seq"`
	EventType    string    `db:"event_type"`
	Barcode      string    `db:"barcode"`
	BatchItemID  string    `db:"batch_item_id"`
	ProductName  string    `db:"product_name"`
	BatchNumber  string    `db:"batch_number"`
	LocationName string    `db:"location_name"`
	Quantity     int       `db:"quantity"`
	RecordedAt   time.Time `db:"recorded_at"`
}

// LedgerRepository persists the deduction ledger as an append-only event log
type LedgerRepository struct {
	db *database.DB
}

// NewLedgerRepository creates a new ledger repository
func NewLedgerRepository(db *database.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

// Append appends one mutation event to the log for a request
func (r *LedgerRepository) Append(ctx context.Context, ev *LedgerEvent) error {
	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}

	query := `
		INSERT INTO stock_out_ledger_events (
			id, request_id, event_type, barcode, batch_item_id,
			product_name, batch_number, location_name, quantity
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING seq, recorded_at
	`

	err := r.db.QueryRowxContext(ctx, query,
		ev.ID, ev.RequestID, ev.EventType, ev.Barcode, ev.BatchItemID,
		ev.ProductName, ev.BatchNumber, ev.LocationName, ev.Quantity,
	).Scan(&ev.Seq, &ev.RecordedAt)
	if err != nil {
		if appErr := database.MapPQError(err); appErr != nil {
			return appErr
		}
		return err
	}
	return nil
}

// Replay rebuilds the ledger entries for a request from its event log,
// in first-confirmation order.
func (r *LedgerRepository) Replay(ctx context.Context, requestID string) ([]*domain.DeductedBatch, error) {
	return replay(ctx, r.db, requestID)
}

// ReplayTx is Replay inside an open transaction. The commit coordinator uses
// it so the preconditions are checked against the log as of the commit, not
// against anything a client claimed.
func (r *LedgerRepository) ReplayTx(ctx context.Context, tx *sqlx.Tx, requestID string) ([]*domain.DeductedBatch, error) {
	return replay(ctx, tx, requestID)
}

func replay(ctx context.Context, q sqlx.QueryerContext, requestID string) ([]*domain.DeductedBatch, error) {
	var events []*LedgerEvent
	query := `
		SELECT * FROM stock_out_ledger_events
		WHERE request_id = $1
		ORDER BY seq
	`
	if err := sqlx.SelectContext(ctx, q, &events, query, requestID); err != nil {
		return nil, err
	}

	entries := make(map[string]*domain.DeductedBatch)
	var order []string

	for _, ev := range events {
		key := ev.Barcode
		if key == "" {
			key = ev.BatchItemID
		}

		switch ev.EventType {
		case LedgerEventConfirmed:
			if existing, ok := entries[key]; ok {
				existing.QuantityDeducted += ev.Quantity
				existing.Timestamp = ev.RecordedAt
				continue
			}
			entries[key] = &domain.DeductedBatch{
				ID:               ev.ID,
				BatchItemID:      ev.BatchItemID,
				Barcode:          ev.Barcode,
				ProductName:      ev.ProductName,
				BatchNumber:      ev.BatchNumber,
				LocationName:     ev.LocationName,
				QuantityDeducted: ev.Quantity,
				Timestamp:        ev.RecordedAt,
			}
			order = append(order, key)

		case LedgerEventRemoved:
			if _, ok := entries[key]; !ok {
				continue
			}
			delete(entries, key)
			for i, k := range order {
				if k == key {
					order = append(order[:i], order[i+1:]...)
					break
				}
			}
		}
	}

	result := make([]*domain.DeductedBatch, 0, len(order))
	for _, key := range order {
		result = append(result, entries[key])
	}
	return result, nil
}

// Clear deletes the event log for a request
func (r *LedgerRepository) Clear(ctx context.Context, requestID string) error {
	query := `DELETE FROM stock_out_ledger_events WHERE request_id = $1`
	_, err := r.db.ExecContext(ctx, query, requestID)
	return err
}

// ClearTx is Clear inside the commit transaction
func (r *LedgerRepository) ClearTx(ctx context.Context, tx *sqlx.Tx, requestID string) error {
	query := `DELETE FROM stock_out_ledger_events WHERE request_id = $1`
	_, err := tx.ExecContext(ctx, query, requestID)
	return err
}
