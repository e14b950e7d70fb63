package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/stockflow/stockflow-backend/internal/stockout/domain"
	"github.com/stockflow/stockflow-backend/pkg/database"
	"github.com/stockflow/stockflow-backend/pkg/errors"
)

// RequestRepository handles stock-out request persistence
type RequestRepository struct {
	db *database.DB
}

// NewRequestRepository creates a new request repository
func NewRequestRepository(db *database.DB) *RequestRepository {
	return &RequestRepository{db: db}
}

// GetByID gets a stock-out request by ID
func (r *RequestRepository) GetByID(ctx context.Context, id string) (*domain.StockOutRequest, error) {
	var req domain.StockOutRequest
	query := `SELECT * FROM stock_out_requests WHERE id = $1`
	if err := r.db.GetContext(ctx, &req, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("stock-out request")
		}
		return nil, err
	}
	return &req, nil
}

// TouchVersion bumps the request version and moves a pending request into
// processing. The expected version makes concurrent sessions on the same
// request reject each other instead of double-deducting.
func (r *RequestRepository) TouchVersion(ctx context.Context, id string, expectedVersion int) error {
	query := `
		UPDATE stock_out_requests
		SET version = version + 1, status = $3, updated_at = NOW()
		WHERE id = $1 AND version = $2 AND status <> $4
	`
	result, err := r.db.ExecContext(ctx, query, id, expectedVersion, domain.StatusProcessing, domain.StatusCompleted)
	if err != nil {
		return err
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.Conflict("stock-out request was modified by another session")
	}

	return nil
}

// MarkCompletedTx marks the request completed within the commit transaction,
// recording who processed it and when. Fails with a conflict when another
// session moved the version or the request is already completed.
func (r *RequestRepository) MarkCompletedTx(ctx context.Context, tx *sqlx.Tx, id, actorID string, completedAt time.Time, expectedVersion int) error {
	query := `
		UPDATE stock_out_requests
		SET status = $3, processed_by = $4, completed_at = $5,
		    version = version + 1, updated_at = NOW()
		WHERE id = $1 AND version = $2 AND status <> $3
	`
	result, err := tx.ExecContext(ctx, query, id, expectedVersion, domain.StatusCompleted, actorID, completedAt)
	if err != nil {
		return err
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.Conflict("stock-out request was modified by another session")
	}

	return nil
}
