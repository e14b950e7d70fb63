package repository

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"

	"github.com/stockflow/stockflow-backend/pkg/database"
	"github.com/stockflow/stockflow-backend/pkg/errors"
)

// BatchRepository reads and writes batch item quantities. Writes only ever
// happen inside the commit transaction.
type BatchRepository struct {
	db *database.DB
}

// NewBatchRepository creates a new batch repository
func NewBatchRepository(db *database.DB) *BatchRepository {
	return &BatchRepository{db: db}
}

// GetQuantityForUpdateTx reads the current quantity of a batch item inside
// the commit transaction, locking the row until the transaction ends. The
// second return value reports whether the row exists at all (synthetic demo
// entries have no backing row).
func (r *BatchRepository) GetQuantityForUpdateTx(ctx context.Context, tx *sqlx.Tx, batchItemID string) (int, bool, error) {
	var quantity int
	query := `SELECT quantity FROM batch_items WHERE id = $1 FOR UPDATE`
	if err := tx.GetContext(ctx, &quantity, query, batchItemID); err != nil {
		if err == sql.ErrNoRows {
			return 0, false, nil
		}
		return 0, false, err
	}
	return quantity, true, nil
}

// SetQuantityTx writes the new quantity of a batch item inside the commit
// transaction
func (r *BatchRepository) SetQuantityTx(ctx context.Context, tx *sqlx.Tx, batchItemID string, quantity int) error {
	query := `UPDATE batch_items SET quantity = $2, updated_at = NOW() WHERE id = $1`
	result, err := tx.ExecContext(ctx, query, batchItemID, quantity)
	if err != nil {
		if appErr := database.MapPQError(err); appErr != nil {
			return appErr
		}
		return err
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.NotFound("batch item")
	}

	return nil
}
