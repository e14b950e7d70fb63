package service

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/stockflow/stockflow-backend/internal/stockout/domain"
	"github.com/stockflow/stockflow-backend/pkg/actor"
	"github.com/stockflow/stockflow-backend/pkg/errors"
	"github.com/stockflow/stockflow-backend/pkg/logger"
)

// TxRunner runs a function inside a database transaction
type TxRunner interface {
	Transaction(ctx context.Context, fn func(*sqlx.Tx) error) error
}

// CommitRequestStore marks requests completed inside the commit transaction
type CommitRequestStore interface {
	MarkCompletedTx(ctx context.Context, tx *sqlx.Tx, id, actorID string, completedAt time.Time, expectedVersion int) error
}

// CommitBatchStore reads and writes batch quantities inside the commit
// transaction
type CommitBatchStore interface {
	GetQuantityForUpdateTx(ctx context.Context, tx *sqlx.Tx, batchItemID string) (int, bool, error)
	SetQuantityTx(ctx context.Context, tx *sqlx.Tx, batchItemID string, quantity int) error
}

// CommitLedgerStore replays and clears the ledger log inside the commit
// transaction
type CommitLedgerStore interface {
	ReplayTx(ctx context.Context, tx *sqlx.Tx, requestID string) ([]*domain.DeductedBatch, error)
	ClearTx(ctx context.Context, tx *sqlx.Tx, requestID string) error
}

// CompletionPublisher announces a completed reconciliation
type CompletionPublisher interface {
	PublishRequestCompleted(ctx context.Context, request *domain.StockOutRequest, result *CommitResult)
}

// CommitResult reports what a successful commit wrote
type CommitResult struct {
	RequestID     string    `json:"request_id"`
	TotalDeducted int       `json:"total_deducted"`
	EntryCount    int       `json:"entry_count"`
	SkippedItems  []string  `json:"skipped_items,omitempty"`
	ProcessedBy   string    `json:"processed_by"`
	CompletedAt   time.Time `json:"completed_at"`
}

// CommitCoordinator finalizes a reconciled stock-out request. The whole
// commit runs in one transaction: batch quantities, the completed mark and
// the ledger log cleanup land together or not at all.
type CommitCoordinator struct {
	db        TxRunner
	requests  CommitRequestStore
	batches   CommitBatchStore
	ledgerLog CommitLedgerStore
	publisher CompletionPublisher

	now    func() time.Time
	logger *logger.Logger
}

// NewCommitCoordinator creates a commit coordinator
func NewCommitCoordinator(
	db TxRunner,
	requests CommitRequestStore,
	batches CommitBatchStore,
	ledgerLog CommitLedgerStore,
	publisher CompletionPublisher,
	log *logger.Logger,
) *CommitCoordinator {
	return &CommitCoordinator{
		db:        db,
		requests:  requests,
		batches:   batches,
		ledgerLog: ledgerLog,
		publisher: publisher,
		now:       time.Now,
		logger:    log.WithComponent("commit"),
	}
}

func preconditionFailed(message string) *errors.AppError {
	return errors.New("COMMIT_PRECONDITION", message, http.StatusConflict)
}

// Commit writes the reconciliation to inventory. The ledger is replayed from
// the durable log inside the transaction, so the preconditions hold against
// what was actually recorded, not against anything a client claimed.
func (c *CommitCoordinator) Commit(ctx context.Context, request *domain.StockOutRequest) (*CommitResult, error) {
	actorID := actor.IDFromContext(ctx)

	var result *CommitResult
	err := c.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		entries, err := c.ledgerLog.ReplayTx(ctx, tx, request.ID)
		if err != nil {
			return err
		}

		total := 0
		missingBarcodes := 0
		for _, e := range entries {
			total += e.QuantityDeducted
			if e.Barcode == "" {
				missingBarcodes++
			}
		}

		if total < request.QuantityRequested {
			return preconditionFailed(fmt.Sprintf(
				"insufficient quantity: %d of %d units deducted", total, request.QuantityRequested))
		}
		if missingBarcodes > 0 {
			return preconditionFailed(fmt.Sprintf("missing barcode on %d entries", missingBarcodes))
		}

		var skipped []string
		for _, e := range entries {
			if e.BatchItemID == "" {
				skipped = append(skipped, e.Key())
				continue
			}

			available, found, err := c.batches.GetQuantityForUpdateTx(ctx, tx, e.BatchItemID)
			if err != nil {
				return err
			}
			if !found {
				// demo fixtures and retired items have no backing row
				c.logger.Warn().
					Str("request_id", request.ID).
					Str("batch_item_id", e.BatchItemID).
					Str("barcode", e.Barcode).
					Msg("batch item missing, deduction skipped")
				skipped = append(skipped, e.Key())
				continue
			}

			updated := available - e.QuantityDeducted
			if updated < 0 {
				updated = 0
			}
			if err := c.batches.SetQuantityTx(ctx, tx, e.BatchItemID, updated); err != nil {
				return err
			}
		}

		completedAt := c.now()
		if err := c.requests.MarkCompletedTx(ctx, tx, request.ID, actorID, completedAt, request.Version); err != nil {
			return err
		}

		if err := c.ledgerLog.ClearTx(ctx, tx, request.ID); err != nil {
			return err
		}

		result = &CommitResult{
			RequestID:     request.ID,
			TotalDeducted: total,
			EntryCount:    len(entries),
			SkippedItems:  skipped,
			ProcessedBy:   actorID,
			CompletedAt:   completedAt,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	request.Status = domain.StatusCompleted
	request.Version++
	request.ProcessedBy = &result.ProcessedBy
	request.CompletedAt = &result.CompletedAt

	c.logger.Info().
		Str("request_id", request.ID).
		Str("actor_id", actorID).
		Int("total_deducted", result.TotalDeducted).
		Int("entries", result.EntryCount).
		Msg("stock-out request completed")

	c.publisher.PublishRequestCompleted(ctx, request, result)

	return result, nil
}
