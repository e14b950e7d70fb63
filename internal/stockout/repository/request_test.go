package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stockflow/stockflow-backend/internal/stockout/domain"
	"github.com/stockflow/stockflow-backend/internal/stockout/repository"
	stockflowerrors "github.com/stockflow/stockflow-backend/pkg/errors"
	"github.com/stockflow/stockflow-backend/pkg/testutil"
)

var requestColumns = []string{
	"id", "product_id", "product_name", "quantity_requested", "status",
	"version", "processed_by", "completed_at", "created_at", "updated_at",
}

func TestRequestRepository_GetByID(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()

	now := time.Now().UTC()
	rows := sqlmock.NewRows(requestColumns).
		AddRow("req-1", "prod-1", "Saline 500ml", 10, "pending", 0, nil, nil, now, now)

	mockDB.ExpectQuery("SELECT * FROM stock_out_requests").
		WithArgs("req-1").
		WillReturnRows(rows)

	repo := repository.NewRequestRepository(mockDB.DB)
	req, err := repo.GetByID(context.Background(), "req-1")
	require.NoError(t, err)
	assert.Equal(t, "prod-1", req.ProductID)
	assert.Equal(t, 10, req.QuantityRequested)
	assert.Equal(t, domain.StatusPending, req.Status)
}

func TestRequestRepository_GetByID_NotFound(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()

	mockDB.ExpectQuery("SELECT * FROM stock_out_requests").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(requestColumns))

	repo := repository.NewRequestRepository(mockDB.DB)
	_, err := repo.GetByID(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, stockflowerrors.Is(err, stockflowerrors.ErrNotFound))
}

func TestRequestRepository_TouchVersion(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()

	mockDB.ExpectExec("UPDATE stock_out_requests").
		WithArgs("req-1", 3, string(domain.StatusProcessing), string(domain.StatusCompleted)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := repository.NewRequestRepository(mockDB.DB)
	require.NoError(t, repo.TouchVersion(context.Background(), "req-1", 3))
	mockDB.AssertExpectations(t)
}

func TestRequestRepository_TouchVersion_StaleWriter(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()

	mockDB.ExpectExec("UPDATE stock_out_requests").
		WithArgs("req-1", 3, string(domain.StatusProcessing), string(domain.StatusCompleted)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	repo := repository.NewRequestRepository(mockDB.DB)
	err := repo.TouchVersion(context.Background(), "req-1", 3)
	require.Error(t, err)
	assert.True(t, stockflowerrors.Is(err, stockflowerrors.ErrConflict))
	assert.Contains(t, err.Error(), "another session")
}
