package service

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/stockflow/stockflow-backend/internal/stockout/domain"
	"github.com/stockflow/stockflow-backend/internal/stockout/repository"
	"github.com/stockflow/stockflow-backend/pkg/errors"
	"github.com/stockflow/stockflow-backend/pkg/logger"
)

// LookupStore answers the read-only queries of the resolution chain.
// Finders return (nil, nil) when nothing matches.
type LookupStore interface {
	FindConsolidatedByBarcode(ctx context.Context, barcode string) (*repository.ConsolidatedRow, error)
	FindRegistryEntry(ctx context.Context, barcode string) (*repository.RegistryEntry, error)
	FindBatchItemByBox(ctx context.Context, boxID string) (*repository.BatchItemRow, error)
	FindProduct(ctx context.Context, productID string) (*repository.ProductRow, error)
}

// Barcode prefixes recognized by the synthetic demo resolver
var demoPrefixes = []string{"DEMO-", "TEST-"}

type resolveFunc func(ctx context.Context, barcode string, request *domain.StockOutRequest) (*domain.CandidateItem, error)

// Resolver turns a raw scanned string into a candidate item by trying an
// ordered list of lookup strategies. It performs no mutation and is
// idempotent; the scan session guarantees at most one outstanding call per
// session.
type Resolver struct {
	strategies []resolveFunc
	logger     *logger.Logger
}

// NewResolver creates the resolution chain. The demo strategy is appended
// only when demo barcodes are enabled in configuration.
func NewResolver(lookups LookupStore, demoBarcodes bool, log *logger.Logger) *Resolver {
	r := &Resolver{logger: log.WithComponent("resolver")}

	r.strategies = []resolveFunc{
		r.resolveConsolidated(lookups),
		r.resolveRegistry(lookups),
	}
	if demoBarcodes {
		r.strategies = append(r.strategies, resolveDemo)
	}

	return r
}

// Resolve tries each strategy in order until one produces a candidate.
func (r *Resolver) Resolve(ctx context.Context, barcode string, request *domain.StockOutRequest) (*domain.CandidateItem, error) {
	for _, strategy := range r.strategies {
		candidate, err := strategy(ctx, barcode, request)
		if err != nil {
			return nil, err
		}
		if candidate != nil {
			return candidate, nil
		}
	}
	return nil, errors.NotFound(fmt.Sprintf("barcode %q", barcode))
}

// resolveConsolidated queries the consolidated item lookup view: one
// authoritative round trip when the barcode is registered there.
func (r *Resolver) resolveConsolidated(lookups LookupStore) resolveFunc {
	return func(ctx context.Context, barcode string, request *domain.StockOutRequest) (*domain.CandidateItem, error) {
		row, err := lookups.FindConsolidatedByBarcode(ctx, barcode)
		if err != nil {
			return nil, err
		}
		if row == nil {
			return nil, nil
		}

		return &domain.CandidateItem{
			Barcode:           barcode,
			BatchItemID:       row.BatchItemID,
			ProductID:         nullString(row.ProductID, ""),
			ProductName:       nullString(row.ProductName, domain.UnknownProduct),
			BatchNumber:       nullString(row.BatchNumber, ""),
			LocationName:      nullString(row.LocationName, domain.UnknownLocation),
			AvailableQuantity: nullQuantity(row.Quantity),
			Status:            nullString(row.Status, ""),
		}, nil
	}
}

// resolveRegistry falls back to the raw barcode registry: barcode to box id,
// box id to batch item, plus a product lookup for the display name.
func (r *Resolver) resolveRegistry(lookups LookupStore) resolveFunc {
	return func(ctx context.Context, barcode string, request *domain.StockOutRequest) (*domain.CandidateItem, error) {
		entry, err := lookups.FindRegistryEntry(ctx, barcode)
		if err != nil {
			return nil, err
		}
		if entry == nil {
			return nil, nil
		}

		item, err := lookups.FindBatchItemByBox(ctx, entry.BoxID)
		if err != nil {
			return nil, err
		}
		if item == nil {
			r.logger.Warn().
				Str("barcode", barcode).
				Str("box_id", entry.BoxID).
				Msg("barcode registered but box has no batch item")
			return nil, nil
		}

		productID := nullString(item.ProductID, nullString(entry.ProductID, ""))
		productName := domain.UnknownProduct
		if productID != "" {
			product, err := lookups.FindProduct(ctx, productID)
			if err != nil {
				return nil, err
			}
			if product != nil {
				productName = nullString(product.Name, domain.UnknownProduct)
			}
		}

		return &domain.CandidateItem{
			Barcode:           barcode,
			BatchItemID:       item.ID,
			ProductID:         productID,
			ProductName:       productName,
			BatchNumber:       nullString(item.BatchNumber, ""),
			LocationName:      nullString(item.LocationName, domain.UnknownLocation),
			AvailableQuantity: nullQuantity(item.Quantity),
			Status:            nullString(item.Status, ""),
		}, nil
	}
}

// resolveDemo synthesizes a candidate from the request's own product data
// for recognized demo prefixes. Test fixtures only, never part of normal
// inventory, and gated off in production configuration.
func resolveDemo(_ context.Context, barcode string, request *domain.StockOutRequest) (*domain.CandidateItem, error) {
	if request == nil || !hasDemoPrefix(barcode) {
		return nil, nil
	}

	available := request.QuantityRequested
	if available < 1 {
		available = 1
	}

	return &domain.CandidateItem{
		Barcode:           barcode,
		ProductID:         request.ProductID,
		ProductName:       request.ProductName,
		BatchNumber:       barcode,
		LocationName:      domain.UnknownLocation,
		AvailableQuantity: available,
		Status:            "demo",
	}, nil
}

func hasDemoPrefix(barcode string) bool {
	upper := strings.ToUpper(barcode)
	for _, prefix := range demoPrefixes {
		if strings.HasPrefix(upper, prefix) {
			return true
		}
	}
	return false
}

func nullString(ns sql.NullString, fallback string) string {
	if ns.Valid && ns.String != "" {
		return ns.String
	}
	return fallback
}

// nullQuantity floors missing or negative quantities at 1. A stored zero is
// a real value and passes through so validation can reject the empty box.
func nullQuantity(n sql.NullInt64) int {
	if !n.Valid || n.Int64 < 0 {
		return 1
	}
	return int(n.Int64)
}
