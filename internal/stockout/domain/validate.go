package domain

import (
	"fmt"

	"github.com/stockflow/stockflow-backend/pkg/errors"
)

// LedgerTotal sums the deducted quantities over a set of ledger entries.
func LedgerTotal(entries map[string]*DeductedBatch) int {
	total := 0
	for _, e := range entries {
		total += e.QuantityDeducted
	}
	return total
}

// Remaining computes the quantity still owed on a request given the amount
// already deducted, clamped at zero.
func Remaining(quantityRequested, totalDeducted int) int {
	if remaining := quantityRequested - totalDeducted; remaining > 0 {
		return remaining
	}
	return 0
}

// ValidateCandidate decides whether a resolved candidate may be applied to
// the request. Rules run in order; the first failure wins, and the message
// is specific enough for the operator to act on mid-scan.
func ValidateCandidate(candidate *CandidateItem, request *StockOutRequest, entries map[string]*DeductedBatch, allowRescan bool) error {
	if candidate == nil {
		return errors.Unprocessable("scanned item not found")
	}
	if request == nil {
		return errors.Unprocessable("no active stock-out request")
	}
	if _, scanned := entries[candidate.Key()]; scanned && !allowRescan {
		return errors.Unprocessable(fmt.Sprintf("barcode %s already scanned", candidate.Barcode))
	}
	if candidate.ProductID != "" && request.ProductID != "" && candidate.ProductID != request.ProductID {
		return errors.Unprocessable(fmt.Sprintf(
			"product mismatch: expected %s, found %s", request.ProductName, candidate.ProductName))
	}
	if candidate.AvailableQuantity <= 0 {
		return errors.Unprocessable(fmt.Sprintf("no quantity available in box %s", candidate.Barcode))
	}
	if Remaining(request.QuantityRequested, LedgerTotal(entries)) <= 0 {
		return errors.Unprocessable("stock-out request is already fully fulfilled")
	}
	return nil
}

// MaxDeductible is the core numeric rule of the engine: a confirmation can
// never deduct more than the box physically holds, more than the request
// still needs, or more than the operator asked for.
func MaxDeductible(availableQuantity, remainingQuantity, requestedQuantity int) int {
	m := availableQuantity
	if remainingQuantity < m {
		m = remainingQuantity
	}
	if requestedQuantity < m {
		m = requestedQuantity
	}
	if m < 0 {
		return 0
	}
	return m
}

// DefaultConfirmQuantity is the quantity preselected for the operator when
// a candidate is accepted: one unit, or less if the request needs less.
func DefaultConfirmQuantity(remainingQuantity int) int {
	if remainingQuantity < 1 {
		return 0
	}
	return 1
}
