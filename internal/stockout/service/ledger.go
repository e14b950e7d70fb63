package service

import (
	"time"

	"github.com/google/uuid"

	"github.com/stockflow/stockflow-backend/internal/stockout/domain"
	"github.com/stockflow/stockflow-backend/pkg/errors"
)

// Ledger is the in-memory deduction ledger of one scan session. It mirrors
// the persisted event log of its request: the session only keeps a mutation
// here when the matching event made it into the log (confirms append before
// merging, removals are rolled back on a failed append), so a write failure
// never leaves the two out of sync.
//
// The ledger itself is not goroutine safe; the owning session serializes
// access.
type Ledger struct {
	entries map[string]*domain.DeductedBatch
	order   []string
}

// NewLedger creates an empty ledger
func NewLedger() *Ledger {
	return &Ledger{entries: make(map[string]*domain.DeductedBatch)}
}

// Hydrate replaces the ledger contents with entries replayed from the event
// log, preserving their order.
func (l *Ledger) Hydrate(entries []*domain.DeductedBatch) {
	l.entries = make(map[string]*domain.DeductedBatch, len(entries))
	l.order = l.order[:0]
	for _, e := range entries {
		copied := *e
		l.entries[copied.Key()] = &copied
		l.order = append(l.order, copied.Key())
	}
}

// CheckConfirm validates a candidate against the request and the current
// ledger without mutating anything. The session calls it before touching
// the version or the event log.
func (l *Ledger) CheckConfirm(candidate *domain.CandidateItem, request *domain.StockOutRequest, allowRescan bool) error {
	return domain.ValidateCandidate(candidate, request, l.entries, allowRescan)
}

// Confirm records a deduction for the candidate, merging into the existing
// entry when the barcode was already scanned. Returns the entry after the
// merge.
func (l *Ledger) Confirm(candidate *domain.CandidateItem, quantity int, at time.Time) *domain.DeductedBatch {
	key := candidate.Key()

	if existing, ok := l.entries[key]; ok {
		existing.QuantityDeducted += quantity
		existing.Timestamp = at
		return existing
	}

	entry := &domain.DeductedBatch{
		ID:               uuid.New().String(),
		BatchItemID:      candidate.BatchItemID,
		Barcode:          candidate.Barcode,
		ProductName:      candidate.ProductName,
		BatchNumber:      candidate.BatchNumber,
		LocationName:     candidate.LocationName,
		QuantityDeducted: quantity,
		Timestamp:        at,
	}
	l.entries[key] = entry
	l.order = append(l.order, key)
	return entry
}

// Remove deletes the entry for a key, returning the removed entry so its
// quantity can be restored to the remaining count.
func (l *Ledger) Remove(key string) (*domain.DeductedBatch, error) {
	entry, ok := l.entries[key]
	if !ok {
		return nil, errors.NotFound("ledger entry")
	}

	delete(l.entries, key)
	for i, k := range l.order {
		if k == key {
			l.order = append(l.order[:i], l.order[i+1:]...)
			break
		}
	}
	return entry, nil
}

// Entries returns the entries in first-confirmation order. The returned
// slice holds copies so callers cannot mutate ledger state.
func (l *Ledger) Entries() []*domain.DeductedBatch {
	result := make([]*domain.DeductedBatch, 0, len(l.order))
	for _, key := range l.order {
		copied := *l.entries[key]
		result = append(result, &copied)
	}
	return result
}

// TotalDeducted sums the deducted quantities across all entries
func (l *Ledger) TotalDeducted() int {
	return domain.LedgerTotal(l.entries)
}

// RemainingFor computes how much of the request is still owed
func (l *Ledger) RemainingFor(request *domain.StockOutRequest) int {
	return domain.Remaining(request.QuantityRequested, l.TotalDeducted())
}

// Len returns the number of entries
func (l *Ledger) Len() int {
	return len(l.entries)
}
