package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/stockflow/stockflow-backend/internal/stockout/domain"
	"github.com/stockflow/stockflow-backend/internal/stockout/repository"
	"github.com/stockflow/stockflow-backend/pkg/errors"
	"github.com/stockflow/stockflow-backend/pkg/logger"
)

// RequestStore loads and version-guards stock-out requests
type RequestStore interface {
	GetByID(ctx context.Context, id string) (*domain.StockOutRequest, error)
	TouchVersion(ctx context.Context, id string, expectedVersion int) error
}

// LedgerStore is the durable event log behind the in-memory ledger
type LedgerStore interface {
	Append(ctx context.Context, ev *repository.LedgerEvent) error
	Replay(ctx context.Context, requestID string) ([]*domain.DeductedBatch, error)
	Clear(ctx context.Context, requestID string) error
}

// BarcodeResolver resolves a raw scanned string into a candidate item
type BarcodeResolver interface {
	Resolve(ctx context.Context, barcode string, request *domain.StockOutRequest) (*domain.CandidateItem, error)
}

// Committer finalizes a reconciled request. It works from the durable
// ledger log, not from anything the session hands over.
type Committer interface {
	Commit(ctx context.Context, request *domain.StockOutRequest) (*CommitResult, error)
}

// EventPublisher publishes reconciliation events. Implementations must
// tolerate a nil receiver so the engine runs without a broker.
type EventPublisher interface {
	PublishEntryConfirmed(ctx context.Context, requestID string, entry *domain.DeductedBatch, totalDeducted, remaining int)
	PublishEntryRemoved(ctx context.Context, requestID, barcode string, quantityRestored, remaining int)
}

// PendingCandidate is a resolved item waiting for the operator's quantity
type PendingCandidate struct {
	Item            *domain.CandidateItem `json:"item"`
	MaxQuantity     int                   `json:"max_quantity"`
	DefaultQuantity int                   `json:"default_quantity"`
}

// Snapshot is the observable state of a session, safe to hand to transport
type Snapshot struct {
	RequestID       string                  `json:"request_id"`
	State           domain.SessionState     `json:"state"`
	Request         *domain.StockOutRequest `json:"request"`
	Entries         []*domain.DeductedBatch `json:"entries"`
	TotalDeducted   int                     `json:"total_deducted"`
	Remaining       int                     `json:"remaining"`
	ScanningEnabled bool                    `json:"scanning_enabled"`
	Pending         *PendingCandidate       `json:"pending,omitempty"`
}

// session is the per-request scan state. All access goes through its mutex.
// The lock is released during barcode resolution; the inFlight flag rejects
// a second scan arriving while one is still resolving.
type session struct {
	mu sync.Mutex

	request *domain.StockOutRequest
	ledger  *Ledger

	state           domain.SessionState
	pending         *domain.CandidateItem
	scanningEnabled bool
	inFlight        bool

	lastBarcode string
	lastScanAt  time.Time
}

// SessionManager owns the scan sessions, one per stock-out request
type SessionManager struct {
	mu       sync.Mutex
	sessions map[string]*session

	requests  RequestStore
	ledgerLog LedgerStore
	resolver  BarcodeResolver
	committer Committer
	publisher EventPublisher

	debounce    time.Duration
	allowRescan bool

	now    func() time.Time
	logger *logger.Logger
}

// NewSessionManager creates a session manager
func NewSessionManager(
	requests RequestStore,
	ledgerLog LedgerStore,
	resolver BarcodeResolver,
	committer Committer,
	publisher EventPublisher,
	debounce time.Duration,
	allowRescan bool,
	log *logger.Logger,
) *SessionManager {
	return &SessionManager{
		sessions:    make(map[string]*session),
		requests:    requests,
		ledgerLog:   ledgerLog,
		resolver:    resolver,
		committer:   committer,
		publisher:   publisher,
		debounce:    debounce,
		allowRescan: allowRescan,
		now:         time.Now,
		logger:      log.WithComponent("session"),
	}
}

// StartSession opens (or rejoins) the scan session for a request. The
// persisted ledger log is replayed so a reload resumes exactly where the
// operator left off. A pending request moves to processing.
func (m *SessionManager) StartSession(ctx context.Context, requestID string) (*Snapshot, error) {
	m.mu.Lock()
	if existing, ok := m.sessions[requestID]; ok {
		m.mu.Unlock()
		existing.mu.Lock()
		defer existing.mu.Unlock()
		return m.snapshotLocked(existing), nil
	}
	m.mu.Unlock()

	request, err := m.requests.GetByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if request.Status == domain.StatusCompleted {
		return nil, errors.Conflict("stock-out request is already completed")
	}

	entries, err := m.ledgerLog.Replay(ctx, requestID)
	if err != nil {
		return nil, err
	}

	if request.Status == domain.StatusPending {
		if err := m.requests.TouchVersion(ctx, requestID, request.Version); err != nil {
			return nil, err
		}
		request.Version++
		request.Status = domain.StatusProcessing
	}

	s := &session{
		request:         request,
		ledger:          NewLedger(),
		state:           domain.SessionIdle,
		scanningEnabled: true,
	}
	s.ledger.Hydrate(entries)

	m.mu.Lock()
	if raced, ok := m.sessions[requestID]; ok {
		// another caller opened the session while we were loading
		m.mu.Unlock()
		raced.mu.Lock()
		defer raced.mu.Unlock()
		return m.snapshotLocked(raced), nil
	}
	m.sessions[requestID] = s
	m.mu.Unlock()

	m.logger.Info().
		Str("request_id", requestID).
		Int("ledger_entries", s.ledger.Len()).
		Msg("scan session started")

	s.mu.Lock()
	defer s.mu.Unlock()
	return m.snapshotLocked(s), nil
}

// Scan processes one raw barcode scan: guards, resolution, validation. On
// success the candidate is parked as pending and scanning is disabled until
// the operator confirms or cancels.
func (m *SessionManager) Scan(ctx context.Context, requestID, rawBarcode string) (*PendingCandidate, error) {
	s, err := m.session(requestID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()

	barcode := strings.TrimSpace(rawBarcode)
	if barcode == "" {
		s.mu.Unlock()
		return nil, errors.BadRequest("barcode is required")
	}
	if !s.scanningEnabled {
		s.mu.Unlock()
		return nil, errors.Unprocessable("confirm or cancel the pending item first")
	}
	if s.inFlight {
		s.mu.Unlock()
		return nil, errors.Unprocessable("a scan is already being processed")
	}

	now := m.now()
	if barcode == s.lastBarcode && now.Sub(s.lastScanAt) < m.debounce {
		s.mu.Unlock()
		return nil, errors.Unprocessable(fmt.Sprintf("duplicate scan of barcode %s ignored", barcode))
	}
	// stamped before resolution so a rapid re-fire during the lookup is
	// still inside the debounce window
	s.lastBarcode = barcode
	s.lastScanAt = now

	s.inFlight = true
	s.state = domain.SessionResolving
	request := s.request
	s.mu.Unlock()

	candidate, err := m.resolver.Resolve(ctx, barcode, request)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.inFlight = false
	if err != nil {
		s.state = domain.SessionIdle
		return nil, err
	}

	if err := s.ledger.CheckConfirm(candidate, s.request, m.allowRescan); err != nil {
		s.state = domain.SessionIdle
		return nil, err
	}

	s.pending = candidate
	s.scanningEnabled = false
	s.state = domain.SessionAwaitingConfirmation

	remaining := s.ledger.RemainingFor(s.request)
	return &PendingCandidate{
		Item:            candidate,
		MaxQuantity:     domain.MaxDeductible(candidate.AvailableQuantity, remaining, candidate.AvailableQuantity),
		DefaultQuantity: domain.DefaultConfirmQuantity(remaining),
	}, nil
}

// Confirmation reports what a confirm actually deducted along with the
// refreshed session state. QuantityApplied can be lower than the quantity
// the operator entered when the box or the request could not absorb it.
type Confirmation struct {
	QuantityApplied int `json:"quantity_applied"`
	*Snapshot
}

// Confirm applies the pending candidate to the ledger with the operator's
// quantity, clamped to the three-way minimum. The event is appended to the
// durable log before the in-memory merge; the version bump rejects a
// concurrent session before anything is written.
func (m *SessionManager) Confirm(ctx context.Context, requestID string, quantity int) (*Confirmation, error) {
	s, err := m.session(requestID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pending == nil {
		return nil, errors.Unprocessable("no pending item to confirm")
	}
	if quantity < 1 {
		return nil, errors.BadRequest("quantity must be at least 1")
	}

	if err := s.ledger.CheckConfirm(s.pending, s.request, m.allowRescan); err != nil {
		s.resetToIdle()
		return nil, err
	}

	remaining := s.ledger.RemainingFor(s.request)
	apply := domain.MaxDeductible(s.pending.AvailableQuantity, remaining, quantity)
	if apply < 1 {
		s.resetToIdle()
		return nil, errors.Unprocessable(fmt.Sprintf("no quantity available in box %s", s.pending.Barcode))
	}
	if apply < quantity {
		m.logger.Warn().
			Str("request_id", requestID).
			Str("barcode", s.pending.Barcode).
			Int("requested", quantity).
			Int("applied", apply).
			Msg("confirm quantity reduced to fit box and request")
	}

	if err := m.requests.TouchVersion(ctx, requestID, s.request.Version); err != nil {
		return nil, err
	}
	s.request.Version++
	s.request.Status = domain.StatusProcessing

	ev := &repository.LedgerEvent{
		RequestID:    requestID,
		EventType:    repository.LedgerEventConfirmed,
		Barcode:      s.pending.Barcode,
		BatchItemID:  s.pending.BatchItemID,
		ProductName:  s.pending.ProductName,
		BatchNumber:  s.pending.BatchNumber,
		LocationName: s.pending.LocationName,
		Quantity:     apply,
	}
	if err := m.ledgerLog.Append(ctx, ev); err != nil {
		return nil, errors.Wrap(err, "LEDGER_WRITE_FAILED", "failed to record the deduction", 500)
	}

	entry := s.ledger.Confirm(s.pending, apply, ev.RecordedAt)
	s.resetToIdle()

	total := s.ledger.TotalDeducted()
	left := s.ledger.RemainingFor(s.request)

	m.logger.Info().
		Str("request_id", requestID).
		Str("barcode", entry.Barcode).
		Int("quantity", apply).
		Int("total_deducted", total).
		Int("remaining", left).
		Msg("deduction confirmed")

	m.publisher.PublishEntryConfirmed(ctx, requestID, entry, total, left)

	return &Confirmation{QuantityApplied: apply, Snapshot: m.snapshotLocked(s)}, nil
}

// Cancel discards the pending candidate and re-enables scanning
func (m *SessionManager) Cancel(requestID string) (*Snapshot, error) {
	s, err := m.session(requestID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.resetToIdle()
	return m.snapshotLocked(s), nil
}

// Remove undoes one confirmed deduction, restoring its quantity to the
// remaining count. Any pending candidate is discarded as well.
func (m *SessionManager) Remove(ctx context.Context, requestID, barcode string) (*Snapshot, error) {
	s, err := m.session(requestID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, err := s.ledger.Remove(barcode)
	if err != nil {
		return nil, err
	}

	// put the entry back: the log still holds its confirmation, so dropping
	// it from memory would let the barcode be confirmed a second time
	restore := func() {
		s.ledger.Confirm(&domain.CandidateItem{
			Barcode:      entry.Barcode,
			BatchItemID:  entry.BatchItemID,
			ProductName:  entry.ProductName,
			BatchNumber:  entry.BatchNumber,
			LocationName: entry.LocationName,
		}, entry.QuantityDeducted, entry.Timestamp)
	}

	if err := m.requests.TouchVersion(ctx, requestID, s.request.Version); err != nil {
		restore()
		return nil, err
	}
	s.request.Version++

	ev := &repository.LedgerEvent{
		RequestID:   requestID,
		EventType:   repository.LedgerEventRemoved,
		Barcode:     entry.Barcode,
		BatchItemID: entry.BatchItemID,
		Quantity:    entry.QuantityDeducted,
	}
	if err := m.ledgerLog.Append(ctx, ev); err != nil {
		restore()
		return nil, errors.Wrap(err, "LEDGER_WRITE_FAILED", "failed to record the removal", 500)
	}

	if s.ledger.Len() == 0 {
		// empty ledger: compact the log instead of replaying a no-op history
		if err := m.ledgerLog.Clear(ctx, requestID); err != nil {
			m.logger.Warn().Err(err).Str("request_id", requestID).Msg("failed to compact ledger log")
		}
	}

	s.resetToIdle()

	left := s.ledger.RemainingFor(s.request)
	m.logger.Info().
		Str("request_id", requestID).
		Str("barcode", entry.Barcode).
		Int("quantity_restored", entry.QuantityDeducted).
		Int("remaining", left).
		Msg("deduction removed")

	m.publisher.PublishEntryRemoved(ctx, requestID, entry.Barcode, entry.QuantityDeducted, left)

	return m.snapshotLocked(s), nil
}

// Complete hands the reconciled ledger to the commit coordinator. On success
// the session is torn down; on failure it reverts to idle with the ledger
// untouched.
func (m *SessionManager) Complete(ctx context.Context, requestID string) (*CommitResult, error) {
	s, err := m.session(requestID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pending != nil {
		return nil, errors.Unprocessable("confirm or cancel the pending item first")
	}

	s.state = domain.SessionCompleting
	s.scanningEnabled = false

	result, err := m.committer.Commit(ctx, s.request)
	if err != nil {
		s.resetToIdle()
		return nil, err
	}

	m.mu.Lock()
	delete(m.sessions, requestID)
	m.mu.Unlock()

	return result, nil
}

// Snapshot returns the observable state of a session
func (m *SessionManager) Snapshot(requestID string) (*Snapshot, error) {
	s, err := m.session(requestID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return m.snapshotLocked(s), nil
}

// EndSession discards the in-memory session. The durable ledger log stays,
// so starting a new session resumes the reconciliation.
func (m *SessionManager) EndSession(requestID string) {
	m.mu.Lock()
	delete(m.sessions, requestID)
	m.mu.Unlock()
}

func (m *SessionManager) session(requestID string) (*session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[requestID]
	if !ok {
		return nil, errors.NotFound("scan session")
	}
	return s, nil
}

func (s *session) resetToIdle() {
	s.pending = nil
	s.scanningEnabled = true
	s.state = domain.SessionIdle
}

// snapshotLocked builds a snapshot; the caller holds the session mutex
func (m *SessionManager) snapshotLocked(s *session) *Snapshot {
	snap := &Snapshot{
		RequestID:       s.request.ID,
		State:           s.state,
		Request:         s.request,
		Entries:         s.ledger.Entries(),
		TotalDeducted:   s.ledger.TotalDeducted(),
		Remaining:       s.ledger.RemainingFor(s.request),
		ScanningEnabled: s.scanningEnabled,
	}
	if s.pending != nil {
		snap.Pending = &PendingCandidate{
			Item:            s.pending,
			MaxQuantity:     domain.MaxDeductible(s.pending.AvailableQuantity, snap.Remaining, s.pending.AvailableQuantity),
			DefaultQuantity: domain.DefaultConfirmQuantity(snap.Remaining),
		}
	}
	return snap
}
