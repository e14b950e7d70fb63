package messaging

import (
	"encoding/json"
	"fmt"
	"time"
)

// Event types
const (
	// Stock-out reconciliation events
	EventEntryConfirmed   = "stockout.entry.confirmed"
	EventEntryRemoved     = "stockout.entry.removed"
	EventRequestCompleted = "stockout.request.completed"
)

// Exchange names
const (
	ExchangeStockOutEvents = "stockout.events"
)

// Event is the base event structure
type Event struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	Source        string          `json:"source"`
	Timestamp     time.Time       `json:"timestamp"`
	CorrelationID string          `json:"correlation_id"`
	Data          json.RawMessage `json:"data"`
}

// NewEvent creates a new event with the given type and data
func NewEvent(eventType, source, correlationID string, data interface{}) (*Event, error) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	return &Event{
		ID:            GenerateEventID(),
		Type:          eventType,
		Source:        source,
		Timestamp:     time.Now().UTC(),
		CorrelationID: correlationID,
		Data:          dataBytes,
	}, nil
}

// EntryConfirmedEvent is published when a scanned item is confirmed into the
// deduction ledger of a stock-out request
type EntryConfirmedEvent struct {
	RequestID        string `json:"request_id"`
	Barcode          string `json:"barcode"`
	BatchItemID      string `json:"batch_item_id,omitempty"`
	BatchNumber      string `json:"batch_number,omitempty"`
	QuantityDeducted int    `json:"quantity_deducted"`
	TotalDeducted    int    `json:"total_deducted"`
	Remaining        int    `json:"remaining"`
}

// EntryRemovedEvent is published when a ledger entry is undone
type EntryRemovedEvent struct {
	RequestID        string `json:"request_id"`
	Barcode          string `json:"barcode"`
	QuantityRestored int    `json:"quantity_restored"`
	Remaining        int    `json:"remaining"`
}

// RequestCompletedEvent is published when a stock-out request is committed
type RequestCompletedEvent struct {
	RequestID         string    `json:"request_id"`
	ProductID         string    `json:"product_id"`
	QuantityRequested int       `json:"quantity_requested"`
	QuantityDeducted  int       `json:"quantity_deducted"`
	EntryCount        int       `json:"entry_count"`
	ProcessedBy       string    `json:"processed_by"`
	CompletedAt       time.Time `json:"completed_at"`
}

// GenerateEventID generates a unique event ID
func GenerateEventID() string {
	return fmt.Sprintf("%d-%d", time.Now().UnixNano(), time.Now().Nanosecond()%10000)
}
