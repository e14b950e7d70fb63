package domain

import (
	"time"
)

// RequestStatus is the lifecycle state of a stock-out request
type RequestStatus string

const (
	StatusPending    RequestStatus = "pending"
	StatusProcessing RequestStatus = "processing"
	StatusCompleted  RequestStatus = "completed"
)

// Fallbacks applied when a lookup source returns incomplete rows
const (
	UnknownProduct  = "Unknown Product"
	UnknownLocation = "Unknown Location"
)

// StockOutRequest is one fulfillment obligation: remove QuantityRequested
// units of a product from inventory. The reconciliation engine mutates it
// only through the version counter and the terminal completed transition.
type StockOutRequest struct {
	ID                string        `db:"id" json:"id"`
	ProductID         string        `db:"product_id" json:"product_id"`
	ProductName       string        `db:"product_name" json:"product_name"`
	QuantityRequested int           `db:"quantity_requested" json:"quantity_requested"`
	Status            RequestStatus `db:"status" json:"status"`
	// Version guards against two sessions reconciling the same request;
	// every ledger mutation and the final commit check-and-increment it.
	Version     int        `db:"version" json:"version"`
	ProcessedBy *string    `db:"processed_by" json:"processed_by,omitempty"`
	CompletedAt *time.Time `db:"completed_at" json:"completed_at,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updated_at"`
}

// CandidateItem is the resolved form of one scanned physical box. It exists
// only between resolution and confirmation or rejection, never persisted.
type CandidateItem struct {
	Barcode           string `json:"barcode"`
	BatchItemID       string `json:"batch_item_id"`
	ProductID         string `json:"product_id"`
	ProductName       string `json:"product_name"`
	BatchNumber       string `json:"batch_number"`
	LocationName      string `json:"location_name"`
	AvailableQuantity int    `json:"available_quantity"`
	Status            string `json:"status"`
}

// Key returns the ledger key for the candidate: the barcode, or the batch
// item id when the barcode is absent.
func (c *CandidateItem) Key() string {
	if c.Barcode != "" {
		return c.Barcode
	}
	return c.BatchItemID
}

// DeductedBatch is one confirmed deduction in the ledger of a request.
// Repeated confirmations of the same barcode merge into one entry.
type DeductedBatch struct {
	ID               string    `json:"id"`
	BatchItemID      string    `json:"batch_item_id"`
	Barcode          string    `json:"barcode"`
	ProductName      string    `json:"product_name"`
	BatchNumber      string    `json:"batch_number"`
	LocationName     string    `json:"location_name"`
	QuantityDeducted int       `json:"quantity_deducted"`
	Timestamp        time.Time `json:"timestamp"`
}

// Key returns the ledger key for the entry
func (d *DeductedBatch) Key() string {
	if d.Barcode != "" {
		return d.Barcode
	}
	return d.BatchItemID
}

// SessionState is the observable state of a scan session
type SessionState string

const (
	SessionIdle                 SessionState = "idle"
	SessionResolving            SessionState = "resolving"
	SessionAwaitingConfirmation SessionState = "awaiting_confirmation"
	SessionCompleting           SessionState = "completing"
)
