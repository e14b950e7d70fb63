package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/stockflow/stockflow-backend/internal/stockout/service"
	"github.com/stockflow/stockflow-backend/pkg/errors"
	"github.com/stockflow/stockflow-backend/pkg/httputil"
	"github.com/stockflow/stockflow-backend/pkg/logger"
)

// SessionHandler exposes the scan session API for stock-out requests
type SessionHandler struct {
	sessions *service.SessionManager
	logger   *logger.Logger
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(sessions *service.SessionManager, log *logger.Logger) *SessionHandler {
	return &SessionHandler{
		sessions: sessions,
		logger:   log,
	}
}

// Routes mounts the session endpoints under a stock-out request
func (h *SessionHandler) Routes(r chi.Router) {
	r.Route("/requests/{id}/session", func(r chi.Router) {
		r.Post("/", h.Start)
		r.Get("/", h.Get)
		r.Delete("/", h.End)
		r.Post("/scan", h.Scan)
		r.Post("/confirm", h.Confirm)
		r.Post("/cancel", h.Cancel)
		r.Delete("/entries/{barcode}", h.RemoveEntry)
		r.Post("/complete", h.Complete)
	})
}

type scanRequest struct {
	Barcode string `json:"barcode" validate:"required,max=200"`
}

type confirmRequest struct {
	Quantity int `json:"quantity" validate:"required,min=1"`
}

// Start opens (or rejoins) the scan session for a request
func (h *SessionHandler) Start(w http.ResponseWriter, r *http.Request) {
	requestID := chi.URLParam(r, "id")
	if requestID == "" {
		httputil.Error(w, errors.BadRequest("request id is required"))
		return
	}

	snapshot, err := h.sessions.StartSession(r.Context(), requestID)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, snapshot)
}

// Get returns the current session snapshot
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	snapshot, err := h.sessions.Snapshot(chi.URLParam(r, "id"))
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, snapshot)
}

// End discards the in-memory session (navigation away). The durable ledger
// log is kept, so the reconciliation can be resumed later.
func (h *SessionHandler) End(w http.ResponseWriter, r *http.Request) {
	h.sessions.EndSession(chi.URLParam(r, "id"))
	httputil.NoContent(w)
}

// Scan processes one barcode scan
func (h *SessionHandler) Scan(w http.ResponseWriter, r *http.Request) {
	var req scanRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	pending, err := h.sessions.Scan(r.Context(), chi.URLParam(r, "id"), req.Barcode)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, pending)
}

// Confirm applies the pending candidate with the operator's quantity
func (h *SessionHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	var req confirmRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	confirmation, err := h.sessions.Confirm(r.Context(), chi.URLParam(r, "id"), req.Quantity)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, confirmation)
}

// Cancel discards the pending candidate
func (h *SessionHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	snapshot, err := h.sessions.Cancel(chi.URLParam(r, "id"))
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, snapshot)
}

// RemoveEntry undoes one confirmed deduction
func (h *SessionHandler) RemoveEntry(w http.ResponseWriter, r *http.Request) {
	barcode := chi.URLParam(r, "barcode")
	if barcode == "" {
		httputil.Error(w, errors.BadRequest("barcode is required"))
		return
	}

	snapshot, err := h.sessions.Remove(r.Context(), chi.URLParam(r, "id"), barcode)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, snapshot)
}

// Complete commits the reconciled ledger to inventory
func (h *SessionHandler) Complete(w http.ResponseWriter, r *http.Request) {
	result, err := h.sessions.Complete(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, result)
}
