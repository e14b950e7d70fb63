// Package events publishes stock-out reconciliation events. Publishing is
// fire-and-forget: a broker outage is logged and never blocks the engine.
package events

import (
	"context"

	"github.com/stockflow/stockflow-backend/internal/stockout/domain"
	"github.com/stockflow/stockflow-backend/internal/stockout/service"
	"github.com/stockflow/stockflow-backend/pkg/logger"
	"github.com/stockflow/stockflow-backend/pkg/messaging"
)

// StockOutEventPublisher publishes reconciliation events to the stock-out
// exchange. A nil publisher is valid and publishes nothing, so the service
// runs without a broker in development.
type StockOutEventPublisher struct {
	publisher *messaging.Publisher
	logger    *logger.Logger
}

// NewStockOutEventPublisher creates an event publisher on the stock-out
// exchange
func NewStockOutEventPublisher(rmq *messaging.RabbitMQ, log *logger.Logger) (*StockOutEventPublisher, error) {
	publisher, err := messaging.NewPublisher(rmq, messaging.ExchangeStockOutEvents, "stockout-service", log)
	if err != nil {
		return nil, err
	}

	return &StockOutEventPublisher{
		publisher: publisher,
		logger:    log.WithComponent("stockout-events"),
	}, nil
}

// PublishEntryConfirmed announces a confirmed deduction
func (p *StockOutEventPublisher) PublishEntryConfirmed(ctx context.Context, requestID string, entry *domain.DeductedBatch, totalDeducted, remaining int) {
	if p == nil || p.publisher == nil {
		return
	}

	event := messaging.EntryConfirmedEvent{
		RequestID:        requestID,
		Barcode:          entry.Barcode,
		BatchItemID:      entry.BatchItemID,
		BatchNumber:      entry.BatchNumber,
		QuantityDeducted: entry.QuantityDeducted,
		TotalDeducted:    totalDeducted,
		Remaining:        remaining,
	}
	if err := p.publisher.Publish(ctx, messaging.EventEntryConfirmed, event); err != nil {
		p.logger.WithError(err).Error().
			Str("request_id", requestID).
			Str("barcode", entry.Barcode).
			Msg("failed to publish entry confirmed event")
	}
}

// PublishEntryRemoved announces an undone deduction
func (p *StockOutEventPublisher) PublishEntryRemoved(ctx context.Context, requestID, barcode string, quantityRestored, remaining int) {
	if p == nil || p.publisher == nil {
		return
	}

	event := messaging.EntryRemovedEvent{
		RequestID:        requestID,
		Barcode:          barcode,
		QuantityRestored: quantityRestored,
		Remaining:        remaining,
	}
	if err := p.publisher.Publish(ctx, messaging.EventEntryRemoved, event); err != nil {
		p.logger.WithError(err).Error().
			Str("request_id", requestID).
			Str("barcode", barcode).
			Msg("failed to publish entry removed event")
	}
}

// PublishRequestCompleted announces a committed reconciliation
func (p *StockOutEventPublisher) PublishRequestCompleted(ctx context.Context, request *domain.StockOutRequest, result *service.CommitResult) {
	if p == nil || p.publisher == nil {
		return
	}

	event := messaging.RequestCompletedEvent{
		RequestID:         request.ID,
		ProductID:         request.ProductID,
		QuantityRequested: request.QuantityRequested,
		QuantityDeducted:  result.TotalDeducted,
		EntryCount:        result.EntryCount,
		ProcessedBy:       result.ProcessedBy,
		CompletedAt:       result.CompletedAt,
	}
	if err := p.publisher.Publish(ctx, messaging.EventRequestCompleted, event); err != nil {
		p.logger.WithError(err).Error().
			Str("request_id", request.ID).
			Msg("failed to publish request completed event")
	}
}
