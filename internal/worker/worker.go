package worker

import (
	"context"

	"booking-service/internal/broker"
	"booking-service/internal/service"
	"booking-service/internal/util"

	"go.uber.org/zap"
)

// RefundWorker consumes cancellations and settles their refunds
type RefundWorker struct {
	consumer      *broker.Consumer
	eventHandler  *broker.EventHandler
	refundService *service.RefundService
	logger        *zap.Logger
}

// NewRefundWorker creates a new refund worker
func NewRefundWorker(
	consumer *broker.Consumer,
	refundService *service.RefundService,
) *RefundWorker {
	eventHandler := broker.NewEventHandler()
	eventHandler.OnBookingCancelled(refundService.HandleBookingCancelled)

	return &RefundWorker{
		consumer:      consumer,
		eventHandler:  eventHandler,
		refundService: refundService,
		logger:        util.GetLogger(),
	}
}

// Start blocks consuming events until ctx is cancelled
func (w *RefundWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting refund worker")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *RefundWorker) Stop() error {
	w.logger.Info("Stopping refund worker")
	return w.consumer.Close()
}
