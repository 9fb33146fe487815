package services

import (
	"context"
	"encoding/json"

	"github.com/AHasenkampfHeista/ShopifyPaymentFix-Plugin/models"

	aws_pkg "github.com/AHasenkampfHeista/ShopifyPaymentFix-Plugin/aws"
	"go.uber.org/zap"
)

// TriggerConsumer consumes reconcile trigger messages from SQS, one order per
// message, and hands them to the reconcile service.
type TriggerConsumer struct {
	sqsConsumer *aws_pkg.SQSConsumer
	service     *ReconcileService
	logger      *zap.Logger
}

func NewTriggerConsumer(sqsConsumer *aws_pkg.SQSConsumer, service *ReconcileService, logger *zap.Logger) *TriggerConsumer {
	return &TriggerConsumer{
		sqsConsumer: sqsConsumer,
		service:     service,
		logger:      logger,
	}
}

func (c *TriggerConsumer) Start(ctx context.Context) {
	c.logger.Info("Starting reconcile trigger consumer (SQS)")

	err := c.sqsConsumer.StartPolling(ctx, func(ctx context.Context, body string) error {
		var req models.ReconcileRequest
		if err := json.Unmarshal([]byte(body), &req); err != nil {
			c.logger.Warn("Invalid reconcile trigger JSON", zap.Error(err))
			// Drop malformed messages instead of retrying them forever.
			return nil
		}
		if req.OrderID <= 0 {
			c.logger.Warn("Reconcile trigger without order_id", zap.String("body", body))
			return nil
		}

		outcome := c.service.ReconcileOrder(ctx, WriteGrant{Reason: "sqs-trigger"}, req.OrderID)

		c.logger.Info("Reconcile trigger processed",
			zap.Int64("order_id", req.OrderID),
			zap.String("status", outcome.Status),
			zap.String("reason", outcome.Reason),
		)
		return nil
	})

	if err != nil && err != context.Canceled {
		c.logger.Error("SQS consumer error", zap.Error(err))
	}
}
