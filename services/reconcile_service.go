package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/AHasenkampfHeista/ShopifyPaymentFix-Plugin/models"
	"github.com/AHasenkampfHeista/ShopifyPaymentFix-Plugin/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Gateway tags recorded on storefront orders.
const (
	GatewayShopifyPayments = "shopify_payments"
	GatewayPaypal          = "paypal"
)

const (
	paymentNoteText      = "Shopify split payment fix"
	paymentOriginTag     = "shopify_paypal_split"
	receivedAtTimeLayout = "2006-01-02 15:04:05"
)

// EventPublisher broadcasts reconcile outcomes, e.g. to Kafka.
type EventPublisher interface {
	SendReconcileEvent(event models.ReconcileEvent) error
}

// OutcomeNotifier is a secondary best-effort broadcast channel (SNS).
type OutcomeNotifier interface {
	Publish(ctx context.Context, topicArn string, message []byte) error
}

// ReconcileLocker serializes reconciliation runs per order.
type ReconcileLocker interface {
	Acquire(ctx context.Context, orderID int64) (release func(), acquired bool, err error)
}

// ReconcileService decides whether a storefront order paid through a
// shopify_payments + paypal split needs a PayPal payment record on the
// order-management side, and creates it at most once per transaction id.
type ReconcileService struct {
	shopify     ShopifyOrderFetcher
	oms         OMSGateway
	attempts    repository.AttemptRepository
	events      EventPublisher
	notifier    OutcomeNotifier
	topicARN    string
	locker      ReconcileLocker
	paypalMopID int
	enableDebug bool
	logger      *zap.Logger
}

func NewReconcileService(
	shopify ShopifyOrderFetcher,
	oms OMSGateway,
	attempts repository.AttemptRepository,
	events EventPublisher,
	notifier OutcomeNotifier,
	topicARN string,
	locker ReconcileLocker,
	paypalMopID int,
	enableDebug bool,
	logger *zap.Logger,
) *ReconcileService {
	return &ReconcileService{
		shopify:     shopify,
		oms:         oms,
		attempts:    attempts,
		events:      events,
		notifier:    notifier,
		topicARN:    topicARN,
		locker:      locker,
		paypalMopID: paypalMopID,
		enableDebug: enableDebug,
		logger:      logger,
	}
}

// ReconcileOrder runs one reconciliation attempt for an order-management
// order. All failures are folded into the returned outcome; callers re-trigger
// later if they want a retry.
func (s *ReconcileService) ReconcileOrder(ctx context.Context, grant WriteGrant, orderID int64) *models.ReconcileOutcome {
	if s.locker != nil {
		release, acquired, err := s.locker.Acquire(ctx, orderID)
		if err != nil {
			s.logger.Warn("Reconcile lock unavailable, proceeding unlocked",
				zap.Int64("order_id", orderID), zap.Error(err))
		} else if !acquired {
			outcome := &models.ReconcileOutcome{
				OrderID: orderID,
				Status:  models.OutcomeSkipped,
				Reason:  models.SkipLocked,
			}
			s.finish(ctx, outcome, 0, "")
			return outcome
		} else {
			defer release()
		}
	}

	outcome, amount, currency := s.run(ctx, grant, orderID)
	s.finish(ctx, outcome, amount, currency)
	return outcome
}

func (s *ReconcileService) run(ctx context.Context, grant WriteGrant, orderID int64) (*models.ReconcileOutcome, float64, string) {
	outcome := &models.ReconcileOutcome{OrderID: orderID}

	if s.paypalMopID <= 0 {
		s.logger.Error("PayPal method-of-payment id not configured",
			zap.Int64("order_id", orderID),
			zap.String("key", "PAYPAL_MOP_ID"),
		)
		outcome.Status = models.OutcomeFailed
		outcome.Message = "paypal method-of-payment id not configured"
		return outcome, 0, ""
	}

	order, err := s.oms.GetOrder(ctx, orderID)
	if err != nil {
		s.logger.Error("Failed to load order", zap.Int64("order_id", orderID), zap.Error(err))
		outcome.Status = models.OutcomeFailed
		outcome.Message = err.Error()
		return outcome, 0, ""
	}

	externalOrderID := strings.TrimSpace(order.ExternalOrderID())
	if externalOrderID == "" {
		s.logger.Warn("Order carries no external order id property",
			zap.Int64("order_id", orderID),
		)
		outcome.Status = models.OutcomeSkipped
		outcome.Reason = models.SkipNoExternalOrderID
		return outcome, 0, ""
	}
	outcome.ExternalOrderID = externalOrderID

	shopifyOrder, err := s.shopify.FetchOrderByExternalID(ctx, externalOrderID)
	if err != nil {
		var cfgErr *ConfigError
		switch {
		case errors.As(err, &cfgErr):
			s.logger.Error("Shopify configuration missing",
				zap.Int64("order_id", orderID),
				zap.String("key", cfgErr.Key),
			)
			outcome.Status = models.OutcomeFailed
			outcome.Message = err.Error()
		case errors.Is(err, ErrOrderNotFound):
			// Nothing to reconcile against; not an error in the sync path.
			outcome.Status = models.OutcomeSkipped
			outcome.Reason = models.SkipOrderNotFound
		default:
			s.logger.Error("Failed to fetch storefront order",
				zap.Int64("order_id", orderID),
				zap.String("external_order_id", externalOrderID),
				zap.Error(err),
			)
			outcome.Status = models.OutcomeFailed
			outcome.Message = err.Error()
		}
		return outcome, 0, ""
	}

	if !IsPaypalSplit(shopifyOrder.PaymentGatewayNames) {
		if s.enableDebug {
			s.logger.Debug("No shopify_payments + paypal split on order",
				zap.Int64("order_id", orderID),
				zap.String("external_order_id", externalOrderID),
				zap.Strings("gateway_names", shopifyOrder.PaymentGatewayNames),
			)
		}
		outcome.Status = models.OutcomeSkipped
		outcome.Reason = models.SkipNoPaypalSplit
		return outcome, 0, ""
	}

	tx := SelectPaypalTransaction(shopifyOrder.Transactions)
	if tx == nil {
		s.logger.Warn("No PayPal transaction with a settlement amount on order",
			zap.Int64("order_id", orderID),
			zap.String("external_order_id", externalOrderID),
		)
		outcome.Status = models.OutcomeSkipped
		outcome.Reason = models.SkipNoPaypalAmount
		return outcome, 0, ""
	}
	outcome.TransactionID = tx.ID

	existing, err := s.oms.ListPaymentsByOrder(ctx, orderID)
	if err != nil {
		s.logger.Error("Failed to list existing payments",
			zap.Int64("order_id", orderID), zap.Error(err))
		outcome.Status = models.OutcomeFailed
		outcome.Message = err.Error()
		return outcome, 0, ""
	}

	if HasMatchingPayment(existing, tx.ID, s.paypalMopID) {
		if s.enableDebug {
			s.logger.Debug("PayPal payment already exists for transaction",
				zap.Int64("order_id", orderID),
				zap.String("transaction_id", tx.ID),
			)
		}
		outcome.Status = models.OutcomeSkipped
		outcome.Reason = models.SkipAlreadyExists
		return outcome, *tx.Amount, *tx.Currency
	}

	draft := s.buildPaymentDraft(order, tx)

	payment, err := s.oms.CreatePayment(ctx, grant, draft)
	if err != nil {
		s.logger.Error("Failed to create payment",
			zap.Int64("order_id", orderID),
			zap.String("transaction_id", tx.ID),
			zap.Error(err),
		)
		outcome.Status = models.OutcomeFailed
		outcome.Message = err.Error()
		return outcome, *tx.Amount, *tx.Currency
	}
	outcome.PaymentID = payment.ID

	if err := s.oms.LinkPaymentToOrder(ctx, grant, payment.ID, orderID, true); err != nil {
		// The payment now exists without its relation. No rollback is
		// attempted; the failed outcome surfaces the inconsistency.
		s.logger.Error("Payment created but relation failed",
			zap.Int64("order_id", orderID),
			zap.Int64("payment_id", payment.ID),
			zap.Error(err),
		)
		outcome.Status = models.OutcomeFailed
		outcome.Message = fmt.Sprintf("payment %d created but relation failed: %v", payment.ID, err)
		return outcome, *tx.Amount, *tx.Currency
	}

	s.logger.Info("Created PayPal payment for split-payment order",
		zap.Int64("order_id", orderID),
		zap.Int64("payment_id", payment.ID),
		zap.String("transaction_id", tx.ID),
		zap.Float64("amount", *tx.Amount),
		zap.String("currency", *tx.Currency),
	)
	outcome.Status = models.OutcomeCreated
	return outcome, *tx.Amount, *tx.Currency
}

func (s *ReconcileService) buildPaymentDraft(order *models.Order, tx *models.ShopifyTransaction) *models.PaymentDraft {
	receivedAt := time.Now().UTC().Format(receivedAtTimeLayout)
	if tx.ProcessedAt != nil {
		receivedAt = tx.ProcessedAt.UTC().Format(receivedAtTimeLayout)
	}

	return &models.PaymentDraft{
		MopID:           s.paypalMopID,
		Type:            models.PaymentTypeBooked,
		Status:          models.PaymentStatusApproved,
		Amount:          *tx.Amount,
		Currency:        *tx.Currency,
		ExchangeRate:    DetermineExchangeRate(order.Amounts, *tx.Currency),
		IsSystemPayment: false,
		ReceivedAt:      receivedAt,
		Properties: []models.PaymentProperty{
			{TypeID: models.PropertyTypeTransactionID, Value: tx.ID},
			{TypeID: models.PropertyTypePaymentNote, Value: paymentNoteText},
			{TypeID: models.PropertyTypePaymentOrigin, Value: paymentOriginTag},
		},
		RegenerateHash: true,
	}
}

// finish records the attempt and broadcasts the outcome. Both are
// best-effort: an audit or broker failure never changes the outcome.
func (s *ReconcileService) finish(ctx context.Context, outcome *models.ReconcileOutcome, amount float64, currency string) {
	if s.attempts != nil {
		attempt := &models.ReconciliationAttempt{
			ID:              uuid.New(),
			OrderID:         outcome.OrderID,
			ExternalOrderID: outcome.ExternalOrderID,
			Status:          outcome.Status,
			Reason:          outcome.Reason,
		}
		if outcome.Message != "" {
			msg := outcome.Message
			attempt.Message = &msg
		}
		if outcome.PaymentID != 0 {
			paymentID := outcome.PaymentID
			attempt.PaymentID = &paymentID
		}
		if outcome.TransactionID != "" {
			txID := outcome.TransactionID
			attempt.TransactionID = &txID
		}
		if err := s.attempts.Create(ctx, attempt); err != nil {
			s.logger.Warn("Failed to record reconciliation attempt", zap.Error(err))
		}
	}

	event := models.ReconcileEvent{
		Type:            eventTypeFor(outcome.Status),
		OrderID:         outcome.OrderID,
		ExternalOrderID: outcome.ExternalOrderID,
		PaymentID:       outcome.PaymentID,
		TransactionID:   outcome.TransactionID,
		Amount:          amount,
		Currency:        currency,
		Reason:          outcome.Reason,
		Timestamp:       time.Now().UTC(),
	}

	if s.events != nil {
		if err := s.events.SendReconcileEvent(event); err != nil {
			s.logger.Warn("Failed to publish reconcile event", zap.Error(err))
		}
	}

	if s.notifier != nil && s.topicARN != "" {
		eventBytes, err := json.Marshal(event)
		if err == nil {
			if err := s.notifier.Publish(ctx, s.topicARN, eventBytes); err != nil {
				s.logger.Warn("SNS publish failed", zap.Error(err))
			}
		}
	}
}

func eventTypeFor(status string) string {
	switch status {
	case models.OutcomeCreated:
		return "payment_reconciled"
	case models.OutcomeSkipped:
		return "reconcile_skipped"
	default:
		return "reconcile_failed"
	}
}

// FetchShopifyOrder exposes the fetch-only diagnostic path used by the
// operational endpoint. No write path is involved.
func (s *ReconcileService) FetchShopifyOrder(ctx context.Context, externalOrderID string) (*models.ShopifyOrder, error) {
	return s.shopify.FetchOrderByExternalID(ctx, externalOrderID)
}

// IsPaypalSplit reports whether the order's gateway names contain both the
// platform tag and the PayPal tag. Exact matches only, case-insensitive.
func IsPaypalSplit(gatewayNames []string) bool {
	hasShopifyPayments := false
	hasPaypal := false
	for _, name := range gatewayNames {
		switch strings.ToLower(name) {
		case GatewayShopifyPayments:
			hasShopifyPayments = true
		case GatewayPaypal:
			hasPaypal = true
		}
	}
	return hasShopifyPayments && hasPaypal
}

// SelectPaypalTransaction returns the first transaction whose gateway name
// contains "paypal" and that carries a settlement amount and currency, or nil.
// List order is the tie-break: the storefront reports transactions in
// creation order.
func SelectPaypalTransaction(transactions []models.ShopifyTransaction) *models.ShopifyTransaction {
	for i := range transactions {
		tx := &transactions[i]
		if !strings.Contains(strings.ToLower(tx.Gateway), GatewayPaypal) {
			continue
		}
		if tx.Amount == nil || tx.Currency == nil {
			continue
		}
		return tx
	}
	return nil
}

// HasMatchingPayment reports whether a payment with the PayPal mopId already
// carries a transaction-id property equal to transactionID. This is the sole
// idempotency guarantee; amount and currency are deliberately not compared.
func HasMatchingPayment(payments []models.Payment, transactionID string, paypalMopID int) bool {
	for _, payment := range payments {
		if payment.MopID != paypalMopID {
			continue
		}
		for _, prop := range payment.Properties {
			if prop.TypeID == models.PropertyTypeTransactionID && prop.Value == transactionID {
				return true
			}
		}
	}
	return false
}

// DetermineExchangeRate scans the order's recorded amounts in order. A
// same-currency entry decides 1.0 immediately; otherwise the first positive
// stored rate wins; 1.0 when nothing decides.
func DetermineExchangeRate(amounts []models.OrderAmount, paymentCurrency string) float64 {
	for _, amount := range amounts {
		if amount.Currency == "" {
			continue
		}
		if amount.Currency == paymentCurrency {
			return 1.0
		}
		if amount.ExchangeRate != nil && *amount.ExchangeRate > 0 {
			return *amount.ExchangeRate
		}
	}
	return 1.0
}
