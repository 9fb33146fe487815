package controllers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/AHasenkampfHeista/ShopifyPaymentFix-Plugin/models"
	"github.com/AHasenkampfHeista/ShopifyPaymentFix-Plugin/repository"
	"github.com/AHasenkampfHeista/ShopifyPaymentFix-Plugin/services"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Reconciler is the slice of the reconcile service the HTTP surface needs.
type Reconciler interface {
	ReconcileOrder(ctx context.Context, grant services.WriteGrant, orderID int64) *models.ReconcileOutcome
	FetchShopifyOrder(ctx context.Context, externalOrderID string) (*models.ShopifyOrder, error)
}

type ReconcileController struct {
	Service  Reconciler
	Attempts repository.AttemptRepository
	Logger   *zap.Logger
}

func NewReconcileController(service Reconciler, attempts repository.AttemptRepository, logger *zap.Logger) *ReconcileController {
	return &ReconcileController{
		Service:  service,
		Attempts: attempts,
		Logger:   logger,
	}
}

// Reconcile runs one reconciliation attempt for the given order. Equivalent
// of re-firing the event trigger by hand.
func (rc *ReconcileController) Reconcile(c *gin.Context) {
	var req models.ReconcileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	outcome := rc.Service.ReconcileOrder(c.Request.Context(), services.WriteGrant{Reason: "http-trigger"}, req.OrderID)

	status := http.StatusOK
	if outcome.Status == models.OutcomeFailed {
		status = http.StatusInternalServerError
	}
	c.JSON(status, outcome)
}

// ListAttempts returns the recorded reconciliation attempts for an order.
func (rc *ReconcileController) ListAttempts(c *gin.Context) {
	orderID, err := strconv.ParseInt(c.Query("order_id"), 10, 64)
	if err != nil || orderID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "order_id query parameter is required"})
		return
	}

	limit := 50
	if l, err := strconv.Atoi(c.Query("limit")); err == nil && l > 0 {
		limit = l
	}

	attempts, err := rc.Attempts.FindByOrderID(c.Request.Context(), orderID, limit)
	if err != nil {
		rc.Logger.Error("Failed to fetch attempts", zap.Int64("order_id", orderID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch attempts"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"attempts": attempts})
}
