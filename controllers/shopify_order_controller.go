package controllers

import (
	"errors"
	"net/http"

	"github.com/AHasenkampfHeista/ShopifyPaymentFix-Plugin/services"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ShopifyOrderController exposes the fetch-only diagnostic endpoint for
// inspecting what the storefront reports for an order. No write path.
type ShopifyOrderController struct {
	Service Reconciler
	Logger  *zap.Logger
}

func NewShopifyOrderController(service Reconciler, logger *zap.Logger) *ShopifyOrderController {
	return &ShopifyOrderController{Service: service, Logger: logger}
}

func (sc *ShopifyOrderController) Fetch(c *gin.Context) {
	externalOrderID := c.Query("external_order_id")
	if externalOrderID == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"ok":      false,
			"message": "Provide the external_order_id query parameter.",
		})
		return
	}

	order, err := sc.Service.FetchShopifyOrder(c.Request.Context(), externalOrderID)
	if err != nil {
		if errors.Is(err, services.ErrOrderNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"ok":      false,
				"message": "Order not found or fetch failed. Inspect service logs for details.",
			})
			return
		}
		sc.Logger.Error("Diagnostic fetch failed",
			zap.String("external_order_id", externalOrderID),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{
			"ok":      false,
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"ok":    true,
		"order": order,
	})
}
