package routes

import (
	"net/http"

	"github.com/AHasenkampfHeista/ShopifyPaymentFix-Plugin/controllers"
	"github.com/AHasenkampfHeista/ShopifyPaymentFix-Plugin/middleware"

	"github.com/gin-gonic/gin"
)

func RegisterRoutes(r *gin.Engine, apiKey string, rc *controllers.ReconcileController, sc *controllers.ShopifyOrderController) {
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/")
	api.Use(middleware.APIKeyAuth(apiKey))

	api.POST("/reconcile", rc.Reconcile)
	api.GET("/reconcile/attempts", rc.ListAttempts)
	api.GET("/shopify/orders", sc.Fetch)
}
