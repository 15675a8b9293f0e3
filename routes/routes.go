package routes

import (
	"sort"
	"time"

	"contratto/handlers"
	"contratto/middleware"
	"contratto/models"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// RegisterOrderRoutes registers the order saga endpoints.
func RegisterOrderRoutes(r *gin.Engine, hb *handlers.HandlerBundle) {
	api := r.Group("/api/orders")
	{
		api.Use(middleware.JWTAuthMiddleware())
		api.POST("", hb.CreateOrderHandler)
		api.GET("/:id", hb.GetOrderHandler)
		api.GET("/:id/history", hb.GetOrderHistoryHandler)
		api.POST("/:id/checkout", hb.StartCheckoutHandler)
		api.POST("/:id/approve", hb.ApproveOrderHandler)
		api.POST("/:id/cancel", hb.CancelOrderHandler)
		api.POST("/:id/refund", hb.RefundOrderHandler)
	}
}

// RegisterWalletRoutes registers the seller wallet endpoints.
func RegisterWalletRoutes(r *gin.Engine, hb *handlers.HandlerBundle) {
	api := r.Group("/api/wallet")
	{
		api.Use(middleware.JWTAuthMiddleware())
		api.GET("", hb.GetWalletHandler)
		api.GET("/transactions", hb.ListTransactionsHandler)
		api.POST("/payouts", hb.RequestPayoutHandler)
	}
}

// RegisterWebhookRoutes registers one unauthenticated endpoint per gateway.
// Authenticity comes from the gateway signature.
func RegisterWebhookRoutes(r *gin.Engine, hb *handlers.HandlerBundle) {
	names := make([]string, 0, len(hb.WebhookHandlers))
	for name := range hb.WebhookHandlers {
		names = append(names, name)
	}
	sort.Strings(names)

	webhooks := r.Group("/webhooks")
	for _, name := range names {
		webhooks.POST("/"+name, hb.WebhookHandlers[name])
	}
}

// RegisterAdminRoutes sets up endpoints for admin operations.
func RegisterAdminRoutes(r *gin.Engine, hb *handlers.HandlerBundle) {
	adminGroup := r.Group("/api/admin")
	{
		adminGroup.Use(middleware.JWTAuthMiddleware(), middleware.RequireRole(models.RoleAdmin))
		adminGroup.GET("/wallets/:id/audit", hb.AuditWalletHandler)
	}
}

// RegisterHealthRoute registers the health-check and metrics endpoints.
func RegisterHealthRoute(r *gin.Engine, hb *handlers.HandlerBundle) {
	r.GET("/health", hb.HealthHandler)
	if hb.MetricsHandler != nil {
		r.GET("/metrics", gin.WrapH(hb.MetricsHandler))
	}
}

// RegisterRoutes centralizes registration of all endpoints and middleware.
func RegisterRoutes(r *gin.Engine, hb *handlers.HandlerBundle, allowOrigins []string) {
	if len(allowOrigins) == 0 {
		allowOrigins = []string{"*"}
	}
	r.Use(cors.New(cors.Config{
		AllowOrigins:     allowOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Authorization", "Content-Type"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: !(len(allowOrigins) == 1 && allowOrigins[0] == "*"),
		MaxAge:           12 * time.Hour,
	}))

	RegisterOrderRoutes(r, hb)
	RegisterWalletRoutes(r, hb)
	RegisterWebhookRoutes(r, hb)
	RegisterAdminRoutes(r, hb)
	RegisterHealthRoute(r, hb)
}
