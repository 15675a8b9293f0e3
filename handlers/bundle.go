package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// HandlerBundle groups all endpoint handlers into one struct.
type HandlerBundle struct {
	// Order endpoints
	CreateOrderHandler     gin.HandlerFunc
	GetOrderHandler        gin.HandlerFunc
	GetOrderHistoryHandler gin.HandlerFunc
	StartCheckoutHandler   gin.HandlerFunc
	ApproveOrderHandler    gin.HandlerFunc
	CancelOrderHandler     gin.HandlerFunc
	RefundOrderHandler     gin.HandlerFunc

	// Wallet endpoints
	GetWalletHandler        gin.HandlerFunc
	ListTransactionsHandler gin.HandlerFunc
	RequestPayoutHandler    gin.HandlerFunc
	AuditWalletHandler      gin.HandlerFunc

	// Gateway webhooks, keyed by gateway name
	WebhookHandlers map[string]gin.HandlerFunc

	HealthHandler gin.HandlerFunc
	// MetricsHandler is nil when metrics are disabled.
	MetricsHandler http.Handler
}
