package handlers

import (
	"errors"
	"io"
	"net/http"

	"contratto/models"
	"contratto/services/gateway"
	"contratto/services/order"
	"contratto/utils"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const maxWebhookBody = 1 << 20

type WebhookHandler struct {
	Gateways *gateway.Registry
	Orders   order.OrderService
	Logger   *zap.Logger
}

func NewWebhookHandler(gateways *gateway.Registry, orders order.OrderService, logger *zap.Logger) *WebhookHandler {
	return &WebhookHandler{Gateways: gateways, Orders: orders, Logger: logger}
}

// GatewayWebhookHandler serves POST /webhooks/<gatewayName>. Signature
// failures and processing errors answer non-2xx so the gateway retries;
// duplicates and events that do not apply are acknowledged.
func (h *WebhookHandler) GatewayWebhookHandler(gatewayName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		logger := getLogger(c, h.Logger).With(zap.String("gateway", gatewayName))

		gw, err := h.Gateways.Get(gatewayName)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown gateway"})
			return
		}
		body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
			return
		}

		ev, err := gw.VerifyAndParseWebhook(c.Request.Header, body)
		switch {
		case errors.Is(err, models.ErrInvalidSignature):
			utils.WebhookOutcomes.WithLabelValues(gatewayName, "invalid_signature").Inc()
			logger.Warn("webhook signature rejected", zap.Error(err))
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid signature"})
			return
		case errors.Is(err, models.ErrUnsupportedEvent):
			utils.WebhookOutcomes.WithLabelValues(gatewayName, "unsupported").Inc()
			logger.Debug("webhook event ignored", zap.Error(err))
			c.JSON(http.StatusOK, gin.H{"received": true, "outcome": "unsupported"})
			return
		case err != nil:
			utils.WebhookOutcomes.WithLabelValues(gatewayName, "malformed").Inc()
			logger.Error("verified webhook could not be decoded", zap.Error(err))
			c.JSON(http.StatusOK, gin.H{"received": true, "outcome": "malformed"})
			return
		}

		outcome, err := h.Orders.HandleEvent(c.Request.Context(), ev)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "event processing failed"})
			return
		}
		if outcome == order.OutcomeInFlight {
			c.JSON(http.StatusConflict, gin.H{"error": "event is being processed"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"received": true, "outcome": outcome})
	}
}
