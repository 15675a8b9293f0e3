package handlers

import (
	"errors"
	"io"
	"net/http"

	"contratto/middleware"
	"contratto/models"
	"contratto/services/order"
	"contratto/utils"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type OrderHandler struct {
	Service order.OrderService
	Logger  *zap.Logger
}

func NewOrderHandler(svc order.OrderService, logger *zap.Logger) *OrderHandler {
	return &OrderHandler{Service: svc, Logger: logger}
}

// caller fetches the authenticated identity or answers 401.
func caller(c *gin.Context) (models.Identity, bool) {
	id, ok := middleware.IdentityFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
	}
	return id, ok
}

// bindOptionalJSON binds the body when there is one.
func bindOptionalJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid input", "details": err.Error()})
		return false
	}
	return true
}

// CreateOrderHandler handles POST /api/orders.
func (h *OrderHandler) CreateOrderHandler(c *gin.Context) {
	id, ok := caller(c)
	if !ok {
		return
	}
	var input models.CreateOrderInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid input", "details": err.Error()})
		return
	}

	o, err := h.Service.CreateOrder(c.Request.Context(), id, input)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"order": o})
}

// GetOrderHandler handles GET /api/orders/:id.
func (h *OrderHandler) GetOrderHandler(c *gin.Context) {
	id, ok := caller(c)
	if !ok {
		return
	}
	o, b, err := h.Service.GetOrder(c.Request.Context(), id, c.Param("id"))
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"order": o, "booking": b})
}

// GetOrderHistoryHandler handles GET /api/orders/:id/history.
func (h *OrderHandler) GetOrderHistoryHandler(c *gin.Context) {
	id, ok := caller(c)
	if !ok {
		return
	}
	logs, err := h.Service.History(c.Request.Context(), id, c.Param("id"))
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	if logs == nil {
		logs = []models.SagaLog{}
	}
	c.JSON(http.StatusOK, gin.H{"history": logs})
}

// StartCheckoutHandler handles POST /api/orders/:id/checkout.
func (h *OrderHandler) StartCheckoutHandler(c *gin.Context) {
	id, ok := caller(c)
	if !ok {
		return
	}
	var input models.StartCheckoutInput
	if !bindOptionalJSON(c, &input) {
		return
	}

	session, err := h.Service.StartCheckout(c.Request.Context(), id, c.Param("id"), input.Gateway)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

// ApproveOrderHandler handles POST /api/orders/:id/approve.
func (h *OrderHandler) ApproveOrderHandler(c *gin.Context) {
	id, ok := caller(c)
	if !ok {
		return
	}
	o, err := h.Service.Approve(c.Request.Context(), id, c.Param("id"))
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"order": o})
}

// CancelOrderHandler handles POST /api/orders/:id/cancel.
func (h *OrderHandler) CancelOrderHandler(c *gin.Context) {
	id, ok := caller(c)
	if !ok {
		return
	}
	o, err := h.Service.Cancel(c.Request.Context(), id, c.Param("id"))
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"order": o})
}

// RefundOrderHandler handles POST /api/orders/:id/refund.
func (h *OrderHandler) RefundOrderHandler(c *gin.Context) {
	id, ok := caller(c)
	if !ok {
		return
	}
	var input models.RefundInput
	if !bindOptionalJSON(c, &input) {
		return
	}

	o, err := h.Service.Refund(c.Request.Context(), id, c.Param("id"), input.Reason)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"order": o})
}
