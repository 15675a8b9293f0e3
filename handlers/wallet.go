package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"contratto/models"
	"contratto/services/wallet"
	"contratto/utils"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const maxTransactionPage = 200

type WalletHandler struct {
	Service wallet.WalletService
	Logger  *zap.Logger
}

func NewWalletHandler(svc wallet.WalletService, logger *zap.Logger) *WalletHandler {
	return &WalletHandler{Service: svc, Logger: logger}
}

// GetWalletHandler handles GET /api/wallet.
func (h *WalletHandler) GetWalletHandler(c *gin.Context) {
	id, ok := caller(c)
	if !ok {
		return
	}
	w, err := h.Service.GetWallet(c.Request.Context(), id.UserID)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"wallet": w})
}

// ListTransactionsHandler handles GET /api/wallet/transactions?limit=N.
func (h *WalletHandler) ListTransactionsHandler(c *gin.Context) {
	id, ok := caller(c)
	if !ok {
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
		return
	}
	if limit > maxTransactionPage {
		limit = maxTransactionPage
	}

	txs, err := h.Service.ListTransactions(c.Request.Context(), id.UserID, limit)
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		utils.RespondError(c, err)
		return
	}
	if txs == nil {
		txs = []models.Transaction{}
	}
	c.JSON(http.StatusOK, gin.H{"transactions": txs})
}

// RequestPayoutHandler handles POST /api/wallet/payouts.
func (h *WalletHandler) RequestPayoutHandler(c *gin.Context) {
	id, ok := caller(c)
	if !ok {
		return
	}
	var input models.PayoutInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid input", "details": err.Error()})
		return
	}

	w, err := h.Service.GetWallet(c.Request.Context(), id.UserID)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	p, err := h.Service.RequestPayout(c.Request.Context(), w.ID, input.Amount)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"payout": p})
}

// AuditWalletHandler handles GET /api/admin/wallets/:id/audit.
func (h *WalletHandler) AuditWalletHandler(c *gin.Context) {
	report, err := h.Service.Audit(c.Request.Context(), c.Param("id"))
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	if !report.Balanced {
		getLogger(c, h.Logger).Error("wallet ledger drift", zap.String("walletID", report.WalletID), zap.String("drift", report.Drift.String()))
	}
	c.JSON(http.StatusOK, report)
}
