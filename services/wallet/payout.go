package wallet

import (
	"context"
	"errors"
	"fmt"

	"contratto/models"
	"contratto/utils"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// RequestPayout debits available balance and records a payout request. The
// repository locks the wallet row, so concurrent requests are checked one at a time.
func (s *DefaultWalletService) RequestPayout(ctx context.Context, walletID string, amount decimal.Decimal) (*models.PayoutRequest, error) {
	if !amount.IsPositive() || !amount.Equal(amount.Round(2)) || !models.InRange(amount) {
		utils.PayoutRequests.WithLabelValues("invalid").Inc()
		return nil, fmt.Errorf("payout amount %s: %w", amount, models.ErrInvalidAmount)
	}

	var payout *models.PayoutRequest
	err := s.Tx.WithinTransaction(ctx, func(ctx context.Context) error {
		var err error
		payout, err = s.Repo.DebitForPayout(ctx, walletID, amount, s.now())
		return err
	})
	switch {
	case errors.Is(err, models.ErrInsufficientFunds):
		utils.PayoutRequests.WithLabelValues("insufficient_funds").Inc()
		s.Logger.Warn("payout rejected", zap.String("walletID", walletID), zap.String("amount", amount.StringFixed(2)))
		return nil, err
	case err != nil:
		utils.PayoutRequests.WithLabelValues("error").Inc()
		return nil, err
	}

	utils.PayoutRequests.WithLabelValues("requested").Inc()
	s.Logger.Info("payout requested",
		zap.String("walletID", walletID), zap.String("payoutID", payout.ID), zap.String("amount", amount.StringFixed(2)))
	return payout, nil
}

// ResolvePayout applies a gateway payout outcome. A failed payout returns
// the amount to available balance.
func (s *DefaultWalletService) ResolvePayout(ctx context.Context, payoutID string, status models.PayoutStatus) (bool, error) {
	if status != models.PayoutProcessed && status != models.PayoutFailed {
		return false, fmt.Errorf("payout status %q: %w", status, models.ErrInvalidStateTransition)
	}
	applied, err := s.Repo.ResolvePayout(ctx, payoutID, status, s.now())
	if err != nil {
		return false, err
	}
	if applied {
		utils.PayoutRequests.WithLabelValues(string(status)).Inc()
		s.Logger.Info("payout resolved", zap.String("payoutID", payoutID), zap.String("status", string(status)))
	}
	return applied, nil
}
