package wallet

import (
	"context"
	"fmt"

	"contratto/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const settleBatch = 200

func (s *DefaultWalletService) GetWallet(ctx context.Context, ownerID string) (*models.Wallet, error) {
	if ownerID == "" {
		return nil, fmt.Errorf("wallet owner: %w", models.ErrNotFound)
	}
	return s.Repo.GetOrCreate(ctx, ownerID, s.Currency, s.now())
}

func (s *DefaultWalletService) ListTransactions(ctx context.Context, ownerID string, limit int) ([]models.Transaction, error) {
	w, err := s.Repo.GetByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	return s.Repo.ListTransactions(ctx, w.ID, limit)
}

func (s *DefaultWalletService) CreditEscrow(ctx context.Context, sellerID, currency string, amount decimal.Decimal, orderID string) (bool, error) {
	if !amount.IsPositive() || !models.InRange(amount) {
		return false, fmt.Errorf("escrow credit for order %s: %w", orderID, models.ErrInvalidAmount)
	}
	if currency == "" {
		currency = s.Currency
	}
	var applied bool
	err := s.Tx.WithinTransaction(ctx, func(ctx context.Context) error {
		w, err := s.Repo.GetOrCreate(ctx, sellerID, currency, s.now())
		if err != nil {
			return err
		}
		applied, err = s.Repo.CreditPending(ctx, w.ID, amount, orderID, s.now())
		return err
	})
	if err != nil {
		return false, err
	}
	if applied {
		s.Logger.Info("escrow credited",
			zap.String("sellerID", sellerID), zap.String("orderID", orderID), zap.String("amount", amount.StringFixed(2)))
	} else {
		s.Logger.Info("escrow already credited", zap.String("orderID", orderID))
	}
	return applied, nil
}

func (s *DefaultWalletService) ReverseEscrow(ctx context.Context, orderID string) (bool, error) {
	applied, err := s.Repo.ReverseCredit(ctx, orderID, s.now())
	if err != nil {
		return false, err
	}
	if applied {
		s.Logger.Info("escrow credit reversed", zap.String("orderID", orderID))
	}
	return applied, nil
}

func (s *DefaultWalletService) SettleMatured(ctx context.Context) (int, error) {
	cutoff := s.now().Add(-s.HoldPeriod)
	credits, err := s.Repo.ListSettleable(ctx, cutoff, settleBatch)
	if err != nil {
		return 0, err
	}
	settled := 0
	for _, c := range credits {
		ok, err := s.Repo.SettleCredit(ctx, c.ID, s.now())
		if err != nil {
			s.Logger.Error("failed to settle escrow credit", zap.String("transactionID", c.ID), zap.Error(err))
			continue
		}
		if ok {
			settled++
		}
	}
	if settled > 0 {
		s.Logger.Info("matured escrow credits settled", zap.Int("count", settled))
	}
	return settled, nil
}

func (s *DefaultWalletService) Audit(ctx context.Context, walletID string) (*AuditReport, error) {
	w, err := s.Repo.GetByID(ctx, walletID)
	if err != nil {
		return nil, err
	}
	sum, err := s.Repo.SumTransactions(ctx, walletID)
	if err != nil {
		return nil, err
	}
	drift := w.Total().Sub(sum)
	return &AuditReport{
		WalletID:  w.ID,
		Available: w.Available,
		Pending:   w.Pending,
		Ledger:    sum,
		Drift:     drift,
		Balanced:  drift.IsZero() && !w.Available.IsNegative(),
	}, nil
}
