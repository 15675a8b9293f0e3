package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"contratto/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func (s WalletStore) GetOrCreate(ctx context.Context, ownerID, currency string, at time.Time) (*models.Wallet, error) {
	var out *models.Wallet
	err := s.locked(ctx, func() error {
		if id, ok := s.st.walletByOwner[ownerID]; ok {
			w := s.st.wallets[id]
			out = &w
			return nil
		}
		w := models.Wallet{
			ID:        uuid.New().String(),
			OwnerID:   ownerID,
			Available: decimal.Zero,
			Pending:   decimal.Zero,
			Currency:  currency,
			CreatedAt: at,
			UpdatedAt: at,
		}
		s.st.wallets[w.ID] = w
		s.st.walletByOwner[ownerID] = w.ID
		out = &w
		return nil
	})
	return out, err
}

func (s WalletStore) GetByOwner(ctx context.Context, ownerID string) (*models.Wallet, error) {
	var out *models.Wallet
	err := s.locked(ctx, func() error {
		id, ok := s.st.walletByOwner[ownerID]
		if !ok {
			return fmt.Errorf("wallet of %s: %w", ownerID, models.ErrNotFound)
		}
		w := s.st.wallets[id]
		out = &w
		return nil
	})
	return out, err
}

func (s *Store) wallet(id string) (models.Wallet, error) {
	w, ok := s.st.wallets[id]
	if !ok {
		return w, fmt.Errorf("wallet %s: %w", id, models.ErrNotFound)
	}
	return w, nil
}

func (s WalletStore) GetByID(ctx context.Context, id string) (*models.Wallet, error) {
	var out *models.Wallet
	err := s.locked(ctx, func() error {
		w, err := s.wallet(id)
		if err != nil {
			return err
		}
		out = &w
		return nil
	})
	return out, err
}

func (s WalletStore) CreditPending(ctx context.Context, walletID string, amount decimal.Decimal, orderID string, at time.Time) (bool, error) {
	applied := false
	err := s.locked(ctx, func() error {
		w, err := s.wallet(walletID)
		if err != nil {
			return err
		}
		for _, t := range s.st.txs {
			if t.Type == models.TxCreditEscrow && t.OrderID == orderID {
				return nil
			}
		}
		w.Pending = w.Pending.Add(amount)
		w.UpdatedAt = at
		s.st.wallets[w.ID] = w
		s.st.txs = append(s.st.txs, models.Transaction{
			ID:          uuid.New().String(),
			WalletID:    w.ID,
			Amount:      amount,
			Type:        models.TxCreditEscrow,
			OrderID:     orderID,
			Description: "escrow release for order " + orderID,
			CreatedAt:   at,
		})
		applied = true
		return nil
	})
	return applied, err
}

func (s WalletStore) ReverseCredit(ctx context.Context, orderID string, at time.Time) (bool, error) {
	applied := false
	err := s.locked(ctx, func() error {
		idx := -1
		for i, t := range s.st.txs {
			if t.Type == models.TxCreditEscrow && t.OrderID == orderID {
				idx = i
				break
			}
		}
		if idx < 0 || s.st.txs[idx].Reversed {
			return nil
		}
		credit := s.st.txs[idx]
		w, err := s.wallet(credit.WalletID)
		if err != nil {
			return err
		}
		if credit.Settled {
			if w.Available.LessThan(credit.Amount) {
				return fmt.Errorf("reverse credit of order %s: %w", orderID, models.ErrInsufficientFunds)
			}
			w.Available = w.Available.Sub(credit.Amount)
		} else {
			w.Pending = w.Pending.Sub(credit.Amount)
		}
		w.UpdatedAt = at
		s.st.wallets[w.ID] = w
		s.st.txs[idx].Reversed = true
		s.st.txs = append(s.st.txs, models.Transaction{
			ID:          uuid.New().String(),
			WalletID:    w.ID,
			Amount:      credit.Amount.Neg(),
			Type:        models.TxReversal,
			OrderID:     orderID,
			Description: "refund of order " + orderID,
			CreatedAt:   at,
		})
		applied = true
		return nil
	})
	return applied, err
}

func (s WalletStore) ListSettleable(ctx context.Context, createdBefore time.Time, limit int) ([]models.Transaction, error) {
	var out []models.Transaction
	err := s.locked(ctx, func() error {
		for _, t := range s.st.txs {
			if t.Type == models.TxCreditEscrow && !t.Settled && !t.Reversed && t.CreatedAt.Before(createdBefore) {
				out = append(out, t)
				if limit > 0 && len(out) == limit {
					break
				}
			}
		}
		return nil
	})
	return out, err
}

func (s WalletStore) SettleCredit(ctx context.Context, txID string, at time.Time) (bool, error) {
	applied := false
	err := s.locked(ctx, func() error {
		for i, t := range s.st.txs {
			if t.ID != txID {
				continue
			}
			if t.Type != models.TxCreditEscrow || t.Settled || t.Reversed {
				return nil
			}
			w, err := s.wallet(t.WalletID)
			if err != nil {
				return err
			}
			w.Pending = w.Pending.Sub(t.Amount)
			w.Available = w.Available.Add(t.Amount)
			w.UpdatedAt = at
			s.st.wallets[w.ID] = w
			s.st.txs[i].Settled = true
			applied = true
			return nil
		}
		return fmt.Errorf("transaction %s: %w", txID, models.ErrNotFound)
	})
	return applied, err
}

func (s WalletStore) DebitForPayout(ctx context.Context, walletID string, amount decimal.Decimal, at time.Time) (*models.PayoutRequest, error) {
	if !amount.IsPositive() {
		return nil, models.ErrInvalidAmount
	}
	var out *models.PayoutRequest
	err := s.locked(ctx, func() error {
		w, err := s.wallet(walletID)
		if err != nil {
			return err
		}
		if w.Available.LessThan(amount) {
			return fmt.Errorf("payout of %s from wallet %s: %w", amount, walletID, models.ErrInsufficientFunds)
		}
		w.Available = w.Available.Sub(amount)
		w.UpdatedAt = at
		s.st.wallets[w.ID] = w

		p := models.PayoutRequest{
			ID:        uuid.New().String(),
			WalletID:  w.ID,
			Amount:    amount,
			Status:    models.PayoutRequested,
			CreatedAt: at,
			UpdatedAt: at,
		}
		s.st.payouts[p.ID] = p
		s.st.txs = append(s.st.txs, models.Transaction{
			ID:          uuid.New().String(),
			WalletID:    w.ID,
			Amount:      amount.Neg(),
			Type:        models.TxDebitPayout,
			PayoutID:    p.ID,
			Description: "payout " + p.ID,
			CreatedAt:   at,
		})
		out = &p
		return nil
	})
	return out, err
}

func (s WalletStore) GetPayout(ctx context.Context, id string) (*models.PayoutRequest, error) {
	var out *models.PayoutRequest
	err := s.locked(ctx, func() error {
		p, ok := s.st.payouts[id]
		if !ok {
			return fmt.Errorf("payout %s: %w", id, models.ErrNotFound)
		}
		out = &p
		return nil
	})
	return out, err
}

func (s WalletStore) ResolvePayout(ctx context.Context, payoutID string, status models.PayoutStatus, at time.Time) (bool, error) {
	applied := false
	err := s.locked(ctx, func() error {
		p, ok := s.st.payouts[payoutID]
		if !ok {
			return fmt.Errorf("payout %s: %w", payoutID, models.ErrNotFound)
		}
		if p.Status == status {
			return nil
		}
		if p.Status != models.PayoutRequested {
			return fmt.Errorf("payout %s is %s: %w", payoutID, p.Status, models.ErrInvalidStateTransition)
		}
		p.Status = status
		p.UpdatedAt = at
		s.st.payouts[p.ID] = p

		if status == models.PayoutFailed {
			w, err := s.wallet(p.WalletID)
			if err != nil {
				return err
			}
			w.Available = w.Available.Add(p.Amount)
			w.UpdatedAt = at
			s.st.wallets[w.ID] = w
			s.st.txs = append(s.st.txs, models.Transaction{
				ID:          uuid.New().String(),
				WalletID:    w.ID,
				Amount:      p.Amount,
				Type:        models.TxReversal,
				PayoutID:    p.ID,
				Description: "failed payout " + p.ID,
				CreatedAt:   at,
			})
		}
		applied = true
		return nil
	})
	return applied, err
}

func (s WalletStore) ListTransactions(ctx context.Context, walletID string, limit int) ([]models.Transaction, error) {
	var out []models.Transaction
	err := s.locked(ctx, func() error {
		for _, t := range s.st.txs {
			if t.WalletID == walletID {
				out = append(out, t)
			}
		}
		return nil
	})
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, err
}

func (s WalletStore) SumTransactions(ctx context.Context, walletID string) (decimal.Decimal, error) {
	sum := decimal.Zero
	err := s.locked(ctx, func() error {
		for _, t := range s.st.txs {
			if t.WalletID == walletID {
				sum = sum.Add(t.Amount)
			}
		}
		return nil
	})
	return sum, err
}
