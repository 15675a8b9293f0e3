package walletRepo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"contratto/database"
	"contratto/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// PostgresWalletRepo implements WalletRepository on pgx. Money movements
// take a row lock on the wallet (SELECT ... FOR UPDATE) before checking and
// writing balances.
type PostgresWalletRepo struct {
	pool *pgxpool.Pool
	tx   *database.PostgresTx
}

func NewPostgresWalletRepo(pool *pgxpool.Pool) WalletRepository {
	return &PostgresWalletRepo{pool: pool, tx: &database.PostgresTx{Pool: pool}}
}

const walletColumns = `id, owner_id, available_cents, pending_cents, currency, created_at, updated_at`

func scanWallet(row pgx.Row) (*models.Wallet, error) {
	var d walletDoc
	if err := row.Scan(&d.ID, &d.OwnerID, &d.AvailableCents, &d.PendingCents, &d.Currency, &d.CreatedAt, &d.UpdatedAt); err != nil {
		return nil, err
	}
	return d.model(), nil
}

func (r *PostgresWalletRepo) GetOrCreate(ctx context.Context, ownerID, currency string, at time.Time) (*models.Wallet, error) {
	q := database.Conn(ctx, r.pool)
	_, err := q.Exec(ctx,
		`INSERT INTO wallets (id, owner_id, available_cents, pending_cents, currency, created_at, updated_at)
		 VALUES ($1, $2, 0, 0, $3, $4, $4) ON CONFLICT (owner_id) DO NOTHING`,
		uuid.New().String(), ownerID, currency, at,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create wallet of %s: %w", ownerID, err)
	}
	return r.GetByOwner(ctx, ownerID)
}

func (r *PostgresWalletRepo) getWallet(ctx context.Context, where, what string, arg any) (*models.Wallet, error) {
	w, err := scanWallet(database.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+walletColumns+` FROM wallets WHERE `+where, arg))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("wallet %s: %w", what, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch wallet %s: %w", what, err)
	}
	return w, nil
}

func (r *PostgresWalletRepo) GetByID(ctx context.Context, id string) (*models.Wallet, error) {
	return r.getWallet(ctx, `id = $1`, id, id)
}

func (r *PostgresWalletRepo) GetByOwner(ctx context.Context, ownerID string) (*models.Wallet, error) {
	return r.getWallet(ctx, `owner_id = $1`, "of "+ownerID, ownerID)
}

func (r *PostgresWalletRepo) lockWallet(ctx context.Context, id string) (*models.Wallet, error) {
	return r.getWallet(ctx, `id = $1 FOR UPDATE`, id, id)
}

func (r *PostgresWalletRepo) insertTx(ctx context.Context, d txDoc) error {
	_, err := database.Conn(ctx, r.pool).Exec(ctx,
		`INSERT INTO transactions (id, wallet_id, amount_cents, type, order_id, payout_id, settled, reversed, description, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		d.ID, d.WalletID, d.AmountCents, d.Type, d.OrderID, d.PayoutID, d.Settled, d.Reversed, d.Description, d.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append %s transaction: %w", d.Type, err)
	}
	return nil
}

func (r *PostgresWalletRepo) CreditPending(ctx context.Context, walletID string, amount decimal.Decimal, orderID string, at time.Time) (bool, error) {
	applied := false
	err := r.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		if _, err := r.lockWallet(ctx, walletID); err != nil {
			return err
		}
		q := database.Conn(ctx, r.pool)
		var exists bool
		if err := q.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM transactions WHERE order_id = $1 AND type = $2)`,
			orderID, string(models.TxCreditEscrow),
		).Scan(&exists); err != nil {
			return fmt.Errorf("failed to check escrow credit of order %s: %w", orderID, err)
		}
		if exists {
			return nil
		}

		cents := models.ToCents(amount)
		if _, err := q.Exec(ctx,
			`UPDATE wallets SET pending_cents = pending_cents + $2, updated_at = $3 WHERE id = $1`,
			walletID, cents, at,
		); err != nil {
			return fmt.Errorf("failed to credit wallet %s: %w", walletID, err)
		}
		if err := r.insertTx(ctx, txDoc{
			ID: uuid.New().String(), WalletID: walletID, AmountCents: cents, Type: string(models.TxCreditEscrow),
			OrderID: orderID, Description: "escrow release for order " + orderID, CreatedAt: at,
		}); err != nil {
			return err
		}
		applied = true
		return nil
	})
	return applied, err
}

func (r *PostgresWalletRepo) ReverseCredit(ctx context.Context, orderID string, at time.Time) (bool, error) {
	applied := false
	err := r.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		q := database.Conn(ctx, r.pool)
		var credit txDoc
		err := q.QueryRow(ctx,
			`SELECT id, wallet_id, amount_cents, settled FROM transactions
			 WHERE order_id = $1 AND type = $2 AND NOT reversed FOR UPDATE`,
			orderID, string(models.TxCreditEscrow),
		).Scan(&credit.ID, &credit.WalletID, &credit.AmountCents, &credit.Settled)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to load escrow credit of order %s: %w", orderID, err)
		}

		w, err := r.lockWallet(ctx, credit.WalletID)
		if err != nil {
			return err
		}
		column := "pending_cents"
		if credit.Settled {
			if models.ToCents(w.Available) < credit.AmountCents {
				return fmt.Errorf("reverse credit of order %s: %w", orderID, models.ErrInsufficientFunds)
			}
			column = "available_cents"
		}
		if _, err := q.Exec(ctx,
			`UPDATE wallets SET `+column+` = `+column+` - $2, updated_at = $3 WHERE id = $1`,
			credit.WalletID, credit.AmountCents, at,
		); err != nil {
			return fmt.Errorf("failed to debit wallet %s: %w", credit.WalletID, err)
		}
		if _, err := q.Exec(ctx, `UPDATE transactions SET reversed = TRUE WHERE id = $1`, credit.ID); err != nil {
			return fmt.Errorf("failed to flag transaction %s reversed: %w", credit.ID, err)
		}
		if err := r.insertTx(ctx, txDoc{
			ID: uuid.New().String(), WalletID: credit.WalletID, AmountCents: -credit.AmountCents,
			Type: string(models.TxReversal), OrderID: orderID, Description: "refund of order " + orderID, CreatedAt: at,
		}); err != nil {
			return err
		}
		applied = true
		return nil
	})
	return applied, err
}

const txColumns = `id, wallet_id, amount_cents, type, order_id, payout_id, settled, reversed, description, created_at`

func (r *PostgresWalletRepo) queryTxs(ctx context.Context, where string, args ...any) ([]models.Transaction, error) {
	rows, err := database.Conn(ctx, r.pool).Query(ctx, `SELECT `+txColumns+` FROM transactions WHERE `+where, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var out []models.Transaction
	for rows.Next() {
		var d txDoc
		if err := rows.Scan(&d.ID, &d.WalletID, &d.AmountCents, &d.Type, &d.OrderID, &d.PayoutID, &d.Settled, &d.Reversed, &d.Description, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		out = append(out, d.model())
	}
	return out, rows.Err()
}

func (r *PostgresWalletRepo) ListSettleable(ctx context.Context, createdBefore time.Time, limit int) ([]models.Transaction, error) {
	if limit <= 0 {
		limit = 1000
	}
	return r.queryTxs(ctx, `type = $1 AND NOT settled AND NOT reversed AND created_at < $2 ORDER BY created_at LIMIT $3`,
		string(models.TxCreditEscrow), createdBefore, limit)
}

func (r *PostgresWalletRepo) SettleCredit(ctx context.Context, txID string, at time.Time) (bool, error) {
	applied := false
	err := r.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		q := database.Conn(ctx, r.pool)
		var walletID string
		var cents int64
		err := q.QueryRow(ctx,
			`UPDATE transactions SET settled = TRUE
			 WHERE id = $1 AND type = $2 AND NOT settled AND NOT reversed
			 RETURNING wallet_id, amount_cents`,
			txID, string(models.TxCreditEscrow),
		).Scan(&walletID, &cents)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to settle transaction %s: %w", txID, err)
		}
		if _, err := q.Exec(ctx,
			`UPDATE wallets SET pending_cents = pending_cents - $2, available_cents = available_cents + $2, updated_at = $3
			 WHERE id = $1`,
			walletID, cents, at,
		); err != nil {
			return fmt.Errorf("failed to release hold on wallet %s: %w", walletID, err)
		}
		applied = true
		return nil
	})
	return applied, err
}

func (r *PostgresWalletRepo) DebitForPayout(ctx context.Context, walletID string, amount decimal.Decimal, at time.Time) (*models.PayoutRequest, error) {
	cents := models.ToCents(amount)
	if cents <= 0 {
		return nil, models.ErrInvalidAmount
	}

	var payout payoutDoc
	err := r.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		w, err := r.lockWallet(ctx, walletID)
		if err != nil {
			return err
		}
		if models.ToCents(w.Available) < cents {
			return fmt.Errorf("payout of %s from wallet %s: %w", amount, walletID, models.ErrInsufficientFunds)
		}

		q := database.Conn(ctx, r.pool)
		if _, err := q.Exec(ctx,
			`UPDATE wallets SET available_cents = available_cents - $2, updated_at = $3 WHERE id = $1`,
			walletID, cents, at,
		); err != nil {
			return fmt.Errorf("failed to debit wallet %s: %w", walletID, err)
		}

		payout = payoutDoc{
			ID: uuid.New().String(), WalletID: walletID, AmountCents: cents,
			Status: string(models.PayoutRequested), CreatedAt: at, UpdatedAt: at,
		}
		if _, err := q.Exec(ctx,
			`INSERT INTO payout_requests (id, wallet_id, amount_cents, status, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			payout.ID, payout.WalletID, payout.AmountCents, payout.Status, payout.CreatedAt, payout.UpdatedAt,
		); err != nil {
			return fmt.Errorf("failed to insert payout request: %w", err)
		}
		return r.insertTx(ctx, txDoc{
			ID: uuid.New().String(), WalletID: walletID, AmountCents: -cents, Type: string(models.TxDebitPayout),
			PayoutID: payout.ID, Description: "payout " + payout.ID, CreatedAt: at,
		})
	})
	if err != nil {
		return nil, err
	}
	return payout.model(), nil
}

func (r *PostgresWalletRepo) getPayout(ctx context.Context, id string, lock bool) (*models.PayoutRequest, error) {
	query := `SELECT id, wallet_id, amount_cents, status, created_at, updated_at FROM payout_requests WHERE id = $1`
	if lock {
		query += ` FOR UPDATE`
	}
	var d payoutDoc
	err := database.Conn(ctx, r.pool).QueryRow(ctx, query, id).
		Scan(&d.ID, &d.WalletID, &d.AmountCents, &d.Status, &d.CreatedAt, &d.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("payout %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch payout %s: %w", id, err)
	}
	return d.model(), nil
}

func (r *PostgresWalletRepo) GetPayout(ctx context.Context, id string) (*models.PayoutRequest, error) {
	return r.getPayout(ctx, id, false)
}

func (r *PostgresWalletRepo) ResolvePayout(ctx context.Context, payoutID string, status models.PayoutStatus, at time.Time) (bool, error) {
	applied := false
	err := r.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		p, err := r.getPayout(ctx, payoutID, true)
		if err != nil {
			return err
		}
		if p.Status == status {
			return nil
		}
		if p.Status != models.PayoutRequested {
			return fmt.Errorf("payout %s is %s: %w", payoutID, p.Status, models.ErrInvalidStateTransition)
		}

		q := database.Conn(ctx, r.pool)
		if _, err := q.Exec(ctx,
			`UPDATE payout_requests SET status = $2, updated_at = $3 WHERE id = $1`, payoutID, string(status), at,
		); err != nil {
			return fmt.Errorf("failed to resolve payout %s: %w", payoutID, err)
		}
		if status == models.PayoutFailed {
			cents := models.ToCents(p.Amount)
			if _, err := q.Exec(ctx,
				`UPDATE wallets SET available_cents = available_cents + $2, updated_at = $3 WHERE id = $1`,
				p.WalletID, cents, at,
			); err != nil {
				return fmt.Errorf("failed to restore wallet %s: %w", p.WalletID, err)
			}
			if err := r.insertTx(ctx, txDoc{
				ID: uuid.New().String(), WalletID: p.WalletID, AmountCents: cents,
				Type: string(models.TxReversal), PayoutID: p.ID, Description: "failed payout " + p.ID, CreatedAt: at,
			}); err != nil {
				return err
			}
		}
		applied = true
		return nil
	})
	return applied, err
}

func (r *PostgresWalletRepo) ListTransactions(ctx context.Context, walletID string, limit int) ([]models.Transaction, error) {
	if limit <= 0 {
		limit = 100
	}
	return r.queryTxs(ctx, `wallet_id = $1 ORDER BY created_at DESC LIMIT $2`, walletID, limit)
}

func (r *PostgresWalletRepo) SumTransactions(ctx context.Context, walletID string) (decimal.Decimal, error) {
	var total int64
	if err := database.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT COALESCE(SUM(amount_cents), 0)::BIGINT FROM transactions WHERE wallet_id = $1`, walletID,
	).Scan(&total); err != nil {
		return decimal.Zero, fmt.Errorf("failed to sum transactions of wallet %s: %w", walletID, err)
	}
	return models.FromCents(total), nil
}
