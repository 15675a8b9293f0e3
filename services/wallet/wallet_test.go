package wallet

import (
	"context"
	"sync"
	"testing"
	"time"

	"contratto/database/repository/memory"
	"contratto/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newTestService() (*DefaultWalletService, *clock) {
	c := &clock{t: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	svc := NewWalletService(memory.New().Repositories(), "brl", 7*24*time.Hour, zap.NewNop())
	svc.Now = c.now
	return svc, c
}

// fund gives seller an available balance by crediting and maturing one escrow.
func fund(t *testing.T, svc *DefaultWalletService, c *clock, seller, orderID, amount string) *models.Wallet {
	t.Helper()
	ctx := context.Background()
	_, err := svc.CreditEscrow(ctx, seller, "", dec(amount), orderID)
	require.NoError(t, err)
	c.t = c.t.Add(svc.HoldPeriod + time.Minute)
	_, err = svc.SettleMatured(ctx)
	require.NoError(t, err)
	w, err := svc.GetWallet(ctx, seller)
	require.NoError(t, err)
	return w
}

func assertBalanced(t *testing.T, svc *DefaultWalletService, walletID string) {
	t.Helper()
	report, err := svc.Audit(context.Background(), walletID)
	require.NoError(t, err)
	assert.True(t, report.Balanced, "drift %s", report.Drift)
}

func TestCreditEscrowIsIdempotentPerOrder(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	applied, err := svc.CreditEscrow(ctx, "seller", "brl", dec("100"), "order-1")
	require.NoError(t, err)
	assert.True(t, applied)

	applied, err = svc.CreditEscrow(ctx, "seller", "brl", dec("100"), "order-1")
	require.NoError(t, err)
	assert.False(t, applied)

	w, err := svc.GetWallet(ctx, "seller")
	require.NoError(t, err)
	assert.True(t, w.Pending.Equal(dec("100")))
	assert.True(t, w.Available.IsZero())

	txs, err := svc.ListTransactions(ctx, "seller", 0)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, models.TxCreditEscrow, txs[0].Type)
	assert.Equal(t, "order-1", txs[0].OrderID)
	assertBalanced(t, svc, w.ID)
}

func TestCreditEscrowRejectsAmountsBeyondMaximum(t *testing.T) {
	svc, _ := newTestService()
	_, err := svc.CreditEscrow(context.Background(), "seller", "", dec("175683276892471920"), "order-big")
	assert.ErrorIs(t, err, models.ErrInvalidAmount)
}

func TestSettleMaturedRespectsHoldPeriod(t *testing.T) {
	svc, c := newTestService()
	ctx := context.Background()

	_, err := svc.CreditEscrow(ctx, "seller", "brl", dec("40"), "order-1")
	require.NoError(t, err)

	c.t = c.t.Add(time.Hour)
	n, err := svc.SettleMatured(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	c.t = c.t.Add(svc.HoldPeriod)
	n, err = svc.SettleMatured(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	w, err := svc.GetWallet(ctx, "seller")
	require.NoError(t, err)
	assert.True(t, w.Available.Equal(dec("40")))
	assert.True(t, w.Pending.IsZero())
	assertBalanced(t, svc, w.ID)
}

func TestRequestPayoutRejectsOverdraft(t *testing.T) {
	svc, c := newTestService()
	ctx := context.Background()
	w := fund(t, svc, c, "seller", "order-1", "50.00")

	_, err := svc.RequestPayout(ctx, w.ID, dec("80.00"))
	assert.ErrorIs(t, err, models.ErrInsufficientFunds)

	after, err := svc.GetWallet(ctx, "seller")
	require.NoError(t, err)
	assert.True(t, after.Available.Equal(dec("50")))
	assertBalanced(t, svc, w.ID)
}

func TestRequestPayoutOnlyAgainstAvailable(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	_, err := svc.CreditEscrow(ctx, "seller", "brl", dec("100"), "order-1")
	require.NoError(t, err)
	w, err := svc.GetWallet(ctx, "seller")
	require.NoError(t, err)

	_, err = svc.RequestPayout(ctx, w.ID, dec("10"))
	assert.ErrorIs(t, err, models.ErrInsufficientFunds)
}

func TestRequestPayoutDebitsAtomically(t *testing.T) {
	svc, c := newTestService()
	ctx := context.Background()
	w := fund(t, svc, c, "seller", "order-1", "100")

	p, err := svc.RequestPayout(ctx, w.ID, dec("30"))
	require.NoError(t, err)
	assert.Equal(t, models.PayoutRequested, p.Status)
	assert.True(t, p.Amount.Equal(dec("30")))

	after, err := svc.GetWallet(ctx, "seller")
	require.NoError(t, err)
	assert.True(t, after.Available.Equal(dec("70")))

	txs, err := svc.ListTransactions(ctx, "seller", 0)
	require.NoError(t, err)
	var debits int
	for _, tx := range txs {
		if tx.Type == models.TxDebitPayout {
			debits++
			assert.True(t, tx.Amount.Equal(dec("-30")))
			assert.Equal(t, p.ID, tx.PayoutID)
		}
	}
	assert.Equal(t, 1, debits)
	assertBalanced(t, svc, w.ID)
}

func TestRequestPayoutValidatesAmount(t *testing.T) {
	svc, c := newTestService()
	w := fund(t, svc, c, "seller", "order-1", "100")

	for _, amount := range []string{"0", "-5", "10.005", "184467440737095616.16", "1000000000.01"} {
		_, err := svc.RequestPayout(context.Background(), w.ID, dec(amount))
		assert.ErrorIs(t, err, models.ErrInvalidAmount, amount)
	}

	got, err := svc.GetWallet(context.Background(), "seller")
	require.NoError(t, err)
	assert.True(t, got.Available.Equal(dec("100")), got.Available.String())
}

func TestConcurrentPayoutsNeverOverdraw(t *testing.T) {
	svc, c := newTestService()
	ctx := context.Background()
	w := fund(t, svc, c, "seller", "order-1", "100")

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		granted int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.RequestPayout(ctx, w.ID, dec("30")); err == nil {
				mu.Lock()
				granted++
				mu.Unlock()
			} else {
				assert.ErrorIs(t, err, models.ErrInsufficientFunds)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 3, granted)
	after, err := svc.GetWallet(ctx, "seller")
	require.NoError(t, err)
	assert.True(t, after.Available.Equal(dec("10")))
	assertBalanced(t, svc, w.ID)
}

func TestFailedPayoutRestoresAvailable(t *testing.T) {
	svc, c := newTestService()
	ctx := context.Background()
	w := fund(t, svc, c, "seller", "order-1", "100")

	p, err := svc.RequestPayout(ctx, w.ID, dec("60"))
	require.NoError(t, err)

	applied, err := svc.ResolvePayout(ctx, p.ID, models.PayoutFailed)
	require.NoError(t, err)
	assert.True(t, applied)

	applied, err = svc.ResolvePayout(ctx, p.ID, models.PayoutFailed)
	require.NoError(t, err)
	assert.False(t, applied)

	after, err := svc.GetWallet(ctx, "seller")
	require.NoError(t, err)
	assert.True(t, after.Available.Equal(dec("100")))
	assertBalanced(t, svc, w.ID)

	_, err = svc.ResolvePayout(ctx, p.ID, models.PayoutProcessed)
	assert.ErrorIs(t, err, models.ErrInvalidStateTransition)
}

func TestReverseEscrowKeepsLedgerHistory(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	_, err := svc.CreditEscrow(ctx, "seller", "brl", dec("100"), "order-1")
	require.NoError(t, err)

	applied, err := svc.ReverseEscrow(ctx, "order-1")
	require.NoError(t, err)
	assert.True(t, applied)

	applied, err = svc.ReverseEscrow(ctx, "order-1")
	require.NoError(t, err)
	assert.False(t, applied)

	txs, err := svc.ListTransactions(ctx, "seller", 0)
	require.NoError(t, err)
	assert.Len(t, txs, 2)

	w, err := svc.GetWallet(ctx, "seller")
	require.NoError(t, err)
	assert.True(t, w.Total().IsZero())
	assertBalanced(t, svc, w.ID)
}
