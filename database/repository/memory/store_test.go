package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"contratto/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func seedOrder(t *testing.T, s *Store, status models.OrderStatus) *models.Order {
	t.Helper()
	o := &models.Order{
		ID: "order-1", BuyerID: "buyer", SellerID: "seller", ServiceID: "svc",
		Price: dec("100"), Currency: "brl", Status: status, PaymentStatus: models.PaymentUnpaid,
		CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, OrderStore{s}.CreateOrder(context.Background(), o, &models.Booking{ID: "b1", OrderID: o.ID, Status: models.BookingPending}))
	return o
}

func assertConserved(t *testing.T, s *Store, walletID string) {
	t.Helper()
	w, err := WalletStore{s}.GetByID(context.Background(), walletID)
	require.NoError(t, err)
	sum, err := WalletStore{s}.SumTransactions(context.Background(), walletID)
	require.NoError(t, err)
	assert.True(t, w.Total().Equal(sum), "balance %s != ledger %s", w.Total(), sum)
	assert.False(t, w.Available.IsNegative())
}

func TestTransitionStatusIsCompareAndSwap(t *testing.T) {
	s := New()
	ctx := context.Background()
	seedOrder(t, s, models.OrderCreated)
	orders := OrderStore{s}

	ref := "cs_1"
	o, err := orders.TransitionStatus(ctx, "order-1", models.OrderCreated, models.OrderAwaitingPayment, models.OrderPatch{CheckoutReference: &ref}, now)
	require.NoError(t, err)
	assert.Equal(t, models.OrderAwaitingPayment, o.Status)
	assert.Equal(t, "cs_1", o.CheckoutReference)

	_, err = orders.TransitionStatus(ctx, "order-1", models.OrderCreated, models.OrderAwaitingPayment, models.OrderPatch{}, now)
	assert.ErrorIs(t, err, models.ErrStatusMismatch)

	_, err = orders.TransitionStatus(ctx, "missing", models.OrderCreated, models.OrderAwaitingPayment, models.OrderPatch{}, now)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestWithinTransactionRollsBack(t *testing.T) {
	s := New()
	ctx := context.Background()
	seedOrder(t, s, models.OrderCreated)

	boom := errors.New("boom")
	err := s.WithinTransaction(ctx, func(ctx context.Context) error {
		_, err := OrderStore{s}.TransitionStatus(ctx, "order-1", models.OrderCreated, models.OrderCancelled, models.OrderPatch{}, now)
		require.NoError(t, err)
		// nested calls join the outer transaction
		return s.WithinTransaction(ctx, func(ctx context.Context) error { return boom })
	})
	assert.ErrorIs(t, err, boom)

	o, err := OrderStore{s}.GetByID(ctx, "order-1")
	require.NoError(t, err)
	assert.Equal(t, models.OrderCreated, o.Status)
}

func TestCreditPendingIsIdempotentPerOrder(t *testing.T) {
	s := New()
	ctx := context.Background()
	wallets := WalletStore{s}
	w, err := wallets.GetOrCreate(ctx, "seller", "brl", now)
	require.NoError(t, err)

	var wg sync.WaitGroup
	var mu sync.Mutex
	applied := 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := wallets.CreditPending(ctx, w.ID, dec("100"), "order-1", now)
			assert.NoError(t, err)
			if ok {
				mu.Lock()
				applied++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, applied)
	w, err = wallets.GetByID(ctx, w.ID)
	require.NoError(t, err)
	assert.True(t, w.Pending.Equal(dec("100")))
	assertConserved(t, s, w.ID)
}

func TestSettleReverseAndPayoutKeepLedgerConserved(t *testing.T) {
	s := New()
	ctx := context.Background()
	wallets := WalletStore{s}
	w, _ := wallets.GetOrCreate(ctx, "seller", "brl", now)

	_, err := wallets.CreditPending(ctx, w.ID, dec("100"), "o1", now)
	require.NoError(t, err)
	_, err = wallets.CreditPending(ctx, w.ID, dec("40"), "o2", now)
	require.NoError(t, err)

	due, err := wallets.ListSettleable(ctx, now.Add(time.Hour), 0)
	require.NoError(t, err)
	require.Len(t, due, 2)
	ok, err := wallets.SettleCredit(ctx, due[0].ID, now)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = wallets.SettleCredit(ctx, due[0].ID, now)
	require.NoError(t, err)
	assert.False(t, ok)
	assertConserved(t, s, w.ID)

	// o2 is still pending
	ok, err = wallets.ReverseCredit(ctx, "o2", now)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = wallets.ReverseCredit(ctx, "o2", now)
	require.NoError(t, err)
	assert.False(t, ok)
	assertConserved(t, s, w.ID)

	p, err := wallets.DebitForPayout(ctx, w.ID, dec("70"), now)
	require.NoError(t, err)
	assertConserved(t, s, w.ID)

	// o1 settled, 30 left available: reversing 100 would overdraw
	_, err = wallets.ReverseCredit(ctx, "o1", now)
	assert.ErrorIs(t, err, models.ErrInsufficientFunds)

	ok, err = wallets.ResolvePayout(ctx, p.ID, models.PayoutFailed, now)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = wallets.ResolvePayout(ctx, p.ID, models.PayoutFailed, now)
	require.NoError(t, err)
	assert.False(t, ok)
	_, err = wallets.ResolvePayout(ctx, p.ID, models.PayoutProcessed, now)
	assert.ErrorIs(t, err, models.ErrInvalidStateTransition)

	w, _ = wallets.GetByID(ctx, w.ID)
	assert.True(t, w.Available.Equal(dec("100")))
	assert.True(t, w.Pending.IsZero())
	assertConserved(t, s, w.ID)
}

func TestRecordEvent(t *testing.T) {
	s := New()
	ctx := context.Background()
	events := EventStore{s}
	ev := &models.WebhookEvent{ID: "1", Gateway: "stripe", ProviderEventID: "evt_1", Status: models.WebhookReceived, ReceivedAt: now}

	fresh, err := events.Record(ctx, ev)
	require.NoError(t, err)
	assert.True(t, fresh)

	require.NoError(t, events.MarkFailed(ctx, "stripe", "evt_1", "db down"))
	fresh, err = events.Record(ctx, ev)
	require.NoError(t, err)
	assert.True(t, fresh, "failed events are retried")

	require.NoError(t, events.MarkProcessed(ctx, "stripe", "evt_1", now))
	fresh, err = events.Record(ctx, ev)
	require.NoError(t, err)
	assert.False(t, fresh)

	stored, ok := s.Event("stripe", "evt_1")
	require.True(t, ok)
	assert.Equal(t, models.WebhookProcessed, stored.Status)
}
