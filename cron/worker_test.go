package cron

import (
	"context"
	"testing"
	"time"

	"contratto/database/repository/memory"
	"contratto/services/gateway"
	"contratto/services/order"
	"contratto/services/outbox"
	"contratto/services/tasks"
	"contratto/services/wallet"

	"github.com/hibiken/asynq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newJobs(withRelay bool) *Jobs {
	store := memory.New().Repositories()
	wallets := wallet.NewWalletService(store, "brl", time.Hour, zap.NewNop())
	orders := order.NewOrderService(store, gateway.NewRegistry(), wallets, nil, order.Settings{
		FeeRate:        decimal.RequireFromString("0.05"),
		CheckoutExpiry: time.Hour,
		ReconcileAfter: time.Hour,
	}, zap.NewNop())
	j := &Jobs{Orders: orders, Wallets: wallets, Logger: zap.NewNop()}
	if withRelay {
		j.Relay = outbox.NewRelay(store, nil, zap.NewNop())
	}
	return j
}

func TestTypesSkipRelayWithoutKafka(t *testing.T) {
	assert.NotContains(t, newJobs(false).Types(), tasks.TypeRelayOutbox)
	assert.Contains(t, newJobs(true).Types(), tasks.TypeRelayOutbox)
	assert.Len(t, newJobs(true).Types(), len(tasks.Schedule))
}

func TestRunDispatchesJobs(t *testing.T) {
	j := newJobs(false)
	ctx := context.Background()

	for _, typ := range j.Types() {
		n, err := j.Run(ctx, typ)
		require.NoError(t, err, typ)
		assert.Zero(t, n, typ)
	}

	_, err := j.Run(ctx, "orders:unknown")
	assert.Error(t, err)
}

func TestHandleRejectsBadPayload(t *testing.T) {
	j := newJobs(false)
	err := j.handle(context.Background(), asynq.NewTask(tasks.TypeSettleHolds, []byte("{")))
	assert.ErrorIs(t, err, asynq.SkipRetry)

	task, _, err := tasks.NewJobTask(tasks.TypeSettleHolds, "test", 0)
	require.NoError(t, err)
	assert.NoError(t, j.handle(context.Background(), task))
}
