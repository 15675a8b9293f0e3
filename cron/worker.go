package cron

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"contratto/services/order"
	"contratto/services/outbox"
	"contratto/services/tasks"
	"contratto/services/wallet"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// Jobs runs the periodic saga and ledger maintenance.
type Jobs struct {
	Orders  order.OrderService
	Wallets wallet.WalletService
	// Relay is nil when no Kafka brokers are configured.
	Relay  *outbox.Relay
	Logger *zap.Logger
}

// Types lists the jobs this instance can run.
func (j *Jobs) Types() []string {
	out := make([]string, 0, len(tasks.Schedule))
	for typ := range tasks.Schedule {
		if typ == tasks.TypeRelayOutbox && j.Relay == nil {
			continue
		}
		out = append(out, typ)
	}
	sort.Strings(out)
	return out
}

// Run executes one job and returns how many records it touched.
func (j *Jobs) Run(ctx context.Context, typ string) (int, error) {
	switch typ {
	case tasks.TypeExpireCheckouts:
		return j.Orders.ExpireAbandoned(ctx)
	case tasks.TypeReconcilePayments:
		return j.Orders.Reconcile(ctx)
	case tasks.TypeSettleHolds:
		return j.Wallets.SettleMatured(ctx)
	case tasks.TypeRelayOutbox:
		if j.Relay == nil {
			return 0, nil
		}
		return j.Relay.Publish(ctx)
	}
	return 0, fmt.Errorf("unknown job %q", typ)
}

func (j *Jobs) handle(ctx context.Context, task *asynq.Task) error {
	var p tasks.JobPayload
	if len(task.Payload()) > 0 {
		if err := json.Unmarshal(task.Payload(), &p); err != nil {
			j.Logger.Error("invalid job payload", zap.String("type", task.Type()), zap.Error(err))
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
	}
	start := time.Now()
	n, err := j.Run(ctx, task.Type())
	if err != nil {
		j.Logger.Error("job failed", zap.String("type", task.Type()), zap.Error(err))
		return err
	}
	j.Logger.Info("job finished",
		zap.String("type", task.Type()),
		zap.String("requestedBy", p.RequestedBy),
		zap.Int("affected", n),
		zap.Duration("took", time.Since(start)))
	return nil
}

// NewServeMux routes every job type to Jobs.
func (j *Jobs) NewServeMux() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	for _, typ := range j.Types() {
		mux.HandleFunc(typ, j.handle)
	}
	return mux
}

// InitWorker starts the asynq worker and the scheduler that enqueues the
// periodic jobs. Both run in the background until Shutdown.
func InitWorker(redisOpts asynq.RedisClientOpt, jobs *Jobs, logger *zap.Logger) (*asynq.Server, *asynq.Scheduler, error) {
	srv := asynq.NewServer(
		redisOpts,
		asynq.Config{
			Concurrency: 4,
			Queues: map[string]int{
				"default": 1,
			},
		},
	)

	scheduler := asynq.NewScheduler(redisOpts, &asynq.SchedulerOpts{Location: time.UTC})
	for _, typ := range jobs.Types() {
		task, opts, err := tasks.NewJobTask(typ, "scheduler", time.Minute)
		if err != nil {
			return nil, nil, err
		}
		if _, err := scheduler.Register(tasks.Schedule[typ], task, opts...); err != nil {
			return nil, nil, fmt.Errorf("register %s: %w", typ, err)
		}
	}

	mux := jobs.NewServeMux()

	// Start async worker with retry logic
	go func() {
		logger.Info("starting job worker")
		const maxAttempts = 5

		for attempts := 1; attempts <= maxAttempts; attempts++ {
			if err := srv.Start(mux); err != nil {
				logger.Error("failed to start job worker",
					zap.Int("attempt", attempts), zap.Int("maxAttempts", maxAttempts), zap.Error(err))
				if attempts == maxAttempts {
					logger.Fatal("job worker could not start")
				}
				time.Sleep(time.Duration(attempts*2) * time.Second)
			} else {
				break
			}
		}
	}()

	if err := scheduler.Start(); err != nil {
		return nil, nil, fmt.Errorf("start job scheduler: %w", err)
	}
	return srv, scheduler, nil
}
