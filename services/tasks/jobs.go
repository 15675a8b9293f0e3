package tasks

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	TypeExpireCheckouts   = "orders:expire-checkouts"
	TypeReconcilePayments = "orders:reconcile-payments"
	TypeSettleHolds       = "wallet:settle-holds"
	TypeRelayOutbox       = "outbox:relay"
)

// Schedule is the cronspec of every periodic job.
var Schedule = map[string]string{
	TypeExpireCheckouts:   "@every 15m",
	TypeReconcilePayments: "@every 10m",
	TypeSettleHolds:       "@every 1h",
	TypeRelayOutbox:       "@every 15s",
}

// JobPayload records who asked for a run.
type JobPayload struct {
	RequestedBy string    `json:"requestedBy"`
	RequestedAt time.Time `json:"requestedAt"`
}

// NewJobTask builds a job task. Runs of the same type are deduplicated for
// the given window, so a slow run is not stacked up behind the scheduler.
func NewJobTask(typ, requestedBy string, unique time.Duration) (*asynq.Task, []asynq.Option, error) {
	b, err := json.Marshal(JobPayload{RequestedBy: requestedBy, RequestedAt: time.Now().UTC()})
	if err != nil {
		return nil, nil, err
	}
	task := asynq.NewTask(typ, b)
	opts := []asynq.Option{
		asynq.MaxRetry(3),
		asynq.Timeout(5 * time.Minute),
	}
	if unique > 0 {
		opts = append(opts, asynq.Unique(unique))
	}
	return task, opts, nil
}
