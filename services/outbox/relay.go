// Package outbox relays the saga audit log to Kafka.
package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"contratto/database/repository"
	orderRepo "contratto/database/repository/order"
	"contratto/utils"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const defaultBatch = 100

// MessageWriter is the part of *kafka.Writer the relay uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// Relay publishes unpublished saga log entries and stamps them published in
// the same store transaction. Delivery is at least once; consumers key on
// the entry id.
type Relay struct {
	Orders orderRepo.OrderRepository
	Tx     repository.TxRunner
	Writer MessageWriter
	Batch  int
	Logger *zap.Logger
}

func NewRelay(store *repository.Store, writer MessageWriter, logger *zap.Logger) *Relay {
	return &Relay{Orders: store.Orders, Tx: store.Tx, Writer: writer, Batch: defaultBatch, Logger: logger}
}

// NewKafkaWriter builds a writer that keys messages by order id so one
// order's transitions land on one partition in order.
func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
		BatchTimeout:           50 * time.Millisecond,
	}
}

// Publish relays one batch and returns how many entries went out.
func (r *Relay) Publish(ctx context.Context) (int, error) {
	batch := r.Batch
	if batch <= 0 {
		batch = defaultBatch
	}

	published := 0
	err := r.Tx.WithinTransaction(ctx, func(ctx context.Context) error {
		published = 0
		logs, err := r.Orders.ListUnpublishedLogs(ctx, batch)
		if err != nil {
			return err
		}
		if len(logs) == 0 {
			return nil
		}

		msgs := make([]kafka.Message, 0, len(logs))
		ids := make([]string, 0, len(logs))
		for _, l := range logs {
			value, err := json.Marshal(l)
			if err != nil {
				return fmt.Errorf("encode saga log %s: %w", l.ID, err)
			}
			msgs = append(msgs, kafka.Message{
				Key:   []byte(l.OrderID),
				Value: value,
				Time:  l.CreatedAt,
				Headers: []kafka.Header{
					{Key: "log-id", Value: []byte(l.ID)},
					{Key: "to-status", Value: []byte(l.ToStatus)},
				},
			})
			ids = append(ids, l.ID)
		}

		if err := r.Writer.WriteMessages(ctx, msgs...); err != nil {
			return fmt.Errorf("publish saga logs: %w", err)
		}
		if err := r.Orders.MarkLogsPublished(ctx, ids, time.Now().UTC()); err != nil {
			return err
		}
		published = len(ids)
		return nil
	})
	if err != nil {
		r.Logger.Error("outbox relay failed", zap.Error(err))
		return 0, err
	}
	if published > 0 {
		utils.OutboxPublished.Add(float64(published))
		r.Logger.Debug("saga logs relayed", zap.Int("count", published))
	}
	return published, nil
}
