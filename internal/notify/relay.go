package notify

import (
	"context"
	"time"

	"github.com/richardliu001/mobile-wallet/internal/metrics"
	"github.com/richardliu001/mobile-wallet/internal/model"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// MessageWriter is the part of *kafka.Writer the relay needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// OutboxStore is the part of the repository the relay needs.
type OutboxStore interface {
	PollOutbox(ctx context.Context, limit int) ([]model.OutboxEvent, error)
	MarkOutboxProcessed(ctx context.Context, id uint64) error
	MarkOutboxFailed(ctx context.Context, id uint64, cause error) error
}

// Relay publishes pending outbox rows to Kafka, at least once.
type Relay struct {
	store     OutboxStore
	writer    MessageWriter
	log       *zap.SugaredLogger
	interval  time.Duration
	batchSize int
}

func NewRelay(store OutboxStore, writer MessageWriter, interval time.Duration, batchSize int, log *zap.SugaredLogger) *Relay {
	return &Relay{store: store, writer: writer, log: log, interval: interval, batchSize: batchSize}
}

// Run ticks until ctx is done.
func (r *Relay) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.log.Info("outbox relay started")
	for {
		select {
		case <-ctx.Done():
			r.log.Info("outbox relay stopped")
			return
		case <-ticker.C:
			if _, err := r.Flush(ctx); err != nil {
				r.log.Errorf("poll outbox: %v", err)
			}
		}
	}
}

// Flush publishes one batch and returns how many events were sent.
func (r *Relay) Flush(ctx context.Context) (int, error) {
	events, err := r.store.PollOutbox(ctx, r.batchSize)
	if err != nil {
		return 0, err
	}
	sent := 0
	for _, evt := range events {
		err := r.publish(ctx, evt)
		metrics.OutboxPublished.WithLabelValues(metrics.Result(err)).Inc()
		if err != nil {
			r.log.Errorf("publish id=%d type=%s: %v", evt.ID, evt.EventType, err)
			if mErr := r.store.MarkOutboxFailed(ctx, evt.ID, err); mErr != nil {
				r.log.Errorf("mark failed id=%d: %v", evt.ID, mErr)
			}
			continue
		}
		if err := r.store.MarkOutboxProcessed(ctx, evt.ID); err != nil {
			r.log.Errorf("mark processed id=%d: %v", evt.ID, err)
			continue
		}
		sent++
	}
	if sent > 0 {
		r.log.Infof("outbox relay sent %d events", sent)
	}
	return sent, nil
}

func (r *Relay) publish(ctx context.Context, evt model.OutboxEvent) error {
	msg := kafka.Message{
		Key:   []byte(evt.AggregateID),
		Value: []byte(evt.Payload),
		Time:  time.Now(),
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(evt.EventType)},
		},
	}
	return r.writer.WriteMessages(ctx, msg)
}
