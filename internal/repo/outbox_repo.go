package repo

import (
	"context"
	"time"

	"github.com/richardliu001/mobile-wallet/internal/model"
	"gorm.io/gorm"
)

// maxOutboxAttempts is how many failed publishes an event gets before it is parked.
const maxOutboxAttempts = 10

// CreateOutboxEvent writes event.
func (r *Repository) CreateOutboxEvent(ctx context.Context, tx *gorm.DB, evt *model.OutboxEvent) error {
	return r.conn(ctx, tx).Create(evt).Error
}

// PollOutbox pulls unprocessed events that still have attempts left.
func (r *Repository) PollOutbox(ctx context.Context, limit int) ([]model.OutboxEvent, error) {
	var evts []model.OutboxEvent
	err := r.db.WithContext(ctx).
		Where("processed = ? AND attempts < ?", false, maxOutboxAttempts).
		Order("id").Limit(limit).Find(&evts).Error
	return evts, err
}

// MarkOutboxProcessed sets processed flag.
func (r *Repository) MarkOutboxProcessed(ctx context.Context, id uint64) error {
	now := time.Now()
	return r.db.WithContext(ctx).Model(&model.OutboxEvent{}).Where("id = ?", id).
		Updates(map[string]interface{}{"processed": true, "processed_at": &now}).Error
}

// MarkOutboxFailed records a failed publish attempt.
func (r *Repository) MarkOutboxFailed(ctx context.Context, id uint64, cause error) error {
	msg := cause.Error()
	if len(msg) > 255 {
		msg = msg[:255]
	}
	return r.db.WithContext(ctx).Model(&model.OutboxEvent{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"attempts":   gorm.Expr("attempts + 1"),
			"last_error": msg,
		}).Error
}
