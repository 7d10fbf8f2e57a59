package model

import "time"

// OutboxEvent is a notification waiting to be relayed to the message broker.
// It is written in the same database transaction as the ledger change it describes.
type OutboxEvent struct {
	ID          uint64    `gorm:"primaryKey"`
	Aggregate   string    `gorm:"size:64;not null"`
	AggregateID string    `gorm:"size:40;not null"`
	EventType   string    `gorm:"size:64;not null"`
	Payload     string    `gorm:"type:text;not null"`
	CreatedAt   time.Time `gorm:"autoCreateTime"`
	Processed   bool      `gorm:"not null;default:false;index"`
	ProcessedAt *time.Time
	Attempts    int    `gorm:"not null;default:0"`
	LastError   string `gorm:"size:255"`
}

func (OutboxEvent) TableName() string { return "event_outbox" }

// All returns every model for AutoMigrate.
func All() []interface{} {
	return []interface{}{&Wallet{}, &Transaction{}, &Entry{}, &TransactionEvent{}, &OutboxEvent{}}
}
