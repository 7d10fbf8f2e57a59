package model

import "time"

// Audit event kinds.
const (
	EventCreated       = "created"
	EventStatusChanged = "status_changed"
	EventGatewayReport = "gateway_report"
	EventNote          = "note"
)

// TransactionEvent is an append-only audit record attached to a transaction.
// Rows are never updated or deleted.
type TransactionEvent struct {
	ID            uint64    `gorm:"primaryKey" json:"-"`
	TransactionID string    `gorm:"size:40;index;not null" json:"transaction_id"`
	Kind          string    `gorm:"size:32;not null" json:"kind"`
	FromStatus    string    `gorm:"size:16" json:"from_status,omitempty"`
	ToStatus      string    `gorm:"size:16" json:"to_status,omitempty"`
	Detail        string    `gorm:"size:512" json:"detail,omitempty"`
	ActorID       *uint64   `json:"actor_id,omitempty"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (TransactionEvent) TableName() string { return "transaction_events" }
