package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transaction types.
const (
	TypeTransfer        = "transfer"
	TypeAddFunds        = "add_funds"
	TypeGatewayDeposit  = "gateway_deposit"
	TypeAdminAdjustment = "admin_adjustment"
)

// Transaction statuses. Completed and failed are terminal.
const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Transaction is one ledger row. Amount columns are written at creation; only status,
// gateway receipt and, for gateway deposits, the settled amount change afterwards.
// (sender_id, type, idempotency_key) is unique; rows without a key are unconstrained.
type Transaction struct {
	ID                 uint64          `gorm:"primaryKey" json:"-"`
	TransactionID      string          `gorm:"size:40;uniqueIndex;not null" json:"transaction_id"`
	SenderID           uint64          `gorm:"index;uniqueIndex:idx_txn_idempotency,priority:1;not null" json:"sender_id"`
	ReceiverID         uint64          `gorm:"index;not null" json:"receiver_id"`
	SenderWalletID     string          `gorm:"size:32" json:"sender_wallet_id,omitempty"`
	ReceiverWalletID   string          `gorm:"size:32" json:"receiver_wallet_id,omitempty"`
	Amount             decimal.Decimal `gorm:"type:numeric(20,2);not null" json:"amount"`
	Fee                decimal.Decimal `gorm:"type:numeric(20,2);not null;default:0" json:"fee"`
	TotalAmount        decimal.Decimal `gorm:"type:numeric(20,2);not null" json:"total_amount"`
	Currency           string          `gorm:"size:3;not null" json:"currency"`
	Type               string          `gorm:"size:32;index;uniqueIndex:idx_txn_idempotency,priority:2;not null" json:"type"`
	Status             string          `gorm:"size:16;index;not null" json:"status"`
	Gateway            string          `gorm:"size:16" json:"gateway,omitempty"`
	MerchantRequestID  *string         `gorm:"size:64;index" json:"merchant_request_id,omitempty"`
	CheckoutRequestID  *string         `gorm:"size:64;uniqueIndex" json:"checkout_request_id,omitempty"`
	MpesaReceiptNumber *string         `gorm:"size:32" json:"mpesa_receipt_number,omitempty"`
	IdempotencyKey     *string         `gorm:"size:64;uniqueIndex:idx_txn_idempotency,priority:3" json:"-"`
	Note               string          `gorm:"size:255" json:"note"`
	CreatedAt          time.Time       `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt          time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Transaction) TableName() string { return "transactions" }

func (t *Transaction) IsTerminal() bool {
	return t.Status == StatusCompleted || t.Status == StatusFailed
}

// InvolvesUser reports whether userID is sender or receiver.
func (t *Transaction) InvolvesUser(userID uint64) bool {
	return t.SenderID == userID || t.ReceiverID == userID
}
