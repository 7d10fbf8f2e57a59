package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Entry directions.
const (
	EntryDebit  = "debit"
	EntryCredit = "credit"
)

// Entry is the per-wallet posting of a balance change. A transfer writes two entries
// (sender debit of total, receiver credit of amount); deposits and adjustments write one.
type Entry struct {
	ID            uint64          `gorm:"primaryKey" json:"-"`
	WalletID      uint64          `gorm:"index:idx_entry_wallet_time;not null" json:"-"`
	TransactionID string          `gorm:"size:40;index;not null" json:"transaction_id"`
	Direction     string          `gorm:"size:8;not null" json:"direction"`
	Amount        decimal.Decimal `gorm:"type:numeric(20,2);not null" json:"amount"`
	BalanceBefore decimal.Decimal `gorm:"type:numeric(20,2);not null" json:"balance_before"`
	BalanceAfter  decimal.Decimal `gorm:"type:numeric(20,2);not null" json:"balance_after"`
	CreatedAt     time.Time       `gorm:"autoCreateTime;index:idx_entry_wallet_time" json:"created_at"`
}

func (Entry) TableName() string { return "wallet_entries" }
