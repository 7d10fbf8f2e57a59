package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Wallet statuses. Only active wallets may send.
const (
	WalletActive = "active"
	WalletFrozen = "frozen"
)

type Wallet struct {
	ID        uint64          `gorm:"primaryKey;column:id" json:"-"`
	WalletID  string          `gorm:"size:32;uniqueIndex;not null" json:"wallet_id"`
	UserID    uint64          `gorm:"uniqueIndex;not null" json:"user_id"`
	Balance   decimal.Decimal `gorm:"type:numeric(20,2);not null;default:0" json:"balance"`
	Currency  string          `gorm:"size:3;not null" json:"currency"`
	Status    string          `gorm:"size:16;not null;default:active" json:"status"`
	Version   uint64          `gorm:"not null;default:0" json:"-"`
	CreatedAt time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Wallet) TableName() string { return "wallets" }

func (w *Wallet) IsActive() bool { return w.Status == WalletActive }
