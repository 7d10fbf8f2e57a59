package repo

import (
	"context"
	"time"

	"github.com/richardliu001/mobile-wallet/internal/model"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CreateWallet inserts a new wallet row.
func (r *Repository) CreateWallet(ctx context.Context, tx *gorm.DB, w *model.Wallet) error {
	return r.conn(ctx, tx).Create(w).Error
}

// GetWalletByUser reads the wallet owned by userID without locking.
func (r *Repository) GetWalletByUser(ctx context.Context, tx *gorm.DB, userID uint64) (*model.Wallet, error) {
	var w model.Wallet
	if err := r.conn(ctx, tx).Where("user_id = ?", userID).First(&w).Error; err != nil {
		return nil, notFound(err)
	}
	return &w, nil
}

// GetWalletByWalletID reads a wallet by its external id without locking.
func (r *Repository) GetWalletByWalletID(ctx context.Context, tx *gorm.DB, walletID string) (*model.Wallet, error) {
	var w model.Wallet
	if err := r.conn(ctx, tx).Where("wallet_id = ?", walletID).First(&w).Error; err != nil {
		return nil, notFound(err)
	}
	return &w, nil
}

// GetWalletForUpdate locks wallet row.
func (r *Repository) GetWalletForUpdate(ctx context.Context, tx *gorm.DB, id uint64) (*model.Wallet, error) {
	var w model.Wallet
	if err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).First(&w).Error; err != nil {
		return nil, notFound(err)
	}
	return &w, nil
}

// UpdateWallet writes a new balance guarded by the row version.
func (r *Repository) UpdateWallet(ctx context.Context, tx *gorm.DB, id uint64, newBalance decimal.Decimal, oldVersion uint64) error {
	res := tx.WithContext(ctx).
		Model(&model.Wallet{}).
		Where("id = ? AND version = ?", id, oldVersion).
		Updates(map[string]interface{}{
			"balance":    newBalance,
			"version":    oldVersion + 1,
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrVersionConflict
	}
	return nil
}

// SetWalletStatus switches a wallet between active and frozen.
func (r *Repository) SetWalletStatus(ctx context.Context, tx *gorm.DB, id uint64, status string) error {
	res := r.conn(ctx, tx).Model(&model.Wallet{}).Where("id = ?", id).
		Updates(map[string]interface{}{"status": status, "updated_at": time.Now()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
