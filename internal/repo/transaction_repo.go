package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/richardliu001/mobile-wallet/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CreateTransaction inserts record.
func (r *Repository) CreateTransaction(ctx context.Context, tx *gorm.DB, t *model.Transaction) error {
	err := r.conn(ctx, tx).Create(t).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("%w: transaction %s", ErrDuplicate, t.TransactionID)
	}
	return err
}

// GetTransaction reads a transaction by its external id.
func (r *Repository) GetTransaction(ctx context.Context, tx *gorm.DB, transactionID string) (*model.Transaction, error) {
	var t model.Transaction
	if err := r.conn(ctx, tx).Where("transaction_id = ?", transactionID).First(&t).Error; err != nil {
		return nil, notFound(err)
	}
	return &t, nil
}

// GetTransactionForUpdate locks a transaction row for the rest of tx.
func (r *Repository) GetTransactionForUpdate(ctx context.Context, tx *gorm.DB, transactionID string) (*model.Transaction, error) {
	var t model.Transaction
	if err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("transaction_id = ?", transactionID).First(&t).Error; err != nil {
		return nil, notFound(err)
	}
	return &t, nil
}

// FindByCorrelationID matches a gateway correlation id against checkout or merchant request ids.
func (r *Repository) FindByCorrelationID(ctx context.Context, tx *gorm.DB, correlationID string) (*model.Transaction, error) {
	var t model.Transaction
	err := r.conn(ctx, tx).
		Where("checkout_request_id = ? OR merchant_request_id = ?", correlationID, correlationID).
		Order("id").
		First(&t).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &t, nil
}

// TxExists checks duplicate by idem key.
func (r *Repository) TxExists(ctx context.Context, tx *gorm.DB, userID uint64, idemKey, txType string) (bool, *model.Transaction, error) {
	if idemKey == "" {
		return false, nil, nil
	}
	var t model.Transaction
	err := r.conn(ctx, tx).Where("sender_id = ? AND idempotency_key = ? AND type = ?", userID, idemKey, txType).First(&t).Error
	if err == nil {
		return true, &t, nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil, nil
	}
	return false, nil, err
}

// TransitionStatus moves a transaction from one status to another with a single
// conditional UPDATE. Only one caller can win a given from->to edge; the others get
// ErrStatusConflict.
func (r *Repository) TransitionStatus(ctx context.Context, tx *gorm.DB, transactionID, from, to string, extra map[string]interface{}) error {
	updates := map[string]interface{}{"status": to, "updated_at": time.Now()}
	for k, v := range extra {
		updates[k] = v
	}
	res := r.conn(ctx, tx).Model(&model.Transaction{}).
		Where("transaction_id = ? AND status = ?", transactionID, from).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrStatusConflict
	}
	return nil
}

// ListUserTransactions returns a page of a user's transactions, newest first.
func (r *Repository) ListUserTransactions(ctx context.Context, q HistoryQuery) ([]model.Transaction, error) {
	db := r.db.WithContext(ctx).Model(&model.Transaction{})
	switch q.Filter {
	case HistorySent:
		db = db.Where("sender_id = ? AND type = ?", q.UserID, model.TypeTransfer)
	case HistoryReceived:
		db = db.Where("receiver_id = ? AND sender_id <> ? AND type = ?", q.UserID, q.UserID, model.TypeTransfer)
	default:
		db = db.Where("sender_id = ? OR receiver_id = ?", q.UserID, q.UserID)
	}
	if len(q.ExcludeTypes) > 0 {
		db = db.Where("type NOT IN ?", q.ExcludeTypes)
	}
	var txs []model.Transaction
	err := db.Order("created_at desc").Order("id desc").
		Limit(q.Limit).Offset(q.Offset).
		Find(&txs).Error
	return txs, err
}

// ListTransactions is the admin listing, optionally filtered by status.
func (r *Repository) ListTransactions(ctx context.Context, status string, limit, offset int) ([]model.Transaction, error) {
	db := r.db.WithContext(ctx)
	if status != "" {
		db = db.Where("status = ?", status)
	}
	var txs []model.Transaction
	err := db.Order("created_at desc").Order("id desc").Limit(limit).Offset(offset).Find(&txs).Error
	return txs, err
}

// ListStalePending returns pending rows of txType created before the cutoff, oldest first.
func (r *Repository) ListStalePending(ctx context.Context, txType string, before time.Time, limit int) ([]model.Transaction, error) {
	var txs []model.Transaction
	err := r.db.WithContext(ctx).
		Where("status = ? AND type = ? AND created_at < ?", model.StatusPending, txType, before).
		Order("created_at").
		Limit(limit).
		Find(&txs).Error
	return txs, err
}

// CreateEntry inserts a wallet posting.
func (r *Repository) CreateEntry(ctx context.Context, tx *gorm.DB, e *model.Entry) error {
	return r.conn(ctx, tx).Create(e).Error
}

// ListEntries returns a wallet's postings in [from, to), oldest first.
func (r *Repository) ListEntries(ctx context.Context, walletID uint64, from, to time.Time) ([]model.Entry, error) {
	var es []model.Entry
	err := r.db.WithContext(ctx).
		Where("wallet_id = ? AND created_at >= ? AND created_at < ?", walletID, from, to).
		Order("created_at").Order("id").
		Find(&es).Error
	return es, err
}

// LastEntryBefore returns the newest posting strictly before the given time.
func (r *Repository) LastEntryBefore(ctx context.Context, walletID uint64, before time.Time) (*model.Entry, error) {
	var e model.Entry
	err := r.db.WithContext(ctx).
		Where("wallet_id = ? AND created_at < ?", walletID, before).
		Order("created_at desc").Order("id desc").
		First(&e).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &e, nil
}

// AppendEvent adds an audit row. There is no update or delete counterpart.
func (r *Repository) AppendEvent(ctx context.Context, tx *gorm.DB, e *model.TransactionEvent) error {
	return r.conn(ctx, tx).Create(e).Error
}

// ListEvents returns a transaction's audit trail in insertion order.
func (r *Repository) ListEvents(ctx context.Context, transactionID string) ([]model.TransactionEvent, error) {
	var evs []model.TransactionEvent
	err := r.db.WithContext(ctx).Where("transaction_id = ?", transactionID).Order("id").Find(&evs).Error
	return evs, err
}
