package repo

import (
	"context"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/richardliu001/mobile-wallet/internal/model"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	// ErrNotFound is returned when a wallet or transaction row does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrVersionConflict is returned when a wallet row changed under an optimistic update.
	ErrVersionConflict = errors.New("optimistic lock conflict")
	// ErrStatusConflict is returned when a conditional status transition matched no row.
	ErrStatusConflict = errors.New("transaction status changed concurrently")
	// ErrDuplicate is returned when an insert hits a unique index. The gorm handle must be
	// opened with TranslateError.
	ErrDuplicate = errors.New("duplicate key")
	// ErrCacheDisabled is returned by cache calls when no redis client is configured.
	ErrCacheDisabled = errors.New("balance cache disabled")
)

// HistoryFilter selects which of a user's transactions History returns.
type HistoryFilter string

const (
	HistoryAll      HistoryFilter = "all"
	HistorySent     HistoryFilter = "sent"
	HistoryReceived HistoryFilter = "received"
)

// HistoryQuery is the input of ListUserTransactions.
type HistoryQuery struct {
	UserID        uint64
	Filter        HistoryFilter
	ExcludeTypes  []string
	Limit, Offset int
}

// RepositoryInterface restricts Repo methods so services can be tested against fakes.
type RepositoryInterface interface {
	DB(ctx context.Context) *gorm.DB

	CreateWallet(ctx context.Context, tx *gorm.DB, w *model.Wallet) error
	GetWalletByUser(ctx context.Context, tx *gorm.DB, userID uint64) (*model.Wallet, error)
	GetWalletByWalletID(ctx context.Context, tx *gorm.DB, walletID string) (*model.Wallet, error)
	GetWalletForUpdate(ctx context.Context, tx *gorm.DB, id uint64) (*model.Wallet, error)
	UpdateWallet(ctx context.Context, tx *gorm.DB, id uint64, newBalance decimal.Decimal, oldVersion uint64) error
	SetWalletStatus(ctx context.Context, tx *gorm.DB, id uint64, status string) error

	CreateTransaction(ctx context.Context, tx *gorm.DB, t *model.Transaction) error
	GetTransaction(ctx context.Context, tx *gorm.DB, transactionID string) (*model.Transaction, error)
	GetTransactionForUpdate(ctx context.Context, tx *gorm.DB, transactionID string) (*model.Transaction, error)
	FindByCorrelationID(ctx context.Context, tx *gorm.DB, correlationID string) (*model.Transaction, error)
	TxExists(ctx context.Context, tx *gorm.DB, userID uint64, idemKey, txType string) (bool, *model.Transaction, error)
	TransitionStatus(ctx context.Context, tx *gorm.DB, transactionID, from, to string, extra map[string]interface{}) error
	ListUserTransactions(ctx context.Context, q HistoryQuery) ([]model.Transaction, error)
	ListTransactions(ctx context.Context, status string, limit, offset int) ([]model.Transaction, error)
	ListStalePending(ctx context.Context, txType string, before time.Time, limit int) ([]model.Transaction, error)

	CreateEntry(ctx context.Context, tx *gorm.DB, e *model.Entry) error
	ListEntries(ctx context.Context, walletID uint64, from, to time.Time) ([]model.Entry, error)
	LastEntryBefore(ctx context.Context, walletID uint64, before time.Time) (*model.Entry, error)

	AppendEvent(ctx context.Context, tx *gorm.DB, e *model.TransactionEvent) error
	ListEvents(ctx context.Context, transactionID string) ([]model.TransactionEvent, error)

	CreateOutboxEvent(ctx context.Context, tx *gorm.DB, evt *model.OutboxEvent) error
	PollOutbox(ctx context.Context, limit int) ([]model.OutboxEvent, error)
	MarkOutboxProcessed(ctx context.Context, id uint64) error
	MarkOutboxFailed(ctx context.Context, id uint64, cause error) error

	CacheBalance(ctx context.Context, userID uint64, bal decimal.Decimal) error
	GetCachedBalance(ctx context.Context, userID uint64) (decimal.Decimal, error)
	InvalidateBalance(ctx context.Context, userID uint64) error
}

// Repository implements RepositoryInterface on gorm and redis.
type Repository struct {
	db  *gorm.DB
	rdb *redis.Client
	log *zap.SugaredLogger
}

// NewRepository constructs repo. rdb may be nil, which disables the balance cache.
func NewRepository(db *gorm.DB, rdb *redis.Client, logger *zap.SugaredLogger) *Repository {
	return &Repository{db: db, rdb: rdb, log: logger}
}

// DB returns underlying *gorm.DB
func (r *Repository) DB(ctx context.Context) *gorm.DB { return r.db.WithContext(ctx) }

// conn picks the caller's transaction when given, the pool otherwise.
func (r *Repository) conn(ctx context.Context, tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx.WithContext(ctx)
	}
	return r.db.WithContext(ctx)
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
