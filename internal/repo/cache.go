package repo

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

const balanceTTL = 5 * time.Minute

// Balances are cached per owner since every wallet has exactly one.
func balanceKey(userID uint64) string { return fmt.Sprintf("balance:%d", userID) }

// CacheBalance writes Redis.
func (r *Repository) CacheBalance(ctx context.Context, userID uint64, bal decimal.Decimal) error {
	if r.rdb == nil {
		return ErrCacheDisabled
	}
	return r.rdb.Set(ctx, balanceKey(userID), bal.StringFixed(2), balanceTTL).Err()
}

// GetCachedBalance reads Redis.
func (r *Repository) GetCachedBalance(ctx context.Context, userID uint64) (decimal.Decimal, error) {
	if r.rdb == nil {
		return decimal.Zero, ErrCacheDisabled
	}
	str, err := r.rdb.Get(ctx, balanceKey(userID)).Result()
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromString(str)
}

// InvalidateBalance drops the cached balance so the next read goes to the database.
func (r *Repository) InvalidateBalance(ctx context.Context, userID uint64) error {
	if r.rdb == nil {
		return ErrCacheDisabled
	}
	return r.rdb.Del(ctx, balanceKey(userID)).Err()
}
