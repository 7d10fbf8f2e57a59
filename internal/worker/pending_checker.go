// Package worker runs the background jobs of the poller process.
package worker

import (
	"context"
	"time"

	"github.com/richardliu001/mobile-wallet/internal/model"
	"github.com/richardliu001/mobile-wallet/internal/service"
	"go.uber.org/zap"
)

type PendingStore interface {
	ListStalePending(ctx context.Context, txType string, before time.Time, limit int) ([]model.Transaction, error)
}

type StatusRefresher interface {
	Refresh(ctx context.Context, t *model.Transaction) (*service.StatusResult, error)
}

// PendingChecker asks the gateway about deposits whose callback never arrived.
type PendingChecker struct {
	store      PendingStore
	refresher  StatusRefresher
	interval   time.Duration
	staleAfter time.Duration
	batchSize  int
	now        func() time.Time
	log        *zap.SugaredLogger
	stopChan   chan struct{}
}

func NewPendingChecker(store PendingStore, refresher StatusRefresher, interval, staleAfter time.Duration, batchSize int, log *zap.SugaredLogger) *PendingChecker {
	return &PendingChecker{
		store:      store,
		refresher:  refresher,
		interval:   interval,
		staleAfter: staleAfter,
		batchSize:  batchSize,
		now:        time.Now,
		log:        log,
		stopChan:   make(chan struct{}),
	}
}

// Start blocks until ctx is cancelled or Stop is called.
func (p *PendingChecker) Start(ctx context.Context) {
	p.log.Infow("pending deposit checker started", "interval", p.interval, "stale_after", p.staleAfter)
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := p.RunOnce(ctx); err != nil {
				p.log.Errorw("check pending deposits", "err", err)
			}
		case <-p.stopChan:
			p.log.Info("pending deposit checker stopped")
			return
		case <-ctx.Done():
			p.log.Info("context cancelled, stopping pending deposit checker")
			return
		}
	}
}

func (p *PendingChecker) Stop() {
	close(p.stopChan)
}

// RunOnce checks one batch and returns how many deposits reached a terminal state.
func (p *PendingChecker) RunOnce(ctx context.Context) (int, error) {
	stale, err := p.store.ListStalePending(ctx, model.TypeGatewayDeposit, p.now().Add(-p.staleAfter), p.batchSize)
	if err != nil {
		return 0, err
	}
	resolved := 0
	for i := range stale {
		if ctx.Err() != nil {
			return resolved, ctx.Err()
		}
		res, err := p.refresher.Refresh(ctx, &stale[i])
		if err != nil {
			p.log.Warnw("refresh pending deposit", "transaction_id", stale[i].TransactionID, "err", err)
			continue
		}
		if res.Transaction.IsTerminal() {
			resolved++
		}
	}
	if len(stale) > 0 {
		p.log.Infow("pending deposits checked", "checked", len(stale), "resolved", resolved)
	}
	return resolved, nil
}
