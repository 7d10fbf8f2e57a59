package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/richardliu001/mobile-wallet/internal/model"
	"github.com/richardliu001/mobile-wallet/internal/repo"
	"github.com/shopspring/decimal"
)

// Party is one side of a transaction as printed on a receipt.
type Party struct {
	UserID   uint64 `json:"user_id"`
	WalletID string `json:"wallet_id,omitempty"`
}

// Receipt is the read model handed to the document renderer.
type Receipt struct {
	Transaction *model.Transaction       `json:"transaction"`
	Sender      Party                    `json:"sender"`
	Receiver    Party                    `json:"receiver"`
	Events      []model.TransactionEvent `json:"events"`
	IssuedAt    time.Time                `json:"issued_at"`
}

// Receipt returns the receipt of a completed transaction the caller is party to.
func (s *WalletService) Receipt(ctx context.Context, userID uint64, transactionID string) (*Receipt, error) {
	t, err := s.GetTransaction(ctx, userID, transactionID)
	if err != nil {
		return nil, err
	}
	if t.Status != model.StatusCompleted {
		return nil, fmt.Errorf("%w: %s is %s", ErrNotFinalized, t.TransactionID, t.Status)
	}
	events, err := s.repo.ListEvents(ctx, t.TransactionID)
	if err != nil {
		return nil, err
	}
	return &Receipt{
		Transaction: t,
		Sender:      Party{UserID: t.SenderID, WalletID: t.SenderWalletID},
		Receiver:    Party{UserID: t.ReceiverID, WalletID: t.ReceiverWalletID},
		Events:      events,
		IssuedAt:    time.Now().UTC(),
	}, nil
}

type Statement struct {
	WalletID       string          `json:"wallet_id"`
	Currency       string          `json:"currency"`
	From           time.Time       `json:"from"`
	To             time.Time       `json:"to"`
	OpeningBalance decimal.Decimal `json:"opening_balance"`
	ClosingBalance decimal.Decimal `json:"closing_balance"`
	TotalIn        decimal.Decimal `json:"total_in"`
	TotalOut       decimal.Decimal `json:"total_out"`
	Entries        []model.Entry   `json:"entries"`
}

// Statement summarizes the caller's wallet postings in [from, to). A zero to means now.
func (s *WalletService) Statement(ctx context.Context, userID uint64, from, to time.Time) (*Statement, error) {
	if to.IsZero() {
		to = time.Now()
	}
	if !from.Before(to) {
		return nil, fmt.Errorf("%w: statement range is empty", ErrInvalidRequest)
	}
	w, err := s.walletOf(ctx, nil, userID)
	if err != nil {
		return nil, err
	}

	st := &Statement{
		WalletID:       w.WalletID,
		Currency:       w.Currency,
		From:           from,
		To:             to,
		OpeningBalance: decimal.Zero,
		TotalIn:        decimal.Zero,
		TotalOut:       decimal.Zero,
	}
	last, err := s.repo.LastEntryBefore(ctx, w.ID, from)
	switch {
	case err == nil:
		st.OpeningBalance = last.BalanceAfter
	case !errors.Is(err, repo.ErrNotFound):
		return nil, err
	}

	st.Entries, err = s.repo.ListEntries(ctx, w.ID, from, to)
	if err != nil {
		return nil, err
	}
	st.ClosingBalance = st.OpeningBalance
	for _, e := range st.Entries {
		if e.Direction == model.EntryCredit {
			st.TotalIn = st.TotalIn.Add(e.Amount)
		} else {
			st.TotalOut = st.TotalOut.Add(e.Amount)
		}
		st.ClosingBalance = e.BalanceAfter
	}
	return st, nil
}
