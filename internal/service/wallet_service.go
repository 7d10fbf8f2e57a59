package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/richardliu001/mobile-wallet/internal/config"
	"github.com/richardliu001/mobile-wallet/internal/metrics"
	"github.com/richardliu001/mobile-wallet/internal/model"
	"github.com/richardliu001/mobile-wallet/internal/money"
	"github.com/richardliu001/mobile-wallet/internal/notify"
	"github.com/richardliu001/mobile-wallet/internal/repo"
	"github.com/richardliu001/mobile-wallet/pkg/idgen"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Admin adjustment directions.
const (
	AdjustAdd    = "add"
	AdjustDeduct = "deduct"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// WalletService is the ledger engine. Every balance change runs in one database
// transaction together with its ledger row, wallet postings, audit event and outbox rows.
type WalletService struct {
	repo repo.RepositoryInterface
	ids  *idgen.Snowflake
	cfg  config.LedgerConfig
	log  *zap.SugaredLogger
}

// NewWalletService returns WalletService.
func NewWalletService(r repo.RepositoryInterface, ids *idgen.Snowflake, cfg config.LedgerConfig, logger *zap.SugaredLogger) *WalletService {
	return &WalletService{repo: r, ids: ids, cfg: cfg, log: logger}
}

// OpenWallet creates the caller's wallet with a zero balance. Opening twice returns
// the existing wallet.
func (s *WalletService) OpenWallet(ctx context.Context, userID uint64) (*model.Wallet, error) {
	if userID == 0 {
		return nil, fmt.Errorf("%w: missing user id", ErrInvalidRequest)
	}
	w, err := s.repo.GetWalletByUser(ctx, nil, userID)
	if err == nil {
		return w, nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return nil, err
	}
	w = &model.Wallet{
		WalletID: idgen.WalletID(),
		UserID:   userID,
		Balance:  decimal.Zero,
		Currency: s.cfg.Currency,
		Status:   model.WalletActive,
	}
	if err := s.repo.CreateWallet(ctx, nil, w); err != nil {
		// lost the race on the user_id unique index
		if existing, gErr := s.repo.GetWalletByUser(ctx, nil, userID); gErr == nil {
			return existing, nil
		}
		return nil, err
	}
	s.log.Infow("wallet opened", "user_id", userID, "wallet_id", w.WalletID)
	return w, nil
}

// TransferRequest moves Amount from the sender's wallet to DestinationWalletID.
type TransferRequest struct {
	SenderUserID        uint64
	DestinationWalletID string
	Amount              decimal.Decimal
	Note                string
	IdempotencyKey      string
}

type TransferResult struct {
	Transaction   *model.Transaction
	SenderBalance decimal.Decimal
	// Replayed is set when the idempotency key matched an earlier transfer.
	Replayed bool
}

// Transfer debits amount+fee from the sender and credits amount to the receiver.
func (s *WalletService) Transfer(ctx context.Context, req TransferRequest) (res *TransferResult, err error) {
	defer func() { metrics.LedgerOperations.WithLabelValues("transfer", resultLabel(err)).Inc() }()

	if err := checkAmount(req.Amount, s.cfg.MaxAmount); err != nil {
		return nil, err
	}
	var sender, receiver *model.Wallet
	err = s.repo.DB(ctx).Transaction(func(tx *gorm.DB) error {
		exists, prev, err := s.repo.TxExists(ctx, tx, req.SenderUserID, req.IdempotencyKey, model.TypeTransfer)
		if err != nil {
			return err
		}
		if exists {
			w, err := s.walletOf(ctx, tx, req.SenderUserID)
			if err != nil {
				return err
			}
			res = &TransferResult{Transaction: prev, SenderBalance: w.Balance, Replayed: true}
			return nil
		}

		from, err := s.walletOf(ctx, tx, req.SenderUserID)
		if err != nil {
			return err
		}
		to, err := s.repo.GetWalletByWalletID(ctx, tx, req.DestinationWalletID)
		if err != nil {
			return walletErr(err)
		}
		if from.ID == to.ID {
			return ErrSelfTransfer
		}

		// lock wallets in deterministic order
		firstID, secondID := from.ID, to.ID
		if secondID < firstID {
			firstID, secondID = secondID, firstID
		}
		w1, err := s.repo.GetWalletForUpdate(ctx, tx, firstID)
		if err != nil {
			return walletErr(err)
		}
		w2, err := s.repo.GetWalletForUpdate(ctx, tx, secondID)
		if err != nil {
			return walletErr(err)
		}
		sender, receiver = w1, w2
		if firstID != from.ID {
			sender, receiver = w2, w1
		}
		// a retry with the same key may have committed while we waited for the lock
		if exists, prev, err := s.repo.TxExists(ctx, tx, req.SenderUserID, req.IdempotencyKey, model.TypeTransfer); err != nil {
			return err
		} else if exists {
			res = &TransferResult{Transaction: prev, SenderBalance: sender.Balance, Replayed: true}
			return nil
		}
		if !sender.IsActive() {
			return ErrWalletInactive
		}

		fee := money.Fee(req.Amount, s.cfg.FeeRate)
		total := req.Amount.Add(fee)
		if sender.Balance.LessThan(total) {
			return ErrInsufficientFunds
		}

		t := &model.Transaction{
			TransactionID:    s.ids.TransactionID(idgen.PrefixTransfer),
			SenderID:         sender.UserID,
			ReceiverID:       receiver.UserID,
			SenderWalletID:   sender.WalletID,
			ReceiverWalletID: receiver.WalletID,
			Amount:           req.Amount,
			Fee:              fee,
			TotalAmount:      total,
			Currency:         sender.Currency,
			Type:             model.TypeTransfer,
			Status:           model.StatusCompleted,
			IdempotencyKey:   optional(req.IdempotencyKey),
			Note:             req.Note,
		}
		if err := s.repo.CreateTransaction(ctx, tx, t); err != nil {
			return keyTaken(err, req.IdempotencyKey)
		}
		if err := s.post(ctx, tx, sender, model.EntryDebit, total, t.TransactionID); err != nil {
			return err
		}
		if err := s.post(ctx, tx, receiver, model.EntryCredit, req.Amount, t.TransactionID); err != nil {
			return err
		}
		if err := s.audit(ctx, tx, t, model.EventCreated, "", t.Status, t.Note, &req.SenderUserID); err != nil {
			return err
		}
		events := []notify.Event{notify.TransferSent(t), notify.TransferReceived(t)}
		events = append(events, s.lowBalance(sender)...)
		if err := s.emit(ctx, tx, events...); err != nil {
			return err
		}
		res = &TransferResult{Transaction: t, SenderBalance: sender.Balance}
		return nil
	})
	if errors.Is(err, errKeyTaken) {
		return s.replayTransfer(ctx, req)
	}
	if err != nil {
		return nil, err
	}
	if !res.Replayed {
		s.invalidateBalance(ctx, sender.UserID)
		s.invalidateBalance(ctx, receiver.UserID)
		s.log.Infow("transfer completed", "transaction_id", res.Transaction.TransactionID,
			"amount", res.Transaction.Amount, "fee", res.Transaction.Fee)
	}
	return res, nil
}

// replayTransfer answers a retry whose key was claimed by a concurrent commit. It runs
// after the losing transaction rolled back.
func (s *WalletService) replayTransfer(ctx context.Context, req TransferRequest) (*TransferResult, error) {
	exists, prev, err := s.repo.TxExists(ctx, nil, req.SenderUserID, req.IdempotencyKey, model.TypeTransfer)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("idempotency key %q conflicted but no transfer holds it", req.IdempotencyKey)
	}
	w, err := s.walletOf(ctx, nil, req.SenderUserID)
	if err != nil {
		return nil, err
	}
	return &TransferResult{Transaction: prev, SenderBalance: w.Balance, Replayed: true}, nil
}

// CreditRequest describes a deposit credit. With TransactionID set it completes that
// pending gateway deposit; without it a new completed add_funds row is written.
type CreditRequest struct {
	UserID         uint64
	Amount         decimal.Decimal
	TransactionID  string
	Receipt        string
	Note           string
	IdempotencyKey string
}

type CreditResult struct {
	Transaction *model.Transaction
	Balance     decimal.Decimal
	Replayed    bool
}

// CreditDeposit is the single credit entry point for direct and gateway deposits.
// Crediting a transaction that is already completed or failed returns ErrAlreadyTerminal
// and changes nothing.
func (s *WalletService) CreditDeposit(ctx context.Context, req CreditRequest) (res *CreditResult, err error) {
	defer func() { metrics.LedgerOperations.WithLabelValues("deposit_credit", resultLabel(err)).Inc() }()

	if err := checkAmount(req.Amount, decimal.Zero); err != nil {
		return nil, err
	}
	err = s.repo.DB(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		res, err = s.creditDeposit(ctx, tx, req)
		return err
	})
	if errors.Is(err, errKeyTaken) {
		exists, prev, lerr := s.repo.TxExists(ctx, nil, req.UserID, req.IdempotencyKey, model.TypeAddFunds)
		if lerr != nil || !exists {
			return nil, fmt.Errorf("replay add funds %q: %w", req.IdempotencyKey, err)
		}
		w, lerr := s.walletOf(ctx, nil, req.UserID)
		if lerr != nil {
			return nil, lerr
		}
		return &CreditResult{Transaction: prev, Balance: w.Balance, Replayed: true}, nil
	}
	if err != nil {
		return nil, err
	}
	if !res.Replayed {
		s.invalidateBalance(ctx, res.Transaction.ReceiverID)
	}
	return res, nil
}

// creditDeposit runs inside the caller's transaction.
func (s *WalletService) creditDeposit(ctx context.Context, tx *gorm.DB, req CreditRequest) (*CreditResult, error) {
	if req.TransactionID == "" {
		return s.addFunds(ctx, tx, req)
	}

	t, err := s.repo.GetTransactionForUpdate(ctx, tx, req.TransactionID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrTransactionNotFound
		}
		return nil, err
	}
	if req.UserID != 0 && req.UserID != t.ReceiverID {
		return nil, ErrForbidden
	}
	if t.IsTerminal() {
		return nil, fmt.Errorf("%w: %s is %s", ErrAlreadyTerminal, t.TransactionID, t.Status)
	}
	w, err := s.lockWalletOf(ctx, tx, t.ReceiverID)
	if err != nil {
		return nil, err
	}

	extra := map[string]interface{}{"amount": req.Amount, "total_amount": req.Amount}
	if req.Receipt != "" {
		extra["mpesa_receipt_number"] = req.Receipt
	}
	if err := s.repo.TransitionStatus(ctx, tx, t.TransactionID, model.StatusPending, model.StatusCompleted, extra); err != nil {
		if errors.Is(err, repo.ErrStatusConflict) {
			return nil, ErrAlreadyTerminal
		}
		return nil, err
	}
	requested := t.Amount
	t.Status, t.Amount, t.TotalAmount = model.StatusCompleted, req.Amount, req.Amount
	if req.Receipt != "" {
		t.MpesaReceiptNumber = optional(req.Receipt)
	}

	if err := s.post(ctx, tx, w, model.EntryCredit, req.Amount, t.TransactionID); err != nil {
		return nil, err
	}
	detail := "credited " + req.Amount.StringFixed(2)
	if !requested.Equal(req.Amount) {
		detail += " (requested " + requested.StringFixed(2) + ")"
	}
	if req.Receipt != "" {
		detail += " receipt " + req.Receipt
	}
	if err := s.audit(ctx, tx, t, model.EventStatusChanged, model.StatusPending, model.StatusCompleted, detail, nil); err != nil {
		return nil, err
	}
	if err := s.emit(ctx, tx, notify.DepositCompleted(t)); err != nil {
		return nil, err
	}
	return &CreditResult{Transaction: t, Balance: w.Balance}, nil
}

func (s *WalletService) addFunds(ctx context.Context, tx *gorm.DB, req CreditRequest) (*CreditResult, error) {
	exists, prev, err := s.repo.TxExists(ctx, tx, req.UserID, req.IdempotencyKey, model.TypeAddFunds)
	if err != nil {
		return nil, err
	}
	if exists {
		w, err := s.walletOf(ctx, tx, req.UserID)
		if err != nil {
			return nil, err
		}
		return &CreditResult{Transaction: prev, Balance: w.Balance, Replayed: true}, nil
	}

	w, err := s.lockWalletOf(ctx, tx, req.UserID)
	if err != nil {
		return nil, err
	}
	if exists, prev, err := s.repo.TxExists(ctx, tx, req.UserID, req.IdempotencyKey, model.TypeAddFunds); err != nil {
		return nil, err
	} else if exists {
		return &CreditResult{Transaction: prev, Balance: w.Balance, Replayed: true}, nil
	}
	t := &model.Transaction{
		TransactionID:    s.ids.TransactionID(idgen.PrefixAddFunds),
		SenderID:         w.UserID,
		ReceiverID:       w.UserID,
		SenderWalletID:   w.WalletID,
		ReceiverWalletID: w.WalletID,
		Amount:           req.Amount,
		Fee:              decimal.Zero,
		TotalAmount:      req.Amount,
		Currency:         w.Currency,
		Type:             model.TypeAddFunds,
		Status:           model.StatusCompleted,
		IdempotencyKey:   optional(req.IdempotencyKey),
		Note:             req.Note,
	}
	if err := s.repo.CreateTransaction(ctx, tx, t); err != nil {
		return nil, keyTaken(err, req.IdempotencyKey)
	}
	if err := s.post(ctx, tx, w, model.EntryCredit, req.Amount, t.TransactionID); err != nil {
		return nil, err
	}
	if err := s.audit(ctx, tx, t, model.EventCreated, "", t.Status, t.Note, &req.UserID); err != nil {
		return nil, err
	}
	if err := s.emit(ctx, tx, notify.DepositCompleted(t)); err != nil {
		return nil, err
	}
	return &CreditResult{Transaction: t, Balance: w.Balance}, nil
}

// AddFunds credits the caller's wallet directly, bounded by the configured maximum.
func (s *WalletService) AddFunds(ctx context.Context, userID uint64, amount decimal.Decimal, note, idemKey string) (*CreditResult, error) {
	if err := checkAmount(amount, s.cfg.MaxAmount); err != nil {
		return nil, err
	}
	return s.CreditDeposit(ctx, CreditRequest{UserID: userID, Amount: amount, Note: note, IdempotencyKey: idemKey})
}

type AdjustRequest struct {
	WalletID  string
	Direction string
	Amount    decimal.Decimal
	Note      string
	AdminID   uint64
}

type AdjustResult struct {
	Transaction *model.Transaction
	Balance     decimal.Decimal
}

// AdminAdjust adds to or deducts from any wallet. The acting admin is recorded as the
// counterparty of the admin_adjustment row.
func (s *WalletService) AdminAdjust(ctx context.Context, req AdjustRequest) (res *AdjustResult, err error) {
	defer func() { metrics.LedgerOperations.WithLabelValues("admin_adjust", resultLabel(err)).Inc() }()

	if req.Direction != AdjustAdd && req.Direction != AdjustDeduct {
		return nil, fmt.Errorf("%w: direction must be %q or %q", ErrInvalidRequest, AdjustAdd, AdjustDeduct)
	}
	if err := checkAmount(req.Amount, decimal.Zero); err != nil {
		return nil, err
	}
	var owner *model.Wallet
	err = s.repo.DB(ctx).Transaction(func(tx *gorm.DB) error {
		found, err := s.repo.GetWalletByWalletID(ctx, tx, req.WalletID)
		if err != nil {
			return walletErr(err)
		}
		owner, err = s.repo.GetWalletForUpdate(ctx, tx, found.ID)
		if err != nil {
			return walletErr(err)
		}

		t := &model.Transaction{
			TransactionID: s.ids.TransactionID(idgen.PrefixAdmin),
			Amount:        req.Amount,
			Fee:           decimal.Zero,
			TotalAmount:   req.Amount,
			Currency:      owner.Currency,
			Type:          model.TypeAdminAdjustment,
			Status:        model.StatusCompleted,
			Note:          req.Note,
		}
		direction := model.EntryCredit
		if req.Direction == AdjustDeduct {
			if owner.Balance.LessThan(req.Amount) {
				return ErrInsufficientFunds
			}
			direction = model.EntryDebit
			t.SenderID, t.SenderWalletID, t.ReceiverID = owner.UserID, owner.WalletID, req.AdminID
		} else {
			t.SenderID, t.ReceiverID, t.ReceiverWalletID = req.AdminID, owner.UserID, owner.WalletID
		}

		if err := s.repo.CreateTransaction(ctx, tx, t); err != nil {
			return err
		}
		if err := s.post(ctx, tx, owner, direction, req.Amount, t.TransactionID); err != nil {
			return err
		}
		if err := s.audit(ctx, tx, t, model.EventCreated, "", t.Status, req.Direction+": "+req.Note, &req.AdminID); err != nil {
			return err
		}
		events := []notify.Event{notify.AdminAdjusted(owner.UserID, t, req.Direction)}
		if req.Direction == AdjustDeduct {
			events = append(events, s.lowBalance(owner)...)
		}
		if err := s.emit(ctx, tx, events...); err != nil {
			return err
		}
		res = &AdjustResult{Transaction: t, Balance: owner.Balance}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.invalidateBalance(ctx, owner.UserID)
	s.log.Infow("admin adjustment", "admin_id", req.AdminID, "wallet_id", req.WalletID,
		"direction", req.Direction, "amount", req.Amount, "transaction_id", res.Transaction.TransactionID)
	return res, nil
}

// SetWalletStatus freezes or reactivates a wallet.
func (s *WalletService) SetWalletStatus(ctx context.Context, walletID, status string) (*model.Wallet, error) {
	if status != model.WalletActive && status != model.WalletFrozen {
		return nil, fmt.Errorf("%w: status must be %q or %q", ErrInvalidRequest, model.WalletActive, model.WalletFrozen)
	}
	w, err := s.repo.GetWalletByWalletID(ctx, nil, walletID)
	if err != nil {
		return nil, walletErr(err)
	}
	if err := s.repo.SetWalletStatus(ctx, nil, w.ID, status); err != nil {
		return nil, walletErr(err)
	}
	w.Status = status
	s.log.Infow("wallet status changed", "wallet_id", walletID, "status", status)
	return w, nil
}

// GetWallet returns the caller's wallet.
func (s *WalletService) GetWallet(ctx context.Context, userID uint64) (*model.Wallet, error) {
	return s.walletOf(ctx, nil, userID)
}

// GetBalance returns current wallet balance, from redis when cached.
func (s *WalletService) GetBalance(ctx context.Context, userID uint64) (decimal.Decimal, error) {
	bal, err := s.repo.GetCachedBalance(ctx, userID)
	if err == nil {
		return bal, nil
	}
	w, err := s.walletOf(ctx, nil, userID)
	if err != nil {
		return decimal.Zero, err
	}
	s.cacheBalance(ctx, userID, w.Balance)
	return w.Balance, nil
}

// History lists the caller's transactions newest first. filter is all, sent or received.
func (s *WalletService) History(ctx context.Context, userID uint64, filter string, limit, offset int) ([]model.Transaction, error) {
	f := repo.HistoryFilter(filter)
	switch f {
	case "":
		f = repo.HistoryAll
	case repo.HistoryAll, repo.HistorySent, repo.HistoryReceived:
	default:
		return nil, fmt.Errorf("%w: unknown history filter %q", ErrInvalidRequest, filter)
	}
	q := repo.HistoryQuery{UserID: userID, Filter: f}
	q.Limit, q.Offset = page(limit, offset)
	if s.cfg.HideAdminAdjustments {
		q.ExcludeTypes = []string{model.TypeAdminAdjustment}
	}
	return s.repo.ListUserTransactions(ctx, q)
}

// GetTransaction returns one transaction if userID is a party to it.
func (s *WalletService) GetTransaction(ctx context.Context, userID uint64, transactionID string) (*model.Transaction, error) {
	t, err := s.repo.GetTransaction(ctx, nil, transactionID)
	if err != nil {
		return nil, txErr(err)
	}
	if !t.InvolvesUser(userID) {
		return nil, ErrForbidden
	}
	return t, nil
}

// ListTransactions is the admin listing; status may be empty.
func (s *WalletService) ListTransactions(ctx context.Context, status string, limit, offset int) ([]model.Transaction, error) {
	switch status {
	case "", model.StatusPending, model.StatusCompleted, model.StatusFailed:
	default:
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidRequest, status)
	}
	limit, offset = page(limit, offset)
	return s.repo.ListTransactions(ctx, status, limit, offset)
}

// post applies one balance change to a locked wallet and records the posting.
func (s *WalletService) post(ctx context.Context, tx *gorm.DB, w *model.Wallet, direction string, amount decimal.Decimal, transactionID string) error {
	before := w.Balance
	after := before.Add(amount)
	if direction == model.EntryDebit {
		after = before.Sub(amount)
	}
	if after.IsNegative() {
		return ErrInsufficientFunds
	}
	if err := s.repo.UpdateWallet(ctx, tx, w.ID, after, w.Version); err != nil {
		return err
	}
	w.Balance = after
	w.Version++
	return s.repo.CreateEntry(ctx, tx, &model.Entry{
		WalletID:      w.ID,
		TransactionID: transactionID,
		Direction:     direction,
		Amount:        amount,
		BalanceBefore: before,
		BalanceAfter:  after,
	})
}

func (s *WalletService) audit(ctx context.Context, tx *gorm.DB, t *model.Transaction, kind, from, to, detail string, actor *uint64) error {
	return s.repo.AppendEvent(ctx, tx, &model.TransactionEvent{
		TransactionID: t.TransactionID,
		Kind:          kind,
		FromStatus:    from,
		ToStatus:      to,
		Detail:        detail,
		ActorID:       actor,
	})
}

// emit writes notification events to the outbox inside tx.
func (s *WalletService) emit(ctx context.Context, tx *gorm.DB, events ...notify.Event) error {
	for _, e := range events {
		row, err := e.ToOutbox()
		if err != nil {
			return err
		}
		if err := s.repo.CreateOutboxEvent(ctx, tx, row); err != nil {
			return err
		}
	}
	return nil
}

func (s *WalletService) lowBalance(w *model.Wallet) []notify.Event {
	if !s.cfg.LowBalanceThreshold.IsPositive() || w.Balance.GreaterThan(s.cfg.LowBalanceThreshold) {
		return nil
	}
	return []notify.Event{notify.LowBalance(w.UserID, w.Balance, s.cfg.LowBalanceThreshold, w.Currency)}
}

// cacheBalance fills the cache on a read miss.
func (s *WalletService) cacheBalance(ctx context.Context, userID uint64, bal decimal.Decimal) {
	if err := s.repo.CacheBalance(ctx, userID, bal); err != nil && !errors.Is(err, repo.ErrCacheDisabled) {
		s.log.Warnw("cache balance", "user_id", userID, "err", err)
	}
}

// invalidateBalance drops the cached balance after a committed mutation; the next
// GetBalance repopulates it from the database.
func (s *WalletService) invalidateBalance(ctx context.Context, userID uint64) {
	if err := s.repo.InvalidateBalance(ctx, userID); err != nil && !errors.Is(err, repo.ErrCacheDisabled) {
		s.log.Warnw("invalidate balance", "user_id", userID, "err", err)
	}
}

// keyTaken turns a unique violation on an idempotency-keyed insert into errKeyTaken.
func keyTaken(err error, idemKey string) error {
	if idemKey != "" && errors.Is(err, repo.ErrDuplicate) {
		return errKeyTaken
	}
	return err
}

func (s *WalletService) walletOf(ctx context.Context, tx *gorm.DB, userID uint64) (*model.Wallet, error) {
	w, err := s.repo.GetWalletByUser(ctx, tx, userID)
	if err != nil {
		return nil, walletErr(err)
	}
	return w, nil
}

func (s *WalletService) lockWalletOf(ctx context.Context, tx *gorm.DB, userID uint64) (*model.Wallet, error) {
	w, err := s.walletOf(ctx, tx, userID)
	if err != nil {
		return nil, err
	}
	locked, err := s.repo.GetWalletForUpdate(ctx, tx, w.ID)
	if err != nil {
		return nil, walletErr(err)
	}
	return locked, nil
}

func checkAmount(amount, max decimal.Decimal) error {
	if err := money.Validate(amount, max); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidAmount, err)
	}
	return nil
}

func walletErr(err error) error {
	if errors.Is(err, repo.ErrNotFound) {
		return ErrWalletNotFound
	}
	return err
}

func txErr(err error) error {
	if errors.Is(err, repo.ErrNotFound) {
		return ErrTransactionNotFound
	}
	return err
}

func page(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, ErrInvalidAmount), errors.Is(err, ErrInvalidRequest):
		return "invalid"
	case errors.Is(err, ErrAlreadyTerminal):
		return "already_terminal"
	case errors.Is(err, ErrWalletNotFound), errors.Is(err, ErrWalletInactive), errors.Is(err, ErrSelfTransfer):
		return "rejected"
	default:
		return "error"
	}
}
