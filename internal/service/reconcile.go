package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/richardliu001/mobile-wallet/internal/gateway"
	"github.com/richardliu001/mobile-wallet/internal/lock"
	"github.com/richardliu001/mobile-wallet/internal/metrics"
	"github.com/richardliu001/mobile-wallet/internal/model"
	"github.com/richardliu001/mobile-wallet/internal/money"
	"github.com/richardliu001/mobile-wallet/internal/notify"
	"github.com/richardliu001/mobile-wallet/internal/repo"
	"github.com/richardliu001/mobile-wallet/pkg/idgen"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Reconcile triggers.
const (
	TriggerCallback = "callback"
	TriggerPoll     = "poll"
)

// What a reconcile call did.
const (
	ActionCredited     = "credited"
	ActionFailed       = "failed"
	ActionStillPending = "still_pending"
	ActionNoop         = "already_terminal"
	ActionUnmatched    = "unmatched"
)

// LiveUnknown is the live status reported when the gateway could not be asked.
const LiveUnknown = "unknown"

// CallbackTokenParam is the query parameter carrying the callback token.
const CallbackTokenParam = "token"

// Reconciler drives gateway deposits from pending to a terminal state. All credits go
// through WalletService.creditDeposit.
type Reconciler struct {
	wallets       *WalletService
	gw            gateway.Gateway
	locker        lock.Locker
	callbackURL   string
	callbackToken string
}

// NewReconciler appends callbackToken to callbackURL. Inbound callbacks that do not carry
// the token are never reconciled; with an empty token every callback is refused.
func NewReconciler(wallets *WalletService, gw gateway.Gateway, locker lock.Locker, callbackURL, callbackToken string) *Reconciler {
	return &Reconciler{
		wallets:       wallets,
		gw:            gw,
		locker:        locker,
		callbackURL:   withToken(callbackURL, callbackToken),
		callbackToken: callbackToken,
	}
}

func withToken(raw, token string) string {
	u, err := url.Parse(raw)
	if err != nil || token == "" {
		return raw
	}
	q := u.Query()
	q.Set(CallbackTokenParam, token)
	u.RawQuery = q.Encode()
	return u.String()
}

type InitiateRequest struct {
	UserID   uint64
	Amount   decimal.Decimal
	Currency string
	Phone    string
}

type InitiateResult struct {
	TransactionID   string `json:"transaction_id"`
	CorrelationID   string `json:"checkout_request_id"`
	Status          string `json:"status"`
	CustomerMessage string `json:"customer_message,omitempty"`
}

// Initiate opens a payment at the gateway and, only if that succeeds, records a pending
// deposit keyed by the gateway correlation id.
func (r *Reconciler) Initiate(ctx context.Context, req InitiateRequest) (*InitiateResult, error) {
	s := r.wallets
	if err := checkAmount(req.Amount, s.cfg.MaxAmount); err != nil {
		return nil, err
	}
	w, err := s.walletOf(ctx, nil, req.UserID)
	if err != nil {
		return nil, err
	}
	if req.Currency != "" && req.Currency != w.Currency {
		return nil, fmt.Errorf("%w: wallet holds %s, not %s", ErrInvalidRequest, w.Currency, req.Currency)
	}

	transactionID := s.ids.TransactionID(idgen.PrefixDeposit)
	start := time.Now()
	sess, err := r.gw.OpenPayment(ctx, gateway.PaymentRequest{
		Amount:            req.Amount,
		Currency:          w.Currency,
		Customer:          req.Phone,
		CallbackURL:       r.callbackURL,
		MerchantReference: transactionID,
		Description:       "Wallet deposit",
	})
	metrics.GatewayDuration.WithLabelValues(r.gw.Name(), "open_payment").Observe(time.Since(start).Seconds())
	metrics.GatewayCalls.WithLabelValues(r.gw.Name(), "open_payment", metrics.Result(err)).Inc()
	if err != nil {
		s.log.Errorw("open payment", "gateway", r.gw.Name(), "user_id", req.UserID, "err", err)
		return nil, err
	}

	t := &model.Transaction{
		TransactionID:     transactionID,
		SenderID:          w.UserID,
		ReceiverID:        w.UserID,
		SenderWalletID:    w.WalletID,
		ReceiverWalletID:  w.WalletID,
		Amount:            req.Amount,
		Fee:               decimal.Zero,
		TotalAmount:       req.Amount,
		Currency:          w.Currency,
		Type:              model.TypeGatewayDeposit,
		Status:            model.StatusPending,
		Gateway:           r.gw.Name(),
		CheckoutRequestID: optional(sess.CorrelationID),
		MerchantRequestID: optional(sess.MerchantRequestID),
		Note:              "deposit via " + r.gw.Name(),
	}
	err = s.repo.DB(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.repo.FindByCorrelationID(ctx, tx, sess.CorrelationID); err == nil {
			return ErrDuplicateCorrelationID
		} else if !errors.Is(err, repo.ErrNotFound) {
			return err
		}
		if err := s.repo.CreateTransaction(ctx, tx, t); err != nil {
			return err
		}
		return s.audit(ctx, tx, t, model.EventCreated, "", model.StatusPending, "payment opened, correlation "+sess.CorrelationID, &req.UserID)
	})
	if err != nil {
		return nil, err
	}
	s.log.Infow("deposit initiated", "transaction_id", t.TransactionID, "correlation_id", sess.CorrelationID, "amount", req.Amount)
	return &InitiateResult{
		TransactionID:   t.TransactionID,
		CorrelationID:   sess.CorrelationID,
		Status:          t.Status,
		CustomerMessage: sess.CustomerMessage,
	}, nil
}

type ReconcileResult struct {
	TransactionID string
	Status        string
	Action        string
}

// Reconcile applies a gateway outcome to the pending deposit matching correlationID.
// Calls for the same correlation id are serialized by the locker and the row lock;
// the pending->terminal transition is a conditional update, so at most one call credits.
// Unknown correlation ids and terminal rows are acknowledged without error.
func (r *Reconciler) Reconcile(ctx context.Context, trigger, correlationID string, outcome gateway.Outcome) (res *ReconcileResult, err error) {
	defer func() {
		action := "error"
		if res != nil {
			action = res.Action
		}
		metrics.Reconciliations.WithLabelValues(trigger, action).Inc()
	}()
	s := r.wallets

	release, err := r.locker.Acquire(ctx, "lock:reconcile:"+correlationID)
	if err != nil {
		return nil, fmt.Errorf("reconcile %s: %w", correlationID, err)
	}
	defer release()

	var credited *CreditResult
	res = &ReconcileResult{}
	err = s.repo.DB(ctx).Transaction(func(tx *gorm.DB) error {
		found, err := s.repo.FindByCorrelationID(ctx, tx, correlationID)
		if errors.Is(err, repo.ErrNotFound) {
			res.Action = ActionUnmatched
			return nil
		}
		if err != nil {
			return err
		}
		t, err := s.repo.GetTransactionForUpdate(ctx, tx, found.TransactionID)
		if err != nil {
			return err
		}
		res.TransactionID, res.Status = t.TransactionID, t.Status
		if t.IsTerminal() {
			res.Action = ActionNoop
			return nil
		}

		switch o := outcome.(type) {
		case gateway.Success:
			amount := money.Normalize(o.Amount)
			if !amount.IsPositive() {
				amount = t.Amount
			}
			if limit := s.cfg.MaxAmount; limit.IsPositive() && amount.GreaterThan(limit) {
				res.Action = ActionStillPending
				detail := fmt.Sprintf("%s: reported amount %s exceeds maximum %s", trigger, amount.StringFixed(2), limit.StringFixed(2))
				return s.audit(ctx, tx, t, model.EventGatewayReport, "", "", detail, nil)
			}
			credited, err = s.creditDeposit(ctx, tx, CreditRequest{TransactionID: t.TransactionID, Amount: amount, Receipt: o.Receipt})
			if errors.Is(err, ErrAlreadyTerminal) {
				res.Action = ActionNoop
				return nil
			}
			if err != nil {
				return err
			}
			res.Status, res.Action = model.StatusCompleted, ActionCredited
			return nil

		case gateway.Failure:
			err := s.repo.TransitionStatus(ctx, tx, t.TransactionID, model.StatusPending, model.StatusFailed, nil)
			if errors.Is(err, repo.ErrStatusConflict) {
				res.Action = ActionNoop
				return nil
			}
			if err != nil {
				return err
			}
			t.Status = model.StatusFailed
			detail := o.Reason
			if o.Code != "" {
				detail = o.Code + ": " + o.Reason
			}
			if err := s.audit(ctx, tx, t, model.EventStatusChanged, model.StatusPending, model.StatusFailed, detail, nil); err != nil {
				return err
			}
			if err := s.emit(ctx, tx, notify.DepositFailed(t, o.Reason)); err != nil {
				return err
			}
			res.Status, res.Action = model.StatusFailed, ActionFailed
			return nil

		case gateway.Processing:
			res.Action = ActionStillPending
			return s.audit(ctx, tx, t, model.EventGatewayReport, "", "", trigger+": "+o.Detail, nil)

		default:
			return fmt.Errorf("unsupported outcome %T", outcome)
		}
	})
	if err != nil {
		s.log.Errorw("reconcile", "trigger", trigger, "correlation_id", correlationID, "err", err)
		return nil, err
	}

	switch res.Action {
	case ActionUnmatched:
		s.log.Infow("reconcile: no transaction for correlation id", "trigger", trigger, "correlation_id", correlationID)
	case ActionNoop:
		s.log.Infow("reconcile: transaction already terminal", "trigger", trigger,
			"transaction_id", res.TransactionID, "status", res.Status, "outcome", outcome.String())
	case ActionCredited:
		s.invalidateBalance(ctx, credited.Transaction.ReceiverID)
		s.log.Infow("deposit completed", "trigger", trigger, "transaction_id", res.TransactionID,
			"amount", credited.Transaction.Amount)
	default:
		s.log.Infow("reconcile", "trigger", trigger, "transaction_id", res.TransactionID, "action", res.Action)
	}
	return res, nil
}

// HandleCallback authenticates an inbound gateway notification by its token, parses it
// and reconciles it. The HTTP layer acknowledges the gateway whatever this returns.
func (r *Reconciler) HandleCallback(ctx context.Context, token string, body []byte) (*ReconcileResult, error) {
	if r.callbackToken == "" || subtle.ConstantTimeCompare([]byte(token), []byte(r.callbackToken)) != 1 {
		r.wallets.log.Warnw("rejecting unauthenticated gateway callback", "gateway", r.gw.Name())
		return nil, ErrCallbackUnauthenticated
	}
	n, err := r.gw.ParseCallback(body)
	if err != nil {
		r.wallets.log.Warnw("rejecting gateway callback", "gateway", r.gw.Name(), "err", err)
		return nil, err
	}
	return r.Reconcile(ctx, TriggerCallback, n.CorrelationID, r.confirmAmount(ctx, n.CorrelationID, n.Outcome))
}

// confirmAmount checks a callback success whose amount differs from the requested one
// against the gateway's status query. A confirmed success credits the requested amount;
// without an answer the deposit stays pending for the poller.
func (r *Reconciler) confirmAmount(ctx context.Context, correlationID string, outcome gateway.Outcome) gateway.Outcome {
	won, ok := outcome.(gateway.Success)
	if !ok {
		return outcome
	}
	t, err := r.wallets.repo.FindByCorrelationID(ctx, nil, correlationID)
	if err != nil || t.IsTerminal() {
		// Reconcile reports unmatched and terminal rows
		return outcome
	}
	reported := money.Normalize(won.Amount)
	if !reported.IsPositive() || reported.Equal(t.Amount) {
		return outcome
	}

	detail := fmt.Sprintf("callback reported %s, requested %s", reported.StringFixed(2), t.Amount.StringFixed(2))
	r.wallets.log.Warnw("callback amount mismatch", "transaction_id", t.TransactionID, "correlation_id", correlationID,
		"reported", reported, "requested", t.Amount)
	live, err := r.query(ctx, correlationID)
	if err != nil {
		return gateway.Processing{Detail: detail + "; status query failed"}
	}
	switch o := live.(type) {
	case gateway.Success:
		return gateway.Success{Amount: t.Amount, Receipt: won.Receipt, Payer: won.Payer}
	case gateway.Processing:
		return gateway.Processing{Detail: detail + "; gateway: " + o.Detail}
	default:
		return live
	}
}

// query asks the gateway for a live status. A nil outcome counts as unavailable.
func (r *Reconciler) query(ctx context.Context, correlationID string) (gateway.Outcome, error) {
	start := time.Now()
	outcome, err := r.gw.QueryStatus(ctx, correlationID)
	if err == nil && outcome == nil {
		err = fmt.Errorf("%w: empty status answer", gateway.ErrUnavailable)
	}
	metrics.GatewayDuration.WithLabelValues(r.gw.Name(), "query_status").Observe(time.Since(start).Seconds())
	metrics.GatewayCalls.WithLabelValues(r.gw.Name(), "query_status", metrics.Result(err)).Inc()
	return outcome, err
}

type StatusResult struct {
	Transaction *model.Transaction `json:"transaction"`
	// Live is the gateway's answer when one was asked: success, failure, processing
	// or unknown when the check itself failed.
	Live string `json:"live,omitempty"`
}

// CheckStatus returns a deposit's status. A pending gateway deposit is checked live and
// a terminal answer is applied through Reconcile.
func (r *Reconciler) CheckStatus(ctx context.Context, userID uint64, transactionID string) (*StatusResult, error) {
	t, err := r.wallets.repo.GetTransaction(ctx, nil, transactionID)
	if err != nil {
		return nil, txErr(err)
	}
	if !t.InvolvesUser(userID) {
		return nil, ErrForbidden
	}
	return r.Refresh(ctx, t)
}

// Refresh runs the live check for one transaction without a party check.
func (r *Reconciler) Refresh(ctx context.Context, t *model.Transaction) (*StatusResult, error) {
	if t.IsTerminal() || t.Type != model.TypeGatewayDeposit || t.CheckoutRequestID == nil {
		return &StatusResult{Transaction: t}, nil
	}
	correlationID := *t.CheckoutRequestID

	outcome, err := r.query(ctx, correlationID)
	if err != nil {
		r.wallets.log.Warnw("status check failed", "transaction_id", t.TransactionID, "err", err)
		return &StatusResult{Transaction: t, Live: LiveUnknown}, nil
	}

	if _, err := r.Reconcile(ctx, TriggerPoll, correlationID, outcome); err != nil {
		return nil, err
	}
	fresh, err := r.wallets.repo.GetTransaction(ctx, nil, t.TransactionID)
	if err != nil {
		return nil, txErr(err)
	}
	return &StatusResult{Transaction: fresh, Live: outcome.String()}, nil
}
