// Package notify defines the notification events the ledger emits and relays them
// from the outbox table to Kafka.
package notify

import (
	"encoding/json"
	"fmt"

	"github.com/richardliu001/mobile-wallet/internal/model"
	"github.com/shopspring/decimal"
)

// Event kinds.
const (
	KindTransfer        = "transfer"
	KindDeposit         = "deposit"
	KindAdminAdjustment = "admin_adjustment"
	KindLowBalance      = "low_balance"
)

// Outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Event is a fire-and-forget record for the notification consumer.
type Event struct {
	UserID        uint64          `json:"user_id"`
	Kind          string          `json:"kind"`
	Outcome       string          `json:"outcome"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	TransactionID string          `json:"transaction_id,omitempty"`
	Title         string          `json:"title"`
	Message       string          `json:"message"`
	Meta          map[string]any  `json:"meta,omitempty"`
}

// Type is the outbox event type, e.g. "transfer.success".
func (e Event) Type() string { return e.Kind + "." + e.Outcome }

// ToOutbox encodes the event as an outbox row.
func (e Event) ToOutbox() (*model.OutboxEvent, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encode %s event: %w", e.Type(), err)
	}
	aggID := e.TransactionID
	if aggID == "" {
		aggID = fmt.Sprintf("user:%d", e.UserID)
	}
	return &model.OutboxEvent{
		Aggregate:   "Transaction",
		AggregateID: aggID,
		EventType:   e.Type(),
		Payload:     string(payload),
	}, nil
}

func money(d decimal.Decimal, currency string) string {
	return currency + " " + d.StringFixed(2)
}

// TransferSent is addressed to the sender of a completed transfer.
func TransferSent(t *model.Transaction) Event {
	return Event{
		UserID: t.SenderID, Kind: KindTransfer, Outcome: OutcomeSuccess,
		Amount: t.Amount, Currency: t.Currency, TransactionID: t.TransactionID,
		Title:   "Money Sent Successfully",
		Message: fmt.Sprintf("You successfully sent %s to wallet %s", money(t.Amount, t.Currency), t.ReceiverWalletID),
		Meta: map[string]any{
			"direction": "sent",
			"fee":       t.Fee.StringFixed(2),
			"total":     t.TotalAmount.StringFixed(2),
		},
	}
}

// TransferReceived is addressed to the receiver of a completed transfer.
func TransferReceived(t *model.Transaction) Event {
	return Event{
		UserID: t.ReceiverID, Kind: KindTransfer, Outcome: OutcomeSuccess,
		Amount: t.Amount, Currency: t.Currency, TransactionID: t.TransactionID,
		Title:   "Money Received",
		Message: fmt.Sprintf("You received %s from wallet %s", money(t.Amount, t.Currency), t.SenderWalletID),
		Meta:    map[string]any{"direction": "received"},
	}
}

// DepositCompleted reports a credited deposit, direct or via gateway.
func DepositCompleted(t *model.Transaction) Event {
	return Event{
		UserID: t.ReceiverID, Kind: KindDeposit, Outcome: OutcomeSuccess,
		Amount: t.Amount, Currency: t.Currency, TransactionID: t.TransactionID,
		Title:   "Funds Added Successfully",
		Message: fmt.Sprintf("%s has been added to your wallet", money(t.Amount, t.Currency)),
		Meta:    map[string]any{"type": t.Type},
	}
}

// DepositFailed reports a gateway deposit that ended without credit.
func DepositFailed(t *model.Transaction, reason string) Event {
	return Event{
		UserID: t.ReceiverID, Kind: KindDeposit, Outcome: OutcomeFailure,
		Amount: t.Amount, Currency: t.Currency, TransactionID: t.TransactionID,
		Title:   "Deposit Failed",
		Message: fmt.Sprintf("Failed to add %s to your wallet. Please try again.", money(t.Amount, t.Currency)),
		Meta:    map[string]any{"reason": reason},
	}
}

// AdminAdjusted tells a wallet owner an administrator changed their balance.
func AdminAdjusted(ownerID uint64, t *model.Transaction, direction string) Event {
	title, verb := "Wallet Credited", "added to"
	if direction == "deduct" {
		title, verb = "Wallet Debited", "deducted from"
	}
	return Event{
		UserID: ownerID, Kind: KindAdminAdjustment, Outcome: OutcomeSuccess,
		Amount: t.Amount, Currency: t.Currency, TransactionID: t.TransactionID,
		Title:   title,
		Message: fmt.Sprintf("%s was %s your wallet by an administrator", money(t.Amount, t.Currency), verb),
		Meta:    map[string]any{"direction": direction},
	}
}

// LowBalance warns a user whose balance fell to or below the threshold.
func LowBalance(userID uint64, balance, threshold decimal.Decimal, currency string) Event {
	return Event{
		UserID: userID, Kind: KindLowBalance, Outcome: OutcomeSuccess,
		Amount: balance, Currency: currency,
		Title:   "Low Balance Alert",
		Message: fmt.Sprintf("Your wallet balance is %s. Consider adding funds.", money(balance, currency)),
		Meta:    map[string]any{"threshold": threshold.StringFixed(2)},
	}
}
