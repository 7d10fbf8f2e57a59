// Package gateway defines the contract between the reconciliation engine and an external
// payment provider. Provider quirks stay in the adapter packages; the engine only sees
// Outcome values.
package gateway

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

var (
	// ErrUnavailable covers timeouts, connection failures and provider 5xx responses.
	// Callers may retry; the engine never does.
	ErrUnavailable = errors.New("payment gateway unavailable")
	// ErrRejected means the provider answered and declined the request.
	ErrRejected = errors.New("payment gateway rejected the request")
	// ErrInvalidCallback means an inbound notification could not be parsed or verified.
	ErrInvalidCallback = errors.New("invalid gateway callback")
)

// Outcome is the canonical result of a payment: exactly one of Success, Failure, Processing.
type Outcome interface {
	outcome()
	String() string
}

// Success carries the amount the provider settled, which is authoritative. A zero Amount
// means the provider confirmed the payment without restating it (status queries), in
// which case the requested amount stands.
type Success struct {
	Amount  decimal.Decimal
	Receipt string
	Payer   string
}

// Failure is a definitive decline or cancellation.
type Failure struct {
	Code   string
	Reason string
}

// Processing means the provider has not reached a final state yet.
type Processing struct {
	Detail string
}

func (Success) outcome()    {}
func (Failure) outcome()    {}
func (Processing) outcome() {}

func (Success) String() string    { return "success" }
func (Failure) String() string    { return "failure" }
func (Processing) String() string { return "processing" }

// PaymentRequest opens a collection from a customer.
type PaymentRequest struct {
	Amount            decimal.Decimal
	Currency          string
	Customer          string // MSISDN for mobile money
	CallbackURL       string
	MerchantReference string
	Description       string
}

// PaymentSession identifies an opened payment at the provider.
type PaymentSession struct {
	CorrelationID     string // matched against inbound callbacks
	MerchantRequestID string
	CustomerMessage   string // shown to the user while they confirm on the handset
}

// Notification is a parsed inbound callback.
type Notification struct {
	CorrelationID     string
	MerchantRequestID string
	Outcome           Outcome
}

// Gateway is implemented by each provider adapter.
type Gateway interface {
	Name() string
	OpenPayment(ctx context.Context, req PaymentRequest) (*PaymentSession, error)
	QueryStatus(ctx context.Context, correlationID string) (Outcome, error)
	ParseCallback(body []byte) (*Notification, error)
}
