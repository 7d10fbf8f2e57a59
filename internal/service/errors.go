package service

import "errors"

var (
	ErrInvalidAmount          = errors.New("invalid amount")
	ErrWalletNotFound         = errors.New("wallet not found")
	ErrWalletInactive         = errors.New("wallet is not active")
	ErrInsufficientFunds      = errors.New("insufficient funds")
	ErrSelfTransfer           = errors.New("cannot transfer to own wallet")
	ErrDuplicateCorrelationID = errors.New("gateway correlation id already recorded")
	ErrTransactionNotFound    = errors.New("transaction not found")
	// ErrAlreadyTerminal marks a no-op on a completed or failed transaction. Reconcile
	// swallows it; it only reaches callers of CreditDeposit.
	ErrAlreadyTerminal = errors.New("transaction already terminal")
	ErrForbidden       = errors.New("not a party to this transaction")
	ErrNotFinalized    = errors.New("transaction is not completed")
	ErrInvalidRequest  = errors.New("invalid request")
)

// ErrCallbackUnauthenticated is returned for a gateway callback without the configured token.
var ErrCallbackUnauthenticated = errors.New("gateway callback not authenticated")

// errKeyTaken signals that a concurrent request committed the same idempotency key first.
var errKeyTaken = errors.New("idempotency key taken")
