package treasury

import "errors"

var (
	// ErrNotFound means no balance record exists for the strategy/owner pair.
	ErrNotFound = errors.New("treasury: balance not found")

	// ErrOwnershipMismatch means the strategy does not belong to the caller.
	ErrOwnershipMismatch = errors.New("treasury: strategy ownership mismatch")

	// ErrInvalidAmount means the amount is non-positive, zero where a signed
	// value is required, or otherwise unusable for the requested kind.
	ErrInvalidAmount = errors.New("treasury: invalid amount")

	// ErrInsufficientFunds means the debit would drive the available balance
	// below zero.
	ErrInsufficientFunds = errors.New("treasury: insufficient funds")

	// ErrNegativeBalance means an adjustment would violate the non-negative
	// balance invariant.
	ErrNegativeBalance = errors.New("treasury: negative balance")

	// ErrDuplicateReference means a deposit with the same correlation ref was
	// already committed for the strategy.
	ErrDuplicateReference = errors.New("treasury: duplicate correlation ref")

	// ErrTransient wraps store-level contention or timeouts. Safe to retry.
	ErrTransient = errors.New("treasury: transient store failure")
)
