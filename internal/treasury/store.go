package treasury

import (
	"context"

	"github.com/shopspring/decimal"
	"strategyvault/internal/types"
)

// Store is the persistent ledger behind the treasury. Mutating operations run
// inside a Tx so the balance write and the transaction insert commit or roll
// back together. Read methods reflect committed state only.
//
// Implementations map their contention and timeout failures to ErrTransient
// and duplicate deposit refs to ErrDuplicateReference.
type Store interface {
	Begin(ctx context.Context) (Tx, error)

	GetBalance(ctx context.Context, strategyID string) (*Balance, error)
	OwnerBalances(ctx context.Context, ownerID string) ([]Balance, error)
	Transactions(ctx context.Context, f TransactionFilter) ([]Transaction, int64, error)
	Summary(ctx context.Context, strategyID, ownerID string) (Summary, error)
	TransactionSum(ctx context.Context, strategyID string) (decimal.Decimal, error)

	Close()
}

// Tx is one atomic unit of work against the ledger. The balance row read via
// BalanceForUpdate stays locked against concurrent writers until Commit or
// Rollback, which gives every operation a linearizable read-modify-write per
// strategy.
type Tx interface {
	// BalanceForUpdate returns ErrNotFound when no record exists.
	BalanceForUpdate(ctx context.Context, strategyID string) (*Balance, error)
	InsertBalance(ctx context.Context, b *Balance) error
	UpdateBalance(ctx context.Context, b *Balance) error

	InsertTransaction(ctx context.Context, t *Transaction) error
	// DepositByRef returns the committed deposit carrying the given
	// correlation ref, or ErrNotFound.
	DepositByRef(ctx context.Context, strategyID, correlationRef string) (*Transaction, error)
	// PendingWithdrawal returns ErrNotFound unless the transaction exists,
	// is a withdrawal and is still pending.
	PendingWithdrawal(ctx context.Context, strategyID, transactionID string) (*Transaction, error)
	SettleTransaction(ctx context.Context, transactionID string, status types.TransactionStatus, correlationRef string) error

	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}
