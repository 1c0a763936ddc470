package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"strategyvault/internal/treasury"
	"strategyvault/internal/types"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "store.db"))
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func testBalance(strategyID string) *treasury.Balance {
	now := time.Now().UTC()
	return &treasury.Balance{
		ID:         uuid.New().String(),
		StrategyID: strategyID,
		OwnerID:    "owner-1",
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func testTransaction(b *treasury.Balance, kind types.TransactionKind, amount string) *treasury.Transaction {
	return &treasury.Transaction{
		ID:            uuid.New().String(),
		OwnerID:       b.OwnerID,
		StrategyID:    b.StrategyID,
		BalanceID:     b.ID,
		Kind:          kind,
		Amount:        decimal.RequireFromString(amount),
		BalanceBefore: decimal.Zero,
		BalanceAfter:  decimal.RequireFromString(amount),
		Status:        types.StatusCompleted,
		CreatedAt:     time.Now().UTC(),
	}
}

func TestBalanceRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	b := testBalance("strat-1")
	b.Available = decimal.RequireFromString("123.456789")
	b.ExternalAccountRef = "acct-9"

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.InsertBalance(ctx, b))
	require.NoError(t, tx.Commit(ctx))

	got, err := s.GetBalance(ctx, "strat-1")
	require.NoError(t, err)
	assert.Equal(t, b.ID, got.ID)
	assert.True(t, got.Available.Equal(decimal.RequireFromString("123.456789")))
	assert.Equal(t, "acct-9", got.ExternalAccountRef)
}

func TestGetBalanceNotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetBalance(context.Background(), "missing")
	assert.ErrorIs(t, err, treasury.ErrNotFound)
}

func TestRollbackDiscardsWrites(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	b := testBalance("strat-1")
	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.InsertBalance(ctx, b))
	require.NoError(t, tx.InsertTransaction(ctx, testTransaction(b, types.KindDeposit, "100")))
	require.NoError(t, tx.Rollback(ctx))

	_, err = s.GetBalance(ctx, "strat-1")
	assert.ErrorIs(t, err, treasury.ErrNotFound)
	_, total, err := s.Transactions(ctx, treasury.TransactionFilter{StrategyID: "strat-1", Limit: 10})
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestDuplicateDepositRefHitsIndex(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	b := testBalance("strat-1")
	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.InsertBalance(ctx, b))
	first := testTransaction(b, types.KindDeposit, "100")
	first.CorrelationRef = "dep-1"
	require.NoError(t, tx.InsertTransaction(ctx, first))
	require.NoError(t, tx.Commit(ctx))

	tx, err = s.Begin(ctx)
	require.NoError(t, err)
	defer tx.Rollback(ctx)
	dup := testTransaction(b, types.KindDeposit, "100")
	dup.CorrelationRef = "dep-1"
	err = tx.InsertTransaction(ctx, dup)
	assert.ErrorIs(t, err, treasury.ErrDuplicateReference)
}

func TestEmptyRefsDoNotCollide(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	b := testBalance("strat-1")
	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.InsertBalance(ctx, b))
	require.NoError(t, tx.InsertTransaction(ctx, testTransaction(b, types.KindDeposit, "10")))
	require.NoError(t, tx.InsertTransaction(ctx, testTransaction(b, types.KindDeposit, "20")))
	require.NoError(t, tx.Commit(ctx))

	_, total, err := s.Transactions(ctx, treasury.TransactionFilter{StrategyID: "strat-1", Limit: 10})
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
}

func TestUpdateBalanceMissingRow(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	defer tx.Rollback(ctx)
	err = tx.UpdateBalance(ctx, testBalance("strat-1"))
	assert.ErrorIs(t, err, treasury.ErrNotFound)
}

func TestMetadataRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	b := testBalance("strat-1")
	rec := testTransaction(b, types.KindRefund, "40")
	rec.Metadata = map[string]string{"reverses": "tx-1", "reason": "user aborted"}

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.InsertBalance(ctx, b))
	require.NoError(t, tx.InsertTransaction(ctx, rec))
	require.NoError(t, tx.Commit(ctx))

	records, _, err := s.Transactions(ctx, treasury.TransactionFilter{StrategyID: "strat-1", Limit: 10})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, rec.Metadata, records[0].Metadata)
}

func TestSettleTransaction(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	b := testBalance("strat-1")
	pending := testTransaction(b, types.KindWithdraw, "-40")
	pending.Status = types.StatusPending

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.InsertBalance(ctx, b))
	require.NoError(t, tx.InsertTransaction(ctx, pending))
	require.NoError(t, tx.Commit(ctx))

	tx, err = s.Begin(ctx)
	require.NoError(t, err)
	got, err := tx.PendingWithdrawal(ctx, "strat-1", pending.ID)
	require.NoError(t, err)
	assert.Equal(t, pending.ID, got.ID)
	require.NoError(t, tx.SettleTransaction(ctx, pending.ID, types.StatusCompleted, "bank-tx-7"))
	require.NoError(t, tx.Commit(ctx))

	records, _, err := s.Transactions(ctx, treasury.TransactionFilter{StrategyID: "strat-1", Limit: 10})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, types.StatusCompleted, records[0].Status)
	assert.Equal(t, "bank-tx-7", records[0].CorrelationRef)

	tx, err = s.Begin(ctx)
	require.NoError(t, err)
	defer tx.Rollback(ctx)
	_, err = tx.PendingWithdrawal(ctx, "strat-1", pending.ID)
	assert.ErrorIs(t, err, treasury.ErrNotFound)
}
