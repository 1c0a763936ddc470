package postgres

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"strategyvault/internal/treasury"
)

func TestWrapErrContentionIsTransient(t *testing.T) {
	for _, code := range []string{"40001", "40P01", "55P03"} {
		err := wrapErr(&pgconn.PgError{Code: code})
		assert.ErrorIs(t, err, treasury.ErrTransient, "code %s", code)
	}
}

func TestWrapErrDepositRefUniqueIsDuplicate(t *testing.T) {
	err := wrapErr(&pgconn.PgError{Code: "23505", ConstraintName: "idx_tx_deposit_ref"})
	assert.ErrorIs(t, err, treasury.ErrDuplicateReference)
}

func TestWrapErrBalanceCreateRaceIsTransient(t *testing.T) {
	err := wrapErr(&pgconn.PgError{Code: "23505", ConstraintName: "treasury_balances_strategy_id_key"})
	assert.ErrorIs(t, err, treasury.ErrTransient)
	assert.NotErrorIs(t, err, treasury.ErrDuplicateReference)
}

func TestWrapErrOtherUniqueUnmapped(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23505", ConstraintName: "treasury_transactions_pkey"}
	err := wrapErr(pgErr)
	assert.NotErrorIs(t, err, treasury.ErrTransient)
	assert.NotErrorIs(t, err, treasury.ErrDuplicateReference)
}

func TestWrapErrDeadlineIsTransient(t *testing.T) {
	err := wrapErr(fmt.Errorf("query: %w", context.DeadlineExceeded))
	assert.ErrorIs(t, err, treasury.ErrTransient)
}

func TestWrapErrPassthrough(t *testing.T) {
	assert.NoError(t, wrapErr(nil))
	plain := errors.New("broken pipe")
	assert.Equal(t, plain, wrapErr(plain))
}
