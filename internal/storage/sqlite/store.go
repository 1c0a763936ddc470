package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"strategyvault/internal/treasury"
	"strategyvault/internal/types"
)

// Store is the sqlite-backed ledger store. A single writer connection
// serializes units of work, which stands in for the row locking the postgres
// store gets from serializable transactions.
type Store struct {
	db *sql.DB
}

func NewStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() {
	_ = s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Begin(ctx context.Context) (treasury.Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, wrapErr(err)
	}
	return &storeTx{tx: tx}, nil
}

const balanceCols = `id, strategy_id, owner_id, total_deposited, total_withdrawn,
	available_balance, locked_balance, total_profits, total_losses, net_profit_loss,
	external_account_ref, last_deposit_ref, last_withdraw_ref, created_at, updated_at`

const txCols = `id, owner_id, strategy_id, balance_id, kind, amount, balance_before,
	balance_after, correlation_ref, related_trade_id, description, status, metadata, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBalance(row rowScanner) (*treasury.Balance, error) {
	var b treasury.Balance
	var deposited, withdrawn, available, locked, profits, losses, net string
	err := row.Scan(&b.ID, &b.StrategyID, &b.OwnerID, &deposited, &withdrawn,
		&available, &locked, &profits, &losses, &net,
		&b.ExternalAccountRef, &b.LastDepositRef, &b.LastWithdrawRef, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, err
	}
	for _, f := range []struct {
		dst *decimal.Decimal
		src string
	}{
		{&b.TotalDeposited, deposited}, {&b.TotalWithdrawn, withdrawn},
		{&b.Available, available}, {&b.Locked, locked},
		{&b.TotalProfits, profits}, {&b.TotalLosses, losses}, {&b.NetProfitLoss, net},
	} {
		if *f.dst, err = decimal.NewFromString(f.src); err != nil {
			return nil, fmt.Errorf("parse balance field %q: %w", f.src, err)
		}
	}
	return &b, nil
}

func scanTransaction(row rowScanner) (*treasury.Transaction, error) {
	var t treasury.Transaction
	var amount, before, after, metadata string
	var kind, status string
	err := row.Scan(&t.ID, &t.OwnerID, &t.StrategyID, &t.BalanceID, &kind, &amount, &before,
		&after, &t.CorrelationRef, &t.RelatedTradeID, &t.Description, &status, &metadata, &t.CreatedAt)
	if err != nil {
		return nil, err
	}
	t.Kind = types.TransactionKind(kind)
	t.Status = types.TransactionStatus(status)
	if t.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("parse amount %q: %w", amount, err)
	}
	if t.BalanceBefore, err = decimal.NewFromString(before); err != nil {
		return nil, fmt.Errorf("parse balance_before %q: %w", before, err)
	}
	if t.BalanceAfter, err = decimal.NewFromString(after); err != nil {
		return nil, fmt.Errorf("parse balance_after %q: %w", after, err)
	}
	if metadata != "" && metadata != "{}" {
		if err := json.Unmarshal([]byte(metadata), &t.Metadata); err != nil {
			return nil, fmt.Errorf("parse metadata: %w", err)
		}
	}
	return &t, nil
}

func (s *Store) GetBalance(ctx context.Context, strategyID string) (*treasury.Balance, error) {
	row := s.db.QueryRowContext(ctx, "select "+balanceCols+" from treasury_balances where strategy_id = ?", strategyID)
	b, err := scanBalance(row)
	if err == sql.ErrNoRows {
		return nil, treasury.ErrNotFound
	}
	if err != nil {
		return nil, wrapErr(err)
	}
	return b, nil
}

func (s *Store) OwnerBalances(ctx context.Context, ownerID string) ([]treasury.Balance, error) {
	rows, err := s.db.QueryContext(ctx, "select "+balanceCols+
		" from treasury_balances where owner_id = ? order by cast(available_balance as real) desc", ownerID)
	if err != nil {
		return nil, wrapErr(err)
	}
	defer rows.Close()
	var out []treasury.Balance
	for rows.Next() {
		b, err := scanBalance(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}

func (s *Store) Transactions(ctx context.Context, f treasury.TransactionFilter) ([]treasury.Transaction, int64, error) {
	where := []string{"strategy_id = ?"}
	args := []any{f.StrategyID}
	if f.OwnerID != "" {
		where = append(where, "owner_id = ?")
		args = append(args, f.OwnerID)
	}
	if f.Kind != "" {
		where = append(where, "kind = ?")
		args = append(args, string(f.Kind))
	}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(f.Status))
	}
	cond := strings.Join(where, " and ")

	var total int64
	if err := s.db.QueryRowContext(ctx, "select count(*) from treasury_transactions where "+cond, args...).Scan(&total); err != nil {
		return nil, 0, wrapErr(err)
	}

	query := "select " + txCols + " from treasury_transactions where " + cond +
		" order by created_at desc, id desc limit ? offset ?"
	rows, err := s.db.QueryContext(ctx, query, append(args, f.Limit, f.Offset)...)
	if err != nil {
		return nil, 0, wrapErr(err)
	}
	defer rows.Close()
	var out []treasury.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *t)
	}
	return out, total, rows.Err()
}

// Summary iterates completed transactions and aggregates in Go: amounts are
// stored as exact decimal strings, so SQL SUM would go through floats.
func (s *Store) Summary(ctx context.Context, strategyID, ownerID string) (treasury.Summary, error) {
	query := "select kind, amount from treasury_transactions where strategy_id = ? and status = ?"
	args := []any{strategyID, string(types.StatusCompleted)}
	if ownerID != "" {
		query += " and owner_id = ?"
		args = append(args, ownerID)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return treasury.Summary{}, wrapErr(err)
	}
	defer rows.Close()

	sum := treasury.Summary{
		TotalDeposits:    decimal.Zero,
		TotalWithdrawals: decimal.Zero,
		TotalProfits:     decimal.Zero,
		TotalLosses:      decimal.Zero,
	}
	for rows.Next() {
		var kind, amountStr string
		if err := rows.Scan(&kind, &amountStr); err != nil {
			return treasury.Summary{}, err
		}
		amount, err := decimal.NewFromString(amountStr)
		if err != nil {
			return treasury.Summary{}, fmt.Errorf("parse amount %q: %w", amountStr, err)
		}
		sum.TransactionCount++
		switch types.TransactionKind(kind) {
		case types.KindDeposit:
			sum.TotalDeposits = sum.TotalDeposits.Add(amount)
		case types.KindWithdraw:
			sum.TotalWithdrawals = sum.TotalWithdrawals.Add(amount.Abs())
		case types.KindProfit:
			sum.TotalProfits = sum.TotalProfits.Add(amount)
		case types.KindLoss:
			sum.TotalLosses = sum.TotalLosses.Add(amount.Abs())
		}
	}
	return sum, rows.Err()
}

func (s *Store) TransactionSum(ctx context.Context, strategyID string) (decimal.Decimal, error) {
	rows, err := s.db.QueryContext(ctx, "select amount from treasury_transactions where strategy_id = ?", strategyID)
	if err != nil {
		return decimal.Zero, wrapErr(err)
	}
	defer rows.Close()
	total := decimal.Zero
	for rows.Next() {
		var amountStr string
		if err := rows.Scan(&amountStr); err != nil {
			return decimal.Zero, err
		}
		amount, err := decimal.NewFromString(amountStr)
		if err != nil {
			return decimal.Zero, fmt.Errorf("parse amount %q: %w", amountStr, err)
		}
		total = total.Add(amount)
	}
	return total, rows.Err()
}

type storeTx struct {
	tx *sql.Tx
}

func (t *storeTx) BalanceForUpdate(ctx context.Context, strategyID string) (*treasury.Balance, error) {
	row := t.tx.QueryRowContext(ctx, "select "+balanceCols+" from treasury_balances where strategy_id = ?", strategyID)
	b, err := scanBalance(row)
	if err == sql.ErrNoRows {
		return nil, treasury.ErrNotFound
	}
	if err != nil {
		return nil, wrapErr(err)
	}
	return b, nil
}

func (t *storeTx) InsertBalance(ctx context.Context, b *treasury.Balance) error {
	_, err := t.tx.ExecContext(ctx, `insert into treasury_balances (`+balanceCols+`)
		values (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.StrategyID, b.OwnerID, b.TotalDeposited.String(), b.TotalWithdrawn.String(),
		b.Available.String(), b.Locked.String(), b.TotalProfits.String(), b.TotalLosses.String(),
		b.NetProfitLoss.String(), b.ExternalAccountRef, b.LastDepositRef, b.LastWithdrawRef,
		b.CreatedAt, b.UpdatedAt)
	return wrapErr(err)
}

func (t *storeTx) UpdateBalance(ctx context.Context, b *treasury.Balance) error {
	res, err := t.tx.ExecContext(ctx, `update treasury_balances set
		total_deposited = ?, total_withdrawn = ?, available_balance = ?, locked_balance = ?,
		total_profits = ?, total_losses = ?, net_profit_loss = ?,
		external_account_ref = ?, last_deposit_ref = ?, last_withdraw_ref = ?, updated_at = ?
		where id = ?`,
		b.TotalDeposited.String(), b.TotalWithdrawn.String(), b.Available.String(), b.Locked.String(),
		b.TotalProfits.String(), b.TotalLosses.String(), b.NetProfitLoss.String(),
		b.ExternalAccountRef, b.LastDepositRef, b.LastWithdrawRef, b.UpdatedAt, b.ID)
	if err != nil {
		return wrapErr(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return treasury.ErrNotFound
	}
	return nil
}

func (t *storeTx) InsertTransaction(ctx context.Context, rec *treasury.Transaction) error {
	metadata := "{}"
	if len(rec.Metadata) > 0 {
		raw, err := json.Marshal(rec.Metadata)
		if err != nil {
			return fmt.Errorf("encode metadata: %w", err)
		}
		metadata = string(raw)
	}
	_, err := t.tx.ExecContext(ctx, `insert into treasury_transactions (`+txCols+`)
		values (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.OwnerID, rec.StrategyID, rec.BalanceID, string(rec.Kind),
		rec.Amount.String(), rec.BalanceBefore.String(), rec.BalanceAfter.String(),
		rec.CorrelationRef, rec.RelatedTradeID, rec.Description, string(rec.Status),
		metadata, rec.CreatedAt)
	return wrapErr(err)
}

func (t *storeTx) DepositByRef(ctx context.Context, strategyID, correlationRef string) (*treasury.Transaction, error) {
	row := t.tx.QueryRowContext(ctx, "select "+txCols+
		" from treasury_transactions where strategy_id = ? and kind = ? and correlation_ref = ?",
		strategyID, string(types.KindDeposit), correlationRef)
	rec, err := scanTransaction(row)
	if err == sql.ErrNoRows {
		return nil, treasury.ErrNotFound
	}
	if err != nil {
		return nil, wrapErr(err)
	}
	return rec, nil
}

func (t *storeTx) PendingWithdrawal(ctx context.Context, strategyID, transactionID string) (*treasury.Transaction, error) {
	row := t.tx.QueryRowContext(ctx, "select "+txCols+
		" from treasury_transactions where id = ? and strategy_id = ? and kind = ? and status = ?",
		transactionID, strategyID, string(types.KindWithdraw), string(types.StatusPending))
	rec, err := scanTransaction(row)
	if err == sql.ErrNoRows {
		return nil, treasury.ErrNotFound
	}
	if err != nil {
		return nil, wrapErr(err)
	}
	return rec, nil
}

func (t *storeTx) SettleTransaction(ctx context.Context, transactionID string, status types.TransactionStatus, correlationRef string) error {
	var err error
	if correlationRef != "" {
		_, err = t.tx.ExecContext(ctx, "update treasury_transactions set status = ?, correlation_ref = ? where id = ?",
			string(status), correlationRef, transactionID)
	} else {
		_, err = t.tx.ExecContext(ctx, "update treasury_transactions set status = ? where id = ?",
			string(status), transactionID)
	}
	return wrapErr(err)
}

func (t *storeTx) Commit(ctx context.Context) error {
	return wrapErr(t.tx.Commit())
}

func (t *storeTx) Rollback(ctx context.Context) error {
	return t.tx.Rollback()
}

// wrapErr maps driver-level contention to the retryable taxonomy entry and
// unique-constraint hits on the deposit ref columns to the duplicate
// sentinel. go-sqlite3 reports unique violations by column list
// ("UNIQUE constraint failed: treasury_transactions.strategy_id,
// treasury_transactions.correlation_ref"), not by index name.
func wrapErr(err error) error {
	if err == nil {
		return nil
	}
	var serr sqlite3.Error
	if errors.As(err, &serr) {
		switch {
		case serr.Code == sqlite3.ErrBusy || serr.Code == sqlite3.ErrLocked:
			return fmt.Errorf("%w: %v", treasury.ErrTransient, err)
		case serr.ExtendedCode == sqlite3.ErrConstraintUnique &&
			strings.Contains(serr.Error(), "treasury_transactions.correlation_ref"):
			return fmt.Errorf("%w: %v", treasury.ErrDuplicateReference, err)
		}
	}
	msg := err.Error()
	if strings.Contains(msg, "database is locked") || strings.Contains(msg, "database table is locked") {
		return fmt.Errorf("%w: %v", treasury.ErrTransient, err)
	}
	return err
}
