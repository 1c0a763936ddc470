package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"strategyvault/internal/treasury"
	"strategyvault/internal/types"
)

// Store is the postgres-backed ledger store. Units of work run as
// serializable transactions, so concurrent operations against the same
// balance row either serialize or abort with a retryable failure.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// InitSchema creates the ledger tables and indexes if they do not exist.
func (s *Store) InitSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, schema)
	return err
}

func (s *Store) Close() {
	s.pool.Close()
}

func (s *Store) Begin(ctx context.Context) (treasury.Tx, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
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

func scanBalance(row pgx.Row) (*treasury.Balance, error) {
	var b treasury.Balance
	err := row.Scan(&b.ID, &b.StrategyID, &b.OwnerID, &b.TotalDeposited, &b.TotalWithdrawn,
		&b.Available, &b.Locked, &b.TotalProfits, &b.TotalLosses, &b.NetProfitLoss,
		&b.ExternalAccountRef, &b.LastDepositRef, &b.LastWithdrawRef, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func scanTransaction(row pgx.Row) (*treasury.Transaction, error) {
	var t treasury.Transaction
	var kind, status string
	var metadata []byte
	err := row.Scan(&t.ID, &t.OwnerID, &t.StrategyID, &t.BalanceID, &kind, &t.Amount, &t.BalanceBefore,
		&t.BalanceAfter, &t.CorrelationRef, &t.RelatedTradeID, &t.Description, &status, &metadata, &t.CreatedAt)
	if err != nil {
		return nil, err
	}
	t.Kind = types.TransactionKind(kind)
	t.Status = types.TransactionStatus(status)
	if len(metadata) > 0 && string(metadata) != "{}" {
		if err := json.Unmarshal(metadata, &t.Metadata); err != nil {
			return nil, fmt.Errorf("parse metadata: %w", err)
		}
	}
	return &t, nil
}

func (s *Store) GetBalance(ctx context.Context, strategyID string) (*treasury.Balance, error) {
	row := s.pool.QueryRow(ctx, "select "+balanceCols+" from treasury_balances where strategy_id = $1", strategyID)
	b, err := scanBalance(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, treasury.ErrNotFound
	}
	if err != nil {
		return nil, wrapErr(err)
	}
	return b, nil
}

func (s *Store) OwnerBalances(ctx context.Context, ownerID string) ([]treasury.Balance, error) {
	rows, err := s.pool.Query(ctx, "select "+balanceCols+
		" from treasury_balances where owner_id = $1 order by available_balance desc", ownerID)
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
	where := []string{"strategy_id = $1"}
	args := []any{f.StrategyID}
	if f.OwnerID != "" {
		args = append(args, f.OwnerID)
		where = append(where, "owner_id = $"+strconv.Itoa(len(args)))
	}
	if f.Kind != "" {
		args = append(args, string(f.Kind))
		where = append(where, "kind = $"+strconv.Itoa(len(args)))
	}
	if f.Status != "" {
		args = append(args, string(f.Status))
		where = append(where, "status = $"+strconv.Itoa(len(args)))
	}
	cond := strings.Join(where, " and ")

	var total int64
	if err := s.pool.QueryRow(ctx, "select count(*) from treasury_transactions where "+cond, args...).Scan(&total); err != nil {
		return nil, 0, wrapErr(err)
	}

	args = append(args, f.Limit, f.Offset)
	query := fmt.Sprintf("select %s from treasury_transactions where %s order by created_at desc, id desc limit $%d offset $%d",
		txCols, cond, len(args)-1, len(args))
	rows, err := s.pool.Query(ctx, query, args...)
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

func (s *Store) Summary(ctx context.Context, strategyID, ownerID string) (treasury.Summary, error) {
	query := `select
		coalesce(sum(amount) filter (where kind = 'DEPOSIT'), 0),
		coalesce(sum(abs(amount)) filter (where kind = 'WITHDRAW'), 0),
		coalesce(sum(amount) filter (where kind = 'PROFIT'), 0),
		coalesce(sum(abs(amount)) filter (where kind = 'LOSS'), 0),
		count(*)
		from treasury_transactions
		where strategy_id = $1 and status = $2`
	args := []any{strategyID, string(types.StatusCompleted)}
	if ownerID != "" {
		query += " and owner_id = $3"
		args = append(args, ownerID)
	}
	var sum treasury.Summary
	err := s.pool.QueryRow(ctx, query, args...).Scan(
		&sum.TotalDeposits, &sum.TotalWithdrawals, &sum.TotalProfits, &sum.TotalLosses, &sum.TransactionCount)
	if err != nil {
		return treasury.Summary{}, wrapErr(err)
	}
	return sum, nil
}

func (s *Store) TransactionSum(ctx context.Context, strategyID string) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := s.pool.QueryRow(ctx,
		"select coalesce(sum(amount), 0) from treasury_transactions where strategy_id = $1", strategyID).Scan(&total)
	if err != nil {
		return decimal.Zero, wrapErr(err)
	}
	return total, nil
}

type storeTx struct {
	tx pgx.Tx
}

func (t *storeTx) BalanceForUpdate(ctx context.Context, strategyID string) (*treasury.Balance, error) {
	row := t.tx.QueryRow(ctx, "select "+balanceCols+" from treasury_balances where strategy_id = $1 for update", strategyID)
	b, err := scanBalance(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, treasury.ErrNotFound
	}
	if err != nil {
		return nil, wrapErr(err)
	}
	return b, nil
}

func (t *storeTx) InsertBalance(ctx context.Context, b *treasury.Balance) error {
	_, err := t.tx.Exec(ctx, `insert into treasury_balances (`+balanceCols+`)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`,
		b.ID, b.StrategyID, b.OwnerID, b.TotalDeposited, b.TotalWithdrawn,
		b.Available, b.Locked, b.TotalProfits, b.TotalLosses, b.NetProfitLoss,
		b.ExternalAccountRef, b.LastDepositRef, b.LastWithdrawRef, b.CreatedAt, b.UpdatedAt)
	return wrapErr(err)
}

func (t *storeTx) UpdateBalance(ctx context.Context, b *treasury.Balance) error {
	tag, err := t.tx.Exec(ctx, `update treasury_balances set
		total_deposited = $1, total_withdrawn = $2, available_balance = $3, locked_balance = $4,
		total_profits = $5, total_losses = $6, net_profit_loss = $7,
		external_account_ref = $8, last_deposit_ref = $9, last_withdraw_ref = $10, updated_at = $11
		where id = $12`,
		b.TotalDeposited, b.TotalWithdrawn, b.Available, b.Locked,
		b.TotalProfits, b.TotalLosses, b.NetProfitLoss,
		b.ExternalAccountRef, b.LastDepositRef, b.LastWithdrawRef, b.UpdatedAt, b.ID)
	if err != nil {
		return wrapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return treasury.ErrNotFound
	}
	return nil
}

func (t *storeTx) InsertTransaction(ctx context.Context, rec *treasury.Transaction) error {
	metadata := []byte("{}")
	if len(rec.Metadata) > 0 {
		raw, err := json.Marshal(rec.Metadata)
		if err != nil {
			return fmt.Errorf("encode metadata: %w", err)
		}
		metadata = raw
	}
	_, err := t.tx.Exec(ctx, `insert into treasury_transactions (`+txCols+`)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
		rec.ID, rec.OwnerID, rec.StrategyID, rec.BalanceID, string(rec.Kind),
		rec.Amount, rec.BalanceBefore, rec.BalanceAfter,
		rec.CorrelationRef, rec.RelatedTradeID, rec.Description, string(rec.Status),
		metadata, rec.CreatedAt)
	return wrapErr(err)
}

func (t *storeTx) DepositByRef(ctx context.Context, strategyID, correlationRef string) (*treasury.Transaction, error) {
	row := t.tx.QueryRow(ctx, "select "+txCols+
		" from treasury_transactions where strategy_id = $1 and kind = $2 and correlation_ref = $3",
		strategyID, string(types.KindDeposit), correlationRef)
	rec, err := scanTransaction(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, treasury.ErrNotFound
	}
	if err != nil {
		return nil, wrapErr(err)
	}
	return rec, nil
}

func (t *storeTx) PendingWithdrawal(ctx context.Context, strategyID, transactionID string) (*treasury.Transaction, error) {
	row := t.tx.QueryRow(ctx, "select "+txCols+
		" from treasury_transactions where id = $1 and strategy_id = $2 and kind = $3 and status = $4",
		transactionID, strategyID, string(types.KindWithdraw), string(types.StatusPending))
	rec, err := scanTransaction(row)
	if errors.Is(err, pgx.ErrNoRows) {
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
		_, err = t.tx.Exec(ctx, "update treasury_transactions set status = $1, correlation_ref = $2 where id = $3",
			string(status), correlationRef, transactionID)
	} else {
		_, err = t.tx.Exec(ctx, "update treasury_transactions set status = $1 where id = $2",
			string(status), transactionID)
	}
	return wrapErr(err)
}

func (t *storeTx) Commit(ctx context.Context) error {
	return wrapErr(t.tx.Commit(ctx))
}

func (t *storeTx) Rollback(ctx context.Context) error {
	return t.tx.Rollback(ctx)
}

// wrapErr maps serialization aborts, deadlocks and lock timeouts to the
// retryable taxonomy entry, and hits on the deposit ref index to the
// duplicate sentinel.
func wrapErr(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01", "55P03":
			return fmt.Errorf("%w: %v", treasury.ErrTransient, err)
		case "23505":
			if strings.Contains(pgErr.ConstraintName, "idx_tx_deposit_ref") {
				return fmt.Errorf("%w: %v", treasury.ErrDuplicateReference, err)
			}
			// Two first-touch operations can race to insert the same
			// balance row; the loser retries and finds it committed.
			if strings.Contains(pgErr.ConstraintName, "treasury_balances_strategy_id") {
				return fmt.Errorf("%w: %v", treasury.ErrTransient, err)
			}
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", treasury.ErrTransient, err)
	}
	return err
}
