package treasury

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"strategyvault/internal/events"
	"strategyvault/internal/strategies"
	"strategyvault/internal/types"
)

const (
	maxAttempts    = 3
	retryBackoff   = 25 * time.Millisecond
	defaultTimeout = 5 * time.Second
)

type Service struct {
	store        Store
	dir          strategies.Directory
	bus          *events.Bus
	minOperating decimal.Decimal
	opTimeout    time.Duration
}

func NewService(store Store, dir strategies.Directory, bus *events.Bus, minOperating decimal.Decimal, opTimeout time.Duration) *Service {
	if opTimeout <= 0 {
		opTimeout = defaultTimeout
	}
	return &Service{store: store, dir: dir, bus: bus, minOperating: minOperating, opTimeout: opTimeout}
}

// Initialize creates the balance record for a strategy with all cumulative
// fields at zero. Idempotent: an existing record is returned unchanged and no
// transaction is appended.
func (s *Service) Initialize(ctx context.Context, strategyID, ownerID, externalAccountRef string) (*Balance, error) {
	if strategyID == "" || ownerID == "" {
		return nil, errors.New("strategy id and owner id are required")
	}
	if existing, err := s.store.GetBalance(ctx, strategyID); err == nil {
		if existing.OwnerID != ownerID {
			return nil, ErrNotFound
		}
		return existing, nil
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	owns, err := s.dir.Owns(ctx, strategyID, ownerID)
	if err != nil {
		return nil, fmt.Errorf("ownership check: %w", err)
	}
	if !owns {
		return nil, ErrOwnershipMismatch
	}

	var out *Balance
	err = s.runAtomic(ctx, func(tx Tx) error {
		cur, err := tx.BalanceForUpdate(ctx, strategyID)
		if err == nil {
			// Lost the creation race; the record is the result.
			if cur.OwnerID != ownerID {
				return ErrNotFound
			}
			out = cur
			return nil
		}
		if !errors.Is(err, ErrNotFound) {
			return err
		}
		b := newBalance(strategyID, ownerID, externalAccountRef)
		if err := tx.InsertBalance(ctx, b); err != nil {
			return err
		}
		out = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	zap.L().Info("treasury initialized",
		zap.String("strategy_id", strategyID),
		zap.String("owner_id", ownerID))
	return out, nil
}

// Deposit credits the available balance. When no balance record exists one is
// created first, so deposit doubles as an implicit initializer. A deposit
// whose correlation ref was already recorded is a no-op returning the
// original transaction.
func (s *Service) Deposit(ctx context.Context, strategyID, ownerID string, amount decimal.Decimal, correlationRef, externalAccountRef string) (*Balance, *Transaction, error) {
	if strategyID == "" || ownerID == "" {
		return nil, nil, errors.New("strategy id and owner id are required")
	}
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, nil, fmt.Errorf("%w: deposit amount must be positive, got %s", ErrInvalidAmount, amount)
	}
	if _, err := s.store.GetBalance(ctx, strategyID); errors.Is(err, ErrNotFound) {
		owns, ownErr := s.dir.Owns(ctx, strategyID, ownerID)
		if ownErr != nil {
			return nil, nil, fmt.Errorf("ownership check: %w", ownErr)
		}
		if !owns {
			return nil, nil, ErrOwnershipMismatch
		}
	} else if err != nil {
		return nil, nil, err
	}

	var (
		bal    *Balance
		rec    *Transaction
		replay bool
	)
	err := s.runAtomic(ctx, func(tx Tx) error {
		replay = false
		if correlationRef != "" {
			prior, err := tx.DepositByRef(ctx, strategyID, correlationRef)
			if err == nil {
				cur, curErr := tx.BalanceForUpdate(ctx, strategyID)
				if curErr != nil {
					return curErr
				}
				bal, rec, replay = cur, prior, true
				return nil
			}
			if !errors.Is(err, ErrNotFound) {
				return err
			}
		}
		cur, err := tx.BalanceForUpdate(ctx, strategyID)
		created := false
		switch {
		case errors.Is(err, ErrNotFound):
			cur = newBalance(strategyID, ownerID, externalAccountRef)
			created = true
		case err != nil:
			return err
		case cur.OwnerID != ownerID:
			return ErrNotFound
		}

		before := cur.Available
		cur.TotalDeposited = cur.TotalDeposited.Add(amount)
		cur.Available = cur.Available.Add(amount)
		if correlationRef != "" {
			cur.LastDepositRef = correlationRef
		}
		cur.UpdatedAt = time.Now().UTC()

		t := s.newTransaction(cur, types.KindDeposit, amount, before, types.StatusCompleted)
		t.CorrelationRef = correlationRef
		t.Description = "deposit"

		if created {
			if err := tx.InsertBalance(ctx, cur); err != nil {
				return err
			}
		} else if err := tx.UpdateBalance(ctx, cur); err != nil {
			return err
		}
		if err := tx.InsertTransaction(ctx, t); err != nil {
			return err
		}
		bal, rec = cur, t
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	if replay {
		zap.L().Info("duplicate deposit ref, returning original transaction",
			zap.String("strategy_id", strategyID),
			zap.String("correlation_ref", correlationRef),
			zap.String("transaction_id", rec.ID))
		return bal, rec, nil
	}
	s.logCommitted(rec)
	s.publish(rec)
	return bal, rec, nil
}

// Withdraw debits the available balance. Without a correlation ref the
// transaction is recorded PENDING until the external transfer settles; with
// one it is COMPLETED immediately.
func (s *Service) Withdraw(ctx context.Context, strategyID, ownerID string, amount decimal.Decimal, correlationRef string) (*Balance, *Transaction, error) {
	if strategyID == "" || ownerID == "" {
		return nil, nil, errors.New("strategy id and owner id are required")
	}
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, nil, fmt.Errorf("%w: withdraw amount must be positive, got %s", ErrInvalidAmount, amount)
	}

	var (
		bal *Balance
		rec *Transaction
	)
	err := s.runAtomic(ctx, func(tx Tx) error {
		cur, err := tx.BalanceForUpdate(ctx, strategyID)
		if err != nil {
			return err
		}
		if cur.OwnerID != ownerID {
			return ErrNotFound
		}
		if cur.Available.LessThan(amount) {
			return fmt.Errorf("%w: available %s, requested %s", ErrInsufficientFunds, cur.Available, amount)
		}

		before := cur.Available
		cur.TotalWithdrawn = cur.TotalWithdrawn.Add(amount)
		cur.Available = cur.Available.Sub(amount)
		status := types.StatusPending
		if correlationRef != "" {
			status = types.StatusCompleted
			cur.LastWithdrawRef = correlationRef
		}
		cur.UpdatedAt = time.Now().UTC()

		t := s.newTransaction(cur, types.KindWithdraw, amount.Neg(), before, status)
		t.CorrelationRef = correlationRef
		t.Description = "withdrawal"

		if err := tx.UpdateBalance(ctx, cur); err != nil {
			return err
		}
		if err := tx.InsertTransaction(ctx, t); err != nil {
			return err
		}
		bal, rec = cur, t
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	s.logCommitted(rec)
	s.publish(rec)
	return bal, rec, nil
}

// Adjust applies a trade-lifecycle or manual mutation. The amount is a
// non-negative magnitude for every kind except ADJUSTMENT, which accepts a
// signed value; the recorded transaction always carries the signed effect on
// the available balance.
func (s *Service) Adjust(ctx context.Context, strategyID, ownerID string, req AdjustmentRequest) (*Balance, *Transaction, error) {
	if strategyID == "" || ownerID == "" {
		return nil, nil, errors.New("strategy id and owner id are required")
	}
	if !req.Kind.AdjustmentKind() {
		return nil, nil, fmt.Errorf("unsupported adjustment kind %q", req.Kind)
	}
	if req.Amount.IsZero() {
		return nil, nil, fmt.Errorf("%w: adjustment amount must be non-zero", ErrInvalidAmount)
	}
	if req.Kind != types.KindAdjustment && req.Amount.IsNegative() {
		return nil, nil, fmt.Errorf("%w: %s amount must be a positive magnitude", ErrInvalidAmount, req.Kind)
	}

	var (
		bal *Balance
		rec *Transaction
	)
	err := s.runAtomic(ctx, func(tx Tx) error {
		cur, err := tx.BalanceForUpdate(ctx, strategyID)
		if err != nil {
			return err
		}
		if cur.OwnerID != ownerID {
			return ErrNotFound
		}

		before := cur.Available
		effect, err := applyAdjustment(cur, req.Kind, req.Amount)
		if err != nil {
			return err
		}
		cur.UpdatedAt = time.Now().UTC()

		t := s.newTransaction(cur, req.Kind, effect, before, types.StatusCompleted)
		t.RelatedTradeID = req.RelatedTradeID
		t.CorrelationRef = req.CorrelationRef
		t.Metadata = req.Metadata
		t.Description = req.Description
		if t.Description == "" {
			t.Description = defaultDescription(req.Kind)
		}

		if err := tx.UpdateBalance(ctx, cur); err != nil {
			return err
		}
		if err := tx.InsertTransaction(ctx, t); err != nil {
			return err
		}
		bal, rec = cur, t
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	if req.Kind == types.KindLoss && bal.Available.IsNegative() {
		zap.L().Warn("loss drove treasury into margin deficit",
			zap.String("strategy_id", strategyID),
			zap.String("available", bal.Available.String()))
	}
	s.logCommitted(rec)
	s.publish(rec)
	return bal, rec, nil
}

// applyAdjustment mutates cur in place and returns the signed effect on the
// available balance.
func applyAdjustment(cur *Balance, kind types.TransactionKind, amount decimal.Decimal) (decimal.Decimal, error) {
	switch kind {
	case types.KindTradeOpen:
		if cur.Available.LessThan(amount) {
			return decimal.Zero, fmt.Errorf("%w: available %s, lock requested %s", ErrInsufficientFunds, cur.Available, amount)
		}
		cur.Available = cur.Available.Sub(amount)
		cur.Locked = cur.Locked.Add(amount)
		return amount.Neg(), nil
	case types.KindTradeClose:
		if cur.Locked.LessThan(amount) {
			return decimal.Zero, fmt.Errorf("%w: locked %s, unlock requested %s", ErrInvalidAmount, cur.Locked, amount)
		}
		cur.Locked = cur.Locked.Sub(amount)
		cur.Available = cur.Available.Add(amount)
		return amount, nil
	case types.KindProfit:
		cur.TotalProfits = cur.TotalProfits.Add(amount)
		cur.Available = cur.Available.Add(amount)
		cur.NetProfitLoss = cur.TotalProfits.Sub(cur.TotalLosses)
		return amount, nil
	case types.KindLoss:
		// A loss may exceed the available reserve; the resulting margin
		// deficit is recorded rather than rejected.
		cur.TotalLosses = cur.TotalLosses.Add(amount)
		cur.Available = cur.Available.Sub(amount)
		cur.NetProfitLoss = cur.TotalProfits.Sub(cur.TotalLosses)
		return amount.Neg(), nil
	case types.KindRefund:
		cur.Available = cur.Available.Add(amount)
		return amount, nil
	case types.KindAdjustment:
		next := cur.Available.Add(amount)
		if next.IsNegative() {
			return decimal.Zero, fmt.Errorf("%w: adjustment of %s would leave %s", ErrNegativeBalance, amount, next)
		}
		cur.Available = next
		return amount, nil
	}
	return decimal.Zero, fmt.Errorf("unsupported adjustment kind %q", kind)
}

// ConfirmWithdraw marks a pending withdrawal as settled off-system. The
// amount and balance snapshots of the original transaction stay untouched.
func (s *Service) ConfirmWithdraw(ctx context.Context, strategyID, ownerID, transactionID, correlationRef string) (*Balance, *Transaction, error) {
	if strategyID == "" || ownerID == "" || transactionID == "" {
		return nil, nil, errors.New("strategy id, owner id and transaction id are required")
	}
	if correlationRef == "" {
		return nil, nil, errors.New("correlation ref is required to confirm a withdrawal")
	}

	var (
		bal *Balance
		rec *Transaction
	)
	err := s.runAtomic(ctx, func(tx Tx) error {
		cur, err := tx.BalanceForUpdate(ctx, strategyID)
		if err != nil {
			return err
		}
		if cur.OwnerID != ownerID {
			return ErrNotFound
		}
		pending, err := tx.PendingWithdrawal(ctx, strategyID, transactionID)
		if err != nil {
			return err
		}
		if err := tx.SettleTransaction(ctx, transactionID, types.StatusCompleted, correlationRef); err != nil {
			return err
		}
		cur.LastWithdrawRef = correlationRef
		cur.UpdatedAt = time.Now().UTC()
		if err := tx.UpdateBalance(ctx, cur); err != nil {
			return err
		}
		pending.Status = types.StatusCompleted
		pending.CorrelationRef = correlationRef
		bal, rec = cur, pending
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	s.logCommitted(rec)
	s.publish(rec)
	return bal, rec, nil
}

// CancelWithdraw reverses a pending withdrawal: the original transaction is
// marked REVERSED and a REFUND transaction restoring the funds is appended in
// the same unit of work.
func (s *Service) CancelWithdraw(ctx context.Context, strategyID, ownerID, transactionID, reason string) (*Balance, *Transaction, error) {
	if strategyID == "" || ownerID == "" || transactionID == "" {
		return nil, nil, errors.New("strategy id, owner id and transaction id are required")
	}

	var (
		bal *Balance
		rec *Transaction
	)
	err := s.runAtomic(ctx, func(tx Tx) error {
		cur, err := tx.BalanceForUpdate(ctx, strategyID)
		if err != nil {
			return err
		}
		if cur.OwnerID != ownerID {
			return ErrNotFound
		}
		pending, err := tx.PendingWithdrawal(ctx, strategyID, transactionID)
		if err != nil {
			return err
		}
		if err := tx.SettleTransaction(ctx, transactionID, types.StatusReversed, ""); err != nil {
			return err
		}

		restored := pending.Amount.Abs()
		before := cur.Available
		cur.Available = cur.Available.Add(restored)
		cur.TotalWithdrawn = cur.TotalWithdrawn.Sub(restored)
		cur.UpdatedAt = time.Now().UTC()

		refund := s.newTransaction(cur, types.KindRefund, restored, before, types.StatusCompleted)
		refund.Description = "withdrawal cancelled"
		refund.Metadata = map[string]string{"reverses": transactionID}
		if reason != "" {
			refund.Metadata["reason"] = reason
		}

		if err := tx.UpdateBalance(ctx, cur); err != nil {
			return err
		}
		if err := tx.InsertTransaction(ctx, refund); err != nil {
			return err
		}
		bal, rec = cur, refund
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	s.logCommitted(rec)
	s.publish(rec)
	return bal, rec, nil
}

// runAtomic executes fn inside one store transaction under the bounded
// operation timeout, retrying transient aborts with backoff.
func (s *Service) runAtomic(ctx context.Context, fn func(tx Tx) error) error {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()
	var err error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		err = s.attempt(ctx, fn)
		if err == nil || !errors.Is(err, ErrTransient) {
			break
		}
		select {
		case <-time.After(retryBackoff << attempt):
		case <-ctx.Done():
			return fmt.Errorf("%w: %v", ErrTransient, ctx.Err())
		}
	}
	if err != nil && ctx.Err() != nil && !errors.Is(err, ErrTransient) {
		return fmt.Errorf("%w: %v", ErrTransient, ctx.Err())
	}
	return err
}

func (s *Service) attempt(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := s.store.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *Service) newTransaction(b *Balance, kind types.TransactionKind, amount, before decimal.Decimal, status types.TransactionStatus) *Transaction {
	return &Transaction{
		ID:            uuid.New().String(),
		OwnerID:       b.OwnerID,
		StrategyID:    b.StrategyID,
		BalanceID:     b.ID,
		Kind:          kind,
		Amount:        amount,
		BalanceBefore: before,
		BalanceAfter:  b.Available,
		Status:        status,
		CreatedAt:     time.Now().UTC(),
	}
}

func newBalance(strategyID, ownerID, externalAccountRef string) *Balance {
	now := time.Now().UTC()
	return &Balance{
		ID:                 uuid.New().String(),
		StrategyID:         strategyID,
		OwnerID:            ownerID,
		ExternalAccountRef: externalAccountRef,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
}

func defaultDescription(kind types.TransactionKind) string {
	switch kind {
	case types.KindTradeOpen:
		return "funds locked for trade"
	case types.KindTradeClose:
		return "funds released from trade"
	case types.KindProfit:
		return "realized profit"
	case types.KindLoss:
		return "realized loss"
	case types.KindRefund:
		return "refund"
	case types.KindAdjustment:
		return "manual adjustment"
	}
	return string(kind)
}

func (s *Service) logCommitted(t *Transaction) {
	if t == nil {
		return
	}
	zap.L().Info("treasury transaction committed",
		zap.String("transaction_id", t.ID),
		zap.String("strategy_id", t.StrategyID),
		zap.String("kind", string(t.Kind)),
		zap.String("amount", t.Amount.String()),
		zap.String("balance_before", t.BalanceBefore.String()),
		zap.String("balance_after", t.BalanceAfter.String()),
		zap.String("status", string(t.Status)))
}

func (s *Service) publish(t *Transaction) {
	if s.bus == nil || t == nil {
		return
	}
	s.bus.Publish(events.Event{Type: events.TypeTransaction, Data: t})
}
