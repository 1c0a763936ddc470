package treasury

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
	"strategyvault/internal/types"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

// warningUtilization is the lock-utilization ratio above which a treasury is
// reported as WARNING.
var warningUtilization = decimal.NewFromFloat(0.8)

// GetBalance returns the balance record for a strategy. A non-empty ownerID
// scopes the lookup so callers cannot read another owner's treasury.
func (s *Service) GetBalance(ctx context.Context, strategyID, ownerID string) (*Balance, error) {
	b, err := s.store.GetBalance(ctx, strategyID)
	if err != nil {
		return nil, err
	}
	if ownerID != "" && b.OwnerID != ownerID {
		return nil, ErrNotFound
	}
	return b, nil
}

// OwnerTreasuries returns every balance record for the owner, ordered by
// descending available balance.
func (s *Service) OwnerTreasuries(ctx context.Context, ownerID string) ([]Balance, error) {
	if ownerID == "" {
		return nil, errors.New("owner id is required")
	}
	return s.store.OwnerBalances(ctx, ownerID)
}

// TransactionHistory returns one page of transactions, newest first, with the
// total number of matching records.
func (s *Service) TransactionHistory(ctx context.Context, f TransactionFilter) (HistoryPage, error) {
	if f.StrategyID == "" {
		return HistoryPage{}, errors.New("strategy id is required")
	}
	if f.Kind != "" && !f.Kind.Valid() {
		return HistoryPage{}, errors.New("unknown transaction kind")
	}
	if f.Status != "" && !f.Status.Valid() {
		return HistoryPage{}, errors.New("unknown transaction status")
	}
	if f.Limit <= 0 {
		f.Limit = defaultHistoryLimit
	}
	if f.Limit > maxHistoryLimit {
		f.Limit = maxHistoryLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	records, total, err := s.store.Transactions(ctx, f)
	if err != nil {
		return HistoryPage{}, err
	}
	if records == nil {
		records = []Transaction{}
	}
	return HistoryPage{Records: records, Total: total}, nil
}

// TransactionSummary aggregates the strategy's completed transactions by kind.
func (s *Service) TransactionSummary(ctx context.Context, strategyID, ownerID string) (Summary, error) {
	if strategyID == "" {
		return Summary{}, errors.New("strategy id is required")
	}
	return s.store.Summary(ctx, strategyID, ownerID)
}

// ValidateSufficientBalance reports whether the strategy can cover the
// required amount. A missing balance record is false, not an error.
func (s *Service) ValidateSufficientBalance(ctx context.Context, strategyID string, required decimal.Decimal) (bool, error) {
	b, err := s.store.GetBalance(ctx, strategyID)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return b.Available.GreaterThanOrEqual(required), nil
}

// TreasuryHealth derives the operational status from the available balance
// and the lock utilization ratio.
func (s *Service) TreasuryHealth(ctx context.Context, strategyID string) (Health, error) {
	b, err := s.store.GetBalance(ctx, strategyID)
	if err != nil {
		return Health{}, err
	}
	h := Health{
		Available:   b.Available,
		Locked:      b.Locked,
		Utilization: decimal.Zero,
	}
	total := b.Available.Add(b.Locked)
	if total.GreaterThan(decimal.Zero) {
		h.Utilization = b.Locked.Div(total)
	}
	switch {
	case total.IsZero() && b.Available.IsZero():
		h.Status = types.HealthEmpty
	case b.Available.LessThan(s.minOperating):
		h.Status = types.HealthCritical
	case h.Utilization.GreaterThan(warningUtilization):
		h.Status = types.HealthWarning
	default:
		h.Status = types.HealthHealthy
	}
	return h, nil
}

// Reconcile sums the signed amounts of every recorded transaction for the
// strategy and compares the result with the available balance. Every
// transaction records its signed effect on the available balance, so a
// consistent ledger sums exactly to it.
func (s *Service) Reconcile(ctx context.Context, strategyID string) (ReconcileReport, error) {
	b, err := s.store.GetBalance(ctx, strategyID)
	if err != nil {
		return ReconcileReport{}, err
	}
	sum, err := s.store.TransactionSum(ctx, strategyID)
	if err != nil {
		return ReconcileReport{}, err
	}
	drift := b.Available.Sub(sum)
	return ReconcileReport{
		StrategyID:     strategyID,
		TransactionSum: sum,
		Available:      b.Available,
		Drift:          drift,
		Consistent:     drift.IsZero(),
	}, nil
}
