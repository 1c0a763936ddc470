package treasury

import (
	"time"

	"github.com/shopspring/decimal"
	"strategyvault/internal/types"
)

// Balance is the current-state snapshot of one strategy's treasury. It is
// mutated exclusively through Service operations, never by direct field edit.
type Balance struct {
	ID                 string          `json:"id"`
	StrategyID         string          `json:"strategy_id"`
	OwnerID            string          `json:"owner_id"`
	TotalDeposited     decimal.Decimal `json:"total_deposited"`
	TotalWithdrawn     decimal.Decimal `json:"total_withdrawn"`
	Available          decimal.Decimal `json:"available_balance"`
	Locked             decimal.Decimal `json:"locked_balance"`
	TotalProfits       decimal.Decimal `json:"total_profits"`
	TotalLosses        decimal.Decimal `json:"total_losses"`
	NetProfitLoss      decimal.Decimal `json:"net_profit_loss"`
	ExternalAccountRef string          `json:"external_account_ref"`
	LastDepositRef     string          `json:"last_deposit_ref,omitempty"`
	LastWithdrawRef    string          `json:"last_withdraw_ref,omitempty"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

// Transaction is an immutable audit-trail entry for one balance mutation.
// Amount is the signed effect on the available balance; BalanceBefore and
// BalanceAfter snapshot the available balance around the mutation.
type Transaction struct {
	ID             string                  `json:"id"`
	OwnerID        string                  `json:"owner_id"`
	StrategyID     string                  `json:"strategy_id"`
	BalanceID      string                  `json:"balance_id"`
	Kind           types.TransactionKind   `json:"kind"`
	Amount         decimal.Decimal         `json:"amount"`
	BalanceBefore  decimal.Decimal         `json:"balance_before"`
	BalanceAfter   decimal.Decimal         `json:"balance_after"`
	CorrelationRef string                  `json:"correlation_ref,omitempty"`
	RelatedTradeID string                  `json:"related_trade_id,omitempty"`
	Description    string                  `json:"description"`
	Status         types.TransactionStatus `json:"status"`
	Metadata       map[string]string       `json:"metadata,omitempty"`
	CreatedAt      time.Time               `json:"created_at"`
}

// AdjustmentRequest carries the parameters of a balance adjustment issued by
// the trading pipeline or an operator.
type AdjustmentRequest struct {
	Amount         decimal.Decimal
	Kind           types.TransactionKind
	Description    string
	RelatedTradeID string
	CorrelationRef string
	Metadata       map[string]string
}

// TransactionFilter selects transactions for history queries. Zero values
// mean "no constraint"; Limit is clamped by the service.
type TransactionFilter struct {
	StrategyID string
	OwnerID    string
	Kind       types.TransactionKind
	Status     types.TransactionStatus
	Limit      int
	Offset     int
}

// HistoryPage is one page of transaction history, newest first.
type HistoryPage struct {
	Records []Transaction `json:"records"`
	Total   int64         `json:"total_matching"`
}

// Summary aggregates completed transactions by kind. Withdrawal and loss
// totals are reported as positive magnitudes even though stored signed.
type Summary struct {
	TotalDeposits    decimal.Decimal `json:"total_deposits"`
	TotalWithdrawals decimal.Decimal `json:"total_withdrawals"`
	TotalProfits     decimal.Decimal `json:"total_profits"`
	TotalLosses      decimal.Decimal `json:"total_losses"`
	TransactionCount int64           `json:"transaction_count"`
}

// Health is the derived operational status of a strategy's treasury.
type Health struct {
	Status      types.HealthStatus `json:"status"`
	Available   decimal.Decimal    `json:"available_balance"`
	Locked      decimal.Decimal    `json:"locked_balance"`
	Utilization decimal.Decimal    `json:"lock_utilization"`
}

// ReconcileReport compares the signed sum of all recorded transactions with
// the balance snapshot. Drift is available minus the transaction sum; a
// consistent ledger has zero drift.
type ReconcileReport struct {
	StrategyID     string          `json:"strategy_id"`
	TransactionSum decimal.Decimal `json:"transaction_sum"`
	Available      decimal.Decimal `json:"available_balance"`
	Drift          decimal.Decimal `json:"drift"`
	Consistent     bool            `json:"consistent"`
}
