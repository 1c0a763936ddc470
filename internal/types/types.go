package types

type TransactionKind string

type TransactionStatus string

type HealthStatus string

const (
	KindDeposit    TransactionKind = "DEPOSIT"
	KindWithdraw   TransactionKind = "WITHDRAW"
	KindTradeOpen  TransactionKind = "TRADE_OPEN"
	KindTradeClose TransactionKind = "TRADE_CLOSE"
	KindProfit     TransactionKind = "PROFIT"
	KindLoss       TransactionKind = "LOSS"
	KindRefund     TransactionKind = "REFUND"
	KindAdjustment TransactionKind = "ADJUSTMENT"
)

const (
	StatusPending   TransactionStatus = "PENDING"
	StatusCompleted TransactionStatus = "COMPLETED"
	StatusFailed    TransactionStatus = "FAILED"
	StatusReversed  TransactionStatus = "REVERSED"
)

const (
	HealthEmpty    HealthStatus = "EMPTY"
	HealthCritical HealthStatus = "CRITICAL"
	HealthWarning  HealthStatus = "WARNING"
	HealthHealthy  HealthStatus = "HEALTHY"
)

func (k TransactionKind) Valid() bool {
	switch k {
	case KindDeposit, KindWithdraw, KindTradeOpen, KindTradeClose,
		KindProfit, KindLoss, KindRefund, KindAdjustment:
		return true
	}
	return false
}

// AdjustmentKind reports whether k is accepted by the balance adjustment
// operation. Deposits and withdrawals have dedicated operations.
func (k TransactionKind) AdjustmentKind() bool {
	switch k {
	case KindTradeOpen, KindTradeClose, KindProfit, KindLoss, KindRefund, KindAdjustment:
		return true
	}
	return false
}

func (s TransactionStatus) Valid() bool {
	switch s {
	case StatusPending, StatusCompleted, StatusFailed, StatusReversed:
		return true
	}
	return false
}
