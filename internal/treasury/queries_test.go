package treasury_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"strategyvault/internal/treasury"
	"strategyvault/internal/types"
)

func seedActivity(t *testing.T, svc *treasury.Service) {
	t.Helper()
	ctx := context.Background()
	_, _, err := svc.Deposit(ctx, testStrategy, testOwner, dec("500"), "dep-1", "")
	require.NoError(t, err)
	adjust(t, svc, types.KindTradeOpen, "100")
	adjust(t, svc, types.KindProfit, "40")
	adjust(t, svc, types.KindLoss, "15")
	adjust(t, svc, types.KindTradeClose, "100")
	_, _, err = svc.Withdraw(ctx, testStrategy, testOwner, dec("50"), "wd-1")
	require.NoError(t, err)
	_, _, err = svc.Withdraw(ctx, testStrategy, testOwner, dec("25"), "")
	require.NoError(t, err)
}

func TestTransactionHistoryFiltersAndPaginates(t *testing.T) {
	svc, _, _ := newFixture(t)
	seedActivity(t, svc)
	ctx := context.Background()

	page, err := svc.TransactionHistory(ctx, treasury.TransactionFilter{StrategyID: testStrategy})
	require.NoError(t, err)
	assert.EqualValues(t, 7, page.Total)
	assert.Len(t, page.Records, 7)

	page, err = svc.TransactionHistory(ctx, treasury.TransactionFilter{StrategyID: testStrategy, Limit: 3})
	require.NoError(t, err)
	assert.EqualValues(t, 7, page.Total)
	assert.Len(t, page.Records, 3)

	page, err = svc.TransactionHistory(ctx, treasury.TransactionFilter{StrategyID: testStrategy, Limit: 3, Offset: 6})
	require.NoError(t, err)
	assert.Len(t, page.Records, 1)

	page, err = svc.TransactionHistory(ctx, treasury.TransactionFilter{
		StrategyID: testStrategy,
		Kind:       types.KindWithdraw,
	})
	require.NoError(t, err)
	assert.EqualValues(t, 2, page.Total)

	page, err = svc.TransactionHistory(ctx, treasury.TransactionFilter{
		StrategyID: testStrategy,
		Kind:       types.KindWithdraw,
		Status:     types.StatusPending,
	})
	require.NoError(t, err)
	require.Len(t, page.Records, 1)
	assert.True(t, page.Records[0].Amount.Equal(dec("-25")))

	_, err = svc.TransactionHistory(ctx, treasury.TransactionFilter{
		StrategyID: testStrategy,
		Kind:       "SPLIT",
	})
	assert.Error(t, err)
}

func TestTransactionSummaryUsesMagnitudes(t *testing.T) {
	svc, _, _ := newFixture(t)
	seedActivity(t, svc)

	sum, err := svc.TransactionSummary(context.Background(), testStrategy, testOwner)
	require.NoError(t, err)
	assert.True(t, sum.TotalDeposits.Equal(dec("500")))
	// The pending withdrawal is excluded until it settles.
	assert.True(t, sum.TotalWithdrawals.Equal(dec("50")))
	assert.True(t, sum.TotalProfits.Equal(dec("40")))
	assert.True(t, sum.TotalLosses.Equal(dec("15")))
	assert.EqualValues(t, 6, sum.TransactionCount)
}

func TestOwnerTreasuriesOrderedByAvailable(t *testing.T) {
	svc, dir, _ := newFixture(t)
	ctx := context.Background()
	dir.Add("strat-2", testOwner)

	_, _, err := svc.Deposit(ctx, testStrategy, testOwner, dec("10"), "", "")
	require.NoError(t, err)
	_, _, err = svc.Deposit(ctx, "strat-2", testOwner, dec("90"), "", "")
	require.NoError(t, err)

	balances, err := svc.OwnerTreasuries(ctx, testOwner)
	require.NoError(t, err)
	require.Len(t, balances, 2)
	assert.Equal(t, "strat-2", balances[0].StrategyID)
	assert.Equal(t, testStrategy, balances[1].StrategyID)
}

func TestValidateSufficientBalance(t *testing.T) {
	svc, _, _ := newFixture(t)
	ctx := context.Background()

	ok, err := svc.ValidateSufficientBalance(ctx, "unknown", dec("1"))
	require.NoError(t, err)
	assert.False(t, ok)

	_, _, err = svc.Deposit(ctx, testStrategy, testOwner, dec("100"), "", "")
	require.NoError(t, err)

	ok, err = svc.ValidateSufficientBalance(ctx, testStrategy, dec("100"))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = svc.ValidateSufficientBalance(ctx, testStrategy, dec("100.01"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTreasuryHealthStates(t *testing.T) {
	svc, _, _ := newFixture(t) // minOperating = 10
	ctx := context.Background()

	_, err := svc.Initialize(ctx, testStrategy, testOwner, "")
	require.NoError(t, err)
	h, err := svc.TreasuryHealth(ctx, testStrategy)
	require.NoError(t, err)
	assert.Equal(t, types.HealthEmpty, h.Status)

	_, _, err = svc.Deposit(ctx, testStrategy, testOwner, dec("5"), "", "")
	require.NoError(t, err)
	h, err = svc.TreasuryHealth(ctx, testStrategy)
	require.NoError(t, err)
	assert.Equal(t, types.HealthCritical, h.Status)

	_, _, err = svc.Deposit(ctx, testStrategy, testOwner, dec("95"), "", "")
	require.NoError(t, err)
	h, err = svc.TreasuryHealth(ctx, testStrategy)
	require.NoError(t, err)
	assert.Equal(t, types.HealthHealthy, h.Status)

	// Lock 85 of 100: utilization 0.85, available 15 still above minimum.
	adjust(t, svc, types.KindTradeOpen, "85")
	h, err = svc.TreasuryHealth(ctx, testStrategy)
	require.NoError(t, err)
	assert.Equal(t, types.HealthWarning, h.Status)
	assert.True(t, h.Utilization.Equal(dec("0.85")))
}

func TestReconcileDetectsConsistentLedger(t *testing.T) {
	svc, _, _ := newFixture(t)
	seedActivity(t, svc)

	report, err := svc.Reconcile(context.Background(), testStrategy)
	require.NoError(t, err)
	assert.True(t, report.Consistent, "drift = %s", report.Drift)
	assert.True(t, report.Available.Equal(report.TransactionSum))

	bal, err := svc.GetBalance(context.Background(), testStrategy, testOwner)
	require.NoError(t, err)
	assert.True(t, report.Available.Equal(bal.Available))
}

func TestHistoryRequiresStrategy(t *testing.T) {
	svc, _, _ := newFixture(t)

	_, err := svc.TransactionHistory(context.Background(), treasury.TransactionFilter{})
	assert.Error(t, err)
	_, err = svc.OwnerTreasuries(context.Background(), "")
	assert.Error(t, err)
	_, err = svc.TransactionSummary(context.Background(), "", testOwner)
	assert.Error(t, err)
}

func TestHealthUtilizationZeroWhenNoFunds(t *testing.T) {
	svc, _, _ := newFixture(t)
	ctx := context.Background()

	_, err := svc.Initialize(ctx, testStrategy, testOwner, "")
	require.NoError(t, err)
	h, err := svc.TreasuryHealth(ctx, testStrategy)
	require.NoError(t, err)
	assert.True(t, h.Utilization.Equal(decimal.Zero))
}
