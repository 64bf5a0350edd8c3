package payment

import (
	"testing"

	"github.com/cardmart/cardmart/engine/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputePlan(t *testing.T) {
	t.Run("Should debit exactly the total for wallet method", func(t *testing.T) {
		plan, err := ComputePlan(2500, MethodWallet, 3000)
		require.NoError(t, err)
		assert.Equal(t, core.Money(2500), plan.WalletDebit)
		assert.Equal(t, core.Money(0), plan.ProcessorCharge)
		assert.False(t, plan.RequiresProcessor())
	})
	t.Run("Should reject wallet method when balance is short", func(t *testing.T) {
		_, err := ComputePlan(2500, MethodWallet, 2499)
		assert.ErrorIs(t, err, ErrInsufficientFunds)
	})
	t.Run("Should charge the full total for processor method", func(t *testing.T) {
		plan, err := ComputePlan(2500, MethodProcessor, 10000)
		require.NoError(t, err)
		assert.Equal(t, core.Money(0), plan.WalletDebit)
		assert.Equal(t, core.Money(2500), plan.ProcessorCharge)
	})
	t.Run("Should split a 25.00 total against a 10.00 balance", func(t *testing.T) {
		plan, err := ComputePlan(2500, MethodSplit, 1000)
		require.NoError(t, err)
		assert.Equal(t, core.Money(1000), plan.WalletDebit)
		assert.Equal(t, core.Money(1500), plan.ProcessorCharge)
	})
	t.Run("Should conserve the total for every split", func(t *testing.T) {
		totals := []core.Money{1, 99, 2500, 100000}
		balances := []core.Money{0, 1, 999, 2500, 999999}
		for _, total := range totals {
			for _, balance := range balances {
				plan, err := ComputePlan(total, MethodSplit, balance)
				require.NoError(t, err)
				assert.Equal(t, total, plan.WalletDebit+plan.ProcessorCharge)
				assert.GreaterOrEqual(t, plan.WalletDebit, core.Money(0))
				assert.GreaterOrEqual(t, plan.ProcessorCharge, core.Money(0))
			}
		}
	})
	t.Run("Should skip the processor when the wallet covers a split total", func(t *testing.T) {
		plan, err := ComputePlan(2500, MethodSplit, 5000)
		require.NoError(t, err)
		assert.Equal(t, core.Money(2500), plan.WalletDebit)
		assert.False(t, plan.RequiresProcessor())
	})
	t.Run("Should treat a negative balance as empty for split", func(t *testing.T) {
		plan, err := ComputePlan(2500, MethodSplit, -100)
		require.NoError(t, err)
		assert.Equal(t, core.Money(0), plan.WalletDebit)
		assert.Equal(t, core.Money(2500), plan.ProcessorCharge)
	})
	t.Run("Should reject non-positive totals", func(t *testing.T) {
		_, err := ComputePlan(0, MethodProcessor, 0)
		assert.Error(t, err)
	})
	t.Run("Should reject unknown methods", func(t *testing.T) {
		_, err := ComputePlan(100, Method("crypto"), 0)
		assert.Error(t, err)
	})
}
