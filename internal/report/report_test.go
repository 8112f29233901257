package report

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finease/internal/core"
)

func tx(typ core.TxType, category string, amount float64, date string) core.Transaction {
	return core.Transaction{Type: typ, Category: category, Amount: core.Amount(amount), Date: date}
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestTotalsScenario(t *testing.T) {
	got := ComputeTotals([]core.Transaction{
		tx(core.Income, "Job", 1000, "2024-01-05"),
		tx(core.Expense, "Food", 200, "2024-01-10"),
	})
	assert.True(t, got.Income.Equal(dec("1000")))
	assert.True(t, got.Expense.Equal(dec("200")))
	assert.True(t, got.Balance.Equal(dec("800")))
}

func TestTotalsAvoidFloatDrift(t *testing.T) {
	got := ComputeTotals([]core.Transaction{
		tx(core.Expense, "Food", 0.1, "2024-01-01"),
		tx(core.Expense, "Food", 0.2, "2024-01-01"),
	})
	assert.Equal(t, "0.3", got.Expense.String())
	assert.Equal(t, "-0.3", got.Balance.String())
}

func TestTotalsEmpty(t *testing.T) {
	got := ComputeTotals(nil)
	assert.True(t, got.Balance.IsZero())
}

func TestByCategory(t *testing.T) {
	got := ByCategory([]core.Transaction{
		tx(core.Expense, "Food", 30, "2024-01-01"),
		tx(core.Income, "Job", 60, "2024-01-01"),
		tx(core.Expense, "Food", 10, "2024-02-01"),
	})
	require.Len(t, got, 2)
	assert.Equal(t, "Food", got[0].Category)
	assert.True(t, got[0].Total.Equal(dec("40")))
	assert.InDelta(t, 40.0, got[0].Share, 0.001)
	assert.Equal(t, "Job", got[1].Category)
	assert.InDelta(t, 60.0, got[1].Share, 0.001)
}

func TestByMonth(t *testing.T) {
	got := ByMonth([]core.Transaction{
		tx(core.Income, "Job", 1000, "2024-01-05"),
		tx(core.Expense, "Food", 200, "2023-01-10"),
		tx(core.Expense, "Food", 5, "2024-12-31T10:00:00Z"),
		tx(core.Expense, "Food", 99, "garbage"),
	})
	assert.Equal(t, "Jan", got[0].Month)
	assert.True(t, got[0].Total.Equal(dec("1200")))
	assert.True(t, got[11].Total.Equal(dec("5")))
	for i := 1; i < 11; i++ {
		assert.True(t, got[i].Total.IsZero(), MonthNames[i])
		assert.Equal(t, MonthNames[i], got[i].Month)
	}
}

func TestSummaryCache(t *testing.T) {
	c := NewCache(10, time.Minute)
	calls := 0
	load := func() ([]core.Transaction, error) {
		calls++
		return []core.Transaction{tx(core.Income, "Job", 10, "2024-01-01")}, nil
	}

	s, err := c.Get("ann@example.com", load)
	require.NoError(t, err)
	assert.Equal(t, 1, s.Count)
	_, _ = c.Get("ann@example.com", load)
	assert.Equal(t, 1, calls)

	c.Invalidate("ann@example.com")
	_, _ = c.Get("ann@example.com", load)
	assert.Equal(t, 2, calls)

	_, err = c.Get("bob@example.com", func() ([]core.Transaction, error) { return nil, errors.New("down") })
	assert.Error(t, err)
	assert.Equal(t, 0, c.Cleaner().CleanExpired())
}
