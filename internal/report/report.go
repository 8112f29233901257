// Package report derives the overview cards and chart data from a list of
// transactions. Every function is pure.
package report

import (
	"slices"
	"time"

	"github.com/shopspring/decimal"

	"finease/internal/cache"
	"finease/internal/core"
	"finease/internal/listview"
)

// MonthNames label the twelve slots of ByMonth.
var MonthNames = [12]string{"Jan", "Feb", "Mar", "Apr", "May", "Jun", "Jul", "Aug", "Sep", "Oct", "Nov", "Dec"}

type Totals struct {
	Income  decimal.Decimal
	Expense decimal.Decimal
	Balance decimal.Decimal
}

type CategoryTotal struct {
	Category string
	Total    decimal.Decimal
	// Share is the percentage of all category totals, 0 to 100.
	Share float64
}

type MonthTotal struct {
	Month string
	Total decimal.Decimal
}

// Summary bundles everything the reports and overview pages show.
type Summary struct {
	Totals     Totals
	ByCategory []CategoryTotal
	ByMonth    [12]MonthTotal
	Count      int
}

func amount(t core.Transaction) decimal.Decimal {
	return decimal.NewFromFloat(t.Amount.Float64())
}

// ComputeTotals sums income and expense. Balance is income minus expense.
func ComputeTotals(txs []core.Transaction) Totals {
	var out Totals
	for _, t := range txs {
		switch t.Type {
		case core.Income:
			out.Income = out.Income.Add(amount(t))
		case core.Expense:
			out.Expense = out.Expense.Add(amount(t))
		}
	}
	out.Balance = out.Income.Sub(out.Expense)
	return out
}

// ByCategory groups every transaction, whatever its type, by category.
// Results are ordered by category name.
func ByCategory(txs []core.Transaction) []CategoryTotal {
	sums := make(map[string]decimal.Decimal)
	grand := decimal.Zero
	for _, t := range txs {
		a := amount(t)
		sums[t.Category] = sums[t.Category].Add(a)
		grand = grand.Add(a)
	}

	out := make([]CategoryTotal, 0, len(sums))
	for name, total := range sums {
		ct := CategoryTotal{Category: name, Total: total}
		if grand.IsPositive() {
			ct.Share = total.Div(grand).Mul(decimal.NewFromInt(100)).Round(1).InexactFloat64()
		}
		out = append(out, ct)
	}
	slices.SortFunc(out, func(a, b CategoryTotal) int {
		return listview.CompareText(a.Category, b.Category)
	})
	return out
}

// ByMonth sums amounts into twelve calendar-month slots regardless of year.
// Transactions with an unparseable date are skipped.
func ByMonth(txs []core.Transaction) [12]MonthTotal {
	var out [12]MonthTotal
	for i := range out {
		out[i] = MonthTotal{Month: MonthNames[i], Total: decimal.Zero}
	}
	for _, t := range txs {
		d, ok := core.ParseDate(t.Date)
		if !ok {
			continue
		}
		i := int(d.Month() - time.January)
		out[i].Total = out[i].Total.Add(amount(t))
	}
	return out
}

func Summarize(txs []core.Transaction) Summary {
	return Summary{
		Totals:     ComputeTotals(txs),
		ByCategory: ByCategory(txs),
		ByMonth:    ByMonth(txs),
		Count:      len(txs),
	}
}

// Cache keeps one Summary per user email.
type Cache struct {
	lru *cache.LRUCache[Summary]
}

func NewCache(size int, ttl time.Duration) *Cache {
	return &Cache{lru: cache.NewLRUCache[Summary](size, ttl)}
}

// Get returns the cached summary for email, computing it from load on a miss.
func (c *Cache) Get(email string, load func() ([]core.Transaction, error)) (Summary, error) {
	return c.lru.GetOrLoad(email, func() (Summary, error) {
		txs, err := load()
		if err != nil {
			return Summary{}, err
		}
		return Summarize(txs), nil
	})
}

// Invalidate drops the summary of email.
func (c *Cache) Invalidate(email string) { c.lru.Delete(email) }

// Cleaner exposes the underlying cache for background sweeping.
func (c *Cache) Cleaner() cache.Cleaner { return c.lru }

// Size returns the number of cached summaries.
func (c *Cache) Size() int { return c.lru.Size() }
