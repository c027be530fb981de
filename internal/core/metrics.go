package core

import (
	"sort"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

const (
	DefaultTrendMonths = 6
	MaxTrendMonths     = 24
	topCategoryLimit   = 5
)

// CategoryAmount represents an amount aggregated by category name.
type CategoryAmount struct {
	Name   string
	Amount Money
	// Share is the percentage of total expenses, set by ComputeDashboard.
	Share decimal.Decimal
}

// MonthBucket holds the totals of one calendar month.
type MonthBucket struct {
	Year     int
	Month    int // 1-12
	Revenue  Money
	Expenses Money
	Profit   Money
}

func (b MonthBucket) Label() string {
	return time.Month(b.Month).String()[:3] + " " + strconv.Itoa(b.Year)
}

// Delta compares the current month with the previous one.
// HasPercent is false when the previous value is zero.
type Delta struct {
	Current    Money
	Previous   Money
	Change     Money
	Percent    float64
	HasPercent bool
}

func newDelta(cur, prev Money) Delta {
	d := Delta{Current: cur, Previous: prev, Change: cur.Sub(prev)}
	if prev.Cents != 0 {
		pct := d.Change.Decimal().Div(prev.Decimal().Abs()).Mul(hundred).Round(1)
		d.Percent = pct.InexactFloat64()
		d.HasPercent = true
	}
	return d
}

// Up reports a non-negative change.
func (d Delta) Up() bool { return d.Change.Cents >= 0 }

// Dashboard is the derived view over a company's invoices and expenses.
// Revenue is recognised when an invoice is paid, at its paid date.
type Dashboard struct {
	Months        int
	Revenue       Money
	Expenses      Money
	NetProfit     Money
	Outstanding   Money
	OverdueCount  int
	OverdueAmount Money
	DraftCount    int
	Trend         []MonthBucket
	RevenueDelta  Delta
	ExpenseDelta  Delta
	ProfitDelta   Delta
	TopCategories []CategoryAmount
}

// ClampMonths bounds the trend window.
func ClampMonths(months int) int {
	if months <= 0 {
		return DefaultTrendMonths
	}
	if months > MaxTrendMonths {
		return MaxTrendMonths
	}
	return months
}

// ComputeDashboard aggregates invoices and expenses in a single pass over each slice.
// Totals cover the trend window: the last `months` calendar months ending with the month of now.
func ComputeDashboard(invoices []Invoice, expenses []Expense, now time.Time, months int) Dashboard {
	months = ClampMonths(months)
	now = now.UTC()
	today := DateOf(now)

	d := Dashboard{Months: months, Trend: make([]MonthBucket, months)}
	endKey := monthKey(now.Year(), int(now.Month()))
	startKey := endKey - months + 1
	for i := range d.Trend {
		k := startKey + i
		d.Trend[i] = MonthBucket{Year: k / 12, Month: k%12 + 1}
	}
	bucket := func(t time.Time) *MonthBucket {
		k := monthKey(t.Year(), int(t.Month()))
		if k < startKey || k > endKey {
			return nil
		}
		return &d.Trend[k-startKey]
	}

	for _, inv := range invoices {
		switch inv.Status {
		case StatusDraft:
			d.DraftCount++
		case StatusPaid:
			if inv.PaidAt.IsZero() {
				continue
			}
			if b := bucket(inv.PaidAt.UTC()); b != nil {
				b.Revenue = b.Revenue.Add(inv.AmountPaid)
			}
		case StatusSent, StatusOverdue:
			due := inv.AmountDue()
			d.Outstanding = d.Outstanding.Add(due)
			if inv.IsOverdue(today) {
				d.OverdueCount++
				d.OverdueAmount = d.OverdueAmount.Add(due)
			}
		}
	}

	byCategory := make(map[string]int64)
	for _, e := range expenses {
		b := bucket(e.Date.Time)
		if b == nil {
			continue
		}
		b.Expenses = b.Expenses.Add(e.Amount)
		cat := e.Category
		if cat == "" {
			cat = DefaultCategory
		}
		byCategory[cat] += e.Amount.Cents
	}

	for i := range d.Trend {
		b := &d.Trend[i]
		b.Profit = b.Revenue.Sub(b.Expenses)
		d.Revenue = d.Revenue.Add(b.Revenue)
		d.Expenses = d.Expenses.Add(b.Expenses)
	}
	d.NetProfit = d.Revenue.Sub(d.Expenses)

	cur := d.Trend[months-1]
	var prev MonthBucket
	if months > 1 {
		prev = d.Trend[months-2]
	}
	d.RevenueDelta = newDelta(cur.Revenue, prev.Revenue)
	d.ExpenseDelta = newDelta(cur.Expenses, prev.Expenses)
	d.ProfitDelta = newDelta(cur.Profit, prev.Profit)

	d.TopCategories = TopCategories(byCategory, topCategoryLimit)
	for i := range d.TopCategories {
		d.TopCategories[i].Share = Share(d.TopCategories[i].Amount, d.Expenses)
	}
	return d
}

// TopCategories sorts amounts descending with ties broken by name and keeps at most limit entries.
// A non-positive limit keeps all of them.
func TopCategories(byCategory map[string]int64, limit int) []CategoryAmount {
	out := make([]CategoryAmount, 0, len(byCategory))
	for name, cents := range byCategory {
		out = append(out, CategoryAmount{Name: name, Amount: Money{Cents: cents}})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Amount.Cents != out[j].Amount.Cents {
			return out[i].Amount.Cents > out[j].Amount.Cents
		}
		return out[i].Name < out[j].Name
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Share returns part as a percentage of whole, rounded to one decimal.
func Share(part, whole Money) decimal.Decimal {
	if whole.Cents == 0 {
		return decimal.Zero
	}
	return part.Decimal().Div(whole.Decimal()).Mul(hundred).Round(1)
}

func monthKey(year, month int) int {
	return year*12 + month - 1
}
