package core

import (
	"fmt"
	"sort"
	"time"
)

// ReportRow is one labelled line of a tabular report.
type ReportRow struct {
	Label  string
	Values []Money
}

// ReportResult is a rendered report: a header, rows and a totals line.
type ReportResult struct {
	Kind    ReportKind
	Title   string
	From    Date
	To      Date
	Columns []string
	Rows    []ReportRow
	Totals  []Money
}

var agingColumns = []string{"Current", "1-30", "31-60", "61-90", "90+", "Total"}

// AgingBucket maps days past due to a column index of the AR aging report.
func AgingBucket(daysPastDue int) int {
	switch {
	case daysPastDue <= 0:
		return 0
	case daysPastDue <= 30:
		return 1
	case daysPastDue <= 60:
		return 2
	case daysPastDue <= 90:
		return 3
	default:
		return 4
	}
}

// RunReport computes kind over the given rows. from/to bound dates inclusively;
// zero values leave that side open. AR aging ignores the range and uses today.
func RunReport(kind ReportKind, invoices []Invoice, expenses []Expense, from, to, today Date) (ReportResult, error) {
	var res ReportResult
	switch kind {
	case ReportProfitLoss:
		res = profitLoss(invoices, expenses, from, to)
	case ReportARAging:
		res = arAging(invoices, today)
	case ReportExpensesByCategory:
		res = expensesByCategory(expenses, from, to)
	case ReportSalesByCustomer:
		res = salesByCustomer(invoices, from, to)
	default:
		return ReportResult{}, fmt.Errorf("unknown report kind %q", kind)
	}
	res.Kind = kind
	res.Title = kind.Title()
	res.From, res.To = from, to
	return res, nil
}

func inRange(d, from, to Date) bool {
	if !from.IsZero() && d.Before(from) {
		return false
	}
	if !to.IsZero() && to.Before(d) {
		return false
	}
	return true
}

func profitLoss(invoices []Invoice, expenses []Expense, from, to Date) ReportResult {
	type row struct{ rev, exp int64 }
	months := map[int]*row{}
	get := func(t time.Time) *row {
		k := monthKey(t.Year(), int(t.Month()))
		r, ok := months[k]
		if !ok {
			r = &row{}
			months[k] = r
		}
		return r
	}
	for _, inv := range invoices {
		if inv.Status != StatusPaid || inv.PaidAt.IsZero() {
			continue
		}
		paid := DateOf(inv.PaidAt)
		if !inRange(paid, from, to) {
			continue
		}
		get(paid.Time).rev += inv.AmountPaid.Cents
	}
	for _, e := range expenses {
		if !inRange(e.Date, from, to) {
			continue
		}
		get(e.Date.Time).exp += e.Amount.Cents
	}

	keys := make([]int, 0, len(months))
	for k := range months {
		keys = append(keys, k)
	}
	sort.Ints(keys)

	res := ReportResult{Columns: []string{"Revenue", "Expenses", "Profit"}, Totals: make([]Money, 3)}
	for _, k := range keys {
		r := months[k]
		b := MonthBucket{Year: k / 12, Month: k%12 + 1}
		vals := []Money{{Cents: r.rev}, {Cents: r.exp}, {Cents: r.rev - r.exp}}
		res.Rows = append(res.Rows, ReportRow{Label: b.Label(), Values: vals})
		addInto(res.Totals, vals)
	}
	return res
}

func arAging(invoices []Invoice, today Date) ReportResult {
	byCustomer := map[string][]Money{}
	for _, inv := range invoices {
		if inv.Status != StatusSent && inv.Status != StatusOverdue {
			continue
		}
		due := inv.AmountDue()
		if due.IsZero() {
			continue
		}
		vals, ok := byCustomer[inv.CustomerName]
		if !ok {
			vals = make([]Money, len(agingColumns))
			byCustomer[inv.CustomerName] = vals
		}
		idx := AgingBucket(inv.DueDate.DaysUntil(today))
		vals[idx] = vals[idx].Add(due)
		vals[len(vals)-1] = vals[len(vals)-1].Add(due)
	}
	res := ReportResult{Columns: agingColumns, Totals: make([]Money, len(agingColumns))}
	res.Rows = sortedRows(byCustomer)
	for _, r := range res.Rows {
		addInto(res.Totals, r.Values)
	}
	return res
}

func expensesByCategory(expenses []Expense, from, to Date) ReportResult {
	byCategory := map[string]int64{}
	for _, e := range expenses {
		if !inRange(e.Date, from, to) {
			continue
		}
		cat := e.Category
		if cat == "" {
			cat = DefaultCategory
		}
		byCategory[cat] += e.Amount.Cents
	}
	res := ReportResult{Columns: []string{"Amount"}, Totals: make([]Money, 1)}
	for _, c := range TopCategories(byCategory, 0) {
		res.Rows = append(res.Rows, ReportRow{Label: c.Name, Values: []Money{c.Amount}})
		res.Totals[0] = res.Totals[0].Add(c.Amount)
	}
	return res
}

func salesByCustomer(invoices []Invoice, from, to Date) ReportResult {
	byCustomer := map[string][]Money{}
	for _, inv := range invoices {
		if inv.Status == StatusDraft || inv.Status == StatusCancelled {
			continue
		}
		if !inRange(inv.IssueDate, from, to) {
			continue
		}
		vals, ok := byCustomer[inv.CustomerName]
		if !ok {
			vals = make([]Money, 3)
			byCustomer[inv.CustomerName] = vals
		}
		vals[0] = vals[0].Add(inv.Totals.Total)
		vals[1] = vals[1].Add(inv.AmountPaid)
		vals[2] = vals[2].Add(inv.AmountDue())
	}
	res := ReportResult{Columns: []string{"Invoiced", "Paid", "Outstanding"}, Totals: make([]Money, 3)}
	res.Rows = sortedRows(byCustomer)
	for _, r := range res.Rows {
		addInto(res.Totals, r.Values)
	}
	return res
}

func sortedRows(m map[string][]Money) []ReportRow {
	rows := make([]ReportRow, 0, len(m))
	for label, vals := range m {
		rows = append(rows, ReportRow{Label: label, Values: vals})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Label < rows[j].Label })
	return rows
}

func addInto(dst, src []Money) {
	for i := range src {
		dst[i] = dst[i].Add(src[i])
	}
}
