// Package export renders ledger records as tabular rows: CSV downloads and
// spreadsheet exports share the same column layout.
package export

import (
	"context"
	"fmt"

	"ledger/internal/core"
)

const dateLayout = "2006-01-02"

// LedgerExporter appends a year of invoices and expenses to an external
// store. Implementations return how many rows they wrote.
type LedgerExporter interface {
	ExportInvoices(ctx context.Context, year int, invoices []core.Invoice) (int, error)
	ExportExpenses(ctx context.Context, year int, expenses []core.Expense) (int, error)
}

var (
	InvoiceHeader   = []string{"Number", "Customer", "Issue date", "Due date", "Status", "Currency", "Subtotal", "Tax", "Total", "Paid", "Amount due"}
	ExpenseHeader   = []string{"Date", "Description", "Category", "Vendor", "Amount", "Tax", "Payment method", "Receipt"}
	ContactHeader   = []string{"Name", "Email", "Phone", "Address", "Tax ID", "Notes"}
	InventoryHeader = []string{"SKU", "Name", "Description", "Quantity", "Unit price", "Cost price", "Reorder level"}
)

// InvoiceSheet and ExpenseSheet name the per-year spreadsheet tabs.
func InvoiceSheet(year int) string { return fmt.Sprintf("%d Invoices", year) }
func ExpenseSheet(year int) string { return fmt.Sprintf("%d Expenses", year) }

func formatDate(d core.Date) string {
	if d.IsZero() {
		return ""
	}
	return d.Format(dateLayout)
}

func InvoiceRow(inv core.Invoice) []string {
	return []string{
		inv.Number,
		inv.CustomerName,
		formatDate(inv.IssueDate),
		formatDate(inv.DueDate),
		string(inv.Status),
		inv.Currency,
		inv.Totals.Subtotal.Plain(),
		inv.Totals.Tax.Plain(),
		inv.Totals.Total.Plain(),
		inv.AmountPaid.Plain(),
		inv.AmountDue().Plain(),
	}
}

func ExpenseRow(e core.Expense) []string {
	return []string{
		formatDate(e.Date),
		e.Description,
		e.Category,
		e.VendorName,
		e.Amount.Plain(),
		e.TaxAmount.Plain(),
		e.PaymentMethod,
		e.ReceiptURL,
	}
}

func ContactRow(c core.Contact) []string {
	return []string{c.Name, c.Email, c.Phone, c.Address, c.TaxID, c.Notes}
}

func InventoryRow(it core.InventoryItem) []string {
	return []string{
		it.SKU,
		it.Name,
		it.Description,
		fmt.Sprint(it.Quantity),
		it.UnitPrice.Plain(),
		it.CostPrice.Plain(),
		fmt.Sprint(it.ReorderLevel),
	}
}
