package export

import (
	"encoding/csv"
	"io"

	"ledger/internal/core"
)

func writeCSV[T any](w io.Writer, header []string, items []T, row func(T) []string) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, it := range items {
		if err := cw.Write(row(it)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func WriteInvoicesCSV(w io.Writer, invoices []core.Invoice) error {
	return writeCSV(w, InvoiceHeader, invoices, InvoiceRow)
}

func WriteExpensesCSV(w io.Writer, expenses []core.Expense) error {
	return writeCSV(w, ExpenseHeader, expenses, ExpenseRow)
}

func WriteCustomersCSV(w io.Writer, customers []core.Customer) error {
	return writeCSV(w, ContactHeader, customers, func(c core.Customer) []string { return ContactRow(c.Contact) })
}

func WriteVendorsCSV(w io.Writer, vendors []core.Vendor) error {
	return writeCSV(w, ContactHeader, vendors, func(v core.Vendor) []string { return ContactRow(v.Contact) })
}

func WriteInventoryCSV(w io.Writer, items []core.InventoryItem) error {
	return writeCSV(w, InventoryHeader, items, InventoryRow)
}
