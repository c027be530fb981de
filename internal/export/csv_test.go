package export

import (
	"bytes"
	"strings"
	"testing"

	"ledger/internal/core"
)

func TestWriteInvoicesCSV(t *testing.T) {
	inv := core.Invoice{
		Number:       "INV-000042",
		CustomerName: "Globex, Inc.",
		IssueDate:    core.NewDate(2026, 3, 1),
		DueDate:      core.NewDate(2026, 3, 31),
		Status:       core.StatusSent,
		Currency:     "EUR",
		Totals: core.InvoiceTotals{
			Subtotal: core.Money{Cents: 100000},
			Tax:      core.Money{Cents: 22000},
			Total:    core.Money{Cents: 122000},
		},
		AmountPaid: core.Money{Cents: 2050},
	}

	var buf bytes.Buffer
	if err := WriteInvoicesCSV(&buf, []core.Invoice{inv}); err != nil {
		t.Fatalf("WriteInvoicesCSV failed: %v", err)
	}
	want := "Number,Customer,Issue date,Due date,Status,Currency,Subtotal,Tax,Total,Paid,Amount due\n" +
		`INV-000042,"Globex, Inc.",2026-03-01,2026-03-31,sent,EUR,1000.00,220.00,1220.00,20.50,1199.50` + "\n"
	if got := buf.String(); got != want {
		t.Errorf("csv mismatch\ngot:\n%s\nwant:\n%s", got, want)
	}
}

func TestWriteOtherCSVs(t *testing.T) {
	tests := []struct {
		name     string
		write    func(*bytes.Buffer) error
		wantLine string
	}{
		{
			name: "expenses",
			write: func(b *bytes.Buffer) error {
				return WriteExpensesCSV(b, []core.Expense{{
					Date: core.NewDate(2026, 2, 3), Description: "Hosting", Category: "IT",
					VendorName: "Hetzner", Amount: core.Money{Cents: 1999},
				}})
			},
			wantLine: "2026-02-03,Hosting,IT,Hetzner,19.99,0.00,,",
		},
		{
			name: "customers",
			write: func(b *bytes.Buffer) error {
				return WriteCustomersCSV(b, []core.Customer{{Contact: core.Contact{Name: "Globex", Email: "ap@globex.test"}}})
			},
			wantLine: "Globex,ap@globex.test,,,,",
		},
		{
			name: "vendors",
			write: func(b *bytes.Buffer) error {
				return WriteVendorsCSV(b, []core.Vendor{{Contact: core.Contact{Name: "Hetzner", TaxID: "DE812871812"}}})
			},
			wantLine: "Hetzner,,,,DE812871812,",
		},
		{
			name: "inventory",
			write: func(b *bytes.Buffer) error {
				return WriteInventoryCSV(b, []core.InventoryItem{{
					SKU: "W-1", Name: "Widget", Quantity: 12, UnitPrice: core.Money{Cents: 1000},
					CostPrice: core.Money{Cents: 450}, ReorderLevel: 3,
				}})
			},
			wantLine: "W-1,Widget,,12,10.00,4.50,3",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := tt.write(&buf); err != nil {
				t.Fatalf("write failed: %v", err)
			}
			lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
			if len(lines) != 2 {
				t.Fatalf("got %d lines, want header + 1 row", len(lines))
			}
			if lines[1] != tt.wantLine {
				t.Errorf("row = %q, want %q", lines[1], tt.wantLine)
			}
		})
	}
}

func TestSheetNames(t *testing.T) {
	if got := InvoiceSheet(2026); got != "2026 Invoices" {
		t.Errorf("InvoiceSheet = %q", got)
	}
	if got := ExpenseSheet(2026); got != "2026 Expenses" {
		t.Errorf("ExpenseSheet = %q", got)
	}
}
