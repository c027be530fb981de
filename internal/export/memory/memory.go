// Package memory is an in-process LedgerExporter for tests and dry runs.
package memory

import (
	"context"
	"sync"

	"ledger/internal/core"
	"ledger/internal/export"
)

type Store struct {
	mu     sync.Mutex
	sheets map[string][][]string
}

var _ export.LedgerExporter = (*Store)(nil)

func New() *Store {
	return &Store{sheets: make(map[string][][]string)}
}

func (s *Store) ExportInvoices(_ context.Context, year int, invoices []core.Invoice) (int, error) {
	rows := make([][]string, len(invoices))
	for i, inv := range invoices {
		rows[i] = export.InvoiceRow(inv)
	}
	return s.append(export.InvoiceSheet(year), export.InvoiceHeader, rows), nil
}

func (s *Store) ExportExpenses(_ context.Context, year int, expenses []core.Expense) (int, error) {
	rows := make([][]string, len(expenses))
	for i, e := range expenses {
		rows[i] = export.ExpenseRow(e)
	}
	return s.append(export.ExpenseSheet(year), export.ExpenseHeader, rows), nil
}

// append writes the header first when the sheet is new.
func (s *Store) append(sheet string, header []string, rows [][]string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sheets[sheet]; !ok {
		s.sheets[sheet] = [][]string{header}
	}
	s.sheets[sheet] = append(s.sheets[sheet], rows...)
	return len(rows)
}

// Rows returns a copy of a sheet's rows, header included.
func (s *Store) Rows(sheet string) [][]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]string(nil), s.sheets[sheet]...)
}

// Sheets lists the sheet names written so far.
func (s *Store) Sheets() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.sheets))
	for name := range s.sheets {
		out = append(out, name)
	}
	return out
}
