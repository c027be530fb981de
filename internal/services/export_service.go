package services

import (
	"context"
	"fmt"
	"log/slog"

	"ledger/internal/core"
	"ledger/internal/export"
	"ledger/internal/storage"
)

// ExportResult counts rows handed to an exporter.
type ExportResult struct {
	Invoices int
	Expenses int
}

// ExportService pushes a company's year of records to a LedgerExporter.
type ExportService struct {
	storage *storage.Repository
}

func NewExportService(storage *storage.Repository) *ExportService {
	return &ExportService{storage: storage}
}

// ExportYear exports issued invoices and all expenses dated in year.
// Drafts and cancelled invoices are skipped.
func (s *ExportService) ExportYear(ctx context.Context, companyID string, year int, exporter export.LedgerExporter) (ExportResult, error) {
	var res ExportResult

	invoices, err := s.storage.ListInvoices(ctx, companyID)
	if err != nil {
		return res, fmt.Errorf("list invoices: %w", err)
	}
	issued := core.Filter(invoices, func(inv core.Invoice) bool {
		return inv.IssueDate.Year() == year &&
			inv.Status != core.StatusDraft && inv.Status != core.StatusCancelled
	})
	core.SortBy(issued, func(inv core.Invoice) string { return inv.Number }, false)

	expenses, err := s.storage.ListExpensesBetween(ctx, companyID, core.NewDate(year, 1, 1), core.NewDate(year, 12, 31))
	if err != nil {
		return res, fmt.Errorf("list expenses: %w", err)
	}

	if res.Invoices, err = exporter.ExportInvoices(ctx, year, issued); err != nil {
		return res, fmt.Errorf("export invoices: %w", err)
	}
	if res.Expenses, err = exporter.ExportExpenses(ctx, year, expenses); err != nil {
		return res, fmt.Errorf("export expenses: %w", err)
	}

	slog.InfoContext(ctx, "Ledger exported",
		"company_id", companyID,
		"year", year,
		"invoices", res.Invoices,
		"expenses", res.Expenses)
	return res, nil
}
