package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"ledger/internal/core"
	"ledger/internal/storage"
)

// ScanResult counts what one scan changed.
type ScanResult struct {
	Overdue   int
	Recurring int
	LowStock  int
}

// Scanner runs the periodic jobs: overdue invoices, recurring expenses and
// low stock alerts.
type Scanner struct {
	storage       *storage.Repository
	invoices      *InvoiceService
	recurring     *RecurringProcessor
	notifications *NotificationService
	now           func() time.Time
}

func NewScanner(storage *storage.Repository, invoices *InvoiceService, recurring *RecurringProcessor, notifications *NotificationService) *Scanner {
	return &Scanner{
		storage:       storage,
		invoices:      invoices,
		recurring:     recurring,
		notifications: notifications,
		now:           time.Now,
	}
}

// RunOnce runs every job. A failing job does not stop the others; their
// errors are joined.
func (s *Scanner) RunOnce(ctx context.Context) (ScanResult, error) {
	var (
		res  ScanResult
		errs []error
		err  error
	)
	now := s.now()

	if res.Overdue, err = s.scanOverdue(ctx, core.DateOf(now)); err != nil {
		errs = append(errs, fmt.Errorf("overdue scan: %w", err))
	}
	if res.Recurring, err = s.recurring.ProcessDueExpenses(ctx, now); err != nil {
		errs = append(errs, fmt.Errorf("recurring scan: %w", err))
	}
	if res.LowStock, err = s.scanLowStock(ctx, core.DateOf(now)); err != nil {
		errs = append(errs, fmt.Errorf("low stock scan: %w", err))
	}

	slog.InfoContext(ctx, "Scan complete",
		"overdue", res.Overdue,
		"recurring", res.Recurring,
		"low_stock", res.LowStock,
		"errors", len(errs))
	return res, errors.Join(errs...)
}

func (s *Scanner) scanOverdue(ctx context.Context, today core.Date) (int, error) {
	candidates, err := s.storage.ListOverdueCandidates(ctx, today)
	if err != nil {
		return 0, err
	}
	marked := 0
	for _, inv := range candidates {
		changed, err := s.invoices.MarkOverdue(ctx, inv)
		if err != nil {
			slog.ErrorContext(ctx, "Failed to mark invoice overdue", "invoice_id", inv.ID, "error", err)
			continue
		}
		if !changed {
			continue
		}
		marked++
		if err := s.notifications.NotifyOverdue(ctx, inv); err != nil {
			slog.ErrorContext(ctx, "Failed to notify overdue invoice", "invoice_id", inv.ID, "error", err)
		}
	}
	return marked, nil
}

func (s *Scanner) scanLowStock(ctx context.Context, today core.Date) (int, error) {
	companies, err := s.storage.ListCompanies(ctx)
	if err != nil {
		return 0, err
	}
	notified := 0
	for _, c := range companies {
		items, err := s.storage.ListLowStock(ctx, c.ID)
		if err != nil {
			return notified, fmt.Errorf("company %s: %w", c.ID, err)
		}
		for _, it := range items {
			sent, err := s.notifications.NotifyLowStock(ctx, it, today)
			if err != nil {
				slog.ErrorContext(ctx, "Failed to notify low stock", "item_id", it.ID, "error", err)
				continue
			}
			if !sent {
				continue
			}
			notified++
		}
	}
	return notified, nil
}
