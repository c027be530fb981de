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

// RecurringProcessor creates expenses from recurring expense templates.
type RecurringProcessor struct {
	storage        *storage.Repository
	expenseService *ExpenseService
}

func NewRecurringProcessor(storage *storage.Repository, expenseService *ExpenseService) *RecurringProcessor {
	return &RecurringProcessor{
		storage:        storage,
		expenseService: expenseService,
	}
}

// ProcessDueExpenses creates one expense for every active template that is due
// on now's date and returns how many were created. Failures on one template
// are logged and do not stop the others.
func (p *RecurringProcessor) ProcessDueExpenses(ctx context.Context, now time.Time) (int, error) {
	if p.storage == nil || p.expenseService == nil {
		return 0, fmt.Errorf("processor not properly initialized")
	}

	today := core.DateOf(now)
	templates, err := p.storage.ListActiveRecurring(ctx, today)
	if err != nil {
		return 0, fmt.Errorf("list active recurring expenses: %w", err)
	}

	slog.InfoContext(ctx, "Processing recurring expenses",
		"total_active", len(templates),
		"processing_date", today.String())

	processed := 0
	for _, re := range templates {
		if err := ctx.Err(); err != nil {
			return processed, err
		}

		checker, err := GetDuenessChecker(re.Every)
		if err != nil {
			slog.ErrorContext(ctx, "Skipping recurring expense", "recurring_id", re.ID, "error", err)
			continue
		}

		var lastRun core.Date
		if !re.LastRunAt.IsZero() {
			lastRun = core.DateOf(re.LastRunAt.UTC())
		}
		if !checker.IsDue(lastRun, today, re.StartDate) {
			continue
		}

		expense := core.Expense{
			VendorID:    re.VendorID,
			RecurringID: re.ID,
			Date:        today,
			Description: re.Description,
			Category:    re.Category,
			Amount:      re.Amount,
		}
		_, err = p.expenseService.CreateExpense(ctx, re.CompanyID, expense)
		switch {
		case errors.Is(err, storage.ErrConflict):
			// Already generated for today by an earlier run; only the run marker is missing.
			slog.WarnContext(ctx, "Recurring expense already generated today", "recurring_id", re.ID)
		case err != nil:
			slog.ErrorContext(ctx, "Failed to create expense from recurring template",
				"recurring_id", re.ID,
				"description", re.Description,
				"error", err)
			continue
		default:
			processed++
			slog.InfoContext(ctx, "Created expense from recurring template",
				"recurring_id", re.ID,
				"company_id", re.CompanyID,
				"amount_cents", re.Amount.Cents,
				"frequency", re.Every)
		}

		if err := p.storage.MarkRecurringRun(ctx, re.ID, now); err != nil {
			slog.ErrorContext(ctx, "Failed to update last run", "recurring_id", re.ID, "error", err)
		}
	}

	slog.InfoContext(ctx, "Recurring expense processing complete",
		"processed", processed,
		"total_checked", len(templates))
	return processed, nil
}
