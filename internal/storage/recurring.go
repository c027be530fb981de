package storage

import (
	"context"
	"fmt"
	"time"

	"ledger/internal/core"
)

const recurringColumns = `id, company_id, COALESCE(vendor_id, ''), start_date, end_date, every, description,
	category, amount_cents, last_run_at, created_at`

func scanRecurring(s scanner) (core.RecurringExpense, error) {
	var re core.RecurringExpense
	var start, end, every string
	var lastRun, created int64
	err := s.Scan(&re.ID, &re.CompanyID, &re.VendorID, &start, &end, &every, &re.Description,
		&re.Category, &re.Amount.Cents, &lastRun, &created)
	re.StartDate = parseDate(start)
	re.EndDate = parseDate(end)
	re.Every = core.RepetitionType(every)
	re.LastRunAt = fromUnix(lastRun)
	re.CreatedAt = fromUnix(created)
	return re, err
}

func (r *Repository) CreateRecurring(ctx context.Context, re *core.RecurringExpense) error {
	if re.ID == "" {
		re.ID = newID()
	}
	re.CreatedAt = r.now()
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO recurring_expenses (id, company_id, vendor_id, start_date, end_date, every, description,
		 category, amount_cents, last_run_at, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		re.ID, re.CompanyID, nullable(re.VendorID), re.StartDate.String(), re.EndDate.String(),
		string(re.Every), re.Description, re.Category, re.Amount.Cents, unix(re.LastRunAt),
		re.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("insert recurring expense: %w", mapError(err))
	}
	return nil
}

func (r *Repository) ListRecurring(ctx context.Context, companyID string) ([]core.RecurringExpense, error) {
	return r.queryRecurring(ctx,
		`SELECT `+recurringColumns+` FROM recurring_expenses WHERE company_id = ? ORDER BY start_date DESC`,
		companyID)
}

// ListActiveRecurring returns templates of every company that have started and not ended as of today.
func (r *Repository) ListActiveRecurring(ctx context.Context, today core.Date) ([]core.RecurringExpense, error) {
	return r.queryRecurring(ctx,
		`SELECT `+recurringColumns+` FROM recurring_expenses
		 WHERE start_date <= ? AND (end_date = '' OR end_date >= ?)
		 ORDER BY company_id, start_date`,
		today.String(), today.String())
}

func (r *Repository) queryRecurring(ctx context.Context, query string, args ...any) ([]core.RecurringExpense, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list recurring expenses: %w", err)
	}
	defer rows.Close()

	var out []core.RecurringExpense
	for rows.Next() {
		re, err := scanRecurring(rows)
		if err != nil {
			return nil, fmt.Errorf("scan recurring expense: %w", err)
		}
		out = append(out, re)
	}
	return out, rows.Err()
}

func (r *Repository) MarkRecurringRun(ctx context.Context, id string, at time.Time) error {
	return checkAffected(r.db.ExecContext(ctx,
		`UPDATE recurring_expenses SET last_run_at = ? WHERE id = ?`, unix(at), id))
}

func (r *Repository) DeleteRecurring(ctx context.Context, companyID, id string) error {
	return checkAffected(r.db.ExecContext(ctx,
		`DELETE FROM recurring_expenses WHERE id = ? AND company_id = ?`, id, companyID))
}
