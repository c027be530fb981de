package storage

import (
	"context"
	"fmt"
	"log/slog"

	"ledger/internal/core"
)

const expenseSelect = `SELECT e.id, e.company_id, COALESCE(e.vendor_id, ''), COALESCE(v.name, ''),
	COALESCE(e.recurring_id, ''), e.date, e.description, e.category, e.amount_cents, e.tax_cents,
	e.payment_method, e.receipt_url, e.created_at, e.updated_at
	FROM expenses e LEFT JOIN vendors v ON v.id = e.vendor_id`

func scanExpense(s scanner) (core.Expense, error) {
	var e core.Expense
	var date string
	var created, updated int64
	err := s.Scan(&e.ID, &e.CompanyID, &e.VendorID, &e.VendorName, &e.RecurringID, &date,
		&e.Description, &e.Category, &e.Amount.Cents, &e.TaxAmount.Cents,
		&e.PaymentMethod, &e.ReceiptURL, &created, &updated)
	e.Date = parseDate(date)
	e.CreatedAt = fromUnix(created)
	e.UpdatedAt = fromUnix(updated)
	return e, err
}

// CreateExpense inserts an expense. A second expense generated by the same
// recurring template on the same date yields ErrConflict.
func (r *Repository) CreateExpense(ctx context.Context, e *core.Expense) error {
	if e.ID == "" {
		e.ID = newID()
	}
	now := r.now()
	e.CreatedAt, e.UpdatedAt = now, now
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO expenses (id, company_id, vendor_id, recurring_id, date, description, category,
		 amount_cents, tax_cents, payment_method, receipt_url, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.CompanyID, nullable(e.VendorID), nullable(e.RecurringID), e.Date.String(),
		e.Description, e.Category, e.Amount.Cents, e.TaxAmount.Cents, e.PaymentMethod, e.ReceiptURL,
		now.Unix(), now.Unix())
	if err != nil {
		return fmt.Errorf("insert expense: %w", mapError(err))
	}

	slog.InfoContext(ctx, "Expense saved",
		"id", e.ID,
		"description", e.Description,
		"amount_cents", e.Amount.Cents,
		"date", e.Date.String())
	return nil
}

func (r *Repository) GetExpense(ctx context.Context, companyID, id string) (core.Expense, error) {
	e, err := scanExpense(r.db.QueryRowContext(ctx,
		expenseSelect+` WHERE e.id = ? AND e.company_id = ?`, id, companyID))
	if err != nil {
		return core.Expense{}, mapError(err)
	}
	return e, nil
}

// ListExpenses returns expenses newest first.
func (r *Repository) ListExpenses(ctx context.Context, companyID string) ([]core.Expense, error) {
	return r.queryExpenses(ctx,
		expenseSelect+` WHERE e.company_id = ? ORDER BY e.date DESC, e.created_at DESC`, companyID)
}

func (r *Repository) ListRecentExpenses(ctx context.Context, companyID string, limit int) ([]core.Expense, error) {
	return r.queryExpenses(ctx,
		expenseSelect+` WHERE e.company_id = ? ORDER BY e.date DESC, e.created_at DESC LIMIT ?`, companyID, limit)
}

// ListExpensesBetween returns expenses dated within [from, to].
func (r *Repository) ListExpensesBetween(ctx context.Context, companyID string, from, to core.Date) ([]core.Expense, error) {
	return r.queryExpenses(ctx,
		expenseSelect+` WHERE e.company_id = ? AND e.date >= ? AND e.date <= ? ORDER BY e.date`,
		companyID, from.String(), to.String())
}

func (r *Repository) queryExpenses(ctx context.Context, query string, args ...any) ([]core.Expense, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	defer rows.Close()

	var out []core.Expense
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, fmt.Errorf("scan expense: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *Repository) UpdateExpense(ctx context.Context, e core.Expense) error {
	return checkAffected(r.db.ExecContext(ctx,
		`UPDATE expenses SET vendor_id = ?, date = ?, description = ?, category = ?, amount_cents = ?,
		 tax_cents = ?, payment_method = ?, receipt_url = ?, updated_at = ?
		 WHERE id = ? AND company_id = ?`,
		nullable(e.VendorID), e.Date.String(), e.Description, e.Category, e.Amount.Cents,
		e.TaxAmount.Cents, e.PaymentMethod, e.ReceiptURL, r.now().Unix(), e.ID, e.CompanyID))
}

func (r *Repository) DeleteExpense(ctx context.Context, companyID, id string) error {
	return checkAffected(r.db.ExecContext(ctx,
		`DELETE FROM expenses WHERE id = ? AND company_id = ?`, id, companyID))
}

// ListCategories returns the distinct expense categories used by the company.
func (r *Repository) ListCategories(ctx context.Context, companyID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT DISTINCT category FROM expenses WHERE company_id = ?
		 UNION SELECT DISTINCT category FROM recurring_expenses WHERE company_id = ?
		 ORDER BY 1`, companyID, companyID)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
