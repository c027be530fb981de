package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"ledger/internal/core"
)

const invoiceSelect = `SELECT i.id, i.company_id, i.customer_id, c.name, i.number, i.issue_date, i.due_date,
	i.status, i.currency, i.notes, i.subtotal_cents, i.tax_cents, i.total_cents, i.amount_paid_cents,
	i.paid_at, i.sent_at, i.created_at, i.updated_at
	FROM invoices i JOIN customers c ON c.id = i.customer_id`

func scanInvoice(s scanner) (core.Invoice, error) {
	var inv core.Invoice
	var issue, due, status string
	var paid, sent, created, updated int64
	err := s.Scan(&inv.ID, &inv.CompanyID, &inv.CustomerID, &inv.CustomerName, &inv.Number,
		&issue, &due, &status, &inv.Currency, &inv.Notes,
		&inv.Totals.Subtotal.Cents, &inv.Totals.Tax.Cents, &inv.Totals.Total.Cents, &inv.AmountPaid.Cents,
		&paid, &sent, &created, &updated)
	inv.IssueDate = parseDate(issue)
	inv.DueDate = parseDate(due)
	inv.Status = core.InvoiceStatus(status)
	inv.PaidAt = fromUnix(paid)
	inv.SentAt = fromUnix(sent)
	inv.CreatedAt = fromUnix(created)
	inv.UpdatedAt = fromUnix(updated)
	return inv, err
}

// CreateInvoice inserts header and items in one transaction and assigns the
// next invoice number of the company.
func (r *Repository) CreateInvoice(ctx context.Context, inv *core.Invoice) error {
	if inv.ID == "" {
		inv.ID = newID()
	}
	now := r.now()
	inv.CreatedAt, inv.UpdatedAt = now, now

	err := inTx(ctx, r.db, func(tx *sql.Tx) error {
		number, err := nextInvoiceNumber(ctx, tx, inv.CompanyID)
		if err != nil {
			return err
		}
		inv.Number = number

		_, err = tx.ExecContext(ctx,
			`INSERT INTO invoices (id, company_id, customer_id, number, issue_date, due_date, status, currency,
			 notes, subtotal_cents, tax_cents, total_cents, amount_paid_cents, paid_at, sent_at, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			inv.ID, inv.CompanyID, inv.CustomerID, inv.Number, inv.IssueDate.String(), inv.DueDate.String(),
			string(inv.Status), inv.Currency, inv.Notes, inv.Totals.Subtotal.Cents, inv.Totals.Tax.Cents,
			inv.Totals.Total.Cents, inv.AmountPaid.Cents, unix(inv.PaidAt), unix(inv.SentAt),
			now.Unix(), now.Unix())
		if err != nil {
			return fmt.Errorf("insert invoice: %w", mapError(err))
		}
		return insertInvoiceItems(ctx, tx, inv.ID, inv.Items)
	})
	if err != nil {
		return err
	}

	slog.InfoContext(ctx, "Invoice saved",
		"id", inv.ID,
		"number", inv.Number,
		"total_cents", inv.Totals.Total.Cents,
		"items", len(inv.Items))
	return nil
}

func insertInvoiceItems(ctx context.Context, tx *sql.Tx, invoiceID string, items []core.InvoiceItem) error {
	for i := range items {
		it := &items[i]
		if it.ID == "" {
			it.ID = newID()
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO invoice_items (id, invoice_id, inventory_item_id, position, description, quantity,
			 unit_price_cents, discount_percent, tax_rate) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			it.ID, invoiceID, nullable(it.InventoryItemID), it.Position, it.Description,
			it.Quantity.String(), it.UnitPrice.Cents, it.DiscountPercent.String(), it.TaxRate.String())
		if err != nil {
			return fmt.Errorf("insert invoice item %d: %w", i+1, mapError(err))
		}
	}
	return nil
}

// UpdateInvoice rewrites the header and replaces all items of a draft. It
// fails with ErrStale when the invoice is no longer a draft.
func (r *Repository) UpdateInvoice(ctx context.Context, inv core.Invoice) error {
	return inTx(ctx, r.db, func(tx *sql.Tx) error {
		err := checkGuarded(tx.ExecContext(ctx,
			`UPDATE invoices SET customer_id = ?, issue_date = ?, due_date = ?, currency = ?, notes = ?,
			 subtotal_cents = ?, tax_cents = ?, total_cents = ?, updated_at = ?
			 WHERE id = ? AND company_id = ? AND status = ?`,
			inv.CustomerID, inv.IssueDate.String(), inv.DueDate.String(), inv.Currency, inv.Notes,
			inv.Totals.Subtotal.Cents, inv.Totals.Tax.Cents, inv.Totals.Total.Cents, r.now().Unix(),
			inv.ID, inv.CompanyID, string(core.StatusDraft)))
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM invoice_items WHERE invoice_id = ?`, inv.ID); err != nil {
			return fmt.Errorf("delete invoice items: %w", err)
		}
		return insertInvoiceItems(ctx, tx, inv.ID, inv.Items)
	})
}

// UpdateInvoiceState persists the status and payment fields of next. The
// write only applies while the stored status and amount paid still match
// prev; otherwise it fails with ErrStale.
func (r *Repository) UpdateInvoiceState(ctx context.Context, prev, next core.Invoice) error {
	return checkGuarded(r.db.ExecContext(ctx,
		`UPDATE invoices SET status = ?, amount_paid_cents = ?, paid_at = ?, sent_at = ?, updated_at = ?
		 WHERE id = ? AND company_id = ? AND status = ? AND amount_paid_cents = ?`,
		string(next.Status), next.AmountPaid.Cents, unix(next.PaidAt), unix(next.SentAt), r.now().Unix(),
		next.ID, next.CompanyID, string(prev.Status), prev.AmountPaid.Cents))
}

// MarkInvoiceSent persists the sent state and decrements the stock of linked
// inventory items, clamping at zero. It returns the touched items after the update.
func (r *Repository) MarkInvoiceSent(ctx context.Context, inv core.Invoice) ([]core.InventoryItem, error) {
	var touched []core.InventoryItem
	err := inTx(ctx, r.db, func(tx *sql.Tx) error {
		err := checkAffected(tx.ExecContext(ctx,
			`UPDATE invoices SET status = ?, sent_at = ?, updated_at = ? WHERE id = ? AND company_id = ? AND status = ?`,
			string(core.StatusSent), unix(inv.SentAt), r.now().Unix(), inv.ID, inv.CompanyID, string(core.StatusDraft)))
		if err != nil {
			return err
		}

		for _, it := range inv.Items {
			if it.InventoryItemID == "" {
				continue
			}
			qty := it.Quantity.Ceil().IntPart()
			row := tx.QueryRowContext(ctx,
				`UPDATE inventory_items SET quantity = MAX(quantity - ?, 0), updated_at = ?
				 WHERE id = ? AND company_id = ?
				 RETURNING `+inventoryColumns,
				qty, r.now().Unix(), it.InventoryItemID, inv.CompanyID)
			item, err := scanInventory(row)
			if errors.Is(err, sql.ErrNoRows) {
				continue
			}
			if err != nil {
				return fmt.Errorf("adjust stock for %s: %w", it.InventoryItemID, err)
			}
			touched = append(touched, item)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return touched, nil
}

func (r *Repository) GetInvoice(ctx context.Context, companyID, id string) (core.Invoice, error) {
	inv, err := scanInvoice(r.db.QueryRowContext(ctx,
		invoiceSelect+` WHERE i.id = ? AND i.company_id = ?`, id, companyID))
	if err != nil {
		return core.Invoice{}, mapError(err)
	}
	items, err := r.listInvoiceItems(ctx, inv.ID)
	if err != nil {
		return core.Invoice{}, err
	}
	inv.Items = items
	return inv, nil
}

func (r *Repository) listInvoiceItems(ctx context.Context, invoiceID string) ([]core.InvoiceItem, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, COALESCE(inventory_item_id, ''), position, description, quantity, unit_price_cents,
		 discount_percent, tax_rate FROM invoice_items WHERE invoice_id = ? ORDER BY position`, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("list invoice items: %w", err)
	}
	defer rows.Close()

	var out []core.InvoiceItem
	for rows.Next() {
		var it core.InvoiceItem
		var qty, discount, rate string
		if err := rows.Scan(&it.ID, &it.InventoryItemID, &it.Position, &it.Description, &qty,
			&it.UnitPrice.Cents, &discount, &rate); err != nil {
			return nil, fmt.Errorf("scan invoice item: %w", err)
		}
		if it.Quantity, err = decimal.NewFromString(qty); err != nil {
			return nil, fmt.Errorf("parse quantity %q: %w", qty, err)
		}
		if it.DiscountPercent, err = decimal.NewFromString(discount); err != nil {
			return nil, fmt.Errorf("parse discount %q: %w", discount, err)
		}
		if it.TaxRate, err = decimal.NewFromString(rate); err != nil {
			return nil, fmt.Errorf("parse tax rate %q: %w", rate, err)
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

// ListInvoices returns invoice headers, newest first. Items are not loaded.
func (r *Repository) ListInvoices(ctx context.Context, companyID string) ([]core.Invoice, error) {
	return r.queryInvoices(ctx,
		invoiceSelect+` WHERE i.company_id = ? ORDER BY i.issue_date DESC, i.number DESC`, companyID)
}

func (r *Repository) ListRecentInvoices(ctx context.Context, companyID string, limit int) ([]core.Invoice, error) {
	return r.queryInvoices(ctx,
		invoiceSelect+` WHERE i.company_id = ? ORDER BY i.created_at DESC, i.number DESC LIMIT ?`, companyID, limit)
}

// ListOverdueCandidates returns sent invoices of every company whose due date is before today.
func (r *Repository) ListOverdueCandidates(ctx context.Context, today core.Date) ([]core.Invoice, error) {
	return r.queryInvoices(ctx,
		invoiceSelect+` WHERE i.status = ? AND i.due_date < ? ORDER BY i.due_date`,
		string(core.StatusSent), today.String())
}

func (r *Repository) queryInvoices(ctx context.Context, query string, args ...any) ([]core.Invoice, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list invoices: %w", err)
	}
	defer rows.Close()

	var out []core.Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, fmt.Errorf("scan invoice: %w", err)
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

func (r *Repository) DeleteInvoice(ctx context.Context, companyID, id string) error {
	return checkAffected(r.db.ExecContext(ctx,
		`DELETE FROM invoices WHERE id = ? AND company_id = ?`, id, companyID))
}
