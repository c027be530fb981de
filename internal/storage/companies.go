package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"ledger/internal/core"
)

const companyColumns = `id, name, email, phone, address, tax_id, currency, invoice_prefix, payment_terms_days, created_at`

func scanCompany(s scanner) (core.Company, error) {
	var c core.Company
	var created int64
	err := s.Scan(&c.ID, &c.Name, &c.Email, &c.Phone, &c.Address, &c.TaxID,
		&c.Currency, &c.InvoicePrefix, &c.PaymentTermsDays, &created)
	c.CreatedAt = fromUnix(created)
	return c, err
}

// RegisterCompany creates a company, its first user and the default report
// definitions in one transaction. A taken email yields ErrConflict.
func (r *Repository) RegisterCompany(ctx context.Context, c *core.Company, admin *core.User) error {
	now := r.now()
	if c.ID == "" {
		c.ID = newID()
	}
	c.CreatedAt = now
	admin.CompanyID = c.ID
	if admin.ID == "" {
		admin.ID = newID()
	}
	admin.CreatedAt = now

	err := inTx(ctx, r.db, func(tx *sql.Tx) error {
		if err := insertCompany(ctx, tx, c); err != nil {
			return err
		}
		if err := insertUser(ctx, tx, admin); err != nil {
			return err
		}
		return seedReports(ctx, tx, c.ID, now.Unix())
	})
	if err != nil {
		return err
	}

	slog.InfoContext(ctx, "Company registered",
		"company_id", c.ID,
		"name", c.Name,
		"admin_id", admin.ID)
	return nil
}

// CreateCompany inserts a company on its own, seeding report definitions.
func (r *Repository) CreateCompany(ctx context.Context, c *core.Company) error {
	if c.ID == "" {
		c.ID = newID()
	}
	c.CreatedAt = r.now()
	return inTx(ctx, r.db, func(tx *sql.Tx) error {
		if err := insertCompany(ctx, tx, c); err != nil {
			return err
		}
		return seedReports(ctx, tx, c.ID, c.CreatedAt.Unix())
	})
}

func insertCompany(ctx context.Context, tx *sql.Tx, c *core.Company) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO companies (`+companyColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.Name, c.Email, c.Phone, c.Address, c.TaxID,
		c.Currency, c.InvoicePrefix, c.PaymentTermsDays, unix(c.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert company: %w", mapError(err))
	}
	return nil
}

func (r *Repository) GetCompany(ctx context.Context, id string) (core.Company, error) {
	c, err := scanCompany(r.db.QueryRowContext(ctx,
		`SELECT `+companyColumns+` FROM companies WHERE id = ?`, id))
	if err != nil {
		return core.Company{}, mapError(err)
	}
	return c, nil
}

func (r *Repository) ListCompanies(ctx context.Context) ([]core.Company, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+companyColumns+` FROM companies ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list companies: %w", err)
	}
	defer rows.Close()

	var out []core.Company
	for rows.Next() {
		c, err := scanCompany(rows)
		if err != nil {
			return nil, fmt.Errorf("scan company: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *Repository) UpdateCompany(ctx context.Context, c core.Company) error {
	return checkAffected(r.db.ExecContext(ctx,
		`UPDATE companies SET name = ?, email = ?, phone = ?, address = ?, tax_id = ?,
		 currency = ?, invoice_prefix = ?, payment_terms_days = ? WHERE id = ?`,
		c.Name, c.Email, c.Phone, c.Address, c.TaxID,
		c.Currency, c.InvoicePrefix, c.PaymentTermsDays, c.ID))
}

// DataVersion returns a counter that moves whenever an invoice or expense of
// the company is written, by any process sharing the database.
func (r *Repository) DataVersion(ctx context.Context, companyID string) (int64, error) {
	var v int64
	err := r.db.QueryRowContext(ctx,
		`SELECT data_version FROM companies WHERE id = ?`, companyID).Scan(&v)
	if err != nil {
		return 0, mapError(err)
	}
	return v, nil
}

// nextInvoiceNumber reserves the next sequence value inside tx.
func nextInvoiceNumber(ctx context.Context, tx *sql.Tx, companyID string) (string, error) {
	var seq int64
	var prefix string
	err := tx.QueryRowContext(ctx,
		`UPDATE companies SET next_invoice_seq = next_invoice_seq + 1 WHERE id = ?
		 RETURNING next_invoice_seq - 1, invoice_prefix`, companyID).Scan(&seq, &prefix)
	if err != nil {
		return "", fmt.Errorf("allocate invoice number: %w", mapError(err))
	}
	return core.FormatInvoiceNumber(prefix, seq), nil
}
