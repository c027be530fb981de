package storage

import (
	"context"
	"fmt"

	"ledger/internal/core"
)

// Customers and vendors share one shape; the table name selects the entity.
const (
	customersTable = "customers"
	vendorsTable   = "vendors"
)

const contactColumns = `id, company_id, name, email, phone, address, tax_id, notes, created_at, updated_at`

func scanContact(s scanner) (core.Contact, error) {
	var c core.Contact
	var created, updated int64
	err := s.Scan(&c.ID, &c.CompanyID, &c.Name, &c.Email, &c.Phone, &c.Address,
		&c.TaxID, &c.Notes, &created, &updated)
	c.CreatedAt = fromUnix(created)
	c.UpdatedAt = fromUnix(updated)
	return c, err
}

func (r *Repository) createContact(ctx context.Context, table string, c *core.Contact) error {
	if c.ID == "" {
		c.ID = newID()
	}
	now := r.now()
	c.CreatedAt, c.UpdatedAt = now, now
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO `+table+` (`+contactColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.CompanyID, c.Name, c.Email, c.Phone, c.Address, c.TaxID, c.Notes,
		now.Unix(), now.Unix())
	if err != nil {
		return fmt.Errorf("insert into %s: %w", table, mapError(err))
	}
	return nil
}

func (r *Repository) getContact(ctx context.Context, table, companyID, id string) (core.Contact, error) {
	c, err := scanContact(r.db.QueryRowContext(ctx,
		`SELECT `+contactColumns+` FROM `+table+` WHERE id = ? AND company_id = ?`, id, companyID))
	if err != nil {
		return core.Contact{}, mapError(err)
	}
	return c, nil
}

func (r *Repository) listContacts(ctx context.Context, table, companyID string) ([]core.Contact, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+contactColumns+` FROM `+table+` WHERE company_id = ? ORDER BY name COLLATE NOCASE`, companyID)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", table, err)
	}
	defer rows.Close()

	var out []core.Contact
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", table, err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *Repository) updateContact(ctx context.Context, table string, c core.Contact) error {
	return checkAffected(r.db.ExecContext(ctx,
		`UPDATE `+table+` SET name = ?, email = ?, phone = ?, address = ?, tax_id = ?, notes = ?, updated_at = ?
		 WHERE id = ? AND company_id = ?`,
		c.Name, c.Email, c.Phone, c.Address, c.TaxID, c.Notes, r.now().Unix(), c.ID, c.CompanyID))
}

// deleteContact removes a contact. Customers referenced by invoices cannot be
// deleted and yield ErrConflict.
func (r *Repository) deleteContact(ctx context.Context, table, companyID, id string) error {
	return checkAffected(r.db.ExecContext(ctx,
		`DELETE FROM `+table+` WHERE id = ? AND company_id = ?`, id, companyID))
}

func (r *Repository) CreateCustomer(ctx context.Context, c *core.Customer) error {
	return r.createContact(ctx, customersTable, &c.Contact)
}

func (r *Repository) GetCustomer(ctx context.Context, companyID, id string) (core.Customer, error) {
	c, err := r.getContact(ctx, customersTable, companyID, id)
	return core.Customer{Contact: c}, err
}

func (r *Repository) ListCustomers(ctx context.Context, companyID string) ([]core.Customer, error) {
	cs, err := r.listContacts(ctx, customersTable, companyID)
	if err != nil {
		return nil, err
	}
	out := make([]core.Customer, len(cs))
	for i, c := range cs {
		out[i] = core.Customer{Contact: c}
	}
	return out, nil
}

func (r *Repository) UpdateCustomer(ctx context.Context, c core.Customer) error {
	return r.updateContact(ctx, customersTable, c.Contact)
}

func (r *Repository) DeleteCustomer(ctx context.Context, companyID, id string) error {
	return r.deleteContact(ctx, customersTable, companyID, id)
}

func (r *Repository) CreateVendor(ctx context.Context, v *core.Vendor) error {
	return r.createContact(ctx, vendorsTable, &v.Contact)
}

func (r *Repository) GetVendor(ctx context.Context, companyID, id string) (core.Vendor, error) {
	c, err := r.getContact(ctx, vendorsTable, companyID, id)
	return core.Vendor{Contact: c}, err
}

func (r *Repository) ListVendors(ctx context.Context, companyID string) ([]core.Vendor, error) {
	cs, err := r.listContacts(ctx, vendorsTable, companyID)
	if err != nil {
		return nil, err
	}
	out := make([]core.Vendor, len(cs))
	for i, c := range cs {
		out[i] = core.Vendor{Contact: c}
	}
	return out, nil
}

func (r *Repository) UpdateVendor(ctx context.Context, v core.Vendor) error {
	return r.updateContact(ctx, vendorsTable, v.Contact)
}

func (r *Repository) DeleteVendor(ctx context.Context, companyID, id string) error {
	return r.deleteContact(ctx, vendorsTable, companyID, id)
}
