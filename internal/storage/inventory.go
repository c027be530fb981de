package storage

import (
	"context"
	"fmt"

	"ledger/internal/core"
)

const inventoryColumns = `id, company_id, sku, name, description, quantity, unit_price_cents, cost_price_cents, reorder_level, created_at, updated_at`

func scanInventory(s scanner) (core.InventoryItem, error) {
	var it core.InventoryItem
	var created, updated int64
	err := s.Scan(&it.ID, &it.CompanyID, &it.SKU, &it.Name, &it.Description, &it.Quantity,
		&it.UnitPrice.Cents, &it.CostPrice.Cents, &it.ReorderLevel, &created, &updated)
	it.CreatedAt = fromUnix(created)
	it.UpdatedAt = fromUnix(updated)
	return it, err
}

// CreateInventoryItem inserts an item. A SKU already used in the company yields ErrConflict.
func (r *Repository) CreateInventoryItem(ctx context.Context, it *core.InventoryItem) error {
	if it.ID == "" {
		it.ID = newID()
	}
	now := r.now()
	it.CreatedAt, it.UpdatedAt = now, now
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO inventory_items (`+inventoryColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		it.ID, it.CompanyID, it.SKU, it.Name, it.Description, it.Quantity,
		it.UnitPrice.Cents, it.CostPrice.Cents, it.ReorderLevel, now.Unix(), now.Unix())
	if err != nil {
		return fmt.Errorf("insert inventory item: %w", mapError(err))
	}
	return nil
}

func (r *Repository) GetInventoryItem(ctx context.Context, companyID, id string) (core.InventoryItem, error) {
	it, err := scanInventory(r.db.QueryRowContext(ctx,
		`SELECT `+inventoryColumns+` FROM inventory_items WHERE id = ? AND company_id = ?`, id, companyID))
	if err != nil {
		return core.InventoryItem{}, mapError(err)
	}
	return it, nil
}

func (r *Repository) ListInventory(ctx context.Context, companyID string) ([]core.InventoryItem, error) {
	return r.queryInventory(ctx,
		`SELECT `+inventoryColumns+` FROM inventory_items WHERE company_id = ? ORDER BY name COLLATE NOCASE`,
		companyID)
}

// ListLowStock returns items at or below their reorder level.
func (r *Repository) ListLowStock(ctx context.Context, companyID string) ([]core.InventoryItem, error) {
	return r.queryInventory(ctx,
		`SELECT `+inventoryColumns+` FROM inventory_items
		 WHERE company_id = ? AND reorder_level > 0 AND quantity <= reorder_level
		 ORDER BY name COLLATE NOCASE`,
		companyID)
}

func (r *Repository) queryInventory(ctx context.Context, query string, args ...any) ([]core.InventoryItem, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list inventory: %w", err)
	}
	defer rows.Close()

	var out []core.InventoryItem
	for rows.Next() {
		it, err := scanInventory(rows)
		if err != nil {
			return nil, fmt.Errorf("scan inventory item: %w", err)
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func (r *Repository) UpdateInventoryItem(ctx context.Context, it core.InventoryItem) error {
	return checkAffected(r.db.ExecContext(ctx,
		`UPDATE inventory_items SET sku = ?, name = ?, description = ?, quantity = ?,
		 unit_price_cents = ?, cost_price_cents = ?, reorder_level = ?, updated_at = ?
		 WHERE id = ? AND company_id = ?`,
		it.SKU, it.Name, it.Description, it.Quantity, it.UnitPrice.Cents, it.CostPrice.Cents,
		it.ReorderLevel, r.now().Unix(), it.ID, it.CompanyID))
}

func (r *Repository) DeleteInventoryItem(ctx context.Context, companyID, id string) error {
	return checkAffected(r.db.ExecContext(ctx,
		`DELETE FROM inventory_items WHERE id = ? AND company_id = ?`, id, companyID))
}

// LowStockNotifiedOn reports whether the item was already reported on day.
func (r *Repository) LowStockNotifiedOn(ctx context.Context, id string, day core.Date) (bool, error) {
	var notified bool
	err := r.db.QueryRowContext(ctx,
		`SELECT low_stock_notified_on = ? FROM inventory_items WHERE id = ?`, day.String(), id).Scan(&notified)
	if err != nil {
		return false, mapError(err)
	}
	return notified, nil
}

// MarkLowStockNotified records that the item was reported on day. It returns
// false when a notification for that day was already recorded.
func (r *Repository) MarkLowStockNotified(ctx context.Context, id string, day core.Date) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE inventory_items SET low_stock_notified_on = ? WHERE id = ? AND low_stock_notified_on <> ?`,
		day.String(), id, day.String())
	if err != nil {
		return false, fmt.Errorf("mark low stock notified: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
