package services

import (
	"context"
	"fmt"
	"log/slog"

	"ledger/internal/core"
	"ledger/internal/storage"
)

// ListFilter narrows customer, vendor and inventory list pages.
type ListFilter struct {
	Query   string
	Page    int
	PerPage int
}

// DirectoryService manages customers, vendors and inventory items.
type DirectoryService struct {
	storage *storage.Repository
}

func NewDirectoryService(storage *storage.Repository) *DirectoryService {
	return &DirectoryService{storage: storage}
}

func contactMatches(c core.Contact, q string) bool {
	return core.MatchesQuery(q, c.Name, c.Email, c.Phone, c.TaxID)
}

// Customers

func (s *DirectoryService) CreateCustomer(ctx context.Context, companyID string, c core.Customer) (core.Customer, error) {
	c.ID = ""
	c.CompanyID = companyID
	c.Normalize()
	if err := c.Validate(); err != nil {
		return core.Customer{}, err
	}
	if err := s.storage.CreateCustomer(ctx, &c); err != nil {
		return core.Customer{}, err
	}
	slog.InfoContext(ctx, "Customer created", "company_id", companyID, "customer_id", c.ID)
	return c, nil
}

func (s *DirectoryService) UpdateCustomer(ctx context.Context, companyID string, c core.Customer) (core.Customer, error) {
	existing, err := s.storage.GetCustomer(ctx, companyID, c.ID)
	if err != nil {
		return core.Customer{}, err
	}
	c.CompanyID = companyID
	c.CreatedAt = existing.CreatedAt
	c.Normalize()
	if err := c.Validate(); err != nil {
		return core.Customer{}, err
	}
	if err := s.storage.UpdateCustomer(ctx, c); err != nil {
		return core.Customer{}, err
	}
	return c, nil
}

func (s *DirectoryService) GetCustomer(ctx context.Context, companyID, id string) (core.Customer, error) {
	return s.storage.GetCustomer(ctx, companyID, id)
}

// DeleteCustomer fails with storage.ErrConflict while invoices reference the customer.
func (s *DirectoryService) DeleteCustomer(ctx context.Context, companyID, id string) error {
	return s.storage.DeleteCustomer(ctx, companyID, id)
}

func (s *DirectoryService) AllCustomers(ctx context.Context, companyID string) ([]core.Customer, error) {
	return s.storage.ListCustomers(ctx, companyID)
}

func (s *DirectoryService) ListCustomers(ctx context.Context, companyID string, f ListFilter) (core.Page[core.Customer], error) {
	all, err := s.storage.ListCustomers(ctx, companyID)
	if err != nil {
		return core.Page[core.Customer]{}, fmt.Errorf("list customers: %w", err)
	}
	items := core.Filter(all, func(c core.Customer) bool { return contactMatches(c.Contact, f.Query) })
	return core.Paginate(items, f.Page, f.PerPage), nil
}

// Vendors

func (s *DirectoryService) CreateVendor(ctx context.Context, companyID string, v core.Vendor) (core.Vendor, error) {
	v.ID = ""
	v.CompanyID = companyID
	v.Normalize()
	if err := v.Validate(); err != nil {
		return core.Vendor{}, err
	}
	if err := s.storage.CreateVendor(ctx, &v); err != nil {
		return core.Vendor{}, err
	}
	slog.InfoContext(ctx, "Vendor created", "company_id", companyID, "vendor_id", v.ID)
	return v, nil
}

func (s *DirectoryService) UpdateVendor(ctx context.Context, companyID string, v core.Vendor) (core.Vendor, error) {
	existing, err := s.storage.GetVendor(ctx, companyID, v.ID)
	if err != nil {
		return core.Vendor{}, err
	}
	v.CompanyID = companyID
	v.CreatedAt = existing.CreatedAt
	v.Normalize()
	if err := v.Validate(); err != nil {
		return core.Vendor{}, err
	}
	if err := s.storage.UpdateVendor(ctx, v); err != nil {
		return core.Vendor{}, err
	}
	return v, nil
}

func (s *DirectoryService) GetVendor(ctx context.Context, companyID, id string) (core.Vendor, error) {
	return s.storage.GetVendor(ctx, companyID, id)
}

func (s *DirectoryService) DeleteVendor(ctx context.Context, companyID, id string) error {
	return s.storage.DeleteVendor(ctx, companyID, id)
}

func (s *DirectoryService) AllVendors(ctx context.Context, companyID string) ([]core.Vendor, error) {
	return s.storage.ListVendors(ctx, companyID)
}

func (s *DirectoryService) ListVendors(ctx context.Context, companyID string, f ListFilter) (core.Page[core.Vendor], error) {
	all, err := s.storage.ListVendors(ctx, companyID)
	if err != nil {
		return core.Page[core.Vendor]{}, fmt.Errorf("list vendors: %w", err)
	}
	items := core.Filter(all, func(v core.Vendor) bool { return contactMatches(v.Contact, f.Query) })
	return core.Paginate(items, f.Page, f.PerPage), nil
}

// Inventory

func (s *DirectoryService) CreateItem(ctx context.Context, companyID string, it core.InventoryItem) (core.InventoryItem, error) {
	it.ID = ""
	it.CompanyID = companyID
	it.Normalize()
	if err := it.Validate(); err != nil {
		return core.InventoryItem{}, err
	}
	if err := s.storage.CreateInventoryItem(ctx, &it); err != nil {
		return core.InventoryItem{}, err
	}
	slog.InfoContext(ctx, "Inventory item created", "company_id", companyID, "item_id", it.ID, "sku", it.SKU)
	return it, nil
}

func (s *DirectoryService) UpdateItem(ctx context.Context, companyID string, it core.InventoryItem) (core.InventoryItem, error) {
	existing, err := s.storage.GetInventoryItem(ctx, companyID, it.ID)
	if err != nil {
		return core.InventoryItem{}, err
	}
	it.CompanyID = companyID
	it.CreatedAt = existing.CreatedAt
	it.Normalize()
	if err := it.Validate(); err != nil {
		return core.InventoryItem{}, err
	}
	if err := s.storage.UpdateInventoryItem(ctx, it); err != nil {
		return core.InventoryItem{}, err
	}
	return it, nil
}

func (s *DirectoryService) GetItem(ctx context.Context, companyID, id string) (core.InventoryItem, error) {
	return s.storage.GetInventoryItem(ctx, companyID, id)
}

func (s *DirectoryService) DeleteItem(ctx context.Context, companyID, id string) error {
	return s.storage.DeleteInventoryItem(ctx, companyID, id)
}

func (s *DirectoryService) AllItems(ctx context.Context, companyID string) ([]core.InventoryItem, error) {
	return s.storage.ListInventory(ctx, companyID)
}

func (s *DirectoryService) ListItems(ctx context.Context, companyID string, f ListFilter) (core.Page[core.InventoryItem], error) {
	all, err := s.storage.ListInventory(ctx, companyID)
	if err != nil {
		return core.Page[core.InventoryItem]{}, fmt.Errorf("list inventory: %w", err)
	}
	items := core.Filter(all, func(it core.InventoryItem) bool {
		return core.MatchesQuery(f.Query, it.SKU, it.Name, it.Description)
	})
	return core.Paginate(items, f.Page, f.PerPage), nil
}
