package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"ledger/internal/amqp"
	"ledger/internal/core"
	"ledger/internal/storage"
)

// InvoiceFilter narrows the invoice list page.
type InvoiceFilter struct {
	Query   string
	Status  core.InvoiceStatus
	Page    int
	PerPage int
}

// InvoiceService orchestrates invoice writes across storage, events and caches.
type InvoiceService struct {
	storage       *storage.Repository
	events        EventPublisher
	notifications *NotificationService
	cache         Invalidator
	now           func() time.Time
}

func NewInvoiceService(storage *storage.Repository, events EventPublisher, notifications *NotificationService, cache Invalidator) *InvoiceService {
	if cache == nil {
		cache = noopInvalidator{}
	}
	return &InvoiceService{
		storage:       storage,
		events:        events,
		notifications: notifications,
		cache:         cache,
		now:           time.Now,
	}
}

func (s *InvoiceService) today() core.Date {
	return core.DateOf(s.now())
}

// prepare applies company defaults, checks the customer and recomputes totals.
func (s *InvoiceService) prepare(ctx context.Context, companyID string, inv *core.Invoice) error {
	company, err := s.storage.GetCompany(ctx, companyID)
	if err != nil {
		return fmt.Errorf("load company: %w", err)
	}
	inv.CompanyID = companyID
	if inv.Currency == "" {
		inv.Currency = company.Currency
	}
	inv.Normalize(s.today(), company.PaymentTermsDays)
	if err := inv.Validate(); err != nil {
		return err
	}
	if _, err := s.storage.GetCustomer(ctx, companyID, inv.CustomerID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return core.ErrNoCustomer
		}
		return fmt.Errorf("load customer: %w", err)
	}
	inv.ComputeTotals()
	return nil
}

// Create saves a new draft invoice and assigns its number.
func (s *InvoiceService) Create(ctx context.Context, companyID string, inv core.Invoice) (core.Invoice, error) {
	inv.ID = ""
	inv.Number = ""
	inv.Status = core.StatusDraft
	inv.AmountPaid = core.Money{}
	if err := s.prepare(ctx, companyID, &inv); err != nil {
		return core.Invoice{}, err
	}
	if err := s.storage.CreateInvoice(ctx, &inv); err != nil {
		return core.Invoice{}, fmt.Errorf("save invoice: %w", err)
	}
	s.cache.Invalidate(companyID)
	return inv, nil
}

// Update rewrites a draft invoice. Number and status are preserved.
func (s *InvoiceService) Update(ctx context.Context, companyID string, inv core.Invoice) (core.Invoice, error) {
	existing, err := s.storage.GetInvoice(ctx, companyID, inv.ID)
	if err != nil {
		return core.Invoice{}, err
	}
	if !existing.Editable() {
		return core.Invoice{}, core.ErrNotEditable
	}
	inv.Number = existing.Number
	inv.Status = existing.Status
	inv.CreatedAt = existing.CreatedAt
	if err := s.prepare(ctx, companyID, &inv); err != nil {
		return core.Invoice{}, err
	}
	if err := s.storage.UpdateInvoice(ctx, inv); err != nil {
		if errors.Is(err, storage.ErrStale) {
			return core.Invoice{}, core.ErrNotEditable
		}
		return core.Invoice{}, fmt.Errorf("update invoice: %w", err)
	}
	s.cache.Invalidate(companyID)
	slog.InfoContext(ctx, "Invoice updated", "company_id", companyID, "invoice_id", inv.ID, "total_cents", inv.Totals.Total.Cents)
	return inv, nil
}

func (s *InvoiceService) Get(ctx context.Context, companyID, id string) (core.Invoice, error) {
	return s.storage.GetInvoice(ctx, companyID, id)
}

// List returns one page of invoices. Sent invoices past due are reported
// as overdue and filtered as such.
func (s *InvoiceService) List(ctx context.Context, companyID string, f InvoiceFilter) (core.Page[core.Invoice], error) {
	all, err := s.storage.ListInvoices(ctx, companyID)
	if err != nil {
		return core.Page[core.Invoice]{}, err
	}
	today := s.today()
	for i := range all {
		all[i].Status = all[i].EffectiveStatus(today)
	}
	items := core.Filter(all, func(inv core.Invoice) bool {
		if f.Status != "" && inv.Status != f.Status {
			return false
		}
		return core.MatchesQuery(f.Query, inv.Number, inv.CustomerName, inv.Notes)
	})
	return core.Paginate(items, f.Page, f.PerPage), nil
}

// All returns every invoice of the company with its effective status, for exports.
func (s *InvoiceService) All(ctx context.Context, companyID string) ([]core.Invoice, error) {
	all, err := s.storage.ListInvoices(ctx, companyID)
	if err != nil {
		return nil, err
	}
	today := s.today()
	for i := range all {
		all[i].Status = all[i].EffectiveStatus(today)
	}
	return all, nil
}

// Transition moves an invoice to a new status. Sending adjusts inventory;
// sending and paying publish events.
func (s *InvoiceService) Transition(ctx context.Context, companyID, id string, to core.InvoiceStatus) (core.Invoice, error) {
	inv, err := s.storage.GetInvoice(ctx, companyID, id)
	if err != nil {
		return core.Invoice{}, err
	}
	prev := inv
	now := s.now()
	if err := inv.Transition(to, now); err != nil {
		return core.Invoice{}, err
	}

	if to == core.StatusSent {
		touched, err := s.storage.MarkInvoiceSent(ctx, inv)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return core.Invoice{}, core.ErrInvalidTransition
			}
			return core.Invoice{}, fmt.Errorf("mark invoice sent: %w", err)
		}
		if s.notifications != nil {
			for _, item := range touched {
				if item.LowStock() {
					if _, err := s.notifications.NotifyLowStock(ctx, item, s.today()); err != nil {
						slog.ErrorContext(ctx, "Failed to notify low stock", "item_id", item.ID, "error", err)
					}
				}
			}
		}
	} else if err := s.storage.UpdateInvoiceState(ctx, prev, inv); err != nil {
		return core.Invoice{}, fmt.Errorf("update invoice status: %w", err)
	}

	s.cache.Invalidate(companyID)
	slog.InfoContext(ctx, "Invoice status changed",
		"company_id", companyID,
		"invoice_id", inv.ID,
		"number", inv.Number,
		"status", inv.Status)

	switch inv.Status {
	case core.StatusSent:
		s.publish(ctx, amqp.EventInvoiceSent, inv)
	case core.StatusPaid:
		s.publish(ctx, amqp.EventInvoicePaid, inv)
	}
	return inv, nil
}

// RecordPayment adds a payment. A payment covering the amount due marks the
// invoice paid.
func (s *InvoiceService) RecordPayment(ctx context.Context, companyID, id string, amount core.Money) (core.Invoice, error) {
	inv, err := s.storage.GetInvoice(ctx, companyID, id)
	if err != nil {
		return core.Invoice{}, err
	}
	prev := inv
	if err := inv.RecordPayment(amount, s.now()); err != nil {
		return core.Invoice{}, err
	}
	if err := s.storage.UpdateInvoiceState(ctx, prev, inv); err != nil {
		return core.Invoice{}, fmt.Errorf("record payment: %w", err)
	}
	s.cache.Invalidate(companyID)
	slog.InfoContext(ctx, "Payment recorded",
		"company_id", companyID,
		"invoice_id", inv.ID,
		"amount_cents", amount.Cents,
		"due_cents", inv.AmountDue().Cents)

	if inv.Status == core.StatusPaid {
		s.publish(ctx, amqp.EventInvoicePaid, inv)
	}
	return inv, nil
}

// Delete removes a draft or cancelled invoice.
func (s *InvoiceService) Delete(ctx context.Context, companyID, id string) error {
	inv, err := s.storage.GetInvoice(ctx, companyID, id)
	if err != nil {
		return err
	}
	if inv.Status != core.StatusDraft && inv.Status != core.StatusCancelled {
		return fmt.Errorf("%w: only draft or cancelled invoices can be deleted", core.ErrInvalidTransition)
	}
	if err := s.storage.DeleteInvoice(ctx, companyID, id); err != nil {
		return err
	}
	s.cache.Invalidate(companyID)
	return nil
}

// MarkOverdue persists the overdue status for a sent invoice past due.
// It reports whether the invoice changed.
func (s *InvoiceService) MarkOverdue(ctx context.Context, inv core.Invoice) (bool, error) {
	if !inv.IsOverdue(s.today()) || inv.Status != core.StatusSent {
		return false, nil
	}
	prev := inv
	if err := inv.MarkOverdue(s.today()); err != nil {
		return false, err
	}
	if err := s.storage.UpdateInvoiceState(ctx, prev, inv); err != nil {
		if errors.Is(err, storage.ErrStale) {
			// Paid or cancelled since it was listed.
			return false, nil
		}
		return false, fmt.Errorf("mark overdue: %w", err)
	}
	s.cache.Invalidate(inv.CompanyID)
	return true, nil
}

func (s *InvoiceService) publish(ctx context.Context, t amqp.EventType, inv core.Invoice) {
	if s.events == nil {
		slog.WarnContext(ctx, "Event publisher not available, skipping event", "type", t)
		return
	}
	msg := amqp.NewEventMessage(t, inv.CompanyID, inv.ID, inv.Number, inv.Totals.Total.Cents, inv.Currency)
	if err := s.events.PublishEvent(ctx, msg); err != nil {
		// Don't fail the request, the invoice is saved.
		slog.ErrorContext(ctx, "Failed to publish event", "type", t, "invoice_id", inv.ID, "error", err)
	}
}
