package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"ledger/internal/amqp"
	"ledger/internal/core"
	"ledger/internal/storage"
)

// ExpenseFilter narrows the expense list page.
type ExpenseFilter struct {
	Query    string
	Category string
	From, To core.Date
	Page     int
	PerPage  int
}

// ExpenseService orchestrates expense operations across SQLite and events.
type ExpenseService struct {
	storage *storage.Repository
	events  EventPublisher
	cache   Invalidator
	now     func() time.Time
}

func NewExpenseService(storage *storage.Repository, events EventPublisher, cache Invalidator) *ExpenseService {
	if cache == nil {
		cache = noopInvalidator{}
	}
	return &ExpenseService{
		storage: storage,
		events:  events,
		cache:   cache,
		now:     time.Now,
	}
}

func (s *ExpenseService) checkVendor(ctx context.Context, companyID, vendorID string) error {
	if vendorID == "" {
		return nil
	}
	if _, err := s.storage.GetVendor(ctx, companyID, vendorID); err != nil {
		return fmt.Errorf("vendor: %w", err)
	}
	return nil
}

// CreateExpense validates and saves an expense, then publishes expense.created.
func (s *ExpenseService) CreateExpense(ctx context.Context, companyID string, e core.Expense) (core.Expense, error) {
	e.ID = ""
	e.CompanyID = companyID
	e.Normalize()
	if err := e.Validate(); err != nil {
		return core.Expense{}, err
	}
	if err := s.checkVendor(ctx, companyID, e.VendorID); err != nil {
		return core.Expense{}, err
	}

	if err := s.storage.CreateExpense(ctx, &e); err != nil {
		return core.Expense{}, fmt.Errorf("save expense: %w", err)
	}
	s.cache.Invalidate(companyID)

	if s.events == nil {
		slog.WarnContext(ctx, "Event publisher not available, skipping expense event")
		return e, nil
	}
	msg := amqp.NewEventMessage(amqp.EventExpenseCreated, companyID, e.ID, e.Description, e.Amount.Cents, "")
	if err := s.events.PublishEvent(ctx, msg); err != nil {
		// Don't fail the request - expense is saved locally
		slog.ErrorContext(ctx, "Failed to publish expense event", "id", e.ID, "error", err)
	}
	return e, nil
}

func (s *ExpenseService) UpdateExpense(ctx context.Context, companyID string, e core.Expense) (core.Expense, error) {
	existing, err := s.storage.GetExpense(ctx, companyID, e.ID)
	if err != nil {
		return core.Expense{}, err
	}
	e.CompanyID = companyID
	e.RecurringID = existing.RecurringID
	e.CreatedAt = existing.CreatedAt
	e.Normalize()
	if err := e.Validate(); err != nil {
		return core.Expense{}, err
	}
	if err := s.checkVendor(ctx, companyID, e.VendorID); err != nil {
		return core.Expense{}, err
	}
	if err := s.storage.UpdateExpense(ctx, e); err != nil {
		return core.Expense{}, fmt.Errorf("update expense: %w", err)
	}
	s.cache.Invalidate(companyID)
	return e, nil
}

func (s *ExpenseService) DeleteExpense(ctx context.Context, companyID, id string) error {
	if err := s.storage.DeleteExpense(ctx, companyID, id); err != nil {
		return err
	}
	s.cache.Invalidate(companyID)
	return nil
}

func (s *ExpenseService) GetExpense(ctx context.Context, companyID, id string) (core.Expense, error) {
	return s.storage.GetExpense(ctx, companyID, id)
}

// AllExpenses returns every expense of the company, newest first.
func (s *ExpenseService) AllExpenses(ctx context.Context, companyID string) ([]core.Expense, error) {
	return s.storage.ListExpenses(ctx, companyID)
}

// ListExpenses returns one page of expenses matching f, newest first.
func (s *ExpenseService) ListExpenses(ctx context.Context, companyID string, f ExpenseFilter) (core.Page[core.Expense], error) {
	all, err := s.storage.ListExpenses(ctx, companyID)
	if err != nil {
		return core.Page[core.Expense]{}, err
	}
	items := core.Filter(all, func(e core.Expense) bool {
		if f.Category != "" && e.Category != f.Category {
			return false
		}
		if !f.From.IsZero() && e.Date.Before(f.From) {
			return false
		}
		if !f.To.IsZero() && f.To.Before(e.Date) {
			return false
		}
		return core.MatchesQuery(f.Query, e.Description, e.Category, e.VendorName, e.PaymentMethod)
	})
	return core.Paginate(items, f.Page, f.PerPage), nil
}

func (s *ExpenseService) Categories(ctx context.Context, companyID string) ([]string, error) {
	return s.storage.ListCategories(ctx, companyID)
}

// CreateRecurring saves a recurring expense template.
func (s *ExpenseService) CreateRecurring(ctx context.Context, companyID string, re core.RecurringExpense) (core.RecurringExpense, error) {
	re.ID = ""
	re.CompanyID = companyID
	if re.Category == "" {
		re.Category = core.DefaultCategory
	}
	if err := re.Validate(); err != nil {
		return core.RecurringExpense{}, err
	}
	if err := s.checkVendor(ctx, companyID, re.VendorID); err != nil {
		return core.RecurringExpense{}, err
	}
	if err := s.storage.CreateRecurring(ctx, &re); err != nil {
		return core.RecurringExpense{}, fmt.Errorf("save recurring expense: %w", err)
	}
	slog.InfoContext(ctx, "Recurring expense created",
		"company_id", companyID,
		"id", re.ID,
		"every", re.Every,
		"amount_cents", re.Amount.Cents)
	return re, nil
}

func (s *ExpenseService) ListRecurring(ctx context.Context, companyID string) ([]core.RecurringExpense, error) {
	return s.storage.ListRecurring(ctx, companyID)
}

func (s *ExpenseService) DeleteRecurring(ctx context.Context, companyID, id string) error {
	return s.storage.DeleteRecurring(ctx, companyID, id)
}
