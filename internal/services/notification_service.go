package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"ledger/internal/amqp"
	"ledger/internal/core"
	"ledger/internal/storage"
)

const defaultNotificationLimit = 50

// notifiedRoles receive event and scanner notifications.
var notifiedRoles = []core.Role{core.RoleAdmin, core.RoleAccountant}

// NotificationService turns ledger events into per-user notifications and
// serves the notification inbox.
type NotificationService struct {
	storage *storage.Repository
}

func NewNotificationService(storage *storage.Repository) *NotificationService {
	return &NotificationService{storage: storage}
}

// HandleEvent fans an event out to the company's admins and accountants.
func (s *NotificationService) HandleEvent(ctx context.Context, msg *amqp.EventMessage) error {
	if msg == nil {
		return errors.New("nil event")
	}
	currency := msg.Currency
	if currency == "" {
		currency = s.companyCurrency(ctx, msg.CompanyID)
	}
	amount := core.Money{Cents: msg.AmountCents}.Format(currency)

	var n core.Notification
	switch msg.Type {
	case amqp.EventInvoiceSent:
		n = core.Notification{
			Kind:    core.NotifyInvoiceSent,
			Title:   fmt.Sprintf("Invoice %s sent", msg.Reference),
			Message: fmt.Sprintf("Invoice %s for %s was sent to the customer.", msg.Reference, amount),
			Link:    "/invoices/" + msg.EntityID,
		}
	case amqp.EventInvoicePaid:
		n = core.Notification{
			Kind:    core.NotifyInvoicePaid,
			Title:   fmt.Sprintf("Invoice %s paid", msg.Reference),
			Message: fmt.Sprintf("Invoice %s for %s has been paid in full.", msg.Reference, amount),
			Link:    "/invoices/" + msg.EntityID,
		}
	case amqp.EventExpenseCreated:
		n = core.Notification{
			Kind:    core.NotifyExpenseCreated,
			Title:   "New expense recorded",
			Message: fmt.Sprintf("%s: %s", msg.Reference, amount),
			Link:    "/expenses/" + msg.EntityID + "/edit",
		}
	default:
		return fmt.Errorf("%w: %s", amqp.ErrUnknownEvent, msg.Type)
	}
	if msg.ID != "" {
		n.DedupeKey = "event:" + msg.ID
	}

	count, err := s.NotifyCompany(ctx, msg.CompanyID, n, notifiedRoles...)
	if err != nil {
		return err
	}
	slog.DebugContext(ctx, "Event fanned out",
		"event_id", msg.ID,
		"type", msg.Type,
		"company_id", msg.CompanyID,
		"recipients", count)
	return nil
}

// NotifyCompany stores a copy of n for every company user holding one of roles
// and returns how many were created. With a DedupeKey set, users who already
// hold that key are skipped, so a retried fan-out fills only the gaps.
func (s *NotificationService) NotifyCompany(ctx context.Context, companyID string, n core.Notification, roles ...core.Role) (int, error) {
	users, err := s.storage.ListUsersByRole(ctx, companyID, roles...)
	if err != nil {
		return 0, fmt.Errorf("list recipients: %w", err)
	}
	created := 0
	for _, u := range users {
		note := n
		note.ID = ""
		note.CompanyID = companyID
		note.UserID = u.ID
		written, err := s.storage.CreateNotification(ctx, &note)
		if err != nil {
			return created, fmt.Errorf("notify %s: %w", u.ID, err)
		}
		if written {
			created++
		}
	}
	return created, nil
}

// NotifyLowStock notifies about item at most once per day. It reports
// whether a notification was sent. The day is marked only after the
// fan-out succeeds, so a failed attempt is retried by the next scan.
func (s *NotificationService) NotifyLowStock(ctx context.Context, item core.InventoryItem, today core.Date) (bool, error) {
	done, err := s.storage.LowStockNotifiedOn(ctx, item.ID, today)
	if err != nil || done {
		return false, err
	}
	_, err = s.NotifyCompany(ctx, item.CompanyID, core.Notification{
		Kind:      core.NotifyLowStock,
		Title:     fmt.Sprintf("Low stock: %s", item.Name),
		Message:   fmt.Sprintf("%s (%s) has %d left, reorder level is %d.", item.Name, item.SKU, item.Quantity, item.ReorderLevel),
		Link:      "/inventory/" + item.ID + "/edit",
		DedupeKey: "low_stock:" + item.ID + ":" + today.String(),
	}, notifiedRoles...)
	if err != nil {
		return false, err
	}
	first, err := s.storage.MarkLowStockNotified(ctx, item.ID, today)
	if err != nil || !first {
		return false, err
	}
	slog.InfoContext(ctx, "Low stock notified", "item_id", item.ID, "company_id", item.CompanyID, "quantity", item.Quantity)
	return true, nil
}

// NotifyOverdue tells the company an invoice passed its due date.
func (s *NotificationService) NotifyOverdue(ctx context.Context, inv core.Invoice) error {
	_, err := s.NotifyCompany(ctx, inv.CompanyID, core.Notification{
		Kind:  core.NotifyInvoiceOverdue,
		Title: fmt.Sprintf("Invoice %s is overdue", inv.Number),
		Message: fmt.Sprintf("%s owes %s, due %s.",
			inv.CustomerName, inv.AmountDue().Format(inv.Currency), inv.DueDate.String()),
		Link:      "/invoices/" + inv.ID,
		DedupeKey: "overdue:" + inv.ID,
	}, notifiedRoles...)
	return err
}

// List returns the newest notifications of a user.
func (s *NotificationService) List(ctx context.Context, userID string, limit int) ([]core.Notification, error) {
	if limit <= 0 {
		limit = defaultNotificationLimit
	}
	return s.storage.ListNotifications(ctx, userID, limit)
}

func (s *NotificationService) Unread(ctx context.Context, userID string) (int, error) {
	return s.storage.CountUnread(ctx, userID)
}

func (s *NotificationService) MarkRead(ctx context.Context, userID, id string) error {
	return s.storage.MarkNotificationRead(ctx, userID, id)
}

func (s *NotificationService) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	return s.storage.MarkAllNotificationsRead(ctx, userID)
}

func (s *NotificationService) companyCurrency(ctx context.Context, companyID string) string {
	company, err := s.storage.GetCompany(ctx, companyID)
	if err != nil || company.Currency == "" {
		return core.DefaultCurrency
	}
	return company.Currency
}
