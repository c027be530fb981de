package core

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type InvoiceStatus string

const (
	StatusDraft     InvoiceStatus = "draft"
	StatusSent      InvoiceStatus = "sent"
	StatusPaid      InvoiceStatus = "paid"
	StatusOverdue   InvoiceStatus = "overdue"
	StatusCancelled InvoiceStatus = "cancelled"
)

var (
	ErrNoItems           = errors.New("invoice must have at least one line item")
	ErrInvalidTransition = errors.New("invalid invoice status transition")
	ErrInvalidStatus     = errors.New("invalid invoice status")
	ErrNoCustomer        = errors.New("invoice must reference a customer")
	ErrDueBeforeIssue    = errors.New("due date must not be before issue date")
	ErrInvalidRate       = errors.New("rate must be between 0 and 100")
	ErrOverpayment       = errors.New("payment exceeds amount due")
	ErrNotPayable        = errors.New("invoice does not accept payments in its current status")
	ErrNotEditable       = errors.New("only draft invoices can be edited")
)

var hundred = decimal.NewFromInt(100)

type (
	InvoiceItem struct {
		ID              string
		InventoryItemID string
		Description     string
		Quantity        decimal.Decimal
		UnitPrice       Money
		DiscountPercent decimal.Decimal
		TaxRate         decimal.Decimal
		Position        int
	}

	InvoiceTotals struct {
		Subtotal Money
		Tax      Money
		Total    Money
	}

	Invoice struct {
		ID           string
		CompanyID    string
		CustomerID   string
		CustomerName string
		Number       string
		IssueDate    Date
		DueDate      Date
		Status       InvoiceStatus
		Currency     string
		Notes        string
		Items        []InvoiceItem
		Totals       InvoiceTotals
		AmountPaid   Money
		PaidAt       time.Time
		SentAt       time.Time
		CreatedAt    time.Time
		UpdatedAt    time.Time
	}
)

// ParseInvoiceStatus accepts the persisted status names.
func ParseInvoiceStatus(s string) (InvoiceStatus, error) {
	switch st := InvoiceStatus(strings.ToLower(strings.TrimSpace(s))); st {
	case StatusDraft, StatusSent, StatusPaid, StatusOverdue, StatusCancelled:
		return st, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidStatus, s)
}

// FormatInvoiceNumber renders prefix and sequence as e.g. INV-000042.
func FormatInvoiceNumber(prefix string, seq int64) string {
	prefix = strings.ToUpper(strings.TrimSpace(prefix))
	if prefix == "" {
		prefix = DefaultInvoicePrefix
	}
	return fmt.Sprintf("%s-%06d", prefix, seq)
}

// Gross is quantity times unit price before discount.
func (it InvoiceItem) Gross() decimal.Decimal {
	return it.Quantity.Mul(it.UnitPrice.Decimal())
}

// Net is the line amount after discount, rounded to cents.
func (it InvoiceItem) Net() Money {
	gross := it.Gross()
	if it.DiscountPercent.IsPositive() {
		gross = gross.Sub(gross.Mul(it.DiscountPercent).Div(hundred))
	}
	return MoneyFromDecimal(gross)
}

// Tax is the rounded net amount times the tax rate, rounded to cents.
func (it InvoiceItem) Tax() Money {
	if !it.TaxRate.IsPositive() {
		return Money{}
	}
	return MoneyFromDecimal(it.Net().Decimal().Mul(it.TaxRate).Div(hundred))
}

func (it InvoiceItem) Total() Money {
	return it.Net().Add(it.Tax())
}

func (it InvoiceItem) Validate() error {
	if strings.TrimSpace(it.Description) == "" {
		return ErrEmptyDescription
	}
	if len(it.Description) > maxDescriptionLength {
		return ErrDescriptionLength
	}
	if !it.Quantity.IsPositive() {
		return ErrInvalidQuantity
	}
	if it.UnitPrice.Cents < 0 {
		return ErrInvalidAmount
	}
	if it.DiscountPercent.IsNegative() || it.DiscountPercent.GreaterThan(hundred) {
		return ErrInvalidRate
	}
	if it.TaxRate.IsNegative() || it.TaxRate.GreaterThan(hundred) {
		return ErrInvalidRate
	}
	return nil
}

// ComputeTotals recomputes Totals from the line items.
func (inv *Invoice) ComputeTotals() {
	var t InvoiceTotals
	for _, it := range inv.Items {
		t.Subtotal = t.Subtotal.Add(it.Net())
		t.Tax = t.Tax.Add(it.Tax())
	}
	t.Total = t.Subtotal.Add(t.Tax)
	inv.Totals = t
}

// AmountDue is Total minus AmountPaid, never negative.
func (inv Invoice) AmountDue() Money {
	due := inv.Totals.Total.Sub(inv.AmountPaid)
	if due.Cents < 0 {
		return Money{}
	}
	return due
}

// IsOverdue reports whether the invoice is unpaid past its due date as of today.
func (inv Invoice) IsOverdue(today Date) bool {
	switch inv.Status {
	case StatusSent, StatusOverdue:
	default:
		return false
	}
	return !inv.DueDate.IsZero() && inv.DueDate.Before(today)
}

// EffectiveStatus is the status to display: sent invoices past due show as overdue.
func (inv Invoice) EffectiveStatus(today Date) InvoiceStatus {
	if inv.Status == StatusSent && inv.IsOverdue(today) {
		return StatusOverdue
	}
	return inv.Status
}

// Editable reports whether header and lines may still change.
func (inv Invoice) Editable() bool {
	return inv.Status == StatusDraft
}

// Normalize applies defaults: currency, issue date and a due date from payment terms.
func (inv *Invoice) Normalize(today Date, paymentTermsDays int) {
	inv.Currency = strings.ToUpper(strings.TrimSpace(inv.Currency))
	if inv.Currency == "" {
		inv.Currency = DefaultCurrency
	}
	if inv.Status == "" {
		inv.Status = StatusDraft
	}
	if inv.IssueDate.IsZero() {
		inv.IssueDate = today
	}
	if paymentTermsDays <= 0 {
		paymentTermsDays = DefaultPaymentTermsDays
	}
	if inv.DueDate.IsZero() {
		inv.DueDate = inv.IssueDate.AddDays(paymentTermsDays)
	}
	inv.Notes = strings.TrimSpace(inv.Notes)
	for i := range inv.Items {
		inv.Items[i].Position = i
		inv.Items[i].Description = strings.TrimSpace(inv.Items[i].Description)
	}
}

func (inv Invoice) Validate() error {
	if strings.TrimSpace(inv.CustomerID) == "" {
		return ErrNoCustomer
	}
	if err := inv.IssueDate.Validate(); err != nil {
		return fmt.Errorf("issue date: %w", err)
	}
	if err := inv.DueDate.Validate(); err != nil {
		return fmt.Errorf("due date: %w", err)
	}
	if inv.DueDate.Before(inv.IssueDate) {
		return ErrDueBeforeIssue
	}
	if len(inv.Currency) != 3 {
		return ErrInvalidCurrency
	}
	if len(inv.Notes) > maxNotesLength {
		return ErrNotesLength
	}
	if len(inv.Items) == 0 {
		return ErrNoItems
	}
	for i, it := range inv.Items {
		if err := it.Validate(); err != nil {
			return fmt.Errorf("line %d: %w", i+1, err)
		}
	}
	return nil
}

// CanTransition reports whether a user may move an invoice from → to.
// Overdue behaves like sent: it can be paid or cancelled. Overdue itself is
// never a target; it follows from the due date, see MarkOverdue.
func CanTransition(from, to InvoiceStatus) bool {
	switch from {
	case StatusDraft:
		return to == StatusSent || to == StatusCancelled
	case StatusSent, StatusOverdue:
		return to == StatusPaid || to == StatusCancelled
	}
	return false
}

// MarkOverdue moves a sent invoice past its due date to overdue.
func (inv *Invoice) MarkOverdue(today Date) error {
	if inv.Status != StatusSent || !inv.IsOverdue(today) {
		return fmt.Errorf("%w: %s invoice due %s is not overdue on %s",
			ErrInvalidTransition, inv.Status, inv.DueDate, today)
	}
	inv.Status = StatusOverdue
	return nil
}

// Transition moves the invoice to the given status.
func (inv *Invoice) Transition(to InvoiceStatus, now time.Time) error {
	if !CanTransition(inv.Status, to) {
		return fmt.Errorf("%w: %s to %s", ErrInvalidTransition, inv.Status, to)
	}
	switch to {
	case StatusSent:
		inv.SentAt = now
	case StatusPaid:
		inv.AmountPaid = inv.Totals.Total
		inv.PaidAt = now
	}
	inv.Status = to
	return nil
}

// RecordPayment adds a partial or full payment. Paying the full amount due
// moves the invoice to paid.
func (inv *Invoice) RecordPayment(amount Money, now time.Time) error {
	if err := amount.Validate(); err != nil {
		return err
	}
	if inv.Status != StatusSent && inv.Status != StatusOverdue {
		return ErrNotPayable
	}
	if amount.Cents > inv.AmountDue().Cents {
		return ErrOverpayment
	}
	inv.AmountPaid = inv.AmountPaid.Add(amount)
	if inv.AmountDue().IsZero() {
		inv.Status = StatusPaid
		inv.PaidAt = now
	}
	return nil
}
