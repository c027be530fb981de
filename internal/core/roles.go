package core

import (
	"errors"
	"strings"
	"time"
)

type (
	Role       string
	Permission int
)

const (
	RoleAdmin      Role = "admin"
	RoleAccountant Role = "accountant"
	RoleViewer     Role = "viewer"
)

const (
	PermRead Permission = iota + 1
	PermWrite
	PermManageUsers
	PermManageReports
)

var ErrInvalidRole = errors.New("invalid role")

// Roles lists assignable roles from most to least privileged.
var Roles = []Role{RoleAdmin, RoleAccountant, RoleViewer}

func ParseRole(s string) (Role, error) {
	switch r := Role(strings.ToLower(strings.TrimSpace(s))); r {
	case RoleAdmin, RoleAccountant, RoleViewer:
		return r, nil
	}
	return "", ErrInvalidRole
}

// Can reports whether the role grants p.
func (r Role) Can(p Permission) bool {
	switch r {
	case RoleAdmin:
		return true
	case RoleAccountant:
		return p == PermRead || p == PermWrite
	case RoleViewer:
		return p == PermRead
	}
	return false
}

func (r Role) String() string { return string(r) }

type ReportKind string

const (
	ReportProfitLoss         ReportKind = "profit_loss"
	ReportARAging            ReportKind = "ar_aging"
	ReportExpensesByCategory ReportKind = "expenses_by_category"
	ReportSalesByCustomer    ReportKind = "sales_by_customer"
)

// ReportKinds is the set of built-in reports seeded for every company.
var ReportKinds = []ReportKind{
	ReportProfitLoss,
	ReportARAging,
	ReportExpensesByCategory,
	ReportSalesByCustomer,
}

var reportTitles = map[ReportKind]string{
	ReportProfitLoss:         "Profit & Loss",
	ReportARAging:            "Accounts Receivable Aging",
	ReportExpensesByCategory: "Expenses by Category",
	ReportSalesByCustomer:    "Sales by Customer",
}

func (k ReportKind) Title() string {
	if t, ok := reportTitles[k]; ok {
		return t
	}
	return string(k)
}

func (k ReportKind) Valid() bool {
	_, ok := reportTitles[k]
	return ok
}

type ReportDefinition struct {
	ID          string
	CompanyID   string
	Kind        ReportKind
	Name        string
	Description string
	CreatedAt   time.Time
}

type NotificationKind string

const (
	NotifyInvoiceSent    NotificationKind = "invoice_sent"
	NotifyInvoicePaid    NotificationKind = "invoice_paid"
	NotifyInvoiceOverdue NotificationKind = "invoice_overdue"
	NotifyExpenseCreated NotificationKind = "expense_created"
	NotifyLowStock       NotificationKind = "low_stock"
	NotifySystem         NotificationKind = "system"
)

type Notification struct {
	ID        string
	CompanyID string
	UserID    string
	Kind      NotificationKind
	Title     string
	Message   string
	Link      string
	Read      bool
	CreatedAt time.Time
	// DedupeKey, when set, stores at most one copy per user.
	DedupeKey string
}
