package core

import (
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"
)

const (
	Monthly RepetitionType = "monthly"
	Yearly  RepetitionType = "yearly"
	Weekly  RepetitionType = "weekly"
	Daily   RepetitionType = "daily"
)

const (
	DefaultCurrency         = "EUR"
	DefaultPaymentTermsDays = 30
	DefaultInvoicePrefix    = "INV"
	DefaultCategory         = "Uncategorized"

	maxNameLength        = 120
	maxDescriptionLength = 200
	maxNotesLength       = 2000
)

type (
	RepetitionType string

	Date struct {
		time.Time
	}

	Money struct {
		Cents int64
	}

	Company struct {
		ID               string
		Name             string
		Email            string
		Phone            string
		Address          string
		TaxID            string
		Currency         string
		InvoicePrefix    string
		PaymentTermsDays int
		CreatedAt        time.Time
	}

	User struct {
		ID           string
		CompanyID    string
		Email        string
		DisplayName  string
		PasswordHash string
		Role         Role
		CreatedAt    time.Time
	}

	// Contact is the shared shape of customers and vendors.
	Contact struct {
		ID        string
		CompanyID string
		Name      string
		Email     string
		Phone     string
		Address   string
		TaxID     string
		Notes     string
		CreatedAt time.Time
		UpdatedAt time.Time
	}

	Customer struct {
		Contact
	}

	Vendor struct {
		Contact
	}

	InventoryItem struct {
		ID           string
		CompanyID    string
		SKU          string
		Name         string
		Description  string
		Quantity     int64
		UnitPrice    Money
		CostPrice    Money
		ReorderLevel int64
		CreatedAt    time.Time
		UpdatedAt    time.Time
	}

	Expense struct {
		ID            string
		CompanyID     string
		VendorID      string
		VendorName    string
		RecurringID   string
		Date          Date
		Description   string
		Category      string
		Amount        Money
		TaxAmount     Money
		PaymentMethod string
		ReceiptURL    string
		CreatedAt     time.Time
		UpdatedAt     time.Time
	}

	RecurringExpense struct {
		ID          string
		CompanyID   string
		VendorID    string
		StartDate   Date
		EndDate     Date
		Every       RepetitionType
		Description string
		Category    string
		Amount      Money
		LastRunAt   time.Time
		CreatedAt   time.Time
	}
)

var (
	ErrInvalidDate       = errors.New("invalid date")
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrEmptyDescription  = errors.New("empty description")
	ErrDescriptionLength = errors.New("description too long (max 200 characters)")
	ErrEmptyName         = errors.New("empty name")
	ErrNameLength        = errors.New("name too long (max 120 characters)")
	ErrInvalidEmail      = errors.New("invalid email address")
	ErrInvalidCurrency   = errors.New("invalid currency code")
	ErrInvalidQuantity   = errors.New("invalid quantity")
	ErrNotesLength       = errors.New("notes too long (max 2000 characters)")
	ErrInvalidRepetition = errors.New("invalid repetition type")
	ErrSKULength         = errors.New("sku too long (max 64 characters)")
	ErrPrefixLength      = errors.New("invoice prefix too long (max 10 characters)")
	ErrPaymentTerms      = errors.New("payment terms must be at most 365 days")
	ErrTaxAmount         = errors.New("tax amount must be between zero and the expense amount")
	ErrReceiptURL        = errors.New("receipt url must be an http(s) link")
	ErrEndBeforeStart    = errors.New("end date must be after start date")
	ErrNoCompany         = errors.New("user must belong to a company")
)

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to its calendar day in UTC.
func DateOf(t time.Time) Date {
	return NewDate(t.Year(), int(t.Month()), t.Day())
}

// ParseDate parses a date string in YYYY-MM-DD format. An empty string yields the zero Date.
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Date{}, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return Date{Time: t}, nil
}

func (d Date) Validate() error {
	if d.IsZero() {
		return ErrInvalidDate
	}
	if d.Year() < 1900 || d.Year() > 9999 {
		return ErrInvalidDate
	}
	return nil
}

// String renders the date as YYYY-MM-DD, or "" for the zero date.
func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format("2006-01-02")
}

// AddDays returns the date shifted by n days.
func (d Date) AddDays(n int) Date {
	return Date{Time: d.Time.AddDate(0, 0, n)}
}

// Before reports whether d is strictly before o on the calendar.
func (d Date) Before(o Date) bool {
	return d.Time.Before(o.Time)
}

// DaysUntil returns the number of whole days from d to o (negative when o is earlier).
func (d Date) DaysUntil(o Date) int {
	return int(o.Time.Sub(d.Time).Hours() / 24)
}

func (m Money) Validate() error {
	if m.Cents <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

func (m Money) Add(o Money) Money { return Money{Cents: m.Cents + o.Cents} }

func (m Money) Sub(o Money) Money { return Money{Cents: m.Cents - o.Cents} }

func (m Money) IsZero() bool { return m.Cents == 0 }

func (c *Company) Normalize() {
	c.Name = strings.TrimSpace(c.Name)
	c.Currency = strings.ToUpper(strings.TrimSpace(c.Currency))
	if c.Currency == "" {
		c.Currency = DefaultCurrency
	}
	c.InvoicePrefix = strings.ToUpper(strings.TrimSpace(c.InvoicePrefix))
	if c.InvoicePrefix == "" {
		c.InvoicePrefix = DefaultInvoicePrefix
	}
	if c.PaymentTermsDays <= 0 {
		c.PaymentTermsDays = DefaultPaymentTermsDays
	}
}

func (c Company) Validate() error {
	if err := validateName(c.Name); err != nil {
		return err
	}
	if err := validateOptionalEmail(c.Email); err != nil {
		return err
	}
	if len(c.Currency) != 3 {
		return ErrInvalidCurrency
	}
	if len(c.InvoicePrefix) > 10 {
		return ErrPrefixLength
	}
	if c.PaymentTermsDays > 365 {
		return ErrPaymentTerms
	}
	return nil
}

func (u User) Validate() error {
	if strings.TrimSpace(u.CompanyID) == "" {
		return ErrNoCompany
	}
	if err := validateEmail(u.Email); err != nil {
		return err
	}
	if len(u.DisplayName) > maxNameLength {
		return ErrNameLength
	}
	if _, err := ParseRole(string(u.Role)); err != nil {
		return err
	}
	return nil
}

// Label returns the display name, or the email when no display name is set.
func (u User) Label() string {
	if strings.TrimSpace(u.DisplayName) != "" {
		return u.DisplayName
	}
	return u.Email
}

func (c *Contact) Normalize() {
	c.Name = strings.TrimSpace(c.Name)
	c.Email = strings.TrimSpace(strings.ToLower(c.Email))
	c.Phone = strings.TrimSpace(c.Phone)
	c.Address = strings.TrimSpace(c.Address)
	c.TaxID = strings.TrimSpace(c.TaxID)
	c.Notes = strings.TrimSpace(c.Notes)
}

func (c Contact) Validate() error {
	if err := validateName(c.Name); err != nil {
		return err
	}
	if err := validateOptionalEmail(c.Email); err != nil {
		return err
	}
	if len(c.Notes) > maxNotesLength {
		return ErrNotesLength
	}
	return nil
}

func (i *InventoryItem) Normalize() {
	i.SKU = strings.ToUpper(strings.TrimSpace(i.SKU))
	i.Name = strings.TrimSpace(i.Name)
	i.Description = strings.TrimSpace(i.Description)
}

func (i InventoryItem) Validate() error {
	if err := validateName(i.Name); err != nil {
		return err
	}
	if len(i.SKU) > 64 {
		return ErrSKULength
	}
	if i.Quantity < 0 || i.ReorderLevel < 0 {
		return ErrInvalidQuantity
	}
	if i.UnitPrice.Cents < 0 || i.CostPrice.Cents < 0 {
		return ErrInvalidAmount
	}
	if len(i.Description) > maxNotesLength {
		return ErrNotesLength
	}
	return nil
}

// LowStock reports whether the item is at or below its reorder level.
// Items without a reorder level never report low stock.
func (i InventoryItem) LowStock() bool {
	return i.ReorderLevel > 0 && i.Quantity <= i.ReorderLevel
}

// StockValue is quantity times cost price.
func (i InventoryItem) StockValue() Money {
	return Money{Cents: i.Quantity * i.CostPrice.Cents}
}

func (e *Expense) Normalize() {
	e.Description = strings.TrimSpace(e.Description)
	e.Category = strings.TrimSpace(e.Category)
	if e.Category == "" {
		e.Category = DefaultCategory
	}
	e.PaymentMethod = strings.TrimSpace(e.PaymentMethod)
	e.ReceiptURL = strings.TrimSpace(e.ReceiptURL)
}

func (e Expense) Validate() error {
	if err := e.Date.Validate(); err != nil {
		return err
	}
	if len(strings.TrimSpace(e.Description)) == 0 {
		return ErrEmptyDescription
	}
	if len(e.Description) > maxDescriptionLength {
		return ErrDescriptionLength
	}
	if err := e.Amount.Validate(); err != nil {
		return err
	}
	if e.TaxAmount.Cents < 0 || e.TaxAmount.Cents > e.Amount.Cents {
		return ErrTaxAmount
	}
	if e.ReceiptURL != "" && !strings.HasPrefix(e.ReceiptURL, "https://") && !strings.HasPrefix(e.ReceiptURL, "http://") {
		return ErrReceiptURL
	}
	return nil
}

func (re RecurringExpense) Validate() error {
	if err := re.StartDate.Validate(); err != nil {
		return fmt.Errorf("invalid start date: %w", err)
	}

	if !re.EndDate.IsZero() {
		if err := re.EndDate.Validate(); err != nil {
			return fmt.Errorf("invalid end date: %w", err)
		}
		if re.EndDate.Before(re.StartDate) {
			return ErrEndBeforeStart
		}
	}

	switch re.Every {
	case Daily, Weekly, Monthly, Yearly:
	default:
		return ErrInvalidRepetition
	}

	if len(strings.TrimSpace(re.Description)) == 0 {
		return ErrEmptyDescription
	}
	if len(re.Description) > maxDescriptionLength {
		return ErrDescriptionLength
	}
	return re.Amount.Validate()
}

// ActiveOn reports whether the template should produce expenses on the given day.
func (re RecurringExpense) ActiveOn(d Date) bool {
	if d.Before(re.StartDate) {
		return false
	}
	if !re.EndDate.IsZero() && re.EndDate.Before(d) {
		return false
	}
	return true
}

func validateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return ErrEmptyName
	}
	if len(name) > maxNameLength {
		return ErrNameLength
	}
	return nil
}

func validateEmail(email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return ErrInvalidEmail
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return ErrInvalidEmail
	}
	return nil
}

func validateOptionalEmail(email string) error {
	if strings.TrimSpace(email) == "" {
		return nil
	}
	return validateEmail(email)
}
