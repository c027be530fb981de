package http

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"ledger/internal/core"
)

func formMoney(form url.Values, field string, required bool) (core.Money, error) {
	raw := strings.TrimSpace(form.Get(field))
	var (
		cents int64
		err   error
	)
	if required {
		cents, err = core.ParseDecimalToCents(raw)
	} else {
		cents, err = core.ParseSignedCents(raw)
	}
	if err != nil {
		return core.Money{}, badField(field, err)
	}
	return core.Money{Cents: cents}, nil
}

func formDate(form url.Values, field string) (core.Date, error) {
	d, err := core.ParseDate(form.Get(field))
	if err != nil {
		return core.Date{}, badField(field, err)
	}
	return d, nil
}

func parseDecimal(s string, def decimal.Decimal) (decimal.Decimal, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", ".")
	if s == "" {
		return def, nil
	}
	return decimal.NewFromString(s)
}

func formInt(form url.Values, field string) (int64, error) {
	raw := strings.TrimSpace(form.Get(field))
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || n < 0 {
		return 0, badField(field, core.ErrInvalidQuantity)
	}
	return n, nil
}

// parseInvoiceForm reads the invoice header and its line items. Line fields
// are parallel arrays; rows with an empty description are skipped.
func parseInvoiceForm(form url.Values) (core.Invoice, error) {
	inv := core.Invoice{
		CustomerID: sanitizeInput(form.Get("customer_id")),
		Currency:   sanitizeInput(form.Get("currency")),
		Notes:      sanitizeInput(form.Get("notes")),
	}
	var err error
	if inv.IssueDate, err = formDate(form, "issue_date"); err != nil {
		return core.Invoice{}, err
	}
	if inv.DueDate, err = formDate(form, "due_date"); err != nil {
		return core.Invoice{}, err
	}

	descs := form["item_description"]
	at := func(key string, i int) string {
		if vals := form[key]; i < len(vals) {
			return vals[i]
		}
		return ""
	}
	for i, desc := range descs {
		desc = sanitizeInput(desc)
		if desc == "" {
			continue
		}
		line := i + 1
		it := core.InvoiceItem{
			Description:     desc,
			InventoryItemID: sanitizeInput(at("item_inventory_id", i)),
		}
		if it.Quantity, err = parseDecimal(at("item_quantity", i), decimal.NewFromInt(1)); err != nil {
			return core.Invoice{}, badField("line "+strconv.Itoa(line)+" quantity", core.ErrInvalidQuantity)
		}
		cents, err := core.ParseSignedCents(at("item_unit_price", i))
		if err != nil {
			return core.Invoice{}, badField("line "+strconv.Itoa(line)+" unit price", err)
		}
		it.UnitPrice = core.Money{Cents: cents}
		if it.DiscountPercent, err = parseDecimal(at("item_discount", i), decimal.Zero); err != nil {
			return core.Invoice{}, badField("line "+strconv.Itoa(line)+" discount", core.ErrInvalidRate)
		}
		if it.TaxRate, err = parseDecimal(at("item_tax_rate", i), decimal.Zero); err != nil {
			return core.Invoice{}, badField("line "+strconv.Itoa(line)+" tax rate", core.ErrInvalidRate)
		}
		inv.Items = append(inv.Items, it)
	}
	return inv, nil
}

func parseExpenseForm(form url.Values) (core.Expense, error) {
	e := core.Expense{
		VendorID:      sanitizeInput(form.Get("vendor_id")),
		Description:   sanitizeInput(form.Get("description")),
		Category:      sanitizeInput(form.Get("category")),
		PaymentMethod: sanitizeInput(form.Get("payment_method")),
		ReceiptURL:    sanitizeInput(form.Get("receipt_url")),
	}
	var err error
	if e.Date, err = formDate(form, "date"); err != nil {
		return core.Expense{}, err
	}
	if e.Amount, err = formMoney(form, "amount", true); err != nil {
		return core.Expense{}, err
	}
	if e.TaxAmount, err = formMoney(form, "tax_amount", false); err != nil {
		return core.Expense{}, err
	}
	if e.ReceiptURL != "" {
		if u, err := url.Parse(e.ReceiptURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			return core.Expense{}, badField("receipt_url", core.ErrReceiptURL)
		}
	}
	return e, nil
}

func parseRecurringForm(form url.Values) (core.RecurringExpense, error) {
	re := core.RecurringExpense{
		VendorID:    sanitizeInput(form.Get("vendor_id")),
		Every:       core.RepetitionType(strings.ToLower(sanitizeInput(form.Get("every")))),
		Description: sanitizeInput(form.Get("description")),
		Category:    sanitizeInput(form.Get("category")),
	}
	var err error
	if re.StartDate, err = formDate(form, "start_date"); err != nil {
		return core.RecurringExpense{}, err
	}
	if re.EndDate, err = formDate(form, "end_date"); err != nil {
		return core.RecurringExpense{}, err
	}
	if re.Amount, err = formMoney(form, "amount", true); err != nil {
		return core.RecurringExpense{}, err
	}
	return re, nil
}

func parseContactForm(form url.Values) core.Contact {
	return core.Contact{
		Name:    sanitizeInput(form.Get("name")),
		Email:   sanitizeInput(form.Get("email")),
		Phone:   sanitizeInput(form.Get("phone")),
		Address: sanitizeInput(form.Get("address")),
		TaxID:   sanitizeInput(form.Get("tax_id")),
		Notes:   sanitizeInput(form.Get("notes")),
	}
}

func parseItemForm(form url.Values) (core.InventoryItem, error) {
	it := core.InventoryItem{
		SKU:         sanitizeInput(form.Get("sku")),
		Name:        sanitizeInput(form.Get("name")),
		Description: sanitizeInput(form.Get("description")),
	}
	var err error
	if it.Quantity, err = formInt(form, "quantity"); err != nil {
		return core.InventoryItem{}, err
	}
	if it.ReorderLevel, err = formInt(form, "reorder_level"); err != nil {
		return core.InventoryItem{}, err
	}
	if it.UnitPrice, err = formMoney(form, "unit_price", false); err != nil {
		return core.InventoryItem{}, err
	}
	if it.CostPrice, err = formMoney(form, "cost_price", false); err != nil {
		return core.InventoryItem{}, err
	}
	return it, nil
}

func parseCompanyForm(form url.Values) core.Company {
	return core.Company{
		Name:             sanitizeInput(form.Get("name")),
		Email:            sanitizeInput(form.Get("email")),
		Phone:            sanitizeInput(form.Get("phone")),
		Address:          sanitizeInput(form.Get("address")),
		TaxID:            sanitizeInput(form.Get("tax_id")),
		Currency:         sanitizeInput(form.Get("currency")),
		InvoicePrefix:    sanitizeInput(form.Get("invoice_prefix")),
		PaymentTermsDays: atoiOr(form.Get("payment_terms_days"), core.DefaultPaymentTermsDays),
	}
}
