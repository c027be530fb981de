package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"

	"ledger/internal/core"
	"ledger/internal/services"
	"ledger/internal/storage"
)

func amountString(cents int64) string {
	return fmt.Sprintf("%d.%02d", cents/100, cents%100)
}

// createInvoice posts a one-line draft invoice issued today and loads it back.
func (a testApp) createInvoice(t *testing.T, token string) core.Invoice {
	t.Helper()
	ctx := context.Background()
	customer, err := services.NewDirectoryService(a.repo).CreateCustomer(ctx, a.company.ID,
		core.Customer{Contact: core.Contact{Name: "Globex", Email: "ap@globex.test"}})
	if err != nil {
		t.Fatalf("CreateCustomer failed: %v", err)
	}
	rr := a.do(request{method: http.MethodPost, path: "/invoices", token: token, htmx: true, form: url.Values{
		"customer_id":      {customer.ID},
		"issue_date":       {core.DateOf(time.Now()).String()},
		"item_description": {"Consulting"},
		"item_quantity":    {"2"},
		"item_unit_price":  {"150.00"},
		"item_tax_rate":    {"20"},
	}})
	if rr.Code != http.StatusOK {
		t.Fatalf("create invoice status = %d, body = %s", rr.Code, rr.Body.String())
	}
	id := strings.TrimPrefix(rr.Header().Get("HX-Redirect"), "/invoices/")
	inv, err := a.repo.GetInvoice(ctx, a.company.ID, id)
	if err != nil {
		t.Fatalf("GetInvoice(%q) failed: %v", id, err)
	}
	return inv
}

func TestInvoiceStatusAndPayments(t *testing.T) {
	app := newTestApp(t, Options{})
	token := app.token(t, app.admin)
	ctx := context.Background()
	inv := app.createInvoice(t, token)
	base := "/invoices/" + inv.ID

	steps := []struct {
		name         string
		req          request
		wantStatus   int
		wantInvoice  core.InvoiceStatus
		wantPaid     int64
		wantLocation string
	}{
		{
			name:        "draft cannot be marked overdue",
			req:         request{method: http.MethodPost, path: base + "/status", form: url.Values{"status": {"overdue"}}},
			wantStatus:  http.StatusUnprocessableEntity,
			wantInvoice: core.StatusDraft,
		},
		{
			name:        "payment on a draft is refused",
			req:         request{method: http.MethodPost, path: base + "/payments", form: url.Values{"amount": {"10.00"}}},
			wantStatus:  http.StatusUnprocessableEntity,
			wantInvoice: core.StatusDraft,
		},
		{
			name:        "unknown status is rejected",
			req:         request{method: http.MethodPost, path: base + "/status", form: url.Values{"status": {"lost"}}},
			wantStatus:  http.StatusUnprocessableEntity,
			wantInvoice: core.StatusDraft,
		},
		{
			name:         "send",
			req:          request{method: http.MethodPost, path: base + "/status", form: url.Values{"status": {"sent"}}},
			wantStatus:   http.StatusSeeOther,
			wantInvoice:  core.StatusSent,
			wantLocation: base,
		},
		{
			name:        "sent cannot be marked overdue by hand",
			req:         request{method: http.MethodPost, path: base + "/status", form: url.Values{"status": {"overdue"}}},
			wantStatus:  http.StatusUnprocessableEntity,
			wantInvoice: core.StatusSent,
		},
		{
			name:         "partial payment keeps the invoice sent",
			req:          request{method: http.MethodPost, path: base + "/payments", form: url.Values{"amount": {"100.00"}}},
			wantStatus:   http.StatusSeeOther,
			wantInvoice:  core.StatusSent,
			wantPaid:     10000,
			wantLocation: base,
		},
		{
			name:        "overpayment is refused",
			req:         request{method: http.MethodPost, path: base + "/payments", form: url.Values{"amount": {"99999.00"}}},
			wantStatus:  http.StatusUnprocessableEntity,
			wantInvoice: core.StatusSent,
			wantPaid:    10000,
		},
		{
			name:        "zero payment is refused",
			req:         request{method: http.MethodPost, path: base + "/payments", form: url.Values{"amount": {"0"}}},
			wantStatus:  http.StatusUnprocessableEntity,
			wantInvoice: core.StatusSent,
			wantPaid:    10000,
		},
	}
	for _, tt := range steps {
		t.Run(tt.name, func(t *testing.T) {
			tt.req.token = token
			rr := app.do(tt.req)
			if rr.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d, body = %s", rr.Code, tt.wantStatus, rr.Body.String())
			}
			if tt.wantLocation != "" && rr.Header().Get("Location") != tt.wantLocation {
				t.Errorf("Location = %q, want %q", rr.Header().Get("Location"), tt.wantLocation)
			}
			got, err := app.repo.GetInvoice(ctx, app.company.ID, inv.ID)
			if err != nil {
				t.Fatalf("GetInvoice failed: %v", err)
			}
			if got.Status != tt.wantInvoice {
				t.Errorf("persisted status = %s, want %s", got.Status, tt.wantInvoice)
			}
			if got.AmountPaid.Cents != tt.wantPaid {
				t.Errorf("amount paid = %d, want %d", got.AmountPaid.Cents, tt.wantPaid)
			}
		})
	}

	t.Run("remaining balance marks the invoice paid", func(t *testing.T) {
		current, err := app.repo.GetInvoice(ctx, app.company.ID, inv.ID)
		if err != nil {
			t.Fatalf("GetInvoice failed: %v", err)
		}
		rr := app.do(request{method: http.MethodPost, path: base + "/payments", token: token, htmx: true,
			form: url.Values{"amount": {amountString(current.AmountDue().Cents)}}})
		if rr.Code != http.StatusOK {
			t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
		}
		if rr.Header().Get("HX-Redirect") != base {
			t.Errorf("HX-Redirect = %q", rr.Header().Get("HX-Redirect"))
		}
		if !strings.Contains(rr.Header().Get("HX-Trigger"), "notifications:refresh") {
			t.Errorf("HX-Trigger = %q", rr.Header().Get("HX-Trigger"))
		}
		got, err := app.repo.GetInvoice(ctx, app.company.ID, inv.ID)
		if err != nil {
			t.Fatalf("GetInvoice failed: %v", err)
		}
		if got.Status != core.StatusPaid || !got.AmountDue().IsZero() {
			t.Errorf("invoice = %s with %d due, want paid in full", got.Status, got.AmountDue().Cents)
		}
	})

	t.Run("paid invoice cannot be deleted", func(t *testing.T) {
		rr := app.do(request{method: http.MethodDelete, path: base, token: token, htmx: true})
		if rr.Code != http.StatusUnprocessableEntity {
			t.Fatalf("status = %d, want 422", rr.Code)
		}
	})
}

func TestInvoicePrintExportAndDelete(t *testing.T) {
	app := newTestApp(t, Options{})
	token := app.token(t, app.admin)
	viewer := app.token(t, app.viewer)
	inv := app.createInvoice(t, token)

	rr := app.do(request{method: http.MethodGet, path: "/invoices/" + inv.ID + "/print", token: viewer})
	if rr.Code != http.StatusOK {
		t.Fatalf("print status = %d", rr.Code)
	}
	for _, want := range []string{inv.Number, "Globex", "Consulting"} {
		if !strings.Contains(rr.Body.String(), want) {
			t.Errorf("print page should contain %q", want)
		}
	}

	rr = app.do(request{method: http.MethodGet, path: "/invoices/export.csv", token: viewer})
	if rr.Code != http.StatusOK {
		t.Fatalf("export status = %d", rr.Code)
	}
	if !strings.HasPrefix(rr.Header().Get("Content-Type"), "text/csv") {
		t.Errorf("Content-Type = %q", rr.Header().Get("Content-Type"))
	}
	if !strings.Contains(rr.Header().Get("Content-Disposition"), "invoices.csv") {
		t.Errorf("Content-Disposition = %q", rr.Header().Get("Content-Disposition"))
	}
	if !strings.Contains(rr.Body.String(), inv.Number) {
		t.Errorf("export should list %s, got %s", inv.Number, rr.Body.String())
	}

	rr = app.do(request{method: http.MethodDelete, path: "/invoices/" + inv.ID, token: viewer, htmx: true})
	if rr.Code != http.StatusForbidden {
		t.Fatalf("viewer delete status = %d, want 403", rr.Code)
	}

	rr = app.do(request{method: http.MethodDelete, path: "/invoices/" + inv.ID + "?from=show", token: token, htmx: true})
	if rr.Code != http.StatusOK {
		t.Fatalf("delete status = %d, body = %s", rr.Code, rr.Body.String())
	}
	if !strings.Contains(rr.Header().Get("HX-Trigger"), "invoice:changed") {
		t.Errorf("HX-Trigger = %q", rr.Header().Get("HX-Trigger"))
	}
	if rr.Header().Get("HX-Redirect") != "/invoices" {
		t.Errorf("HX-Redirect = %q", rr.Header().Get("HX-Redirect"))
	}
	if _, err := app.repo.GetInvoice(context.Background(), app.company.ID, inv.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("GetInvoice after delete error = %v, want ErrNotFound", err)
	}
}

func TestExpenseHandlers(t *testing.T) {
	app := newTestApp(t, Options{})
	token := app.token(t, app.admin)
	ctx := context.Background()

	valid := url.Values{
		"date":        {"2026-03-02"},
		"amount":      {"120.50"},
		"tax_amount":  {"20.10"},
		"description": {"Office chair"},
		"category":    {"Furniture"},
		"receipt_url": {"https://receipts.test/1"},
	}
	with := func(key, value string) url.Values {
		form := url.Values{}
		for k, v := range valid {
			form[k] = append([]string(nil), v...)
		}
		form.Set(key, value)
		return form
	}

	rejected := []struct {
		name    string
		form    url.Values
		wantMsg string
	}{
		{"tax above amount", with("tax_amount", "130.00"), core.ErrTaxAmount.Error()},
		{"missing amount", with("amount", ""), "amount"},
		{"missing description", with("description", " "), core.ErrEmptyDescription.Error()},
		{"receipt must be a web link", with("receipt_url", "ftp://receipts.test/1"), "receipt_url"},
		{"unknown vendor", with("vendor_id", "missing"), "Not found"},
	}
	for _, tt := range rejected {
		t.Run(tt.name, func(t *testing.T) {
			rr := app.do(request{method: http.MethodPost, path: "/expenses", token: token, htmx: true, form: tt.form})
			if rr.Code == http.StatusOK || rr.Code == http.StatusSeeOther {
				t.Fatalf("status = %d, want a rejection", rr.Code)
			}
			if !strings.Contains(rr.Body.String(), tt.wantMsg) {
				t.Errorf("body = %s, want %q", rr.Body.String(), tt.wantMsg)
			}
		})
	}
	if list, err := app.repo.ListExpenses(ctx, app.company.ID); err != nil || len(list) != 0 {
		t.Fatalf("rejected posts stored %d expenses (err %v)", len(list), err)
	}

	rr := app.do(request{method: http.MethodPost, path: "/expenses", token: token, htmx: true, form: valid})
	if rr.Code != http.StatusOK || rr.Header().Get("HX-Redirect") != "/expenses" {
		t.Fatalf("create status = %d, HX-Redirect = %q, body = %s", rr.Code, rr.Header().Get("HX-Redirect"), rr.Body.String())
	}
	if !strings.Contains(rr.Header().Get("HX-Trigger"), "form:reset") {
		t.Errorf("HX-Trigger = %q", rr.Header().Get("HX-Trigger"))
	}
	list, err := app.repo.ListExpenses(ctx, app.company.ID)
	if err != nil || len(list) != 1 {
		t.Fatalf("ListExpenses = %d, %v", len(list), err)
	}
	e := list[0]
	if e.Amount.Cents != 12050 || e.TaxAmount.Cents != 2010 || e.Category != "Furniture" {
		t.Errorf("stored expense = %+v", e)
	}

	rr = app.do(request{method: http.MethodPost, path: "/expenses/" + e.ID, token: token, form: with("description", "Desk chair")})
	if rr.Code != http.StatusSeeOther || rr.Header().Get("Location") != "/expenses" {
		t.Fatalf("update status = %d, location = %q", rr.Code, rr.Header().Get("Location"))
	}
	got, err := app.repo.GetExpense(ctx, app.company.ID, e.ID)
	if err != nil || got.Description != "Desk chair" {
		t.Fatalf("updated expense = %+v, %v", got, err)
	}

	rr = app.do(request{method: http.MethodPost, path: "/expenses/missing", token: token, form: valid})
	if rr.Code != http.StatusNotFound {
		t.Errorf("update of unknown expense status = %d, want 404", rr.Code)
	}

	rr = app.do(request{method: http.MethodGet, path: "/expenses/export.csv", token: token})
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "Desk chair") {
		t.Fatalf("export status = %d, body = %s", rr.Code, rr.Body.String())
	}

	rr = app.do(request{method: http.MethodDelete, path: "/expenses/" + e.ID, token: token, htmx: true})
	if rr.Code != http.StatusOK || !strings.Contains(rr.Header().Get("HX-Trigger"), "expense:changed") {
		t.Fatalf("delete status = %d, HX-Trigger = %q", rr.Code, rr.Header().Get("HX-Trigger"))
	}
	if _, err := app.repo.GetExpense(ctx, app.company.ID, e.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("GetExpense after delete error = %v, want ErrNotFound", err)
	}
}

func TestRecurringHandlers(t *testing.T) {
	app := newTestApp(t, Options{})
	token := app.token(t, app.admin)
	ctx := context.Background()

	tests := []struct {
		name       string
		form       url.Values
		wantStatus int
		wantMsg    string
	}{
		{
			name: "end before start",
			form: url.Values{"every": {"monthly"}, "start_date": {"2026-02-01"}, "end_date": {"2026-01-01"},
				"amount": {"1200.00"}, "description": {"Rent"}},
			wantStatus: http.StatusUnprocessableEntity,
			wantMsg:    core.ErrEndBeforeStart.Error(),
		},
		{
			name:       "unknown repetition",
			form:       url.Values{"every": {"hourly"}, "start_date": {"2026-01-01"}, "amount": {"5.00"}, "description": {"Coffee"}},
			wantStatus: http.StatusUnprocessableEntity,
			wantMsg:    core.ErrInvalidRepetition.Error(),
		},
		{
			name:       "monthly template",
			form:       url.Values{"every": {"Monthly"}, "start_date": {"2026-01-01"}, "amount": {"1200.00"}, "description": {"Rent"}},
			wantStatus: http.StatusSeeOther,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := app.do(request{method: http.MethodPost, path: "/expenses/recurring", token: token, form: tt.form})
			if rr.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d, body = %s", rr.Code, tt.wantStatus, rr.Body.String())
			}
			if tt.wantMsg != "" && !strings.Contains(rr.Body.String(), tt.wantMsg) {
				t.Errorf("body = %s, want %q", rr.Body.String(), tt.wantMsg)
			}
		})
	}

	list, err := app.repo.ListRecurring(ctx, app.company.ID)
	if err != nil || len(list) != 1 {
		t.Fatalf("ListRecurring = %d, %v", len(list), err)
	}
	if list[0].Every != core.Monthly || list[0].Amount.Cents != 120000 {
		t.Errorf("stored template = %+v", list[0])
	}

	rr := app.do(request{method: http.MethodGet, path: "/expenses/recurring", token: token})
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "Rent") {
		t.Fatalf("recurring page status = %d", rr.Code)
	}

	rr = app.do(request{method: http.MethodDelete, path: "/expenses/recurring/" + list[0].ID, token: token})
	if rr.Code != http.StatusSeeOther || rr.Header().Get("Location") != "/expenses/recurring" {
		t.Fatalf("delete status = %d, location = %q", rr.Code, rr.Header().Get("Location"))
	}
	if list, _ := app.repo.ListRecurring(ctx, app.company.ID); len(list) != 0 {
		t.Errorf("templates after delete = %d, want 0", len(list))
	}

	rr = app.do(request{method: http.MethodPost, path: "/expenses/recurring", token: token, form: url.Values{
		"every": {"weekly"}, "start_date": {"2025-01-01"}, "end_date": {"2025-02-01"},
		"amount": {"30.00"}, "description": {"Old cleaning contract"},
	}})
	if rr.Code != http.StatusSeeOther {
		t.Fatalf("create ended template status = %d, body = %s", rr.Code, rr.Body.String())
	}
	rr = app.do(request{method: http.MethodGet, path: "/expenses/recurring", token: token, htmx: true})
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `<span class="tag">inactive</span>`) {
		t.Errorf("ended template should be tagged inactive, status = %d, body = %s", rr.Code, rr.Body.String())
	}
}

type record struct{ id, name string }

func TestDirectoryHandlers(t *testing.T) {
	app := newTestApp(t, Options{})
	token := app.token(t, app.admin)
	ctx := context.Background()
	companyID := app.company.ID

	tests := []struct {
		name     string
		base     string
		event    string
		create   url.Values
		update   url.Values
		rejected url.Values
		list     func() ([]record, error)
	}{
		{
			name:     "customers",
			base:     "/customers",
			event:    "customers:changed",
			create:   url.Values{"name": {"Globex"}, "email": {"ap@globex.test"}, "tax_id": {"IT123"}},
			update:   url.Values{"name": {"Globex Corp"}, "email": {"ap@globex.test"}},
			rejected: url.Values{"name": {"Globex"}, "email": {"not-an-email"}},
			list: func() ([]record, error) {
				cs, err := app.repo.ListCustomers(ctx, companyID)
				out := make([]record, 0, len(cs))
				for _, c := range cs {
					out = append(out, record{c.ID, c.Name})
				}
				return out, err
			},
		},
		{
			name:     "vendors",
			base:     "/vendors",
			event:    "vendors:changed",
			create:   url.Values{"name": {"Paper Co"}, "phone": {"+39 02 1234"}},
			update:   url.Values{"name": {"Paper Company"}},
			rejected: url.Values{"name": {"  "}},
			list: func() ([]record, error) {
				vs, err := app.repo.ListVendors(ctx, companyID)
				out := make([]record, 0, len(vs))
				for _, v := range vs {
					out = append(out, record{v.ID, v.Name})
				}
				return out, err
			},
		},
		{
			name:  "inventory",
			base:  "/inventory",
			event: "inventory:changed",
			create: url.Values{"sku": {"W-1"}, "name": {"Widget"}, "quantity": {"10"}, "reorder_level": {"2"},
				"unit_price": {"5.00"}, "cost_price": {"3.00"}},
			update: url.Values{"sku": {"W-1"}, "name": {"Blue widget"}, "quantity": {"8"}, "reorder_level": {"2"},
				"unit_price": {"5.50"}, "cost_price": {"3.00"}},
			rejected: url.Values{"sku": {"W-2"}, "name": {"Gadget"}, "quantity": {"lots"}},
			list: func() ([]record, error) {
				items, err := app.repo.ListInventory(ctx, companyID)
				out := make([]record, 0, len(items))
				for _, it := range items {
					out = append(out, record{it.ID, it.Name})
				}
				return out, err
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := app.do(request{method: http.MethodPost, path: tt.base, token: token, htmx: true, form: tt.rejected})
			if rr.Code != http.StatusUnprocessableEntity {
				t.Fatalf("rejected create status = %d, want 422", rr.Code)
			}

			rr = app.do(request{method: http.MethodPost, path: tt.base, token: token, form: tt.create})
			if rr.Code != http.StatusSeeOther || rr.Header().Get("Location") != tt.base {
				t.Fatalf("create status = %d, location = %q, body = %s", rr.Code, rr.Header().Get("Location"), rr.Body.String())
			}
			records, err := tt.list()
			if err != nil || len(records) != 1 {
				t.Fatalf("list = %v, %v", records, err)
			}
			id := records[0].id

			rr = app.do(request{method: http.MethodPost, path: tt.base + "/" + id, token: token, htmx: true, form: tt.update})
			if rr.Code != http.StatusOK || rr.Header().Get("HX-Redirect") != tt.base {
				t.Fatalf("update status = %d, HX-Redirect = %q", rr.Code, rr.Header().Get("HX-Redirect"))
			}
			records, err = tt.list()
			if err != nil || len(records) != 1 || records[0].name != tt.update.Get("name") {
				t.Fatalf("after update = %v, %v", records, err)
			}

			rr = app.do(request{method: http.MethodGet, path: tt.base + "/export.csv", token: token})
			if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), tt.update.Get("name")) {
				t.Fatalf("export status = %d, body = %s", rr.Code, rr.Body.String())
			}

			rr = app.do(request{method: http.MethodGet, path: tt.base + "?q=" + url.QueryEscape(tt.update.Get("name")), token: token, htmx: true})
			if rr.Code != http.StatusOK {
				t.Fatalf("list status = %d", rr.Code)
			}

			rr = app.do(request{method: http.MethodDelete, path: tt.base + "/" + id, token: token, htmx: true})
			if rr.Code != http.StatusOK || !strings.Contains(rr.Header().Get("HX-Trigger"), tt.event) {
				t.Fatalf("delete status = %d, HX-Trigger = %q", rr.Code, rr.Header().Get("HX-Trigger"))
			}
			if records, _ := tt.list(); len(records) != 0 {
				t.Errorf("records after delete = %v", records)
			}

			rr = app.do(request{method: http.MethodDelete, path: tt.base + "/" + id, token: token})
			if rr.Code != http.StatusNotFound {
				t.Errorf("second delete status = %d, want 404", rr.Code)
			}
		})
	}
}

func TestNotificationHandlers(t *testing.T) {
	app := newTestApp(t, Options{})
	token := app.token(t, app.admin)
	ctx := context.Background()

	inv := app.createInvoice(t, token)
	if rr := app.do(request{method: http.MethodPost, path: "/invoices/" + inv.ID + "/status", token: token,
		form: url.Values{"status": {"sent"}}}); rr.Code != http.StatusSeeOther {
		t.Fatalf("send status = %d", rr.Code)
	}
	if _, err := app.repo.CreateNotification(ctx, &core.Notification{
		CompanyID: app.company.ID, UserID: app.admin.ID, Kind: core.NotifyExpenseCreated, Title: "Second",
	}); err != nil {
		t.Fatalf("CreateNotification failed: %v", err)
	}

	notes, err := app.repo.ListNotifications(ctx, app.admin.ID, 10)
	if err != nil || len(notes) != 2 {
		t.Fatalf("ListNotifications = %d, %v", len(notes), err)
	}
	unread := func() int {
		n, err := app.repo.CountUnread(ctx, app.admin.ID)
		if err != nil {
			t.Fatalf("CountUnread failed: %v", err)
		}
		return n
	}
	if unread() != 2 {
		t.Fatalf("unread = %d, want 2", unread())
	}

	tests := []struct {
		name       string
		req        request
		wantStatus int
		wantUnread int
	}{
		{
			name:       "another user cannot read it",
			req:        request{method: http.MethodPost, path: "/notifications/" + notes[0].ID + "/read", token: app.token(t, app.viewer)},
			wantStatus: http.StatusNotFound,
			wantUnread: 2,
		},
		{
			name:       "mark one read",
			req:        request{method: http.MethodPost, path: "/notifications/" + notes[0].ID + "/read", token: token},
			wantStatus: http.StatusSeeOther,
			wantUnread: 1,
		},
		{
			name:       "mark all read",
			req:        request{method: http.MethodPost, path: "/notifications/read-all", token: token, htmx: true},
			wantStatus: http.StatusOK,
			wantUnread: 0,
		},
		{
			name:       "mark all read again is a no-op",
			req:        request{method: http.MethodPost, path: "/notifications/read-all", token: token},
			wantStatus: http.StatusSeeOther,
			wantUnread: 0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := app.do(tt.req)
			if rr.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d, body = %s", rr.Code, tt.wantStatus, rr.Body.String())
			}
			if got := unread(); got != tt.wantUnread {
				t.Errorf("unread = %d, want %d", got, tt.wantUnread)
			}
			if tt.req.htmx && !strings.Contains(rr.Header().Get("HX-Trigger"), "notifications:refresh") {
				t.Errorf("HX-Trigger = %q", rr.Header().Get("HX-Trigger"))
			}
		})
	}
}

func TestReportAccessHandlers(t *testing.T) {
	app := newTestApp(t, Options{})
	admin := app.token(t, app.admin)
	viewer := app.token(t, app.viewer)
	ctx := context.Background()

	defs, err := app.repo.ListReportDefinitions(ctx, app.company.ID)
	if err != nil {
		t.Fatalf("ListReportDefinitions failed: %v", err)
	}
	var report core.ReportDefinition
	for _, d := range defs {
		if d.Kind == core.ReportExpensesByCategory {
			report = d
		}
	}
	if report.ID == "" {
		t.Fatal("expenses by category report was not seeded")
	}
	path := "/reports/" + report.ID
	grant := "/admin/users/" + app.viewer.ID + "/reports"

	steps := []struct {
		name       string
		req        request
		wantStatus int
	}{
		{"admin runs any report", request{method: http.MethodGet, path: path, token: admin}, http.StatusOK},
		{"admin runs a range as a partial", request{method: http.MethodGet, path: path + "?from=2026-01-01&to=2026-03-31", token: admin, htmx: true}, http.StatusOK},
		{"unknown report", request{method: http.MethodGet, path: "/reports/missing", token: admin}, http.StatusNotFound},
		{"viewer lists reports", request{method: http.MethodGet, path: "/reports", token: viewer}, http.StatusOK},
		{"ungranted viewer is refused", request{method: http.MethodGet, path: path, token: viewer}, http.StatusForbidden},
		{"viewer cannot grant itself", request{method: http.MethodPost, path: grant, token: viewer, form: url.Values{"report": {report.ID}}}, http.StatusForbidden},
		{"admin grants the report", request{method: http.MethodPost, path: grant, token: admin, form: url.Values{"report": {report.ID}}}, http.StatusSeeOther},
		{"granted viewer runs it", request{method: http.MethodGet, path: path, token: viewer}, http.StatusOK},
		{"range ending before it starts", request{method: http.MethodGet, path: path + "?from=2026-03-01&to=2026-01-01", token: viewer}, http.StatusUnprocessableEntity},
		{"bad date", request{method: http.MethodGet, path: path + "?from=yesterday", token: viewer}, http.StatusUnprocessableEntity},
		{"admin revokes everything", request{method: http.MethodPost, path: grant, token: admin, form: url.Values{}}, http.StatusSeeOther},
		{"revoked viewer is refused again", request{method: http.MethodGet, path: path, token: viewer}, http.StatusForbidden},
	}
	for _, tt := range steps {
		t.Run(tt.name, func(t *testing.T) {
			rr := app.do(tt.req)
			if rr.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d, body = %s", rr.Code, tt.wantStatus, rr.Body.String())
			}
		})
	}
}

func TestAdminRoleHandlers(t *testing.T) {
	app := newTestApp(t, Options{})
	admin := app.token(t, app.admin)
	viewer := app.token(t, app.viewer)
	ctx := context.Background()

	roleOf := func(id string) core.Role {
		u, err := app.repo.GetUser(ctx, id)
		if err != nil {
			t.Fatalf("GetUser(%s) failed: %v", id, err)
		}
		return u.Role
	}

	steps := []struct {
		name       string
		req        request
		wantStatus int
		wantMsg    string
		check      func(t *testing.T)
	}{
		{
			name:       "the only admin cannot be demoted",
			req:        request{method: http.MethodPost, path: "/admin/users/" + app.admin.ID + "/role", token: admin, form: url.Values{"role": {"viewer"}}},
			wantStatus: http.StatusUnprocessableEntity,
			wantMsg:    services.ErrLastAdmin.Error(),
			check: func(t *testing.T) {
				if got := roleOf(app.admin.ID); got != core.RoleAdmin {
					t.Errorf("admin role = %s, want admin", got)
				}
			},
		},
		{
			name:       "unknown role",
			req:        request{method: http.MethodPost, path: "/admin/users/" + app.viewer.ID + "/role", token: admin, form: url.Values{"role": {"owner"}}},
			wantStatus: http.StatusUnprocessableEntity,
		},
		{
			name:       "unknown user",
			req:        request{method: http.MethodPost, path: "/admin/users/missing/role", token: admin, form: url.Values{"role": {"viewer"}}},
			wantStatus: http.StatusNotFound,
		},
		{
			name: "add an accountant",
			req: request{method: http.MethodPost, path: "/admin/users", token: admin, form: url.Values{
				"email": {"books@acme.test"}, "display_name": {"Books"}, "password": {"ledger-books-1"}, "role": {"accountant"},
			}},
			wantStatus: http.StatusSeeOther,
			check: func(t *testing.T) {
				u, err := app.repo.GetUserByEmail(ctx, "books@acme.test")
				if err != nil || u.Role != core.RoleAccountant || u.CompanyID != app.company.ID {
					t.Errorf("added user = %+v, %v", u, err)
				}
			},
		},
		{
			name:       "promote the viewer",
			req:        request{method: http.MethodPost, path: "/admin/users/" + app.viewer.ID + "/role", token: admin, form: url.Values{"role": {"admin"}}},
			wantStatus: http.StatusSeeOther,
			check: func(t *testing.T) {
				if got := roleOf(app.viewer.ID); got != core.RoleAdmin {
					t.Errorf("viewer role = %s, want admin", got)
				}
			},
		},
		{
			name:       "with a second admin the first can step down",
			req:        request{method: http.MethodPost, path: "/admin/users/" + app.admin.ID + "/role", token: viewer, form: url.Values{"role": {"viewer"}}},
			wantStatus: http.StatusSeeOther,
			check: func(t *testing.T) {
				if got := roleOf(app.admin.ID); got != core.RoleViewer {
					t.Errorf("former admin role = %s, want viewer", got)
				}
			},
		},
		{
			name:       "the demoted user loses admin access at once",
			req:        request{method: http.MethodGet, path: "/admin", token: admin},
			wantStatus: http.StatusForbidden,
		},
		{
			name:       "the remaining admin cannot demote itself",
			req:        request{method: http.MethodPost, path: "/admin/users/" + app.viewer.ID + "/role", token: viewer, form: url.Values{"role": {"accountant"}}},
			wantStatus: http.StatusUnprocessableEntity,
			wantMsg:    services.ErrLastAdmin.Error(),
		},
	}
	for _, tt := range steps {
		t.Run(tt.name, func(t *testing.T) {
			rr := app.do(tt.req)
			if rr.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d, body = %s", rr.Code, tt.wantStatus, rr.Body.String())
			}
			if tt.wantMsg != "" && !strings.Contains(rr.Body.String(), tt.wantMsg) {
				t.Errorf("body = %s, want %q", rr.Body.String(), tt.wantMsg)
			}
			if tt.check != nil {
				tt.check(t)
			}
		})
	}
}

func TestCompanySettingsHandler(t *testing.T) {
	app := newTestApp(t, Options{})
	token := app.token(t, app.admin)

	form := func(prefix, terms string) url.Values {
		return url.Values{
			"name":               {"Acme Ltd"},
			"currency":           {"usd"},
			"invoice_prefix":     {prefix},
			"payment_terms_days": {terms},
		}
	}
	tests := []struct {
		name       string
		form       url.Values
		wantStatus int
		wantMsg    string
	}{
		{"prefix too long", form("ABCDEFGHIJKL", "14"), http.StatusUnprocessableEntity, core.ErrPrefixLength.Error()},
		{"payment terms above a year", form("ACM", "400"), http.StatusUnprocessableEntity, core.ErrPaymentTerms.Error()},
		{"empty name", url.Values{"name": {""}}, http.StatusUnprocessableEntity, core.ErrEmptyName.Error()},
		{"valid settings", form("acm", "14"), http.StatusSeeOther, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := app.do(request{method: http.MethodPost, path: "/settings/company", token: token, form: tt.form})
			if rr.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d, body = %s", rr.Code, tt.wantStatus, rr.Body.String())
			}
			if tt.wantMsg != "" && !strings.Contains(rr.Body.String(), tt.wantMsg) {
				t.Errorf("body = %s, want %q", rr.Body.String(), tt.wantMsg)
			}
		})
	}

	c, err := app.repo.GetCompany(context.Background(), app.company.ID)
	if err != nil {
		t.Fatalf("GetCompany failed: %v", err)
	}
	if c.Name != "Acme Ltd" || c.Currency != "USD" || c.InvoicePrefix != "ACM" || c.PaymentTermsDays != 14 {
		t.Errorf("saved company = %+v", c)
	}
}
