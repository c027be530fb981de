package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"ledger/internal/auth"
	"ledger/internal/core"
	"ledger/internal/log"
	"ledger/internal/mailer"
	"ledger/internal/services"
	"ledger/internal/storage"
)

type testApp struct {
	srv      *Server
	repo     *storage.Repository
	sessions *auth.JWTManager
	authn    *auth.PasswordAuthenticator
	company  core.Company
	admin    core.User
	viewer   core.User
}

func newTestApp(t *testing.T, opts Options) testApp {
	t.Helper()
	repo, err := storage.Open(filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatalf("storage.Open failed: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	notifications := services.NewNotificationService(repo)
	dashboard := services.NewDashboardService(repo, time.Minute)
	events := services.DirectEvents{Notifications: notifications}
	authn := auth.NewPasswordAuthenticator(repo).WithCost(bcrypt.MinCost)
	sessions := auth.NewJWTManager("test-secret-that-is-long-enough", time.Hour)

	logger := log.New(log.Config{Level: slog.LevelError, Output: io.Discard})
	if opts.RateLimitPerMinute == 0 {
		opts.RateLimitPerMinute = 1000
	}
	srv, err := NewServer(opts, Deps{
		Store:         repo,
		Auth:          authn,
		Sessions:      sessions,
		Invoices:      services.NewInvoiceService(repo, events, notifications, dashboard),
		Expenses:      services.NewExpenseService(repo, events, dashboard),
		Directory:     services.NewDirectoryService(repo),
		Dashboard:     dashboard,
		Reports:       services.NewReportService(repo),
		Admin:         services.NewAdminService(repo),
		Notifications: notifications,
		Contacts:      services.NewContactService(nil, mailer.NewLogMailer(logger.Logger), "ops@ledger.test", ""),
		Logger:        logger,
	})
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}
	t.Cleanup(func() { srv.Shutdown(context.Background()) })

	ctx := context.Background()
	admin, company, err := authn.Register(ctx, auth.Signup{
		CompanyName: "Acme",
		Email:       "owner@acme.test",
		Password:    "correct-horse",
	})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	viewer, err := authn.AddUser(ctx, company.ID, "viewer@acme.test", "Vee", "viewer-pass", core.RoleViewer)
	if err != nil {
		t.Fatalf("AddUser failed: %v", err)
	}
	return testApp{srv: srv, repo: repo, sessions: sessions, authn: authn, company: company, admin: admin, viewer: viewer}
}

func (a testApp) token(t *testing.T, u core.User) string {
	t.Helper()
	token, _, err := a.sessions.Generate(u)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	return token
}

type request struct {
	method string
	path   string
	form   url.Values
	token  string
	htmx   bool
}

func (a testApp) do(req request) *httptest.ResponseRecorder {
	var body io.Reader
	if req.form != nil {
		body = strings.NewReader(req.form.Encode())
	}
	r := httptest.NewRequest(req.method, req.path, body)
	if req.form != nil {
		r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if req.token != "" {
		r.Header.Set("Authorization", "Bearer "+req.token)
	}
	if req.htmx {
		r.Header.Set("HX-Request", "true")
	}
	rr := httptest.NewRecorder()
	a.srv.Handler.ServeHTTP(rr, r)
	return rr
}

func TestHealthAndReady(t *testing.T) {
	app := newTestApp(t, Options{})

	for _, path := range []string{"/healthz", "/readyz"} {
		rr := app.do(request{method: http.MethodGet, path: path})
		if rr.Code != http.StatusOK {
			t.Fatalf("%s status = %d, body = %s", path, rr.Code, rr.Body.String())
		}
		var body map[string]any
		if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
			t.Fatalf("%s returned invalid JSON: %v", path, err)
		}
	}

	rr := app.do(request{method: http.MethodGet, path: "/healthz"})
	if rr.Header().Get("X-Request-ID") == "" {
		t.Error("expected X-Request-ID header on every response")
	}
}

func TestMetricsEndpoint(t *testing.T) {
	app := newTestApp(t, Options{})
	rr := app.do(request{method: http.MethodGet, path: "/metrics"})
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "go_goroutines") {
		t.Error("expected Go runtime metrics")
	}
}

func TestUnauthenticatedRequests(t *testing.T) {
	app := newTestApp(t, Options{})

	tests := []struct {
		name         string
		req          request
		wantStatus   int
		wantLocation string
		wantHeader   string
	}{
		{
			name:         "page redirects to login with next",
			req:          request{method: http.MethodGet, path: "/invoices"},
			wantStatus:   http.StatusSeeOther,
			wantLocation: "/login?next=%2Finvoices",
		},
		{
			name:         "dashboard redirects without next",
			req:          request{method: http.MethodGet, path: "/"},
			wantStatus:   http.StatusSeeOther,
			wantLocation: "/login",
		},
		{
			name:       "api answers 401",
			req:        request{method: http.MethodGet, path: "/api/notifications/unread"},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "htmx gets HX-Redirect",
			req:        request{method: http.MethodGet, path: "/expenses", htmx: true},
			wantStatus: http.StatusUnauthorized,
			wantHeader: auth.LoginPath,
		},
		{
			name:         "garbage token is rejected",
			req:          request{method: http.MethodGet, path: "/customers", token: "not-a-jwt"},
			wantStatus:   http.StatusSeeOther,
			wantLocation: "/login?next=%2Fcustomers",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := app.do(tt.req)
			if rr.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rr.Code, tt.wantStatus)
			}
			if tt.wantLocation != "" && rr.Header().Get("Location") != tt.wantLocation {
				t.Errorf("Location = %q, want %q", rr.Header().Get("Location"), tt.wantLocation)
			}
			if tt.wantHeader != "" && rr.Header().Get("HX-Redirect") != tt.wantHeader {
				t.Errorf("HX-Redirect = %q, want %q", rr.Header().Get("HX-Redirect"), tt.wantHeader)
			}
		})
	}
}

func TestSignupLoginFlow(t *testing.T) {
	app := newTestApp(t, Options{})

	rr := app.do(request{method: http.MethodGet, path: "/login"})
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "Sign in") {
		t.Fatalf("login page status = %d", rr.Code)
	}

	rr = app.do(request{method: http.MethodPost, path: "/signup", form: url.Values{
		"company_name": {"Initech"},
		"email":        {"peter@initech.test"},
		"password":     {"tps-reports"},
	}})
	if rr.Code != http.StatusSeeOther || rr.Header().Get("Location") != "/" {
		t.Fatalf("signup status = %d, location = %q, body = %s", rr.Code, rr.Header().Get("Location"), rr.Body.String())
	}
	if !strings.Contains(rr.Header().Get("Set-Cookie"), auth.CookieName+"=") {
		t.Fatal("signup should set the session cookie")
	}

	rr = app.do(request{method: http.MethodPost, path: "/signup", form: url.Values{
		"company_name": {"Initech again"},
		"email":        {"peter@initech.test"},
		"password":     {"tps-reports"},
	}})
	if rr.Code != http.StatusConflict {
		t.Fatalf("duplicate signup status = %d, want 409", rr.Code)
	}

	rr = app.do(request{method: http.MethodPost, path: "/login", form: url.Values{
		"email":    {"peter@initech.test"},
		"password": {"wrong-password"},
	}})
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("bad login status = %d, want 422", rr.Code)
	}

	rr = app.do(request{method: http.MethodPost, path: "/login", form: url.Values{
		"email":    {"peter@initech.test"},
		"password": {"tps-reports"},
		"next":     {"//evil.test/steal"},
	}})
	if rr.Code != http.StatusSeeOther || rr.Header().Get("Location") != "/" {
		t.Fatalf("login status = %d, location = %q", rr.Code, rr.Header().Get("Location"))
	}

	// JSON login returns a bearer token usable on the API.
	r := httptest.NewRequest(http.MethodPost, "/login",
		strings.NewReader(`{"email":"peter@initech.test","password":"tps-reports"}`))
	r.Header.Set("Content-Type", "application/json")
	jr := httptest.NewRecorder()
	app.srv.Handler.ServeHTTP(jr, r)
	if jr.Code != http.StatusOK {
		t.Fatalf("JSON login status = %d, body = %s", jr.Code, jr.Body.String())
	}
	var login struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(jr.Body.Bytes(), &login); err != nil || login.Token == "" {
		t.Fatalf("JSON login body = %s", jr.Body.String())
	}

	rr = app.do(request{method: http.MethodGet, path: "/api/notifications/unread", token: login.Token})
	if rr.Code != http.StatusOK {
		t.Fatalf("unread status = %d", rr.Code)
	}
	var unread map[string]int
	if err := json.Unmarshal(rr.Body.Bytes(), &unread); err != nil {
		t.Fatalf("unread JSON: %v", err)
	}
	if unread["unread"] != 0 {
		t.Errorf("unread = %d, want 0", unread["unread"])
	}

	rr = app.do(request{method: http.MethodPost, path: "/logout", htmx: true})
	if rr.Header().Get("HX-Redirect") != auth.LoginPath {
		t.Errorf("logout HX-Redirect = %q", rr.Header().Get("HX-Redirect"))
	}
}

func TestPermissions(t *testing.T) {
	app := newTestApp(t, Options{})
	viewer := app.token(t, app.viewer)
	admin := app.token(t, app.admin)

	tests := []struct {
		name       string
		req        request
		wantStatus int
	}{
		{"viewer reads invoices", request{method: http.MethodGet, path: "/invoices", token: viewer}, http.StatusOK},
		{"viewer reads dashboard", request{method: http.MethodGet, path: "/", token: viewer}, http.StatusOK},
		{"viewer cannot open new invoice form", request{method: http.MethodGet, path: "/invoices/new", token: viewer}, http.StatusForbidden},
		{"viewer cannot create expense", request{method: http.MethodPost, path: "/expenses", token: viewer, form: url.Values{}}, http.StatusForbidden},
		{"viewer cannot manage users", request{method: http.MethodGet, path: "/admin", token: viewer}, http.StatusForbidden},
		{"admin manages users", request{method: http.MethodGet, path: "/admin", token: admin}, http.StatusOK},
		{"admin opens company settings", request{method: http.MethodGet, path: "/settings/company", token: admin}, http.StatusOK},
		{"unknown invoice is 404", request{method: http.MethodGet, path: "/invoices/missing", token: admin}, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := app.do(tt.req)
			if rr.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d, body = %s", rr.Code, tt.wantStatus, rr.Body.String())
			}
		})
	}
}

func TestInvoiceCreate(t *testing.T) {
	app := newTestApp(t, Options{})
	token := app.token(t, app.admin)
	ctx := context.Background()

	customer, err := services.NewDirectoryService(app.repo).CreateCustomer(ctx, app.company.ID,
		core.Customer{Contact: core.Contact{Name: "Globex", Email: "ap@globex.test"}})
	if err != nil {
		t.Fatalf("CreateCustomer failed: %v", err)
	}

	t.Run("no lines is rejected", func(t *testing.T) {
		rr := app.do(request{method: http.MethodPost, path: "/invoices", token: token, htmx: true, form: url.Values{
			"customer_id": {customer.ID},
			"issue_date":  {"2026-03-01"},
		}})
		if rr.Code != http.StatusUnprocessableEntity {
			t.Fatalf("status = %d, want 422", rr.Code)
		}
		if rr.Header().Get("HX-Retarget") != "#form-errors" {
			t.Errorf("HX-Retarget = %q", rr.Header().Get("HX-Retarget"))
		}
		if !strings.Contains(rr.Body.String(), core.ErrNoItems.Error()) {
			t.Errorf("body = %s", rr.Body.String())
		}
	})

	t.Run("bad unit price names the line", func(t *testing.T) {
		rr := app.do(request{method: http.MethodPost, path: "/invoices", token: token, htmx: true, form: url.Values{
			"customer_id":      {customer.ID},
			"item_description": {"Consulting"},
			"item_unit_price":  {"lots"},
		}})
		if rr.Code != http.StatusUnprocessableEntity {
			t.Fatalf("status = %d, want 422", rr.Code)
		}
		if !strings.Contains(rr.Body.String(), "line 1 unit price") {
			t.Errorf("body = %s", rr.Body.String())
		}
	})

	t.Run("valid invoice redirects to the invoice", func(t *testing.T) {
		rr := app.do(request{method: http.MethodPost, path: "/invoices", token: token, htmx: true, form: url.Values{
			"customer_id":      {customer.ID},
			"issue_date":       {"2026-03-01"},
			"item_description": {"Consulting", ""},
			"item_quantity":    {"2", ""},
			"item_unit_price":  {"150.00", ""},
			"item_tax_rate":    {"20", ""},
		}})
		if rr.Code != http.StatusOK {
			t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
		}
		target := rr.Header().Get("HX-Redirect")
		if !strings.HasPrefix(target, "/invoices/") {
			t.Fatalf("HX-Redirect = %q", target)
		}
		if !strings.Contains(rr.Header().Get("HX-Trigger"), "invoice:changed") {
			t.Errorf("HX-Trigger = %q", rr.Header().Get("HX-Trigger"))
		}

		show := app.do(request{method: http.MethodGet, path: target, token: token})
		if show.Code != http.StatusOK {
			t.Fatalf("show status = %d", show.Code)
		}
		if !strings.Contains(show.Body.String(), "Consulting") {
			t.Error("invoice page should list the line item")
		}

		list := app.do(request{method: http.MethodGet, path: "/invoices?status=draft", token: token, htmx: true})
		if list.Code != http.StatusOK || !strings.Contains(list.Body.String(), "Globex") {
			t.Errorf("filtered list status = %d", list.Code)
		}
	})

	t.Run("unknown status filter is rejected", func(t *testing.T) {
		rr := app.do(request{method: http.MethodGet, path: "/invoices?status=lost", token: token})
		if rr.Code != http.StatusUnprocessableEntity {
			t.Fatalf("status = %d, want 422", rr.Code)
		}
	})
}

func TestDashboardTrendJSON(t *testing.T) {
	app := newTestApp(t, Options{})
	token := app.token(t, app.admin)

	tests := []struct {
		query      string
		wantMonths int
	}{
		{"", core.DefaultTrendMonths},
		{"?months=3", 3},
		{"?months=999", core.MaxTrendMonths},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			rr := app.do(request{method: http.MethodGet, path: "/api/dashboard/trend" + tt.query, token: token})
			if rr.Code != http.StatusOK {
				t.Fatalf("status = %d", rr.Code)
			}
			var resp trendResponse
			if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
				t.Fatalf("invalid JSON: %v", err)
			}
			if resp.Months != tt.wantMonths || len(resp.Points) != tt.wantMonths {
				t.Fatalf("months = %d, points = %d, want %d", resp.Months, len(resp.Points), tt.wantMonths)
			}
			for _, p := range resp.Points {
				if p.Revenue != "0.00" || p.Expenses != "0.00" {
					t.Errorf("empty company point = %+v", p)
				}
			}
		})
	}
}

func TestContactForm(t *testing.T) {
	app := newTestApp(t, Options{})

	rr := app.do(request{method: http.MethodPost, path: "/contact", form: url.Values{
		"name":    {"Ann"},
		"email":   {"not-an-email"},
		"message": {"Hello"},
	}})
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("invalid contact status = %d, want 422", rr.Code)
	}

	rr = app.do(request{method: http.MethodPost, path: "/contact", form: url.Values{
		"name":    {"Ann"},
		"email":   {"ann@example.test"},
		"message": {"Hello"},
	}})
	if rr.Code != http.StatusSeeOther || !strings.HasPrefix(rr.Header().Get("Location"), "/contact?flash=") {
		t.Fatalf("contact status = %d, location = %q", rr.Code, rr.Header().Get("Location"))
	}

	rr = app.do(request{method: http.MethodPost, path: "/contact", htmx: true, form: url.Values{
		"name":    {"Ann"},
		"email":   {"ann@example.test"},
		"message": {"Hello again"},
	}})
	if rr.Code != http.StatusOK || !strings.Contains(rr.Header().Get("HX-Trigger"), "form:reset") {
		t.Fatalf("htmx contact status = %d, trigger = %q", rr.Code, rr.Header().Get("HX-Trigger"))
	}
}

func TestRateLimitAppliesToWritesOnly(t *testing.T) {
	app := newTestApp(t, Options{RateLimitPerMinute: 2})

	form := url.Values{"name": {"Ann"}, "email": {"bad"}, "message": {"x"}}
	for i := 0; i < 2; i++ {
		if rr := app.do(request{method: http.MethodPost, path: "/contact", form: form}); rr.Code == http.StatusTooManyRequests {
			t.Fatalf("request %d limited too early", i+1)
		}
	}
	if rr := app.do(request{method: http.MethodPost, path: "/contact", form: form}); rr.Code != http.StatusTooManyRequests {
		t.Fatalf("third write status = %d, want 429", rr.Code)
	}
	for i := 0; i < 5; i++ {
		if rr := app.do(request{method: http.MethodGet, path: "/healthz"}); rr.Code != http.StatusOK {
			t.Fatalf("read %d status = %d", i+1, rr.Code)
		}
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantMsg    string
	}{
		{"input error", badField("amount", core.ErrInvalidAmount), http.StatusUnprocessableEntity, "amount: invalid amount"},
		{"wrapped not found", fmt.Errorf("load: %w", storage.ErrNotFound), http.StatusNotFound, "Not found"},
		{"email exists", auth.ErrEmailExists, http.StatusConflict, auth.ErrEmailExists.Error()},
		{"conflict", storage.ErrConflict, http.StatusConflict, "The record already exists or is still referenced"},
		{"report forbidden", services.ErrReportForbidden, http.StatusForbidden, services.ErrReportForbidden.Error()},
		{"wrapped validation", fmt.Errorf("line 2: %w", core.ErrInvalidRate), http.StatusUnprocessableEntity, core.ErrInvalidRate.Error()},
		{"last admin", services.ErrLastAdmin, http.StatusUnprocessableEntity, services.ErrLastAdmin.Error()},
		{"stale write", fmt.Errorf("record payment: %w", storage.ErrStale), http.StatusConflict, "This record was changed in the meantime. Reload and try again."},
		{"tax above amount", core.ErrTaxAmount, http.StatusUnprocessableEntity, core.ErrTaxAmount.Error()},
		{"end before start", core.ErrEndBeforeStart, http.StatusUnprocessableEntity, core.ErrEndBeforeStart.Error()},
		{"prefix length", core.ErrPrefixLength, http.StatusUnprocessableEntity, core.ErrPrefixLength.Error()},
		{"payment terms", core.ErrPaymentTerms, http.StatusUnprocessableEntity, core.ErrPaymentTerms.Error()},
		{"unknown", errors.New("disk on fire"), http.StatusInternalServerError, "Something went wrong. Please try again."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, msg := classify(tt.err)
			if status != tt.wantStatus || msg != tt.wantMsg {
				t.Errorf("classify() = %d %q, want %d %q", status, msg, tt.wantStatus, tt.wantMsg)
			}
		})
	}
}
