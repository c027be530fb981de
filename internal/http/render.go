package http

import (
	"bytes"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"ledger/internal/amqp"
	"ledger/internal/auth"
	"ledger/internal/core"
	"ledger/internal/log"
	"ledger/internal/services"
	"ledger/internal/storage"
)

var templateFuncs = template.FuncMap{
	"money": func(m core.Money, currency string) string { return m.Format(currency) },
	"plain": func(m core.Money) string { return m.Plain() },
	"date":  func(d core.Date) string { return d.String() },
	"datetime": func(t time.Time) string {
		if t.IsZero() {
			return ""
		}
		return t.Format("2006-01-02 15:04")
	},
	"pct":          func(f float64) string { return strconv.FormatFloat(f, 'f', 1, 64) + "%" },
	"dec":          func(d decimal.Decimal) string { return d.String() },
	"add":          func(a, b int) int { return a + b },
	"trendWindows": func() []int { return []int{3, 6, 12, core.MaxTrendMonths} },
	"status": func(inv core.Invoice, today core.Date) core.InvoiceStatus {
		return inv.EffectiveStatus(today)
	},
}

func loadTemplates(fsys fs.FS) (*template.Template, error) {
	t, err := template.New("ledger").Funcs(templateFuncs).ParseFS(fsys, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	return t, nil
}

// view is the data handed to every page and partial. Data carries the
// handler-specific payload.
type view struct {
	Title    string
	Active   string
	User     auth.Principal
	Company  core.Company
	Currency string
	Today    core.Date
	Flash    string
	Data     any
}

func (v view) SignedIn() bool { return v.User.UserID != "" }

func (v view) CanWrite() bool { return v.User.Can(core.PermWrite) }

func (v view) CanManageUsers() bool { return v.User.Can(core.PermManageUsers) }

func (v view) CanManageReports() bool { return v.User.Can(core.PermManageReports) }

func (s *Server) today() core.Date { return core.DateOf(s.now()) }

// newView fills the shell fields. The company is loaded for signed-in users
// so money is formatted in the company currency.
func (s *Server) newView(r *http.Request, title, active string, data any) view {
	v := view{
		Title:    title,
		Active:   active,
		Currency: core.DefaultCurrency,
		Today:    s.today(),
		Flash:    sanitizeInput(r.URL.Query().Get("flash")),
		Data:     data,
	}
	p, ok := auth.FromContext(r.Context())
	if !ok {
		return v
	}
	v.User = p
	if s.deps.Admin != nil {
		company, err := s.deps.Admin.Company(r.Context(), p.CompanyID)
		if err != nil {
			log.FromContext(r.Context()).WarnContext(r.Context(), "Failed to load company for view",
				log.FieldCompanyID, p.CompanyID,
				log.FieldError, err)
		} else {
			v.Company = company
			v.Currency = company.Currency
		}
	}
	return v
}

// render executes name into a buffer so template errors never produce a
// half-written page.
func (s *Server) render(w http.ResponseWriter, r *http.Request, status int, name string, v view) {
	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, name, v); err != nil {
		fields := log.NewFields()
		fields["template"] = name
		s.events.LogError(r.Context(), "Template render failed", err, log.ComponentTemplate, log.OpRender, fields)
		InternalServerError("Failed to render page").Write(w)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) page(w http.ResponseWriter, r *http.Request, name, title, active string, data any) {
	s.render(w, r, http.StatusOK, name, s.newView(r, title, active, data))
}

// principal returns the signed-in user. Routes behind RequireAuth always have one.
func principal(r *http.Request) auth.Principal {
	p, _ := auth.FromContext(r.Context())
	return p
}

var validationErrors = []error{
	core.ErrInvalidDate, core.ErrInvalidAmount, core.ErrEmptyDescription, core.ErrDescriptionLength,
	core.ErrEmptyName, core.ErrNameLength, core.ErrInvalidEmail, core.ErrInvalidCurrency,
	core.ErrInvalidQuantity, core.ErrNotesLength, core.ErrInvalidRepetition, core.ErrSKULength,
	core.ErrNoItems, core.ErrInvalidTransition, core.ErrInvalidStatus, core.ErrNoCustomer,
	core.ErrDueBeforeIssue, core.ErrInvalidRate, core.ErrOverpayment, core.ErrNotPayable,
	core.ErrNotEditable, core.ErrInvalidRole, core.ErrPrefixLength, core.ErrPaymentTerms,
	core.ErrTaxAmount, core.ErrReceiptURL, core.ErrEndBeforeStart, core.ErrNoCompany,
	services.ErrLastAdmin,
	auth.ErrWeakPassword, auth.ErrLongPassword, auth.ErrInvalidCredentials,
	amqp.ErrContactName, amqp.ErrContactEmail, amqp.ErrContactMessage, amqp.ErrContactLength,
}

// classify maps an error to a status and a message safe to show the user.
func classify(err error) (int, string) {
	var input *inputError
	switch {
	case errors.As(err, &input):
		return http.StatusUnprocessableEntity, input.Error()
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound, "Not found"
	case errors.Is(err, auth.ErrEmailExists):
		return http.StatusConflict, auth.ErrEmailExists.Error()
	case errors.Is(err, storage.ErrStale):
		return http.StatusConflict, "This record was changed in the meantime. Reload and try again."
	case errors.Is(err, storage.ErrConflict):
		return http.StatusConflict, "The record already exists or is still referenced"
	case errors.Is(err, services.ErrReportForbidden):
		return http.StatusForbidden, services.ErrReportForbidden.Error()
	}
	for _, v := range validationErrors {
		if errors.Is(err, v) {
			return http.StatusUnprocessableEntity, v.Error()
		}
	}
	return http.StatusInternalServerError, "Something went wrong. Please try again."
}

// fail logs server errors and answers with an error partial. HTMX form posts
// get the partial swapped into the form's #form-errors slot.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	status, msg := classify(err)
	if status >= http.StatusInternalServerError {
		p := principal(r)
		s.events.LogError(r.Context(), "Request failed", err, log.ComponentHTTP, op,
			log.NewFields().WithTenant(p.CompanyID, p.UserID))
	} else {
		log.FromContext(r.Context()).DebugContext(r.Context(), "Request rejected",
			log.FieldOperation, op,
			log.FieldStatusCode, status,
			log.FieldError, err)
	}
	b := ErrorResponse(status, msg)
	if isHTMX(r) {
		b.TriggerErrorNotification(msg)
		if r.Method == http.MethodPost {
			b.Retarget("#form-errors")
		}
	}
	b.Write(w)
}

// done finishes a successful write: HTMX requests follow HX-Redirect, plain
// form posts get a 303.
func (s *Server) done(w http.ResponseWriter, r *http.Request, target string, b *HTMXResponseBuilder) {
	if !isHTMX(r) {
		http.Redirect(w, r, target, http.StatusSeeOther)
		return
	}
	b.Redirect(target).Write(w)
}

func (s *Server) handleForbidden(w http.ResponseWriter, r *http.Request) {
	msg := "You do not have permission to do that"
	if isHTMX(r) || r.Method != http.MethodGet {
		ForbiddenError(msg).TriggerErrorNotification(msg).Write(w)
		return
	}
	v := s.newView(r, "Forbidden", "", nil)
	v.Flash = msg
	s.render(w, r, http.StatusForbidden, "forbidden_page", v)
}
