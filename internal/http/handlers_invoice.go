package http

import (
	"net/http"
	"strings"

	"ledger/internal/core"
	"ledger/internal/export"
	"ledger/internal/log"
	"ledger/internal/services"
)

var invoiceStatuses = []core.InvoiceStatus{
	core.StatusDraft, core.StatusSent, core.StatusPaid, core.StatusOverdue, core.StatusCancelled,
}

type invoiceListView struct {
	Page     core.Page[core.Invoice]
	Query    string
	Status   core.InvoiceStatus
	Statuses []core.InvoiceStatus
}

type invoiceFormView struct {
	Invoice   core.Invoice
	Customers []core.Customer
	Items     []core.InventoryItem
	Action    string
}

type invoiceShowView struct {
	Invoice core.Invoice
	Status  core.InvoiceStatus
	Next    []core.InvoiceStatus
}

// nextStatuses lists the transitions offered as buttons for an invoice.
// Overdue is set by the scanner and never offered manually.
func nextStatuses(st core.InvoiceStatus) []core.InvoiceStatus {
	var out []core.InvoiceStatus
	for _, to := range []core.InvoiceStatus{core.StatusSent, core.StatusPaid, core.StatusCancelled} {
		if core.CanTransition(st, to) {
			out = append(out, to)
		}
	}
	return out
}

func (s *Server) handleInvoices(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	params := ParseListParams(q)
	filter := services.InvoiceFilter{Query: params.Query, Page: params.Page, PerPage: params.PerPage}
	if raw := strings.TrimSpace(q.Get("status")); raw != "" {
		st, err := core.ParseInvoiceStatus(raw)
		if err != nil {
			s.fail(w, r, "list_invoices", badField("status", err))
			return
		}
		filter.Status = st
	}

	page, err := s.deps.Invoices.List(r.Context(), principal(r).CompanyID, filter)
	if err != nil {
		s.fail(w, r, "list_invoices", err)
		return
	}
	data := invoiceListView{Page: page, Query: params.Query, Status: filter.Status, Statuses: invoiceStatuses}
	if isHTMX(r) {
		s.page(w, r, "invoice_rows", "", "", data)
		return
	}
	s.page(w, r, "invoices_page", "Invoices", "invoices", data)
}

func (s *Server) invoiceForm(w http.ResponseWriter, r *http.Request, inv core.Invoice, action, title string) {
	companyID := principal(r).CompanyID
	customers, err := s.deps.Directory.AllCustomers(r.Context(), companyID)
	if err != nil {
		s.fail(w, r, "invoice_form", err)
		return
	}
	items, err := s.deps.Directory.AllItems(r.Context(), companyID)
	if err != nil {
		s.fail(w, r, "invoice_form", err)
		return
	}
	s.page(w, r, "invoice_form_page", title, "invoices", invoiceFormView{
		Invoice:   inv,
		Customers: customers,
		Items:     items,
		Action:    action,
	})
}

func (s *Server) handleInvoiceNew(w http.ResponseWriter, r *http.Request) {
	inv := core.Invoice{
		CustomerID: r.URL.Query().Get("customer_id"),
		IssueDate:  s.today(),
		Items:      []core.InvoiceItem{{}},
	}
	s.invoiceForm(w, r, inv, "/invoices", "New invoice")
}

func (s *Server) handleInvoiceCreate(w http.ResponseWriter, r *http.Request) {
	if resp := ParseFormOrFail(r); resp != nil {
		resp.Write(w)
		return
	}
	inv, err := parseInvoiceForm(r.PostForm)
	if err != nil {
		s.fail(w, r, "create_invoice", err)
		return
	}
	companyID := principal(r).CompanyID
	inv, err = s.deps.Invoices.Create(r.Context(), companyID, inv)
	if err != nil {
		s.fail(w, r, "create_invoice", err)
		return
	}
	s.events.LogInvoiceCreated(r.Context(), companyID, inv.ID, inv.Number, inv.Totals.Total.Cents)
	s.done(w, r, "/invoices/"+inv.ID, NewHTMXResponse().
		TriggerChanged("invoice").
		TriggerSuccessNotification("Invoice "+inv.Number+" created"))
}

func (s *Server) handleInvoiceShow(w http.ResponseWriter, r *http.Request) {
	inv, err := s.deps.Invoices.Get(r.Context(), principal(r).CompanyID, r.PathValue("id"))
	if err != nil {
		s.fail(w, r, "show_invoice", err)
		return
	}
	st := inv.EffectiveStatus(s.today())
	s.page(w, r, "invoice_page", "Invoice "+inv.Number, "invoices", invoiceShowView{
		Invoice: inv,
		Status:  st,
		Next:    nextStatuses(inv.Status),
	})
}

func (s *Server) handleInvoiceEdit(w http.ResponseWriter, r *http.Request) {
	inv, err := s.deps.Invoices.Get(r.Context(), principal(r).CompanyID, r.PathValue("id"))
	if err != nil {
		s.fail(w, r, "edit_invoice", err)
		return
	}
	if !inv.Editable() {
		s.fail(w, r, "edit_invoice", core.ErrNotEditable)
		return
	}
	s.invoiceForm(w, r, inv, "/invoices/"+inv.ID, "Edit "+inv.Number)
}

func (s *Server) handleInvoiceUpdate(w http.ResponseWriter, r *http.Request) {
	if resp := ParseFormOrFail(r); resp != nil {
		resp.Write(w)
		return
	}
	inv, err := parseInvoiceForm(r.PostForm)
	if err != nil {
		s.fail(w, r, "update_invoice", err)
		return
	}
	inv.ID = r.PathValue("id")
	inv, err = s.deps.Invoices.Update(r.Context(), principal(r).CompanyID, inv)
	if err != nil {
		s.fail(w, r, "update_invoice", err)
		return
	}
	s.done(w, r, "/invoices/"+inv.ID, NewHTMXResponse().
		TriggerChanged("invoice").
		TriggerSuccessNotification("Invoice "+inv.Number+" saved"))
}

func (s *Server) handleInvoiceStatus(w http.ResponseWriter, r *http.Request) {
	if resp := ParseFormOrFail(r); resp != nil {
		resp.Write(w)
		return
	}
	to, err := core.ParseInvoiceStatus(r.PostForm.Get("status"))
	if err != nil {
		s.fail(w, r, "invoice_status", badField("status", err))
		return
	}
	inv, err := s.deps.Invoices.Transition(r.Context(), principal(r).CompanyID, r.PathValue("id"), to)
	if err != nil {
		s.fail(w, r, "invoice_status", err)
		return
	}
	s.done(w, r, "/invoices/"+inv.ID, NewHTMXResponse().
		TriggerChanged("invoice").
		TriggerNotificationsRefresh().
		TriggerSuccessNotification("Invoice "+inv.Number+" is now "+string(inv.Status)))
}

func (s *Server) handleInvoicePayment(w http.ResponseWriter, r *http.Request) {
	if resp := ParseFormOrFail(r); resp != nil {
		resp.Write(w)
		return
	}
	amount, err := formMoney(r.PostForm, "amount", true)
	if err != nil {
		s.fail(w, r, "invoice_payment", err)
		return
	}
	inv, err := s.deps.Invoices.RecordPayment(r.Context(), principal(r).CompanyID, r.PathValue("id"), amount)
	if err != nil {
		s.fail(w, r, "invoice_payment", err)
		return
	}
	s.done(w, r, "/invoices/"+inv.ID, NewHTMXResponse().
		TriggerChanged("invoice").
		TriggerNotificationsRefresh().
		TriggerSuccessNotification("Payment recorded on "+inv.Number))
}

func (s *Server) handleInvoiceDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Invoices.Delete(r.Context(), principal(r).CompanyID, r.PathValue("id")); err != nil {
		s.fail(w, r, "delete_invoice", err)
		return
	}
	if !isHTMX(r) {
		http.Redirect(w, r, "/invoices", http.StatusSeeOther)
		return
	}
	b := NewHTMXResponse().TriggerChanged("invoice").TriggerSuccessNotification("Invoice deleted")
	if r.URL.Query().Get("from") == "show" {
		b.Redirect("/invoices")
	}
	b.Write(w)
}

// handleInvoicePrint renders a standalone printable page without the app shell.
func (s *Server) handleInvoicePrint(w http.ResponseWriter, r *http.Request) {
	inv, err := s.deps.Invoices.Get(r.Context(), principal(r).CompanyID, r.PathValue("id"))
	if err != nil {
		s.fail(w, r, "print_invoice", err)
		return
	}
	var customer core.Customer
	if inv.CustomerID != "" {
		customer, err = s.deps.Directory.GetCustomer(r.Context(), inv.CompanyID, inv.CustomerID)
		if err != nil {
			s.fail(w, r, "print_invoice", err)
			return
		}
	}
	s.page(w, r, "invoice_print", "Invoice "+inv.Number, "", struct {
		Invoice  core.Invoice
		Customer core.Customer
		Status   core.InvoiceStatus
	}{inv, customer, inv.EffectiveStatus(s.today())})
}

func (s *Server) handleInvoicesCSV(w http.ResponseWriter, r *http.Request) {
	invoices, err := s.deps.Invoices.All(r.Context(), principal(r).CompanyID)
	if err != nil {
		s.fail(w, r, "export_invoices", err)
		return
	}
	csvAttachment(w, "invoices.csv")
	if err := export.WriteInvoicesCSV(w, invoices); err != nil {
		s.events.LogError(r.Context(), "CSV export failed", err, log.ComponentExport, "export_invoices", nil)
	}
}
