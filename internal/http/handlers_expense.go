package http

import (
	"net/http"

	"ledger/internal/core"
	"ledger/internal/export"
	"ledger/internal/log"
	"ledger/internal/services"
)

var repetitions = []core.RepetitionType{core.Daily, core.Weekly, core.Monthly, core.Yearly}

type expenseListView struct {
	Page       core.Page[core.Expense]
	Query      string
	Category   string
	From, To   core.Date
	Categories []string
}

type expenseFormView struct {
	Expense    core.Expense
	Vendors    []core.Vendor
	Categories []string
	Action     string
}

type recurringView struct {
	Templates   []core.RecurringExpense
	Vendors     []core.Vendor
	Categories  []string
	Repetitions []core.RepetitionType
	Draft       core.RecurringExpense
	Today       core.Date
}

// handleExpenses lists expenses. from and to are optional here; an empty
// bound leaves that side of the range open.
func (s *Server) handleExpenses(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	params := ParseListParams(q)
	from, err := core.ParseDate(q.Get("from"))
	if err != nil {
		s.fail(w, r, "list_expenses", badField("from", err))
		return
	}
	to, err := core.ParseDate(q.Get("to"))
	if err != nil {
		s.fail(w, r, "list_expenses", badField("to", err))
		return
	}
	companyID := principal(r).CompanyID
	category := sanitizeInput(q.Get("category"))

	page, err := s.deps.Expenses.ListExpenses(r.Context(), companyID, services.ExpenseFilter{
		Query:    params.Query,
		Category: category,
		From:     from,
		To:       to,
		Page:     params.Page,
		PerPage:  params.PerPage,
	})
	if err != nil {
		s.fail(w, r, "list_expenses", err)
		return
	}
	data := expenseListView{Page: page, Query: params.Query, Category: category, From: from, To: to}
	if isHTMX(r) {
		s.page(w, r, "expense_rows", "", "", data)
		return
	}
	if data.Categories, err = s.deps.Expenses.Categories(r.Context(), companyID); err != nil {
		s.fail(w, r, "list_expenses", err)
		return
	}
	s.page(w, r, "expenses_page", "Expenses", "expenses", data)
}

func (s *Server) expenseForm(w http.ResponseWriter, r *http.Request, e core.Expense, action, title string) {
	companyID := principal(r).CompanyID
	vendors, err := s.deps.Directory.AllVendors(r.Context(), companyID)
	if err != nil {
		s.fail(w, r, "expense_form", err)
		return
	}
	categories, err := s.deps.Expenses.Categories(r.Context(), companyID)
	if err != nil {
		s.fail(w, r, "expense_form", err)
		return
	}
	s.page(w, r, "expense_form_page", title, "expenses", expenseFormView{
		Expense:    e,
		Vendors:    vendors,
		Categories: categories,
		Action:     action,
	})
}

func (s *Server) handleExpenseNew(w http.ResponseWriter, r *http.Request) {
	s.expenseForm(w, r, core.Expense{Date: s.today()}, "/expenses", "New expense")
}

func (s *Server) handleExpenseCreate(w http.ResponseWriter, r *http.Request) {
	if resp := ParseFormOrFail(r); resp != nil {
		resp.Write(w)
		return
	}
	e, err := parseExpenseForm(r.PostForm)
	if err != nil {
		s.fail(w, r, "create_expense", err)
		return
	}
	companyID := principal(r).CompanyID
	e, err = s.deps.Expenses.CreateExpense(r.Context(), companyID, e)
	if err != nil {
		s.fail(w, r, "create_expense", err)
		return
	}
	s.events.LogExpenseCreated(r.Context(), companyID, e.ID, e.Amount.Cents, e.Category)
	s.done(w, r, "/expenses", NewHTMXResponse().
		TriggerChanged("expense").
		TriggerFormReset().
		TriggerSuccessNotification("Expense recorded: "+e.Description))
}

func (s *Server) handleExpenseEdit(w http.ResponseWriter, r *http.Request) {
	e, err := s.deps.Expenses.GetExpense(r.Context(), principal(r).CompanyID, r.PathValue("id"))
	if err != nil {
		s.fail(w, r, "edit_expense", err)
		return
	}
	s.expenseForm(w, r, e, "/expenses/"+e.ID, "Edit expense")
}

func (s *Server) handleExpenseUpdate(w http.ResponseWriter, r *http.Request) {
	if resp := ParseFormOrFail(r); resp != nil {
		resp.Write(w)
		return
	}
	e, err := parseExpenseForm(r.PostForm)
	if err != nil {
		s.fail(w, r, "update_expense", err)
		return
	}
	e.ID = r.PathValue("id")
	if _, err := s.deps.Expenses.UpdateExpense(r.Context(), principal(r).CompanyID, e); err != nil {
		s.fail(w, r, "update_expense", err)
		return
	}
	s.done(w, r, "/expenses", NewHTMXResponse().
		TriggerChanged("expense").
		TriggerSuccessNotification("Expense saved"))
}

func (s *Server) handleExpenseDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Expenses.DeleteExpense(r.Context(), principal(r).CompanyID, r.PathValue("id")); err != nil {
		s.fail(w, r, "delete_expense", err)
		return
	}
	if !isHTMX(r) {
		http.Redirect(w, r, "/expenses", http.StatusSeeOther)
		return
	}
	NewHTMXResponse().
		TriggerChanged("expense").
		TriggerSuccessNotification("Expense deleted").
		Write(w)
}

func (s *Server) handleExpensesCSV(w http.ResponseWriter, r *http.Request) {
	expenses, err := s.deps.Expenses.AllExpenses(r.Context(), principal(r).CompanyID)
	if err != nil {
		s.fail(w, r, "export_expenses", err)
		return
	}
	csvAttachment(w, "expenses.csv")
	if err := export.WriteExpensesCSV(w, expenses); err != nil {
		s.events.LogError(r.Context(), "CSV export failed", err, log.ComponentExport, "export_expenses", nil)
	}
}

func (s *Server) recurringView(r *http.Request, draft core.RecurringExpense) (recurringView, error) {
	companyID := principal(r).CompanyID
	v := recurringView{Repetitions: repetitions, Draft: draft, Today: s.today()}
	var err error
	if v.Templates, err = s.deps.Expenses.ListRecurring(r.Context(), companyID); err != nil {
		return v, err
	}
	if v.Vendors, err = s.deps.Directory.AllVendors(r.Context(), companyID); err != nil {
		return v, err
	}
	if v.Categories, err = s.deps.Expenses.Categories(r.Context(), companyID); err != nil {
		return v, err
	}
	return v, nil
}

func (s *Server) handleRecurring(w http.ResponseWriter, r *http.Request) {
	data, err := s.recurringView(r, core.RecurringExpense{StartDate: s.today(), Every: core.Monthly})
	if err != nil {
		s.fail(w, r, "list_recurring", err)
		return
	}
	if isHTMX(r) {
		s.page(w, r, "recurring_list", "", "", data)
		return
	}
	s.page(w, r, "recurring_page", "Recurring expenses", "expenses", data)
}

func (s *Server) handleRecurringCreate(w http.ResponseWriter, r *http.Request) {
	if resp := ParseFormOrFail(r); resp != nil {
		resp.Write(w)
		return
	}
	re, err := parseRecurringForm(r.PostForm)
	if err != nil {
		s.fail(w, r, "create_recurring", err)
		return
	}
	re, err = s.deps.Expenses.CreateRecurring(r.Context(), principal(r).CompanyID, re)
	if err != nil {
		s.fail(w, r, "create_recurring", err)
		return
	}
	log.FromContext(r.Context()).InfoContext(r.Context(), "Recurring expense created",
		log.FieldComponent, log.ComponentExpense,
		"recurring_id", re.ID,
		"every", re.Every)
	s.done(w, r, "/expenses/recurring", NewHTMXResponse().
		TriggerChanged("recurring").
		TriggerFormReset().
		TriggerSuccessNotification("Recurring expense saved"))
}

func (s *Server) handleRecurringDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Expenses.DeleteRecurring(r.Context(), principal(r).CompanyID, r.PathValue("id")); err != nil {
		s.fail(w, r, "delete_recurring", err)
		return
	}
	if !isHTMX(r) {
		http.Redirect(w, r, "/expenses/recurring", http.StatusSeeOther)
		return
	}
	NewHTMXResponse().
		TriggerChanged("recurring").
		TriggerSuccessNotification("Recurring expense removed").
		Write(w)
}
