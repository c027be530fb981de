package http

import (
	"net/http"
	"strconv"

	"ledger/internal/core"
	"ledger/internal/log"
	"ledger/internal/services"
)

const notificationPageLimit = 50

// Notifications

func (s *Server) handleNotifications(w http.ResponseWriter, r *http.Request) {
	items, err := s.deps.Notifications.List(r.Context(), principal(r).UserID, notificationPageLimit)
	if err != nil {
		s.fail(w, r, "list_notifications", err)
		return
	}
	if isHTMX(r) {
		s.page(w, r, "notification_list", "", "", items)
		return
	}
	s.page(w, r, "notifications_page", "Notifications", "notifications", items)
}

// handleUnreadCount is polled by the navbar badge.
func (s *Server) handleUnreadCount(w http.ResponseWriter, r *http.Request) {
	n, err := s.deps.Notifications.Unread(r.Context(), principal(r).UserID)
	if err != nil {
		s.events.LogError(r.Context(), "Unread count failed", err, log.ComponentHTTP, "unread_notifications", nil)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"unread": n})
}

func (s *Server) handleNotificationRead(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Notifications.MarkRead(r.Context(), principal(r).UserID, r.PathValue("id")); err != nil {
		s.fail(w, r, "read_notification", err)
		return
	}
	s.done(w, r, "/notifications", NewHTMXResponse().
		TriggerChanged("notification").
		TriggerNotificationsRefresh())
}

func (s *Server) handleNotificationsReadAll(w http.ResponseWriter, r *http.Request) {
	n, err := s.deps.Notifications.MarkAllRead(r.Context(), principal(r).UserID)
	if err != nil {
		s.fail(w, r, "read_all_notifications", err)
		return
	}
	s.done(w, r, "/notifications", NewHTMXResponse().
		TriggerChanged("notification").
		TriggerNotificationsRefresh().
		TriggerSuccessNotification(strconv.FormatInt(n, 10)+" marked as read"))
}

// Reports

type reportView struct {
	Definition core.ReportDefinition
	Result     core.ReportResult
	From, To   core.Date
}

func (s *Server) handleReports(w http.ResponseWriter, r *http.Request) {
	p := principal(r)
	defs, err := s.deps.Reports.Visible(r.Context(), p.CompanyID, p.UserID, p.Role)
	if err != nil {
		s.fail(w, r, "list_reports", err)
		return
	}
	s.page(w, r, "reports_page", "Reports", "reports", defs)
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	from, to, err := ParseDateRange(r.URL.Query(), s.today())
	if err != nil {
		s.fail(w, r, "run_report", err)
		return
	}
	p := principal(r)
	def, result, err := s.deps.Reports.Run(r.Context(), p.CompanyID, p.UserID, p.Role, r.PathValue("id"), from, to)
	if err != nil {
		s.fail(w, r, "run_report", err)
		return
	}
	data := reportView{Definition: def, Result: result, From: from, To: to}
	if isHTMX(r) {
		s.page(w, r, "report_table", "", "", data)
		return
	}
	s.page(w, r, "report_page", def.Name, "reports", data)
}

// Admin

type adminView struct {
	Members []services.Member
	Reports []core.ReportDefinition
	Roles   []core.Role
}

func (s *Server) handleAdmin(w http.ResponseWriter, r *http.Request) {
	companyID := principal(r).CompanyID
	members, err := s.deps.Admin.Members(r.Context(), companyID)
	if err != nil {
		s.fail(w, r, "admin", err)
		return
	}
	reports, err := s.deps.Admin.Reports(r.Context(), companyID)
	if err != nil {
		s.fail(w, r, "admin", err)
		return
	}
	s.page(w, r, "admin_page", "Team & access", "admin", adminView{Members: members, Reports: reports, Roles: core.Roles})
}

func (s *Server) handleAdminAddUser(w http.ResponseWriter, r *http.Request) {
	if resp := ParseFormOrFail(r); resp != nil {
		resp.Write(w)
		return
	}
	form := r.PostForm
	role, err := core.ParseRole(form.Get("role"))
	if err != nil {
		s.fail(w, r, "add_user", badField("role", err))
		return
	}
	user, err := s.deps.Auth.AddUser(r.Context(), principal(r).CompanyID,
		sanitizeInput(form.Get("email")),
		sanitizeInput(form.Get("display_name")),
		form.Get("password"),
		role)
	if err != nil {
		s.fail(w, r, "add_user", err)
		return
	}
	s.done(w, r, "/admin", NewHTMXResponse().
		TriggerChanged("user").
		TriggerFormReset().
		TriggerSuccessNotification(user.Email+" added as "+string(user.Role)))
}

func (s *Server) handleAdminSetRole(w http.ResponseWriter, r *http.Request) {
	if resp := ParseFormOrFail(r); resp != nil {
		resp.Write(w)
		return
	}
	role, err := core.ParseRole(r.PostForm.Get("role"))
	if err != nil {
		s.fail(w, r, "set_role", badField("role", err))
		return
	}
	if err := s.deps.Admin.SetRole(r.Context(), principal(r).CompanyID, r.PathValue("id"), role); err != nil {
		s.fail(w, r, "set_role", err)
		return
	}
	s.done(w, r, "/admin", NewHTMXResponse().
		TriggerChanged("user").
		TriggerSuccessNotification("Role updated"))
}

// handleAdminSetReports replaces the user's grants with the submitted report
// checkboxes; an empty submission revokes everything.
func (s *Server) handleAdminSetReports(w http.ResponseWriter, r *http.Request) {
	if resp := ParseFormOrFail(r); resp != nil {
		resp.Write(w)
		return
	}
	ids := r.PostForm["report"]
	if err := s.deps.Admin.SetReportAccess(r.Context(), principal(r).CompanyID, r.PathValue("id"), ids); err != nil {
		s.fail(w, r, "set_reports", err)
		return
	}
	s.done(w, r, "/admin", NewHTMXResponse().
		TriggerChanged("user").
		TriggerSuccessNotification("Report access updated"))
}

func (s *Server) handleCompanySettings(w http.ResponseWriter, r *http.Request) {
	company, err := s.deps.Admin.Company(r.Context(), principal(r).CompanyID)
	if err != nil {
		s.fail(w, r, "company_settings", err)
		return
	}
	s.page(w, r, "company_page", "Company settings", "settings", company)
}

func (s *Server) handleCompanySettingsUpdate(w http.ResponseWriter, r *http.Request) {
	if resp := ParseFormOrFail(r); resp != nil {
		resp.Write(w)
		return
	}
	c := parseCompanyForm(r.PostForm)
	c.ID = principal(r).CompanyID
	if _, err := s.deps.Admin.UpdateCompany(r.Context(), c); err != nil {
		s.fail(w, r, "company_settings", err)
		return
	}
	if s.deps.Dashboard != nil {
		s.deps.Dashboard.Invalidate(c.ID)
	}
	s.done(w, r, "/settings/company", NewHTMXResponse().
		TriggerChanged("company").
		TriggerSuccessNotification("Company settings saved"))
}
