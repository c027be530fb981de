package http

import (
	"fmt"
	"net/http"

	"ledger/internal/core"
)

type dashboardView struct {
	Months    int
	Dashboard core.Dashboard
}

// handleDashboard renders the shell; stats and recent activity load as partials.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	s.page(w, r, "dashboard_page", "Dashboard", "dashboard", dashboardView{Months: ParseMonths(r.URL.Query())})
}

func (s *Server) handleDashboardStats(w http.ResponseWriter, r *http.Request) {
	months := ParseMonths(r.URL.Query())
	d, err := s.deps.Dashboard.Dashboard(r.Context(), principal(r).CompanyID, months)
	if err != nil {
		s.fail(w, r, "dashboard_stats", err)
		return
	}
	s.page(w, r, "dashboard_stats", "", "", dashboardView{Months: months, Dashboard: d})
}

func (s *Server) handleDashboardRecent(w http.ResponseWriter, r *http.Request) {
	recent, err := s.deps.Dashboard.Recent(r.Context(), principal(r).CompanyID)
	if err != nil {
		s.fail(w, r, "dashboard_recent", err)
		return
	}
	s.page(w, r, "dashboard_recent", "", "", recent)
}

type trendPoint struct {
	Month    string `json:"month"`
	Label    string `json:"label"`
	Revenue  string `json:"revenue"`
	Expenses string `json:"expenses"`
	Profit   string `json:"profit"`
}

type trendResponse struct {
	Months int          `json:"months"`
	Points []trendPoint `json:"points"`
}

// handleDashboardTrend feeds the dashboard chart. Amounts are plain decimals.
func (s *Server) handleDashboardTrend(w http.ResponseWriter, r *http.Request) {
	months := ParseMonths(r.URL.Query())
	buckets, err := s.deps.Dashboard.Trend(r.Context(), principal(r).CompanyID, months)
	if err != nil {
		status, msg := classify(err)
		if status >= http.StatusInternalServerError {
			s.fail(w, r, "dashboard_trend", err)
			return
		}
		writeJSON(w, status, map[string]string{"error": msg})
		return
	}
	resp := trendResponse{Months: months, Points: make([]trendPoint, 0, len(buckets))}
	for _, b := range buckets {
		resp.Points = append(resp.Points, trendPoint{
			Month:    fmt.Sprintf("%04d-%02d", b.Year, b.Month),
			Label:    b.Label(),
			Revenue:  b.Revenue.Plain(),
			Expenses: b.Expenses.Plain(),
			Profit:   b.Profit.Plain(),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}
