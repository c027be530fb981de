package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"ledger/internal/core"
	"ledger/internal/storage"
)

// ErrReportForbidden is returned when a user runs a report they were not granted.
var ErrReportForbidden = errors.New("report access not granted")

// ReportService runs report definitions for users with access to them.
type ReportService struct {
	storage *storage.Repository
	now     func() time.Time
}

func NewReportService(storage *storage.Repository) *ReportService {
	return &ReportService{storage: storage, now: time.Now}
}

// Visible lists the report definitions the user may run. Admins see all of them.
func (s *ReportService) Visible(ctx context.Context, companyID, userID string, role core.Role) ([]core.ReportDefinition, error) {
	defs, err := s.storage.ListReportDefinitions(ctx, companyID)
	if err != nil {
		return nil, err
	}
	if role == core.RoleAdmin {
		return defs, nil
	}
	visible := defs[:0]
	for _, d := range defs {
		ok, err := s.storage.HasReportAccess(ctx, userID, d.ID)
		if err != nil {
			return nil, err
		}
		if ok {
			visible = append(visible, d)
		}
	}
	return visible, nil
}

// Run computes a report over [from, to]. Zero dates leave that side open.
func (s *ReportService) Run(ctx context.Context, companyID, userID string, role core.Role, reportID string, from, to core.Date) (core.ReportDefinition, core.ReportResult, error) {
	def, err := s.storage.GetReportDefinition(ctx, companyID, reportID)
	if err != nil {
		return core.ReportDefinition{}, core.ReportResult{}, err
	}
	if role != core.RoleAdmin {
		ok, err := s.storage.HasReportAccess(ctx, userID, def.ID)
		if err != nil {
			return core.ReportDefinition{}, core.ReportResult{}, err
		}
		if !ok {
			slog.WarnContext(ctx, "Report access denied", "user_id", userID, "report_id", def.ID)
			return core.ReportDefinition{}, core.ReportResult{}, ErrReportForbidden
		}
	}
	if !from.IsZero() && !to.IsZero() && to.Before(from) {
		return core.ReportDefinition{}, core.ReportResult{}, fmt.Errorf("%w: end before start", core.ErrInvalidDate)
	}

	var (
		invoices []core.Invoice
		expenses []core.Expense
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		invoices, err = s.storage.ListInvoices(gctx, companyID)
		return err
	})
	g.Go(func() (err error) {
		expenses, err = s.storage.ListExpenses(gctx, companyID)
		return err
	})
	if err := g.Wait(); err != nil {
		return core.ReportDefinition{}, core.ReportResult{}, fmt.Errorf("load report data: %w", err)
	}

	res, err := core.RunReport(def.Kind, invoices, expenses, from, to, core.DateOf(s.now()))
	if err != nil {
		return core.ReportDefinition{}, core.ReportResult{}, err
	}
	res.Title = def.Name
	return def, res, nil
}
