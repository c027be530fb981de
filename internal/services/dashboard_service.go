package services

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"ledger/internal/cache"
	"ledger/internal/core"
	"ledger/internal/storage"
)

const (
	recentLimit        = 5
	dashboardCacheSize = 256
)

// RecentActivity feeds the dashboard's recent activity partial.
type RecentActivity struct {
	Invoices []core.Invoice
	Expenses []core.Expense
}

// DashboardService computes derived metrics and caches them per company.
// It implements Invalidator so writers can drop stale results.
type DashboardService struct {
	storage *storage.Repository
	cache   *cache.LRUCache[core.Dashboard]
	now     func() time.Time
}

// NewDashboardService caches results for ttl. A zero ttl disables caching.
func NewDashboardService(storage *storage.Repository, ttl time.Duration) *DashboardService {
	s := &DashboardService{storage: storage, now: time.Now}
	if ttl > 0 {
		s.cache = cache.NewLRUCache[core.Dashboard](dashboardCacheSize, ttl)
	}
	return s
}

// Cache exposes the metrics cache for registration with a cache.Manager.
// It is nil when caching is disabled.
func (s *DashboardService) Cache() *cache.LRUCache[core.Dashboard] {
	return s.cache
}

// dashboardKey includes the company's data version, so a write from any
// process makes older entries unreachable.
func dashboardKey(companyID string, version int64, months int) string {
	return companyID + ":" + strconv.FormatInt(version, 10) + ":" + strconv.Itoa(months)
}

// Invalidate drops every cached window of the company. Entries of older data
// versions already miss; this frees them early.
func (s *DashboardService) Invalidate(companyID string) {
	if s.cache == nil {
		return
	}
	if n := s.cache.DeletePrefix(companyID + ":"); n > 0 {
		slog.Debug("Dashboard cache invalidated", "company_id", companyID, "entries", n)
	}
}

// Dashboard returns the metrics for the last months calendar months.
func (s *DashboardService) Dashboard(ctx context.Context, companyID string, months int) (core.Dashboard, error) {
	months = core.ClampMonths(months)
	var key string
	if s.cache != nil {
		version, err := s.storage.DataVersion(ctx, companyID)
		if err != nil {
			return core.Dashboard{}, fmt.Errorf("read data version: %w", err)
		}
		key = dashboardKey(companyID, version, months)
		if d, ok := s.cache.Get(key); ok {
			return d, nil
		}
	}

	var (
		invoices []core.Invoice
		expenses []core.Expense
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		invoices, err = s.storage.ListInvoices(gctx, companyID)
		if err != nil {
			return fmt.Errorf("load invoices: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		expenses, err = s.storage.ListExpenses(gctx, companyID)
		if err != nil {
			return fmt.Errorf("load expenses: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return core.Dashboard{}, err
	}

	d := core.ComputeDashboard(invoices, expenses, s.now(), months)
	if s.cache != nil {
		s.cache.Set(key, d)
	}
	return d, nil
}

// Trend returns the monthly buckets of the dashboard window.
func (s *DashboardService) Trend(ctx context.Context, companyID string, months int) ([]core.MonthBucket, error) {
	d, err := s.Dashboard(ctx, companyID, months)
	if err != nil {
		return nil, err
	}
	return d.Trend, nil
}

// Recent returns the latest invoices and expenses of the company.
func (s *DashboardService) Recent(ctx context.Context, companyID string) (RecentActivity, error) {
	var out RecentActivity
	today := core.DateOf(s.now())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		invoices, err := s.storage.ListRecentInvoices(gctx, companyID, recentLimit)
		if err != nil {
			return fmt.Errorf("load recent invoices: %w", err)
		}
		for i := range invoices {
			invoices[i].Status = invoices[i].EffectiveStatus(today)
		}
		out.Invoices = invoices
		return nil
	})
	g.Go(func() error {
		expenses, err := s.storage.ListRecentExpenses(gctx, companyID, recentLimit)
		if err != nil {
			return fmt.Errorf("load recent expenses: %w", err)
		}
		out.Expenses = expenses
		return nil
	})
	if err := g.Wait(); err != nil {
		return RecentActivity{}, err
	}
	return out, nil
}
