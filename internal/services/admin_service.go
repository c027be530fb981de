package services

import (
	"context"
	"fmt"
	"log/slog"

	"ledger/internal/core"
	"ledger/internal/storage"
)

// ErrLastAdmin prevents a company from losing its only administrator.
var ErrLastAdmin = storage.ErrLastAdmin

// Member is a company user with the reports granted to them.
type Member struct {
	core.User
	Reports map[string]bool
}

// AdminService manages company settings, user roles and report grants.
type AdminService struct {
	storage *storage.Repository
}

func NewAdminService(storage *storage.Repository) *AdminService {
	return &AdminService{storage: storage}
}

func (s *AdminService) Company(ctx context.Context, companyID string) (core.Company, error) {
	return s.storage.GetCompany(ctx, companyID)
}

// UpdateCompany saves the company profile and invoicing defaults.
func (s *AdminService) UpdateCompany(ctx context.Context, c core.Company) (core.Company, error) {
	existing, err := s.storage.GetCompany(ctx, c.ID)
	if err != nil {
		return core.Company{}, err
	}
	c.CreatedAt = existing.CreatedAt
	c.Normalize()
	if err := c.Validate(); err != nil {
		return core.Company{}, err
	}
	if err := s.storage.UpdateCompany(ctx, c); err != nil {
		return core.Company{}, fmt.Errorf("update company: %w", err)
	}
	slog.InfoContext(ctx, "Company settings updated", "company_id", c.ID)
	return c, nil
}

// Members lists company users with their report grants.
func (s *AdminService) Members(ctx context.Context, companyID string) ([]Member, error) {
	users, err := s.storage.ListUsers(ctx, companyID)
	if err != nil {
		return nil, err
	}
	access, err := s.storage.ListReportAccess(ctx, companyID)
	if err != nil {
		return nil, err
	}
	out := make([]Member, 0, len(users))
	for _, u := range users {
		m := Member{User: u, Reports: make(map[string]bool)}
		for _, id := range access[u.ID] {
			m.Reports[id] = true
		}
		out = append(out, m)
	}
	return out, nil
}

func (s *AdminService) Reports(ctx context.Context, companyID string) ([]core.ReportDefinition, error) {
	return s.storage.ListReportDefinitions(ctx, companyID)
}

// SetRole changes a user's role. Demoting the last admin fails with ErrLastAdmin.
func (s *AdminService) SetRole(ctx context.Context, companyID, userID string, role core.Role) error {
	if _, err := core.ParseRole(string(role)); err != nil {
		return err
	}
	if err := s.storage.SetUserRole(ctx, companyID, userID, role); err != nil {
		return err
	}
	slog.InfoContext(ctx, "User role changed", "company_id", companyID, "user_id", userID, "role", role)
	return nil
}

// SetReportAccess replaces the reports granted to a user.
func (s *AdminService) SetReportAccess(ctx context.Context, companyID, userID string, reportIDs []string) error {
	if err := s.storage.SetReportAccess(ctx, companyID, userID, reportIDs); err != nil {
		return err
	}
	slog.InfoContext(ctx, "Report access updated", "company_id", companyID, "user_id", userID, "reports", len(reportIDs))
	return nil
}
