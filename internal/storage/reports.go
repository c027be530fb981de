package storage

import (
	"context"
	"database/sql"
	"fmt"

	"ledger/internal/core"
)

var reportDescriptions = map[core.ReportKind]string{
	core.ReportProfitLoss:         "Revenue, expenses and profit per month.",
	core.ReportARAging:            "Unpaid invoice balances grouped by days past due.",
	core.ReportExpensesByCategory: "Expense totals per category.",
	core.ReportSalesByCustomer:    "Invoiced, paid and outstanding amounts per customer.",
}

func seedReports(ctx context.Context, tx *sql.Tx, companyID string, created int64) error {
	for _, kind := range core.ReportKinds {
		_, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO report_definitions (id, company_id, kind, name, description, created_at)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			newID(), companyID, string(kind), kind.Title(), reportDescriptions[kind], created)
		if err != nil {
			return fmt.Errorf("seed report %s: %w", kind, err)
		}
	}
	return nil
}

// EnsureReportDefinitions seeds any missing built-in report for the company.
func (r *Repository) EnsureReportDefinitions(ctx context.Context, companyID string) error {
	return inTx(ctx, r.db, func(tx *sql.Tx) error {
		return seedReports(ctx, tx, companyID, r.now().Unix())
	})
}

const reportColumns = `id, company_id, kind, name, description, created_at`

func scanReport(s scanner) (core.ReportDefinition, error) {
	var d core.ReportDefinition
	var kind string
	var created int64
	err := s.Scan(&d.ID, &d.CompanyID, &kind, &d.Name, &d.Description, &created)
	d.Kind = core.ReportKind(kind)
	d.CreatedAt = fromUnix(created)
	return d, err
}

func (r *Repository) ListReportDefinitions(ctx context.Context, companyID string) ([]core.ReportDefinition, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+reportColumns+` FROM report_definitions WHERE company_id = ? ORDER BY name`, companyID)
	if err != nil {
		return nil, fmt.Errorf("list report definitions: %w", err)
	}
	defer rows.Close()

	var out []core.ReportDefinition
	for rows.Next() {
		d, err := scanReport(rows)
		if err != nil {
			return nil, fmt.Errorf("scan report definition: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (r *Repository) GetReportDefinition(ctx context.Context, companyID, id string) (core.ReportDefinition, error) {
	d, err := scanReport(r.db.QueryRowContext(ctx,
		`SELECT `+reportColumns+` FROM report_definitions WHERE id = ? AND company_id = ?`, id, companyID))
	if err != nil {
		return core.ReportDefinition{}, mapError(err)
	}
	return d, nil
}

func (r *Repository) HasReportAccess(ctx context.Context, userID, reportID string) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM user_report_access WHERE user_id = ? AND report_id = ?`,
		userID, reportID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check report access: %w", err)
	}
	return n > 0, nil
}

// SetReportAccess replaces the user's granted reports. Report ids outside the
// company are ignored.
func (r *Repository) SetReportAccess(ctx context.Context, companyID, userID string, reportIDs []string) error {
	return inTx(ctx, r.db, func(tx *sql.Tx) error {
		var owner string
		err := tx.QueryRowContext(ctx, `SELECT company_id FROM users WHERE id = ?`, userID).Scan(&owner)
		if err != nil {
			return mapError(err)
		}
		if owner != companyID {
			return ErrNotFound
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM user_report_access WHERE user_id = ?`, userID); err != nil {
			return fmt.Errorf("clear report access: %w", err)
		}
		for _, id := range reportIDs {
			_, err := tx.ExecContext(ctx,
				`INSERT OR IGNORE INTO user_report_access (user_id, report_id)
				 SELECT ?, id FROM report_definitions WHERE id = ? AND company_id = ?`,
				userID, id, companyID)
			if err != nil {
				return fmt.Errorf("grant report %s: %w", id, err)
			}
		}
		return nil
	})
}

// ListReportAccess maps user ids to their granted report ids within the company.
func (r *Repository) ListReportAccess(ctx context.Context, companyID string) (map[string][]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT a.user_id, a.report_id FROM user_report_access a
		 JOIN users u ON u.id = a.user_id WHERE u.company_id = ?`, companyID)
	if err != nil {
		return nil, fmt.Errorf("list report access: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]string)
	for rows.Next() {
		var userID, reportID string
		if err := rows.Scan(&userID, &reportID); err != nil {
			return nil, fmt.Errorf("scan report access: %w", err)
		}
		out[userID] = append(out[userID], reportID)
	}
	return out, rows.Err()
}
