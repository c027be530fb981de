package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"ledger/internal/core"
)

const userColumns = `id, company_id, email, display_name, password_hash, role, created_at`

func scanUser(s scanner) (core.User, error) {
	var u core.User
	var role string
	var created int64
	err := s.Scan(&u.ID, &u.CompanyID, &u.Email, &u.DisplayName, &u.PasswordHash, &role, &created)
	u.Role = core.Role(role)
	u.CreatedAt = fromUnix(created)
	return u, err
}

func insertUser(ctx context.Context, tx *sql.Tx, u *core.User) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO users (`+userColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.CompanyID, strings.ToLower(strings.TrimSpace(u.Email)), u.DisplayName,
		u.PasswordHash, string(u.Role), unix(u.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert user: %w", mapError(err))
	}
	return nil
}

// CreateUser adds a user to an existing company. A taken email yields ErrConflict.
func (r *Repository) CreateUser(ctx context.Context, u *core.User) error {
	if u.ID == "" {
		u.ID = newID()
	}
	u.CreatedAt = r.now()
	return inTx(ctx, r.db, func(tx *sql.Tx) error {
		return insertUser(ctx, tx, u)
	})
}

func (r *Repository) GetUser(ctx context.Context, id string) (core.User, error) {
	u, err := scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id))
	if err != nil {
		return core.User{}, mapError(err)
	}
	return u, nil
}

func (r *Repository) GetUserByEmail(ctx context.Context, email string) (core.User, error) {
	u, err := scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = ?`, strings.TrimSpace(email)))
	if err != nil {
		return core.User{}, mapError(err)
	}
	return u, nil
}

func (r *Repository) ListUsers(ctx context.Context, companyID string) ([]core.User, error) {
	return r.queryUsers(ctx,
		`SELECT `+userColumns+` FROM users WHERE company_id = ? ORDER BY email`, companyID)
}

// ListUsersByRole returns company users holding any of roles.
func (r *Repository) ListUsersByRole(ctx context.Context, companyID string, roles ...core.Role) ([]core.User, error) {
	if len(roles) == 0 {
		return nil, nil
	}
	args := []any{companyID}
	marks := make([]string, len(roles))
	for i, role := range roles {
		marks[i] = "?"
		args = append(args, string(role))
	}
	return r.queryUsers(ctx,
		`SELECT `+userColumns+` FROM users WHERE company_id = ? AND role IN (`+strings.Join(marks, ", ")+`) ORDER BY email`,
		args...)
}

func (r *Repository) queryUsers(ctx context.Context, query string, args ...any) ([]core.User, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var out []core.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// SetUserRole changes a user's role. Demoting an admin only applies while
// another admin remains, checked in the same statement; otherwise it fails
// with ErrLastAdmin.
func (r *Repository) SetUserRole(ctx context.Context, companyID, userID string, role core.Role) error {
	admin := string(core.RoleAdmin)
	err := checkAffected(r.db.ExecContext(ctx,
		`UPDATE users SET role = ? WHERE id = ? AND company_id = ?
		 AND (? = ? OR role <> ? OR (SELECT COUNT(*) FROM users WHERE company_id = ? AND role = ?) > 1)`,
		string(role), userID, companyID,
		string(role), admin, admin, companyID, admin))
	if !errors.Is(err, ErrNotFound) {
		return err
	}
	var exists int
	lookup := r.db.QueryRowContext(ctx,
		`SELECT 1 FROM users WHERE id = ? AND company_id = ?`, userID, companyID).Scan(&exists)
	if lookup != nil {
		return mapError(lookup)
	}
	return ErrLastAdmin
}
