// Package auth handles password accounts and signed session tokens.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"ledger/internal/core"
	"ledger/internal/storage"
)

const MinPasswordLength = 8

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrWeakPassword       = errors.New("password must be at least 8 characters")
	ErrEmailExists        = errors.New("email already registered")
	ErrLongPassword       = errors.New("password must be at most 72 bytes")
)

// UserStore is the persistence the authenticator needs.
type UserStore interface {
	RegisterCompany(ctx context.Context, c *core.Company, admin *core.User) error
	CreateUser(ctx context.Context, u *core.User) error
	GetUser(ctx context.Context, id string) (core.User, error)
	GetUserByEmail(ctx context.Context, email string) (core.User, error)
}

var _ UserStore = (*storage.Repository)(nil)

// PasswordAuthenticator implements password accounts on top of bcrypt.
type PasswordAuthenticator struct {
	store UserStore
	cost  int
}

func NewPasswordAuthenticator(store UserStore) *PasswordAuthenticator {
	return &PasswordAuthenticator{store: store, cost: bcrypt.DefaultCost}
}

// WithCost overrides the bcrypt cost. Tests use bcrypt.MinCost.
func (a *PasswordAuthenticator) WithCost(cost int) *PasswordAuthenticator {
	a.cost = cost
	return a
}

func ValidatePassword(password string) error {
	if len(password) < MinPasswordLength {
		return ErrWeakPassword
	}
	// bcrypt ignores everything past 72 bytes.
	if len(password) > 72 {
		return ErrLongPassword
	}
	return nil
}

func (a *PasswordAuthenticator) hash(password string) (string, error) {
	if err := ValidatePassword(password); err != nil {
		return "", err
	}
	h, err := bcrypt.GenerateFromPassword([]byte(password), a.cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(h), nil
}

// Signup describes a new company account and its first administrator.
type Signup struct {
	CompanyName string
	Email       string
	DisplayName string
	Password    string
}

// Register creates a company together with its admin user.
func (a *PasswordAuthenticator) Register(ctx context.Context, s Signup) (core.User, core.Company, error) {
	company := core.Company{ID: uuid.NewString(), Name: s.CompanyName, Email: strings.ToLower(strings.TrimSpace(s.Email))}
	company.Normalize()
	if err := company.Validate(); err != nil {
		return core.User{}, core.Company{}, err
	}

	user := core.User{
		CompanyID:   company.ID,
		Email:       strings.ToLower(strings.TrimSpace(s.Email)),
		DisplayName: strings.TrimSpace(s.DisplayName),
		Role:        core.RoleAdmin,
	}
	if err := user.Validate(); err != nil {
		return core.User{}, core.Company{}, err
	}
	hash, err := a.hash(s.Password)
	if err != nil {
		return core.User{}, core.Company{}, err
	}
	user.PasswordHash = hash

	if err := a.store.RegisterCompany(ctx, &company, &user); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return core.User{}, core.Company{}, ErrEmailExists
		}
		return core.User{}, core.Company{}, fmt.Errorf("register company: %w", err)
	}
	return user, company, nil
}

// AddUser creates a user inside an existing company with the given role.
func (a *PasswordAuthenticator) AddUser(ctx context.Context, companyID, email, displayName, password string, role core.Role) (core.User, error) {
	user := core.User{
		CompanyID:   companyID,
		Email:       strings.ToLower(strings.TrimSpace(email)),
		DisplayName: strings.TrimSpace(displayName),
		Role:        role,
	}
	if err := user.Validate(); err != nil {
		return core.User{}, err
	}
	hash, err := a.hash(password)
	if err != nil {
		return core.User{}, err
	}
	user.PasswordHash = hash

	if err := a.store.CreateUser(ctx, &user); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return core.User{}, ErrEmailExists
		}
		return core.User{}, fmt.Errorf("create user: %w", err)
	}
	slog.InfoContext(ctx, "User added", "company_id", companyID, "user_id", user.ID, "role", role)
	return user, nil
}

// Authenticate checks email and password. Unknown emails and wrong passwords
// both yield ErrInvalidCredentials.
func (a *PasswordAuthenticator) Authenticate(ctx context.Context, email, password string) (core.User, error) {
	user, err := a.store.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return core.User{}, ErrInvalidCredentials
		}
		return core.User{}, fmt.Errorf("load user: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return core.User{}, ErrInvalidCredentials
	}
	return user, nil
}

// Lookup returns the current state of a user, for refreshing session roles.
func (a *PasswordAuthenticator) Lookup(ctx context.Context, id string) (core.User, error) {
	return a.store.GetUser(ctx, id)
}
