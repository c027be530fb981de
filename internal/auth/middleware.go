package auth

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"ledger/internal/core"
	"ledger/internal/storage"
)

// UserLookup reloads a user so role changes apply to live sessions.
type UserLookup interface {
	Lookup(ctx context.Context, id string) (core.User, error)
}

// LoginPath is where unauthenticated page requests are sent.
const LoginPath = "/login"

func isAPI(r *http.Request) bool {
	return strings.HasPrefix(r.URL.Path, "/api/")
}

func isHTMX(r *http.Request) bool {
	return r.Header.Get("HX-Request") == "true"
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func unauthorized(w http.ResponseWriter, r *http.Request) {
	switch {
	case isAPI(r):
		writeJSONError(w, http.StatusUnauthorized, "authentication required")
	case isHTMX(r):
		w.Header().Set("HX-Redirect", LoginPath)
		w.WriteHeader(http.StatusUnauthorized)
	default:
		target := LoginPath
		if r.Method == http.MethodGet && r.URL.Path != "/" {
			target += "?next=" + url.QueryEscape(r.URL.RequestURI())
		}
		http.Redirect(w, r, target, http.StatusSeeOther)
	}
}

// RequireAuth validates the session token and stores the Principal in the
// request context. When lookup is non-nil the role is refreshed from storage
// and deleted users are rejected.
func RequireAuth(jwtManager *JWTManager, lookup UserLookup) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, err := jwtManager.Validate(TokenFromRequest(r))
			if err != nil {
				if !errors.Is(err, ErrMissingToken) {
					slog.DebugContext(r.Context(), "Rejected session token", "error", err)
				}
				unauthorized(w, r)
				return
			}

			p := Principal{
				UserID:    claims.UserID,
				CompanyID: claims.CompanyID,
				Email:     claims.Email,
				Role:      claims.Role,
			}
			if lookup != nil {
				user, err := lookup.Lookup(r.Context(), claims.UserID)
				if err != nil {
					if errors.Is(err, storage.ErrNotFound) {
						unauthorized(w, r)
						return
					}
					slog.ErrorContext(r.Context(), "Failed to load session user", "error", err, "user_id", claims.UserID)
					http.Error(w, "Internal server error", http.StatusInternalServerError)
					return
				}
				p.Role = user.Role
				p.CompanyID = user.CompanyID
				p.Email = user.Email
			}

			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
		})
	}
}

// RequirePermission rejects requests whose principal lacks perm. denied
// renders the 403 body; nil falls back to plain text.
func RequirePermission(perm core.Permission, denied http.Handler) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := FromContext(r.Context())
			if !ok {
				unauthorized(w, r)
				return
			}
			if !p.Can(perm) {
				slog.WarnContext(r.Context(), "Permission denied",
					"user_id", p.UserID,
					"role", p.Role,
					"path", r.URL.Path)
				switch {
				case isAPI(r):
					writeJSONError(w, http.StatusForbidden, "permission denied")
				case denied != nil:
					denied.ServeHTTP(w, r)
				default:
					http.Error(w, "Forbidden", http.StatusForbidden)
				}
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
