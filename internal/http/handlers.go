package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"time"

	"ledger/internal/auth"
	"ledger/internal/log"
)

const readyTimeout = 5 * time.Second

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": s.now().Format(time.RFC3339),
		"uptime":    time.Since(s.started).Round(time.Second).String(),
	})
}

// handleReady performs readiness check with dependency verification
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()

	status := "ready"
	httpStatus := http.StatusOK
	checks := make(map[string]any)

	if s.templates == nil {
		checks["templates"] = "failed: templates not loaded"
		status, httpStatus = "not_ready", http.StatusServiceUnavailable
	} else {
		checks["templates"] = "ok"
	}

	switch {
	case s.deps.Store == nil:
		checks["database"] = "not_configured"
		status, httpStatus = "not_ready", http.StatusServiceUnavailable
	default:
		if err := s.deps.Store.Ping(ctx); err != nil {
			log.FromContext(ctx).WarnContext(ctx, "Readiness check failed", log.FieldError, err)
			checks["database"] = "failed"
			status, httpStatus = "not_ready", http.StatusServiceUnavailable
		} else {
			checks["database"] = "ok"
		}
	}

	checks["rate_limiter"] = map[string]any{
		"active_clients": s.limiter.ActiveClients(),
		"status":         "ok",
	}
	if s.deps.Dashboard != nil && s.deps.Dashboard.Cache() != nil {
		checks["cache"] = map[string]any{
			"dashboard_entries": s.deps.Dashboard.Cache().Size(),
			"status":            "ok",
		}
	}

	writeJSON(w, httpStatus, map[string]any{
		"status":    status,
		"timestamp": s.now().Format(time.RFC3339),
		"checks":    checks,
	})
}

type authForm struct {
	Next        string
	Email       string
	DisplayName string
	CompanyName string
}

func (s *Server) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	s.page(w, r, "login_page", "Sign in", "", authForm{Next: safeNext(r.URL.Query().Get("next"))})
}

// handleLogin accepts form posts from the login page and JSON bodies from API
// clients. JSON callers get the token in the response instead of a redirect.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	parser := NewRequestBodyParser(r)
	if err := parser.Parse(); err != nil {
		BadRequestError("Invalid request format").Write(w)
		return
	}
	email := parser.Get("email")
	user, err := s.deps.Auth.Authenticate(r.Context(), email, parser.Get("password"))
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			log.FromContext(r.Context()).WarnContext(r.Context(), "Failed login",
				log.FieldComponent, log.ComponentAuth,
				"email", email)
		}
		if parser.IsJSON() {
			status, msg := classify(err)
			writeJSON(w, status, map[string]string{"error": msg})
			return
		}
		s.fail(w, r, "login", err)
		return
	}

	token, expires, err := s.deps.Sessions.Generate(user)
	if err != nil {
		s.fail(w, r, "login", err)
		return
	}
	log.FromContext(r.Context()).InfoContext(r.Context(), "User signed in",
		log.FieldComponent, log.ComponentAuth,
		log.FieldUserID, user.ID,
		log.FieldCompanyID, user.CompanyID)

	if parser.IsJSON() {
		writeJSON(w, http.StatusOK, map[string]any{
			"token":      token,
			"expires_at": expires.UTC().Format(time.RFC3339),
		})
		return
	}
	auth.SetSessionCookie(w, token, expires, s.opts.CookieSecure)
	s.done(w, r, safeNext(parser.Get("next")), NewHTMXResponse())
}

func (s *Server) handleSignupPage(w http.ResponseWriter, r *http.Request) {
	s.page(w, r, "signup_page", "Create account", "", authForm{})
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	if resp := ParseFormOrFail(r); resp != nil {
		resp.Write(w)
		return
	}
	user, company, err := s.deps.Auth.Register(r.Context(), auth.Signup{
		CompanyName: sanitizeInput(r.PostForm.Get("company_name")),
		Email:       sanitizeInput(r.PostForm.Get("email")),
		DisplayName: sanitizeInput(r.PostForm.Get("display_name")),
		Password:    r.PostForm.Get("password"),
	})
	if err != nil {
		s.fail(w, r, "signup", err)
		return
	}
	log.FromContext(r.Context()).InfoContext(r.Context(), "Company registered",
		log.FieldComponent, log.ComponentAuth,
		log.FieldCompanyID, company.ID,
		log.FieldUserID, user.ID)

	token, expires, err := s.deps.Sessions.Generate(user)
	if err != nil {
		s.fail(w, r, "signup", err)
		return
	}
	auth.SetSessionCookie(w, token, expires, s.opts.CookieSecure)
	s.done(w, r, "/", NewHTMXResponse())
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	auth.ClearSessionCookie(w, s.opts.CookieSecure)
	s.done(w, r, auth.LoginPath, NewHTMXResponse())
}

func (s *Server) handleContactPage(w http.ResponseWriter, r *http.Request) {
	s.page(w, r, "contact_page", "Contact us", "contact", nil)
}

func (s *Server) handleContact(w http.ResponseWriter, r *http.Request) {
	if resp := ParseFormOrFail(r); resp != nil {
		resp.Write(w)
		return
	}
	form := r.PostForm
	msg, err := s.deps.Contacts.Submit(r.Context(),
		sanitizeInput(form.Get("name")),
		sanitizeInput(form.Get("email")),
		sanitizeInput(form.Get("subject")),
		sanitizeInput(form.Get("message")))
	if err != nil {
		s.fail(w, r, "contact", err)
		return
	}
	log.FromContext(r.Context()).InfoContext(r.Context(), "Contact message accepted", "message_id", msg.ID)

	const thanks = "Thanks, your message has been sent."
	if !isHTMX(r) {
		http.Redirect(w, r, "/contact?flash="+url.QueryEscape(thanks), http.StatusSeeOther)
		return
	}
	NewHTMXResponse().
		TriggerFormReset().
		TriggerSuccessNotification(thanks).
		BodyHTML(`<div class="success" role="status">` + thanks + `</div>`).
		Write(w)
}
