package http

import (
	"context"
	"html/template"
	"io/fs"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"ledger/internal/auth"
	"ledger/internal/core"
	"ledger/internal/log"
	"ledger/internal/middleware/ratelimit"
	"ledger/internal/middleware/security"
	"ledger/internal/middleware/trace"
	"ledger/internal/services"
	appweb "ledger/web"
)

const staticMaxAge = 3600

// Pinger reports whether the database answers.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options are the transport settings of the server.
type Options struct {
	Addr               string
	CookieSecure       bool
	RateLimitPerMinute int
	TrustedProxies     []string
}

// Deps are the services the handlers call.
type Deps struct {
	Store         Pinger
	Auth          *auth.PasswordAuthenticator
	Sessions      *auth.JWTManager
	Invoices      *services.InvoiceService
	Expenses      *services.ExpenseService
	Directory     *services.DirectoryService
	Dashboard     *services.DashboardService
	Reports       *services.ReportService
	Admin         *services.AdminService
	Notifications *services.NotificationService
	Contacts      *services.ContactService
	Logger        *log.Logger
	// Registry receives the HTTP metrics and backs /metrics. Nil creates one.
	Registry *prometheus.Registry
}

type Server struct {
	http.Server
	deps      Deps
	opts      Options
	templates *template.Template
	logger    *log.Logger
	events    *log.StructuredLogger
	limiter   *ratelimit.Limiter
	detector  *security.Detector
	mux       *http.ServeMux
	started   time.Time
	now       func() time.Time

	shutdownOnce sync.Once
}

// NewServer parses templates, registers metrics and routes, and returns a
// server ready for ListenAndServe. The handler speaks HTTP/2 over cleartext
// as well as HTTP/1.1.
func NewServer(opts Options, deps Deps) (*Server, error) {
	templates, err := loadTemplates(appweb.TemplatesFS)
	if err != nil {
		return nil, err
	}
	detector, err := security.NewDetector(opts.TrustedProxies...)
	if err != nil {
		return nil, err
	}
	logger := deps.Logger
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	reg := deps.Registry
	if reg == nil {
		reg = prometheus.NewRegistry()
		deps.Registry = reg
	}

	s := &Server{
		deps:      deps,
		opts:      opts,
		templates: templates,
		logger:    logger.WithComponent(log.ComponentHTTP),
		events:    log.NewStructuredLogger(logger),
		detector:  detector,
		mux:       http.NewServeMux(),
		started:   time.Now(),
		now:       time.Now,
	}
	s.limiter = ratelimit.NewLimiter(ratelimit.Config{
		RequestsPerMinute: opts.RateLimitPerMinute,
		Registerer:        reg,
	})

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		detector.Collector(),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "ledger",
			Name:      "dashboard_cache_entries",
			Help:      "Cached dashboard results.",
		}, func() float64 {
			if deps.Dashboard == nil || deps.Dashboard.Cache() == nil {
				return 0
			}
			return float64(deps.Dashboard.Cache().Size())
		}),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "ledger",
			Name:      "rate_limit_clients",
			Help:      "Clients tracked by the rate limiter.",
		}, func() float64 { return float64(s.limiter.ActiveClients()) }),
	)

	s.routes()

	tracer := trace.NewMiddleware(detector.ExtractClientIP, s.routeOf, trace.NewMetrics(reg), s.events)
	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())

	var handler http.Handler = s.mux
	handler = s.limitWrites(handler)
	handler = detector.Middleware(handler)
	handler = headers.Middleware(handler)
	handler = log.RequestIDMiddleware(trace.RequestID)(handler)
	handler = log.Middleware(logger)(handler)
	handler = tracer.Middleware(handler)

	s.Server = http.Server{
		Addr:              opts.Addr,
		Handler:           h2c.NewHandler(handler, &http2.Server{}),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s, nil
}

func (s *Server) routeOf(r *http.Request) string {
	_, pattern := s.mux.Handler(r)
	return pattern
}

// limitWrites rate-limits mutating requests only; page loads and partial
// polling are left alone.
func (s *Server) limitWrites(next http.Handler) http.Handler {
	limited := s.limiter.Middleware(s.detector.ExtractClientIP, func(w http.ResponseWriter, r *http.Request) {
		s.logger.WarnContext(r.Context(), "Rate limit exceeded",
			log.FieldClientIP, s.detector.ExtractClientIP(r),
			log.FieldMethod, r.Method,
			log.FieldPath, r.URL.Path)
		ErrorResponse(http.StatusTooManyRequests, "Too many requests. Please try again in a minute.").Write(w)
	})(next)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			next.ServeHTTP(w, r)
		default:
			limited.ServeHTTP(w, r)
		}
	})
}

// authed wraps h with session validation and a permission check.
func (s *Server) authed(perm core.Permission, h http.HandlerFunc) http.Handler {
	var handler http.Handler = h
	handler = auth.RequirePermission(perm, http.HandlerFunc(s.handleForbidden))(handler)
	handler = auth.RequireAuth(s.deps.Sessions, s.deps.Auth)(handler)
	return security.NoStore(handler)
}

func (s *Server) routes() {
	mux := s.mux
	read := func(h http.HandlerFunc) http.Handler { return s.authed(core.PermRead, h) }
	write := func(h http.HandlerFunc) http.Handler { return s.authed(core.PermWrite, h) }
	manageUsers := func(h http.HandlerFunc) http.Handler { return s.authed(core.PermManageUsers, h) }
	manageReports := func(h http.HandlerFunc) http.Handler { return s.authed(core.PermManageReports, h) }

	if sub, err := fs.Sub(appweb.StaticFS, "static"); err == nil {
		static := http.StripPrefix("/static/", http.FileServerFS(sub))
		mux.Handle("GET /static/", security.StaticAssetMiddleware(staticMaxAge)(static))
	} else {
		s.logger.Warn("Failed to mount embedded static FS", log.FieldError, err)
	}

	// Public
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.deps.Registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("GET /login", s.handleLoginPage)
	mux.HandleFunc("POST /login", s.handleLogin)
	mux.HandleFunc("GET /signup", s.handleSignupPage)
	mux.HandleFunc("POST /signup", s.handleSignup)
	mux.HandleFunc("POST /logout", s.handleLogout)
	mux.HandleFunc("GET /contact", s.handleContactPage)
	mux.HandleFunc("POST /contact", s.handleContact)

	// Dashboard
	mux.Handle("GET /{$}", read(s.handleDashboard))
	mux.Handle("GET /ui/dashboard/stats", read(s.handleDashboardStats))
	mux.Handle("GET /ui/dashboard/recent", read(s.handleDashboardRecent))
	mux.Handle("GET /api/dashboard/trend", read(s.handleDashboardTrend))

	// Invoices
	mux.Handle("GET /invoices", read(s.handleInvoices))
	mux.Handle("GET /invoices/new", write(s.handleInvoiceNew))
	mux.Handle("POST /invoices", write(s.handleInvoiceCreate))
	mux.Handle("GET /invoices/export.csv", read(s.handleInvoicesCSV))
	mux.Handle("GET /invoices/{id}", read(s.handleInvoiceShow))
	mux.Handle("GET /invoices/{id}/edit", write(s.handleInvoiceEdit))
	mux.Handle("POST /invoices/{id}", write(s.handleInvoiceUpdate))
	mux.Handle("POST /invoices/{id}/status", write(s.handleInvoiceStatus))
	mux.Handle("POST /invoices/{id}/payments", write(s.handleInvoicePayment))
	mux.Handle("DELETE /invoices/{id}", write(s.handleInvoiceDelete))
	mux.Handle("GET /invoices/{id}/print", read(s.handleInvoicePrint))

	// Expenses
	mux.Handle("GET /expenses", read(s.handleExpenses))
	mux.Handle("GET /expenses/new", write(s.handleExpenseNew))
	mux.Handle("POST /expenses", write(s.handleExpenseCreate))
	mux.Handle("GET /expenses/export.csv", read(s.handleExpensesCSV))
	mux.Handle("GET /expenses/{id}/edit", write(s.handleExpenseEdit))
	mux.Handle("POST /expenses/{id}", write(s.handleExpenseUpdate))
	mux.Handle("DELETE /expenses/{id}", write(s.handleExpenseDelete))
	mux.Handle("GET /expenses/recurring", read(s.handleRecurring))
	mux.Handle("POST /expenses/recurring", write(s.handleRecurringCreate))
	mux.Handle("DELETE /expenses/recurring/{id}", write(s.handleRecurringDelete))

	// Customers, vendors, inventory
	for _, d := range []directoryRoutes{s.customerRoutes(), s.vendorRoutes(), s.inventoryRoutes()} {
		mux.Handle("GET "+d.base, read(d.list))
		mux.Handle("GET "+d.base+"/new", write(d.newForm))
		mux.Handle("POST "+d.base, write(d.create))
		mux.Handle("GET "+d.base+"/export.csv", read(d.csv))
		mux.Handle("GET "+d.base+"/{id}/edit", write(d.edit))
		mux.Handle("POST "+d.base+"/{id}", write(d.update))
		mux.Handle("DELETE "+d.base+"/{id}", write(d.delete))
	}

	// Notifications
	mux.Handle("GET /notifications", read(s.handleNotifications))
	mux.Handle("GET /api/notifications/unread", read(s.handleUnreadCount))
	mux.Handle("POST /notifications/{id}/read", read(s.handleNotificationRead))
	mux.Handle("POST /notifications/read-all", read(s.handleNotificationsReadAll))

	// Reports
	mux.Handle("GET /reports", read(s.handleReports))
	mux.Handle("GET /reports/{id}", read(s.handleReport))

	// Admin
	mux.Handle("GET /admin", manageUsers(s.handleAdmin))
	mux.Handle("POST /admin/users", manageUsers(s.handleAdminAddUser))
	mux.Handle("POST /admin/users/{id}/role", manageUsers(s.handleAdminSetRole))
	mux.Handle("POST /admin/users/{id}/reports", manageReports(s.handleAdminSetReports))
	mux.Handle("GET /settings/company", manageUsers(s.handleCompanySettings))
	mux.Handle("POST /settings/company", manageUsers(s.handleCompanySettingsUpdate))
}

// Shutdown stops the rate limiter and drains the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}
