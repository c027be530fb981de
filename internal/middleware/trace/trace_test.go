package trace

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"ledger/internal/log"
)

func newTestMiddleware(t *testing.T, buf *bytes.Buffer) (*Middleware, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	logger := log.New(log.Config{
		Level:  slog.LevelDebug,
		Format: log.FormatText,
		Output: buf,
	})
	mux := http.NewServeMux()
	mux.HandleFunc("GET /invoices/{id}", func(http.ResponseWriter, *http.Request) {})
	routeOf := func(r *http.Request) string {
		_, pattern := mux.Handler(r)
		return pattern
	}
	extractIP := func(*http.Request) string { return "203.0.113.7" }
	return NewMiddleware(extractIP, routeOf, NewMetrics(reg), log.NewStructuredLogger(logger)), reg
}

func counterValue(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
	next:
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if want, ok := labels[lp.GetName()]; ok && want != lp.GetValue() {
					continue next
				}
			}
			return m.GetCounter().GetValue()
		}
	}
	return 0
}

func TestMiddlewareAssignsRequestID(t *testing.T) {
	var buf bytes.Buffer
	m, _ := newTestMiddleware(t, &buf)

	var seen string
	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/invoices/42", nil))

	if _, err := uuid.Parse(seen); err != nil {
		t.Fatalf("request id %q is not a UUID", seen)
	}
	if got := rec.Header().Get(RequestIDHeader); got != seen {
		t.Errorf("response header = %q, want %q", got, seen)
	}
	out := buf.String()
	for _, want := range []string{"HTTP request completed", "request_id=" + seen, "client_ip=203.0.113.7", "status_code=200"} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %q:\n%s", want, out)
		}
	}
}

func TestMiddlewareRequestIDHeader(t *testing.T) {
	valid := uuid.NewString()
	tests := []struct {
		name   string
		header string
		keep   bool
	}{
		{"uuid is kept", valid, true},
		{"garbage is replaced", "not-a-uuid; drop table", false},
		{"empty is minted", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			m, _ := newTestMiddleware(t, &buf)
			var seen string
			h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				seen = RequestID(r)
			}))
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set(RequestIDHeader, tt.header)
			}
			h.ServeHTTP(httptest.NewRecorder(), req)

			if tt.keep && seen != tt.header {
				t.Errorf("id = %q, want %q", seen, tt.header)
			}
			if !tt.keep && seen == tt.header {
				t.Errorf("id %q should have been replaced", seen)
			}
		})
	}
}

func TestMiddlewareRecordsMetrics(t *testing.T) {
	var buf bytes.Buffer
	m, reg := newTestMiddleware(t, &buf)

	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		w.WriteHeader(http.StatusCreated)
		w.WriteHeader(http.StatusInternalServerError)
	}))

	for range 3 {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/invoices/7", nil))
	}
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/missing", nil))

	if got := counterValue(t, reg, "ledger_http_requests_total", map[string]string{
		"route": "GET /invoices/{id}", "status": "201",
	}); got != 3 {
		t.Errorf("matched route count = %v, want 3", got)
	}
	if got := counterValue(t, reg, "ledger_http_requests_total", map[string]string{
		"route": unmatchedRoute, "status": "404",
	}); got != 1 {
		t.Errorf("unmatched count = %v, want 1", got)
	}
	if !strings.Contains(buf.String(), "level=WARN") {
		t.Errorf("404 should log at warn:\n%s", buf.String())
	}
}

func TestGetRequestIDEmptyContext(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if got := RequestID(req); got != "" {
		t.Errorf("RequestID = %q, want empty", got)
	}
}
