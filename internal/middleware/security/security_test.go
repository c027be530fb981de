package security

import (
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestInspect(t *testing.T) {
	d, err := NewDetector()
	if err != nil {
		t.Fatalf("NewDetector: %v", err)
	}
	tests := []struct {
		name   string
		method string
		target string
		agent  string
		want   Verdict
	}{
		{"plain page", http.MethodGet, "/invoices?q=acme", "Mozilla/5.0", Clean},
		{"curl is fine", http.MethodGet, "/healthz", "curl/8.5.0", Clean},
		{"dotenv lookup", http.MethodGet, "/.env", "", Blocked},
		{"git config lookup", http.MethodGet, "/.git/config", "", Blocked},
		{"traversal in query", http.MethodGet, "/static/app.css?f=../../etc/passwd", "", Blocked},
		{"trace method", "TRACE", "/", "", Blocked},
		{"script in query", http.MethodGet, "/invoices?q=%3Cscript%3E", "", Suspicious},
		{"scanner agent", http.MethodGet, "/", "sqlmap/1.7", Suspicious},
		{"long url", http.MethodGet, "/invoices?q=" + strings.Repeat("a", maxURLLength), "", Blocked},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.target, nil)
			if tt.agent != "" {
				req.Header.Set("User-Agent", tt.agent)
			}
			if got := d.Inspect(req); got != tt.want {
				t.Errorf("Inspect = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDetectorMiddleware(t *testing.T) {
	d, _ := NewDetector()
	called := false
	h := d.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true }))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/wp-admin/", nil))
	if rec.Code != http.StatusNotFound || called {
		t.Errorf("blocked request: status %d, handler called %v", rec.Code, called)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/invoices", nil))
	if rec.Code != http.StatusOK || !called {
		t.Errorf("clean request: status %d, handler called %v", rec.Code, called)
	}
}

func TestExtractClientIP(t *testing.T) {
	d, err := NewDetector("203.0.113.0/24")
	if err != nil {
		t.Fatalf("NewDetector: %v", err)
	}
	tests := []struct {
		name   string
		remote string
		xff    string
		xri    string
		want   string
	}{
		{"direct public", "198.51.100.4:5000", "1.2.3.4", "", "198.51.100.4"},
		{"trusted proxy xff", "10.0.0.2:443", "1.2.3.4, 10.0.0.2", "", "1.2.3.4"},
		{"configured proxy", "203.0.113.9:443", "5.6.7.8", "", "5.6.7.8"},
		{"trusted proxy real ip", "127.0.0.1:80", "", "9.9.9.9", "9.9.9.9"},
		{"invalid forwarded", "10.0.0.2:443", "garbage", "", "10.0.0.2"},
		{"no port", "192.168.1.5", "", "", "192.168.1.5"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.xri != "" {
				req.Header.Set("X-Real-IP", tt.xri)
			}
			if got := d.ExtractClientIP(req); got != tt.want {
				t.Errorf("ExtractClientIP = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNewDetectorRejectsBadCIDR(t *testing.T) {
	if _, err := NewDetector("not-a-cidr"); err == nil {
		t.Fatal("expected error")
	}
}

func TestHeadersMiddleware(t *testing.T) {
	h := NewHeadersMiddleware(DefaultHeadersConfig()).Middleware(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	for _, k := range []string{"Content-Security-Policy", "X-Frame-Options", "X-Content-Type-Options", "Referrer-Policy"} {
		if rec.Header().Get(k) == "" {
			t.Errorf("missing %s", k)
		}
	}
	if got := rec.Header().Get("Strict-Transport-Security"); got != "" {
		t.Errorf("HSTS over plain HTTP: %q", got)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.TLS = &tls.ConnectionState{}
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if got := rec.Header().Get("Strict-Transport-Security"); got != "max-age=31536000; includeSubDomains" {
		t.Errorf("HSTS = %q", got)
	}
}
