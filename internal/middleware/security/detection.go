package security

import (
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
)

const maxURLLength = 2048

var (
	// Scanner requests for files and admin panels the ledger never serves.
	blockedPatterns = []string{
		"../", "..\\", ".env", ".git", ".ssh", "wp-admin", "phpmyadmin",
		"admin.php", "config.php", "etc/passwd", "cmd.exe",
	}
	// Payload fragments that are logged but still served; the handlers
	// escape their output anyway.
	suspiciousPatterns = []string{
		"<script", "javascript:", "eval(", "union select",
	}
	suspiciousAgents = []string{
		"sqlmap", "nmap", "nikto", "gobuster", "dirb", "masscan",
	}
	blockedMethods = map[string]bool{"TRACE": true, "TRACK": true, "DEBUG": true}
)

// Verdict is the outcome of inspecting a request.
type Verdict int

const (
	Clean Verdict = iota
	Suspicious
	Blocked
)

func (v Verdict) String() string {
	switch v {
	case Suspicious:
		return "suspicious"
	case Blocked:
		return "blocked"
	}
	return "clean"
}

// Detector flags hostile request patterns and resolves the client IP
// behind trusted proxies.
type Detector struct {
	trustedProxies []*net.IPNet
	flagged        *prometheus.CounterVec
}

// NewDetector trusts loopback and private networks plus any extra CIDRs.
func NewDetector(extraTrusted ...string) (*Detector, error) {
	d := &Detector{
		flagged: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ledger",
			Name:      "security_flagged_requests_total",
			Help:      "Requests flagged by the security detector, by verdict.",
		}, []string{"verdict"}),
	}
	for _, cidr := range append([]string{"127.0.0.0/8", "::1/128", "10.0.0.0/8", "172.16.0.0/12", "192.168.0.0/16"}, extraTrusted...) {
		if err := d.AddTrustedProxy(cidr); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// Collector exposes the flagged-request counter for registration.
func (d *Detector) Collector() prometheus.Collector {
	return d.flagged
}

// Inspect classifies a request.
func (d *Detector) Inspect(r *http.Request) Verdict {
	if blockedMethods[r.Method] {
		return Blocked
	}
	path := strings.ToLower(r.URL.Path)
	query := r.URL.RawQuery
	if q, err := url.QueryUnescape(query); err == nil {
		query = q
	}
	query = strings.ToLower(query)
	if containsAny(path, blockedPatterns) || containsAny(query, blockedPatterns) {
		return Blocked
	}
	if len(r.URL.String()) > maxURLLength {
		return Blocked
	}
	if containsAny(path, suspiciousPatterns) || containsAny(query, suspiciousPatterns) {
		return Suspicious
	}
	if containsAny(strings.ToLower(r.Header.Get("User-Agent")), suspiciousAgents) {
		return Suspicious
	}
	if strings.Count(r.Header.Get("X-Forwarded-For"), ",") > 5 {
		return Suspicious
	}
	return Clean
}

func containsAny(s string, patterns []string) bool {
	for _, p := range patterns {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}

// Middleware logs flagged requests and answers blocked ones with 404.
func (d *Detector) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		verdict := d.Inspect(r)
		if verdict != Clean {
			d.flagged.WithLabelValues(verdict.String()).Inc()
			slog.WarnContext(r.Context(), "Flagged request",
				"verdict", verdict.String(),
				"method", r.Method,
				"path", r.URL.Path,
				"client_ip", d.ExtractClientIP(r),
				"user_agent", r.Header.Get("User-Agent"))
		}
		if verdict == Blocked {
			http.NotFound(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ExtractClientIP extracts the real client IP, validating forwarded headers
func (d *Detector) ExtractClientIP(r *http.Request) string {
	directIP, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		directIP = r.RemoteAddr
	}

	parsedDirectIP := net.ParseIP(directIP)
	if parsedDirectIP == nil || !d.isTrustedProxy(parsedDirectIP) {
		return directIP
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if clientIP := strings.TrimSpace(first); net.ParseIP(clientIP) != nil {
			return clientIP
		}
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); net.ParseIP(xri) != nil {
		return xri
	}
	return directIP
}

func (d *Detector) isTrustedProxy(ip net.IP) bool {
	for _, network := range d.trustedProxies {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}

// AddTrustedProxy adds a trusted proxy network
func (d *Detector) AddTrustedProxy(cidr string) error {
	_, network, err := net.ParseCIDR(cidr)
	if err != nil {
		return fmt.Errorf("invalid CIDR %s: %w", cidr, err)
	}
	d.trustedProxies = append(d.trustedProxies, network)
	return nil
}
