// Package mailer sends transactional email through an HTTP API.
package mailer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const (
	defaultTimeout = 10 * time.Second
	maxErrorBody   = 512
)

// Email is a plain-text message.
type Email struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	ReplyTo string   `json:"reply_to,omitempty"`
	Subject string   `json:"subject"`
	Text    string   `json:"text"`
}

type Mailer interface {
	Send(ctx context.Context, e Email) error
}

// HTTPMailer posts emails as JSON with a bearer API key.
type HTTPMailer struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

var _ Mailer = (*HTTPMailer)(nil)

func NewHTTPMailer(endpoint, apiKey string) *HTTPMailer {
	return &HTTPMailer{
		endpoint: endpoint,
		apiKey:   apiKey,
		client:   &http.Client{Timeout: defaultTimeout},
	}
}

// WithClient replaces the HTTP client, e.g. to change the timeout.
func (m *HTTPMailer) WithClient(c *http.Client) *HTTPMailer {
	m.client = c
	return m
}

func (m *HTTPMailer) Send(ctx context.Context, e Email) error {
	body, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal email: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+m.apiKey)

	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return fmt.Errorf("mail API returned %d: %s", resp.StatusCode, strings.TrimSpace(string(excerpt)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)

	slog.InfoContext(ctx, "Email sent", "to", strings.Join(e.To, ","), "subject", e.Subject)
	return nil
}

// LogMailer only logs outgoing email. Used when no API key is configured.
type LogMailer struct {
	logger *slog.Logger
}

var _ Mailer = (*LogMailer)(nil)

func NewLogMailer(logger *slog.Logger) *LogMailer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogMailer{logger: logger}
}

func (m *LogMailer) Send(ctx context.Context, e Email) error {
	m.logger.InfoContext(ctx, "Email not sent (no mail API configured)",
		"to", strings.Join(e.To, ","),
		"reply_to", e.ReplyTo,
		"subject", e.Subject,
		"length", len(e.Text))
	return nil
}
