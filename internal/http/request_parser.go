// Package http provides HTTP server and handler implementations.
//
// This file implements utilities for parsing and validating HTTP request data:
// list query parameters, report date ranges and request bodies that may be
// form-encoded or JSON.

package http

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"ledger/internal/core"
)

const maxBodyBytes = 1 << 20

// inputError reports a malformed form field. Handlers answer it with 422.
type inputError struct {
	field string
	err   error
}

func (e *inputError) Error() string { return e.field + ": " + e.err.Error() }
func (e *inputError) Unwrap() error { return e.err }

func badField(field string, err error) error {
	return &inputError{field: field, err: err}
}

// ListParams holds the search and paging parameters shared by list pages.
type ListParams struct {
	Query   string
	Page    int
	PerPage int
}

// ParseListParams reads q, page and per_page. Paging is clamped later by core.Paginate.
func ParseListParams(query url.Values) ListParams {
	return ListParams{
		Query:   sanitizeInput(query.Get("q")),
		Page:    atoiOr(query.Get("page"), 1),
		PerPage: atoiOr(query.Get("per_page"), core.DefaultPerPage),
	}
}

// ParseMonths reads the trend window, defaulting and clamping via core.ClampMonths.
func ParseMonths(query url.Values) int {
	return core.ClampMonths(atoiOr(query.Get("months"), core.DefaultTrendMonths))
}

// ParseDateRange reads from and to. Missing bounds default to the start of
// today's year and today.
func ParseDateRange(query url.Values, today core.Date) (from, to core.Date, err error) {
	from, err = core.ParseDate(query.Get("from"))
	if err != nil {
		return core.Date{}, core.Date{}, badField("from", err)
	}
	to, err = core.ParseDate(query.Get("to"))
	if err != nil {
		return core.Date{}, core.Date{}, badField("to", err)
	}
	if from.IsZero() {
		from = core.NewDate(today.Year(), 1, 1)
	}
	if to.IsZero() {
		to = today
	}
	return from, to, nil
}

func atoiOr(s string, def int) int {
	if v, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
		return v
	}
	return def
}

// RequestBodyParser handles different content types for request body parsing.
// It supports both JSON and form-encoded data, commonly used with HTMX.
type RequestBodyParser struct {
	body        []byte
	contentType string
	jsonData    map[string]any
	formData    url.Values
	parsed      bool
	err         error
}

// NewRequestBodyParser creates a parser for the given request.
// It reads at most 1 MiB of body once and stores it for subsequent parsing.
func NewRequestBodyParser(r *http.Request) *RequestBodyParser {
	p := &RequestBodyParser{
		contentType: r.Header.Get("Content-Type"),
	}
	p.body, p.err = io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	return p
}

// Parse attempts to parse the body as JSON or form data.
func (p *RequestBodyParser) Parse() error {
	if p.parsed {
		return p.err
	}
	p.parsed = true

	if p.err != nil {
		return p.err
	}

	if len(p.body) == 0 {
		p.formData = url.Values{}
		return nil
	}

	if strings.HasPrefix(p.contentType, "application/json") || p.body[0] == '{' {
		p.jsonData = make(map[string]any)
		if err := json.Unmarshal(p.body, &p.jsonData); err != nil {
			p.err = fmt.Errorf("decode JSON body: %w", err)
			return p.err
		}
		return nil
	}

	p.formData, p.err = url.ParseQuery(string(p.body))
	return p.err
}

// Get returns a string value from the parsed data (JSON or form).
func (p *RequestBodyParser) Get(key string) string {
	if p.jsonData != nil {
		if val, ok := p.jsonData[key]; ok {
			return sanitizeInput(stringValue(val))
		}
		return ""
	}
	if p.formData != nil {
		return sanitizeInput(p.formData.Get(key))
	}
	return ""
}

// IsJSON returns true if the parsed content was JSON.
func (p *RequestBodyParser) IsJSON() bool {
	return p.jsonData != nil
}

func stringValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return ""
	}
}

// ParseFormOrFail parses the request form and returns an error response on failure.
// Returns nil on success.
func ParseFormOrFail(r *http.Request) *HTMXResponseBuilder {
	r.Body = http.MaxBytesReader(nil, r.Body, maxBodyBytes)
	if err := r.ParseForm(); err != nil {
		return BadRequestError("Invalid request format")
	}
	return nil
}
