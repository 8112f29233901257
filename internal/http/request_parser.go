// Package http provides HTTP server and handler implementations.
//
// This file implements utilities for parsing and validating HTTP request data:
// list view parameters, the transaction form and bodies that may arrive as
// JSON or form-encoded data.

package http

import (
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"finease/internal/ledger"
)

// ListParams holds the table controls found in a list page query. A nil
// field means the control was not present and the current state is kept.
type ListParams struct {
	Query    *string
	Sort     *string
	PageSize *int
	Page     *int
}

// ParseListParams extracts q, sort, size and page from query parameters.
// Non-numeric sizes and pages are ignored.
func ParseListParams(query url.Values) ListParams {
	var p ListParams
	if query.Has("q") {
		q := sanitizeInput(query.Get("q"))
		p.Query = &q
	}
	if v := strings.TrimSpace(query.Get("sort")); v != "" {
		p.Sort = &v
	}
	if v := strings.TrimSpace(query.Get("size")); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			p.PageSize = &n
		}
	}
	if v := strings.TrimSpace(query.Get("page")); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			p.Page = &n
		}
	}
	return p
}

// listState is the part of a list controller the params are applied to.
type listState interface {
	SetQuery(string)
	SetSort(string)
	SetPageSize(int)
	SetPage(int)
}

// Apply pushes the present controls into c. Query, sort and size reset the
// page only when they actually change, so paging links keep their filter.
func (p ListParams) Apply(c listState, query, sort string, size int) {
	if p.Query != nil && *p.Query != query {
		c.SetQuery(*p.Query)
	}
	if p.Sort != nil && *p.Sort != sort {
		c.SetSort(*p.Sort)
	}
	if p.PageSize != nil && *p.PageSize != size {
		c.SetPageSize(*p.PageSize)
	}
	if p.Page != nil {
		c.SetPage(*p.Page)
	}
}

// ParseTransactionForm reads the add and edit form fields.
func ParseTransactionForm(p *RequestBodyParser) ledger.Form {
	return ledger.Form{
		Type:        p.Get("type"),
		Category:    p.Get("category"),
		Amount:      p.Get("amount"),
		Description: p.Get("description"),
		Date:        p.Get("date"),
	}
}

// RequestBodyParser handles different content types for request body parsing.
// It supports both JSON and form-encoded data, commonly used with HTMX.
// DELETE bodies are not parsed by net/http, so handlers accepting them use it.
type RequestBodyParser struct {
	body        []byte
	contentType string
	jsonData    map[string]any
	formData    url.Values
	parsed      bool
	err         error
}

// NewRequestBodyParser creates a parser for the given request.
// It reads the body once and stores it for subsequent parsing.
func NewRequestBodyParser(r *http.Request) *RequestBodyParser {
	p := &RequestBodyParser{
		contentType: r.Header.Get("Content-Type"),
	}
	if r.Body != nil {
		p.body, p.err = io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	}
	return p
}

const maxBodyBytes = 1 << 20

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

	if p.body[0] == '{' || p.body[0] == '[' {
		p.jsonData = make(map[string]any)
		if err := json.Unmarshal(p.body, &p.jsonData); err != nil {
			p.err = err
			return err
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
	}
	if p.formData != nil {
		return sanitizeInput(p.formData.Get(key))
	}
	return ""
}

// Bool reports whether key holds a true value ("true", "on", "1").
func (p *RequestBodyParser) Bool(key string) bool {
	switch strings.ToLower(p.Get(key)) {
	case "true", "on", "1", "yes":
		return true
	default:
		return false
	}
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

// RequireMethod checks if the request method matches the expected method(s).
// Returns an error response builder if the method doesn't match.
func RequireMethod(r *http.Request, methods ...string) *HTMXResponseBuilder {
	for _, m := range methods {
		if r.Method == m {
			return nil
		}
	}
	return MethodNotAllowedError(strings.Join(methods, ", "))
}

// RequireDeleteOrPOST is a convenience function for DELETE/POST handlers.
func RequireDeleteOrPOST(r *http.Request) *HTMXResponseBuilder {
	return RequireMethod(r, http.MethodDelete, http.MethodPost)
}

// ParseBodyOrFail parses the request body and returns an error response on failure.
func ParseBodyOrFail(r *http.Request) (*RequestBodyParser, *HTMXResponseBuilder) {
	p := NewRequestBodyParser(r)
	if err := p.Parse(); err != nil {
		return nil, BadRequestError("Invalid request format")
	}
	return p, nil
}
