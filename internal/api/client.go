// Package api is the client for the FinEase backend REST API.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"finease/internal/core"
	"finease/internal/log"
)

// ErrNotInserted is returned when the backend acknowledged a create without
// reporting the new document id.
var ErrNotInserted = errors.New("backend did not report an inserted id")

// StatusError is returned for any non-2xx response.
type StatusError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: unexpected status %d", e.Method, e.Path, e.StatusCode)
}

// IsStatus reports whether err is a StatusError with the given code.
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == code
}

// TokenSource supplies the bearer token attached to requests. An empty token
// means the request goes out unauthenticated.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

type Client struct {
	baseURL string
	http    *http.Client
	tokens  TokenSource
	logger  *log.Logger
}

func New(baseURL string, timeout time.Duration, tokens TokenSource, logger *log.Logger) *Client {
	if logger == nil {
		logger = log.Nop()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		tokens:  tokens,
		logger:  logger.WithComponent(log.ComponentAPI),
	}
}

// Profile is the body of the user upsert.
type Profile struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	PhotoURL string `json:"photoURL"`
}

// IssueToken exchanges an email for a backend session token. The token is
// empty when the backend answers without one.
func (c *Client) IssueToken(ctx context.Context, email string) (string, error) {
	var out struct {
		Token string `json:"token"`
	}
	if err := c.do(ctx, http.MethodPost, "/jwt", nil, map[string]string{"email": email}, false, &out); err != nil {
		return "", err
	}
	return out.Token, nil
}

// UpsertUser creates or refreshes the user's profile. Safe to repeat.
func (c *Client) UpsertUser(ctx context.Context, p Profile) error {
	return c.do(ctx, http.MethodPost, "/users", nil, p, true, nil)
}

// UserRole returns the role stored for email, RoleUser when none is set.
func (c *Client) UserRole(ctx context.Context, email string) (core.Role, error) {
	var out struct {
		Role string `json:"role"`
	}
	q := url.Values{"email": {email}}
	if err := c.do(ctx, http.MethodGet, "/users/role", q, nil, true, &out); err != nil {
		return core.RoleUser, err
	}
	return core.ParseRole(out.Role), nil
}

func (c *Client) Users(ctx context.Context) ([]core.User, error) {
	var out []core.User
	if err := c.do(ctx, http.MethodGet, "/users", nil, nil, true, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) SetUserRole(ctx context.Context, id string, role core.Role) error {
	return c.do(ctx, http.MethodPatch, "/users/"+url.PathEscape(id)+"/role", nil, map[string]core.Role{"role": role}, true, nil)
}

func (c *Client) DeleteUser(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/users/"+url.PathEscape(id), nil, nil, true, nil)
}

// UserAnalytics returns new-user counts per month.
func (c *Client) UserAnalytics(ctx context.Context) ([]core.MonthlyCount, error) {
	var out []core.MonthlyCount
	if err := c.do(ctx, http.MethodGet, "/users/analytics", nil, nil, true, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CreateTransaction stores t and returns the backend id.
func (c *Client) CreateTransaction(ctx context.Context, t core.Transaction) (string, error) {
	t.ID = ""
	var out struct {
		InsertedID string `json:"insertedId"`
	}
	if err := c.do(ctx, http.MethodPost, "/transactions", nil, t, true, &out); err != nil {
		return "", err
	}
	if out.InsertedID == "" {
		return "", ErrNotInserted
	}
	return out.InsertedID, nil
}

func (c *Client) Transactions(ctx context.Context, email string) ([]core.Transaction, error) {
	var out []core.Transaction
	q := url.Values{"email": {email}}
	if err := c.do(ctx, http.MethodGet, "/transactions", q, nil, true, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) UpdateTransaction(ctx context.Context, id string, u core.TransactionUpdate) error {
	return c.do(ctx, http.MethodPatch, "/transactions/"+url.PathEscape(id), nil, u, true, nil)
}

func (c *Client) DeleteTransaction(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/transactions/"+url.PathEscape(id), nil, nil, true, nil)
}

// do sends one request. When auth is set and a token is available it is
// attached as a bearer credential. out, when non-nil, receives the decoded
// JSON body.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any, auth bool, out any) error {
	start := time.Now()
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("build %s %s: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if auth && c.tokens != nil {
		tok, err := c.tokens.Token(ctx)
		if err != nil {
			return fmt.Errorf("read bearer token: %w", err)
		}
		if tok != "" {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.WarnContext(ctx, "Backend request failed",
			log.FieldMethod, method,
			log.FieldEndpoint, path,
			log.FieldError, err,
			log.FieldErrorType, log.ErrorTypeNetwork)
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	c.logger.DebugContext(ctx, "Backend request",
		log.FieldMethod, method,
		log.FieldEndpoint, path,
		log.FieldStatusCode, resp.StatusCode,
		log.FieldDuration, time.Since(start).Milliseconds())

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{Method: method, Path: path, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}
