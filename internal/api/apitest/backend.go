// Package apitest runs an in-memory FinEase backend for tests.
package apitest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	"finease/internal/core"
)

// Request records one call the backend received.
type Request struct {
	Method string
	Path   string
	Query  string
	Auth   string
}

// Backend is a fake REST backend. Exported fields must be set before the
// first request.
type Backend struct {
	*httptest.Server

	mu           sync.Mutex
	roles        map[string]core.Role
	users        []core.User
	transactions []core.Transaction
	analytics    []core.MonthlyCount
	failures     map[string]int
	requests     []Request
	nextID       int

	// OmitToken makes POST /jwt answer without a token.
	OmitToken bool
	// OmitInsertedID makes POST /transactions answer without an id.
	OmitInsertedID bool
	// Before runs ahead of every handler. Tests use it to block or delay.
	Before func(r *http.Request)
}

func NewBackend() *Backend {
	b := &Backend{
		roles:    make(map[string]core.Role),
		failures: make(map[string]int),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /jwt", b.issueToken)
	mux.HandleFunc("POST /users", b.upsertUser)
	mux.HandleFunc("GET /users/role", b.userRole)
	mux.HandleFunc("GET /users", b.listUsers)
	mux.HandleFunc("GET /users/analytics", b.userAnalytics)
	mux.HandleFunc("PATCH /users/{id}/role", b.setRole)
	mux.HandleFunc("DELETE /users/{id}", b.deleteUser)
	mux.HandleFunc("POST /transactions", b.createTransaction)
	mux.HandleFunc("GET /transactions", b.listTransactions)
	mux.HandleFunc("PATCH /transactions/{id}", b.updateTransaction)
	mux.HandleFunc("DELETE /transactions/{id}", b.deleteTransaction)

	b.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		b.requests = append(b.requests, Request{
			Method: r.Method,
			Path:   r.URL.Path,
			Query:  r.URL.RawQuery,
			Auth:   r.Header.Get("Authorization"),
		})
		code, fail := b.failures[r.Method+" "+r.URL.Path]
		before := b.Before
		b.mu.Unlock()

		if before != nil {
			before(r)
		}
		if fail {
			http.Error(w, "injected failure", code)
			return
		}
		mux.ServeHTTP(w, r)
	}))
	return b
}

// TokenFor is the token the backend issues for email.
func TokenFor(email string) string { return "token-" + email }

// Fail makes METHOD path answer with code until cleared with code 0.
func (b *Backend) Fail(method, path string, code int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if code == 0 {
		delete(b.failures, method+" "+path)
		return
	}
	b.failures[method+" "+path] = code
}

func (b *Backend) SetRole(email string, role core.Role) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.roles[email] = role
}

func (b *Backend) SetUsers(users ...core.User) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.users = append([]core.User(nil), users...)
}

func (b *Backend) Users() []core.User {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]core.User(nil), b.users...)
}

func (b *Backend) SetAnalytics(counts ...core.MonthlyCount) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.analytics = append([]core.MonthlyCount(nil), counts...)
}

// AddTransactions stores txs, assigning ids to those without one.
func (b *Backend) AddTransactions(txs ...core.Transaction) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, t := range txs {
		if t.ID == "" {
			t.ID = b.newID()
		}
		b.transactions = append(b.transactions, t)
	}
}

func (b *Backend) Transactions() []core.Transaction {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]core.Transaction(nil), b.transactions...)
}

// Requests returns every request received so far.
func (b *Backend) Requests() []Request {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Request(nil), b.requests...)
}

// Count returns how many requests matched method and path.
func (b *Backend) Count(method, path string) int {
	n := 0
	for _, r := range b.Requests() {
		if r.Method == method && r.Path == path {
			n++
		}
	}
	return n
}

func (b *Backend) newID() string {
	b.nextID++
	return fmt.Sprintf("id-%d", b.nextID)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func (b *Backend) issueToken(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil || in.Email == "" {
		http.Error(w, "email required", http.StatusBadRequest)
		return
	}
	if b.OmitToken {
		writeJSON(w, map[string]string{})
		return
	}
	writeJSON(w, map[string]string{"token": TokenFor(in.Email)})
}

func (b *Backend) authorized(r *http.Request) bool {
	return strings.HasPrefix(r.Header.Get("Authorization"), "Bearer token-")
}

func (b *Backend) upsertUser(w http.ResponseWriter, r *http.Request) {
	if !b.authorized(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	var p struct {
		Email    string `json:"email"`
		Name     string `json:"name"`
		PhotoURL string `json:"photoURL"`
	}
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		http.Error(w, "bad body", http.StatusBadRequest)
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, u := range b.users {
		if u.Email == p.Email {
			b.users[i].Name = p.Name
			b.users[i].PhotoURL = p.PhotoURL
			writeJSON(w, map[string]any{"message": "user exists"})
			return
		}
	}
	b.users = append(b.users, core.User{
		ID:        b.newID(),
		Name:      p.Name,
		Email:     p.Email,
		PhotoURL:  p.PhotoURL,
		Role:      core.RoleUser,
		CreatedAt: "2024-01-01T00:00:00Z",
	})
	writeJSON(w, map[string]any{"insertedId": b.users[len(b.users)-1].ID})
}

func (b *Backend) userRole(w http.ResponseWriter, r *http.Request) {
	if !b.authorized(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	b.mu.Lock()
	role, ok := b.roles[r.URL.Query().Get("email")]
	b.mu.Unlock()
	if !ok {
		writeJSON(w, map[string]any{})
		return
	}
	writeJSON(w, map[string]any{"role": role})
}

func (b *Backend) listUsers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, b.Users())
}

func (b *Backend) userAnalytics(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.analytics
	if out == nil {
		out = []core.MonthlyCount{}
	}
	writeJSON(w, out)
}

func (b *Backend) setRole(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Role core.Role `json:"role"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, "bad body", http.StatusBadRequest)
		return
	}
	id := r.PathValue("id")
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, u := range b.users {
		if u.ID == id {
			b.users[i].Role = in.Role
			b.roles[u.Email] = in.Role
			writeJSON(w, map[string]int{"modifiedCount": 1})
			return
		}
	}
	http.NotFound(w, r)
}

func (b *Backend) deleteUser(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, u := range b.users {
		if u.ID == id {
			b.users = append(b.users[:i], b.users[i+1:]...)
			writeJSON(w, map[string]int{"deletedCount": 1})
			return
		}
	}
	http.NotFound(w, r)
}

func (b *Backend) createTransaction(w http.ResponseWriter, r *http.Request) {
	var t core.Transaction
	if err := json.NewDecoder(r.Body).Decode(&t); err != nil {
		http.Error(w, "bad body", http.StatusBadRequest)
		return
	}
	if b.OmitInsertedID {
		writeJSON(w, map[string]any{"acknowledged": true})
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	t.ID = b.newID()
	b.transactions = append(b.transactions, t)
	writeJSON(w, map[string]any{"acknowledged": true, "insertedId": t.ID})
}

func (b *Backend) listTransactions(w http.ResponseWriter, r *http.Request) {
	email := r.URL.Query().Get("email")
	out := []any{}
	for _, t := range b.Transactions() {
		if t.UserEmail == email {
			out = append(out, wireTransaction(t))
		}
	}
	writeJSON(w, out)
}

// wireTransaction encodes t with a string amount when AmountText is set, the
// way records written by older clients come back.
func wireTransaction(t core.Transaction) any {
	if t.AmountText == "" {
		return t
	}
	return struct {
		core.Transaction
		Amount string `json:"amount"`
	}{t, t.AmountText}
}

func (b *Backend) updateTransaction(w http.ResponseWriter, r *http.Request) {
	var u core.TransactionUpdate
	if err := json.NewDecoder(r.Body).Decode(&u); err != nil {
		http.Error(w, "bad body", http.StatusBadRequest)
		return
	}
	id := r.PathValue("id")
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, t := range b.transactions {
		if t.ID == id {
			b.transactions[i] = u.Apply(t)
			writeJSON(w, map[string]int{"modifiedCount": 1})
			return
		}
	}
	http.NotFound(w, r)
}

func (b *Backend) deleteTransaction(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, t := range b.transactions {
		if t.ID == id {
			b.transactions = append(b.transactions[:i], b.transactions[i+1:]...)
			writeJSON(w, map[string]int{"deletedCount": 1})
			return
		}
	}
	http.NotFound(w, r)
}
