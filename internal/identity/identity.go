// Package identity defines the capabilities the client needs from an identity
// provider and a small observer hub providers use to announce sign-in changes.
package identity

import (
	"context"
	"sync"

	"finease/internal/core"
)

// Provider manages credentials on behalf of the session. Every successful
// operation that changes who is signed in is announced to subscribers.
type Provider interface {
	CreateAccount(ctx context.Context, email, password string) (core.Identity, error)
	SignIn(ctx context.Context, email, password string) (core.Identity, error)
	// FederatedAuthURL returns the consent page URL for the federated
	// sign-in flow. state is echoed back to the callback.
	FederatedAuthURL(state string) (string, error)
	SignInFederated(ctx context.Context, code string) (core.Identity, error)
	SignOut(ctx context.Context) error
	UpdateProfile(ctx context.Context, name, photoURL string) error
	// Subscribe registers fn for identity changes. fn is called once right
	// away with the current identity. The returned func unregisters it.
	Subscribe(fn func(*core.Identity)) (unsubscribe func())
}

// Hub tracks the current identity and fans changes out to subscribers.
type Hub struct {
	mu      sync.Mutex
	current *core.Identity
	nextID  int
	subs    map[int]func(*core.Identity)
}

func NewHub() *Hub {
	return &Hub{subs: make(map[int]func(*core.Identity))}
}

// Current returns a copy of the current identity, or nil.
func (h *Hub) Current() *core.Identity {
	h.mu.Lock()
	defer h.mu.Unlock()
	return clone(h.current)
}

// Set replaces the current identity and notifies every subscriber.
// Callbacks run on the caller's goroutine, outside the hub lock.
func (h *Hub) Set(id *core.Identity) {
	h.mu.Lock()
	h.current = clone(id)
	fns := make([]func(*core.Identity), 0, len(h.subs))
	for _, fn := range h.subs {
		fns = append(fns, fn)
	}
	h.mu.Unlock()

	for _, fn := range fns {
		fn(clone(id))
	}
}

func (h *Hub) Subscribe(fn func(*core.Identity)) func() {
	h.mu.Lock()
	id := h.nextID
	h.nextID++
	h.subs[id] = fn
	current := clone(h.current)
	h.mu.Unlock()

	fn(current)

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
		})
	}
}

// Subscribers returns the number of registered callbacks.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

func clone(id *core.Identity) *core.Identity {
	if id == nil {
		return nil
	}
	c := *id
	return &c
}
