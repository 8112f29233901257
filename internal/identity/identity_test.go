package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finease/internal/core"
)

func TestHubSubscribeFiresImmediately(t *testing.T) {
	h := NewHub()
	var seen []*core.Identity
	unsubscribe := h.Subscribe(func(id *core.Identity) { seen = append(seen, id) })

	require.Len(t, seen, 1)
	assert.Nil(t, seen[0])

	h.Set(&core.Identity{Email: "ann@example.com"})
	require.Len(t, seen, 2)
	assert.Equal(t, "ann@example.com", seen[1].Email)

	unsubscribe()
	unsubscribe()
	assert.Equal(t, 0, h.Subscribers())

	h.Set(nil)
	assert.Len(t, seen, 2)
	assert.Nil(t, h.Current())
}

func TestHubHandsOutCopies(t *testing.T) {
	h := NewHub()
	id := &core.Identity{Email: "ann@example.com"}
	h.Set(id)
	id.Email = "mutated@example.com"

	got := h.Current()
	require.NotNil(t, got)
	assert.Equal(t, "ann@example.com", got.Email)
	got.Email = "x"
	assert.Equal(t, "ann@example.com", h.Current().Email)
}
