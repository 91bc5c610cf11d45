package presence_test

import (
	"testing"

	"github.com/matrix-org/peercall/pkg/presence"
	"github.com/stretchr/testify/assert"
)

func TestRegistry_AddIsIdempotent(t *testing.T) {
	registry := presence.NewRegistry[string]()

	assert.True(t, registry.Add("b"))
	assert.False(t, registry.Add("b"))
	assert.Equal(t, []string{"b"}, registry.Peers())
	assert.Equal(t, 1, registry.Len())
}

func TestRegistry_RemoveUnknown(t *testing.T) {
	registry := presence.NewRegistry[string]()
	registry.Add("b")

	assert.False(t, registry.Remove("c"))
	assert.True(t, registry.Remove("b"))
	assert.False(t, registry.Remove("b"))
	assert.Empty(t, registry.Peers())
}

func TestRegistry_Replace(t *testing.T) {
	registry := presence.NewRegistry[string]()
	registry.Add("a")
	registry.Add("b")

	added, removed := registry.Replace([]string{"c", "b", "c"})

	assert.Equal(t, []string{"c"}, added)
	assert.Equal(t, []string{"a"}, removed)
	assert.Equal(t, []string{"b", "c"}, registry.Peers())
	assert.True(t, registry.Contains("c"))
	assert.False(t, registry.Contains("a"))
}

func TestRegistry_ReplaceWithEmptyList(t *testing.T) {
	registry := presence.NewRegistry[string]()
	registry.Add("b")
	registry.Add("a")

	added, removed := registry.Replace(nil)

	assert.Empty(t, added)
	assert.Equal(t, []string{"a", "b"}, removed)
	assert.Equal(t, 0, registry.Len())
}

func TestRegistry_PeersIsACopy(t *testing.T) {
	registry := presence.NewRegistry[string]()
	registry.Add("a")

	peers := registry.Peers()
	peers[0] = "z"

	assert.Equal(t, []string{"a"}, registry.Peers())
}
