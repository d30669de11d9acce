package resource

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testDef struct {
	id   string
	name string
}

func (d testDef) ResourceID() string   { return d.id }
func (d testDef) ResourceName() string { return d.name }

func TestRegistryCaseInsensitiveLookup(t *testing.T) {
	r := NewRegistry[testDef]()
	r.Swap(testDef{id: "Readme_Improver", name: "README Improver"})

	byID, ok := r.Get("readme_improver")
	require.True(t, ok)
	assert.Equal(t, "Readme_Improver", byID.id)

	byName, ok := r.Get("readme improver")
	require.True(t, ok)
	assert.Equal(t, "Readme_Improver", byName.id)

	_, ok = r.Get("unknown")
	assert.False(t, ok)
}

func TestRegistrySwapReplacesEntry(t *testing.T) {
	r := NewRegistry[testDef]()
	r.Swap(testDef{id: "greet", name: "Greeter"})
	r.Swap(testDef{id: "greet", name: "Greeter v2"})

	def, ok := r.Get("greet")
	require.True(t, ok)
	assert.Equal(t, "Greeter v2", def.name)

	// The old name index entry must be gone.
	_, ok = r.Get("Greeter")
	assert.False(t, ok)

	_, ok = r.Get("greeter v2")
	assert.True(t, ok)
}

func TestRegistryRemove(t *testing.T) {
	r := NewRegistry[testDef]()
	r.Swap(testDef{id: "a", name: "Alpha"})

	assert.True(t, r.Remove("A"))
	assert.False(t, r.Remove("a"))
	_, ok := r.Get("alpha")
	assert.False(t, ok)
	assert.Zero(t, r.Len())
}

func TestRegistryIDsSorted(t *testing.T) {
	r := NewRegistry[testDef]()
	r.Swap(testDef{id: "zeta"})
	r.Swap(testDef{id: "alpha"})
	r.Swap(testDef{id: "mid"})

	assert.Equal(t, []string{"alpha", "mid", "zeta"}, r.IDs())
	assert.Len(t, r.All(), 3)
}

func TestRegistrySuggest(t *testing.T) {
	r := NewRegistry[testDef]()
	r.Swap(testDef{id: "index"})
	r.Swap(testDef{id: "indent"})
	r.Swap(testDef{id: "completely-different"})

	suggestions := r.Suggest("idx")
	require.NotEmpty(t, suggestions)
	assert.Equal(t, "index", suggestions[0])
	assert.NotContains(t, suggestions, "completely-different")
}

func TestLevenshtein(t *testing.T) {
	assert.Equal(t, 0, levenshtein("same", "same"))
	assert.Equal(t, 4, levenshtein("", "four"))
	assert.Equal(t, 1, levenshtein("cat", "cats"))
	assert.Equal(t, 2, levenshtein("idx", "index"))
	assert.Equal(t, 3, levenshtein("kitten", "sitting"))
}
