package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_EmbeddedCatalog(t *testing.T) {
	c, err := Load("")
	require.NoError(t, err)

	blr, ok := c.Find("Bengaluru")
	require.True(t, ok)
	assert.True(t, blr.Selectable())
	assert.True(t, blr.HasArea("Indiranagar"))

	pune, ok := c.Find("pune")
	require.True(t, ok)
	assert.False(t, pune.Selectable())

	hyd, ok := c.Find("hyderabad")
	require.True(t, ok)
	assert.False(t, hyd.Selectable(), "coming soon cities are not selectable")

	for _, city := range c.Selectable() {
		assert.True(t, city.IsAvailable && !city.ComingSoon, city.ID)
	}
	assert.Less(t, len(c.Selectable()), len(c.Cities()))
}

func TestLoad_FromPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cities.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
cities:
  - id: goa
    name: Goa
    available: true
    areas: [Panjim]
`), 0o600))

	c, err := Load(path)
	require.NoError(t, err)
	require.Len(t, c.Cities(), 1)
	goa, ok := c.Find("GOA")
	require.True(t, ok)
	assert.Equal(t, []string{"Panjim"}, goa.Areas)
}

func TestLoad_MissingFile_ReturnsError(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestParse_Invalid(t *testing.T) {
	tests := map[string]string{
		"not yaml":     "cities: [",
		"empty":        "cities: []",
		"missing name": "cities:\n  - id: x\n",
		"duplicate id": "cities:\n  - {id: x, name: X}\n  - {id: x, name: Y}\n",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			require.Error(t, err)
		})
	}
}
