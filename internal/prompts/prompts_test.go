package prompts

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRegistry_LoadsEmbeddedDefaults(t *testing.T) {
	r, err := NewRegistry()
	require.NoError(t, err)
	assert.True(t, r.Has("synthesis", "answer"))
	assert.True(t, r.Has("router", "classify"))
	assert.True(t, r.Has("questions", "refine"))
}

func TestGet_SubstitutesKnownVariables(t *testing.T) {
	fsys := fstest.MapFS{
		"templates/greet/hello.tmpl": &fstest.MapFile{Data: []byte("Hello, {{name}}! You are {{age}}.")},
	}
	r, err := NewRegistryFromFS(fsys, "templates")
	require.NoError(t, err)

	got := r.Get("greet", "hello", map[string]any{"name": "Ada", "age": 30})
	assert.Equal(t, "Hello, Ada! You are 30.", got)
}

func TestGet_MissingVariableRendersEmpty(t *testing.T) {
	fsys := fstest.MapFS{
		"templates/greet/hello.tmpl": &fstest.MapFile{Data: []byte("Hello, {{name}}!")},
	}
	r, err := NewRegistryFromFS(fsys, "templates")
	require.NoError(t, err)

	got := r.Get("greet", "hello", map[string]any{})
	assert.Equal(t, "Hello, !", got)
}

func TestGet_MissingTemplateReturnsEmptyString(t *testing.T) {
	r, err := NewRegistryFromFS(fstest.MapFS{}, "templates")
	require.NoError(t, err)
	assert.Equal(t, "", r.Get("nope", "nope", nil))
}

func TestHas_ReportsTemplatePresence(t *testing.T) {
	fsys := fstest.MapFS{
		"templates/a/b.tmpl": &fstest.MapFile{Data: []byte("x")},
	}
	r, err := NewRegistryFromFS(fsys, "templates")
	require.NoError(t, err)
	assert.True(t, r.Has("a", "b"))
	assert.False(t, r.Has("a", "c"))
}
