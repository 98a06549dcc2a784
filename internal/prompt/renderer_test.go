package prompt

import (
	"errors"
	"io/fs"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderSubstitutesValues(t *testing.T) {
	fsys := fstest.MapFS{
		"agent.md": {Data: []byte("Agent {{name}} ({{ stage }}) n={{count}} ok={{ok}}\n{{docs}}\nkeep {{missing}}")},
	}
	r := NewRenderer(fsys)

	out, err := r.Render("agent", map[string]any{
		"name":  "VendorIntakeAgent",
		"stage": "Vendor Intake",
		"count": 2,
		"ok":    true,
		"docs":  map[string]any{"b": 1, "a": []string{"x"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "Agent VendorIntakeAgent (Vendor Intake) n=2 ok=true\n{\n  \"a\": [\n    \"x\"\n  ],\n  \"b\": 1\n}\nkeep {{missing}}", out)
}

func TestRenderCachesTemplate(t *testing.T) {
	fsys := fstest.MapFS{"agent.md": {Data: []byte("v1 {{x}}")}}
	r := NewRenderer(fsys)

	out, err := r.Render("agent", map[string]any{"x": "a"})
	require.NoError(t, err)
	assert.Equal(t, "v1 a", out)

	fsys["agent.md"] = &fstest.MapFile{Data: []byte("v2 {{x}}")}
	out, err = r.Render("agent", map[string]any{"x": "b"})
	require.NoError(t, err)
	assert.Equal(t, "v1 b", out)
}

func TestRenderMissingTemplate(t *testing.T) {
	r := NewRenderer(fstest.MapFS{})
	_, err := r.Render("orchestrator", nil)

	var loadErr *TemplateLoadError
	require.True(t, errors.As(err, &loadErr))
	assert.Equal(t, "orchestrator", loadErr.Name)
	assert.True(t, errors.Is(err, fs.ErrNotExist))
}

func TestSubstituteNilVars(t *testing.T) {
	assert.Equal(t, "hello {{who}}", Substitute("hello {{who}}", nil))
	assert.Equal(t, "hello ", Substitute("hello {{who}}", map[string]any{"who": nil}))
}
