package chunk

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanonicalLanguage_KnownExtensions(t *testing.T) {
	cases := map[string]string{
		"ts":    "typescript",
		".tsx":  "typescript",
		"js":    "javascript",
		".jsx":  "javascript",
		"mjs":   "javascript",
		"py":    "python",
		"go":    "go",
		"rs":    "rust",
		"java":  "java",
		"md":    "markdown",
		"YML":   "yaml",
		".YAML": "yaml",
	}
	for ext, want := range cases {
		assert.Equal(t, want, CanonicalLanguage(ext), "ext=%s", ext)
	}
}

func TestCanonicalLanguage_UnknownExtensionPassesThrough(t *testing.T) {
	assert.Equal(t, "zig", CanonicalLanguage(".zig"))
	assert.Equal(t, "zig", CanonicalLanguage("zig"))
}

func TestLanguageRegistry_GetByExtension(t *testing.T) {
	r := DefaultRegistry()

	cfg, ok := r.GetByExtension(".go")
	assert.True(t, ok)
	assert.Equal(t, "go", cfg.Name)

	_, ok = r.GetByExtension(".unknownlang")
	assert.False(t, ok)
}

func TestLanguageRegistry_GetTreeSitterLanguage(t *testing.T) {
	r := DefaultRegistry()

	_, ok := r.GetTreeSitterLanguage("python")
	assert.True(t, ok)

	_, ok = r.GetTreeSitterLanguage("nonexistent")
	assert.False(t, ok)
}

func TestLanguageRegistry_SupportedExtensions(t *testing.T) {
	r := DefaultRegistry()
	exts := r.SupportedExtensions()
	assert.Contains(t, exts, ".go")
	assert.Contains(t, exts, ".py")
	assert.Contains(t, exts, ".ts")
	assert.Contains(t, exts, ".tsx")
}
