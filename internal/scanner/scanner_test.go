package scanner

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, root, relPath, content string, mtime time.Time) {
	t.Helper()
	full := filepath.Join(root, relPath)
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
	require.NoError(t, os.Chtimes(full, mtime, mtime))
}

func TestEnumerate_IncludeAndExcludePatterns(t *testing.T) {
	root := t.TempDir()
	now := time.Now()
	writeFile(t, root, "main.go", "package main", now)
	writeFile(t, root, "README.md", "# hi", now)
	writeFile(t, root, "vendor/dep.go", "package dep", now)

	files, err := Enumerate(context.Background(), Options{
		RootDir:         root,
		IncludePatterns: []string{"**/*.go"},
		ExcludePatterns: []string{"vendor/**"},
	})
	require.NoError(t, err)

	var paths []string
	for _, f := range files {
		paths = append(paths, f.FilePath)
	}
	assert.ElementsMatch(t, []string{"main.go"}, paths)
}

func TestEnumerate_NoIncludePatterns_IncludesEverythingNotExcluded(t *testing.T) {
	root := t.TempDir()
	now := time.Now()
	writeFile(t, root, "a.go", "package a", now)
	writeFile(t, root, "b.txt", "text", now)

	files, err := Enumerate(context.Background(), Options{RootDir: root})
	require.NoError(t, err)
	assert.Len(t, files, 2)
}

func TestEnumerate_SortedByPath(t *testing.T) {
	root := t.TempDir()
	now := time.Now()
	writeFile(t, root, "z.go", "z", now)
	writeFile(t, root, "a.go", "a", now)
	writeFile(t, root, "m.go", "m", now)

	files, err := Enumerate(context.Background(), Options{RootDir: root})
	require.NoError(t, err)
	require.Len(t, files, 3)
	assert.Equal(t, "a.go", files[0].FilePath)
	assert.Equal(t, "m.go", files[1].FilePath)
	assert.Equal(t, "z.go", files[2].FilePath)
}

func TestClassify_AddedModifiedUnchangedDeleted(t *testing.T) {
	current := []FileMtime{
		{FilePath: "new.go", MtimeMs: 100},
		{FilePath: "changed.go", MtimeMs: 200},
		{FilePath: "same.go", MtimeMs: 50},
	}
	stored := []StoredMeta{
		{FilePath: "changed.go", MtimeMs: 150},
		{FilePath: "same.go", MtimeMs: 50},
		{FilePath: "gone.go", MtimeMs: 10},
	}

	result := Classify(current, stored)

	require.Len(t, result.Added, 1)
	assert.Equal(t, "new.go", result.Added[0].FilePath)

	require.Len(t, result.Modified, 1)
	assert.Equal(t, "changed.go", result.Modified[0].FilePath)

	require.Len(t, result.Unchanged, 1)
	assert.Equal(t, "same.go", result.Unchanged[0].FilePath)

	require.Len(t, result.Deleted, 1)
	assert.Equal(t, "gone.go", result.Deleted[0].FilePath)
}

func TestClassify_EqualMtimeIsUnchanged(t *testing.T) {
	current := []FileMtime{{FilePath: "f.go", MtimeMs: 100}}
	stored := []StoredMeta{{FilePath: "f.go", MtimeMs: 100}}

	result := Classify(current, stored)
	assert.Len(t, result.Unchanged, 1)
	assert.Empty(t, result.Modified)
}

func TestScan_CombinesEnumerateAndClassify(t *testing.T) {
	root := t.TempDir()
	now := time.Now()
	writeFile(t, root, "keep.go", "package keep", now)

	result, err := Scan(context.Background(), Options{RootDir: root}, []StoredMeta{
		{FilePath: "removed.go", MtimeMs: 1},
	})
	require.NoError(t, err)
	require.Len(t, result.Added, 1)
	assert.Equal(t, "keep.go", result.Added[0].FilePath)
	require.Len(t, result.Deleted, 1)
	assert.Equal(t, "removed.go", result.Deleted[0].FilePath)
}
