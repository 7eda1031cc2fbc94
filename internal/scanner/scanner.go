package scanner

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"golang.org/x/sync/errgroup"
)

// Enumerate walks RootDir, matches files against IncludePatterns and
// ExcludePatterns, and stats each surviving file concurrently across a
// bounded worker pool. The returned slice is sorted by FilePath so callers
// see a deterministic order given identical inputs.
func Enumerate(ctx context.Context, opts Options) ([]FileMtime, error) {
	rootDir := opts.RootDir
	if rootDir == "" {
		rootDir = "."
	}

	absRoot, err := filepath.Abs(rootDir)
	if err != nil {
		return nil, fmt.Errorf("resolve root directory: %w", err)
	}
	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, fmt.Errorf("stat root directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root path is not a directory: %s", absRoot)
	}

	var candidates []string
	err = filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return nil
		}
		if path == absRoot {
			return nil
		}
		relPath, err := filepath.Rel(absRoot, path)
		if err != nil {
			return nil
		}
		relPath = filepath.ToSlash(relPath)

		if d.IsDir() {
			if excludedDir(relPath, opts.ExcludePatterns) {
				return filepath.SkipDir
			}
			return nil
		}

		if d.Type()&fs.ModeSymlink != 0 && !opts.FollowSymlinks {
			return nil
		}
		if excludedDir(relPath, opts.ExcludePatterns) || excludedFile(relPath, opts.ExcludePatterns) {
			return nil
		}
		if len(opts.IncludePatterns) > 0 && !matchesAny(relPath, opts.IncludePatterns) {
			return nil
		}

		candidates = append(candidates, relPath)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk root directory: %w", err)
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	results := make([]FileMtime, len(candidates))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, relPath := range candidates {
		i, relPath := i, relPath
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}
			fi, err := os.Stat(filepath.Join(absRoot, relPath))
			if err != nil {
				// File may have been removed between walk and stat; drop it
				// rather than failing the whole scan.
				return nil
			}
			results[i] = FileMtime{FilePath: relPath, MtimeMs: fi.ModTime().UnixMilli()}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("stat scanned files: %w", err)
	}

	out := results[:0]
	for _, r := range results {
		if r.FilePath != "" {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FilePath < out[j].FilePath })
	return out, nil
}

// Classify buckets the current enumeration against previously stored file
// metadata into added, modified, unchanged, and deleted.
func Classify(current []FileMtime, stored []StoredMeta) Result {
	storedByPath := make(map[string]int64, len(stored))
	for _, m := range stored {
		storedByPath[m.FilePath] = m.MtimeMs
	}

	seen := make(map[string]struct{}, len(current))
	var result Result
	for _, f := range current {
		seen[f.FilePath] = struct{}{}
		storedMtime, ok := storedByPath[f.FilePath]
		switch {
		case !ok:
			result.Added = append(result.Added, f)
		case f.MtimeMs > storedMtime:
			result.Modified = append(result.Modified, f)
		default:
			result.Unchanged = append(result.Unchanged, f)
		}
	}

	for _, m := range stored {
		if _, ok := seen[m.FilePath]; !ok {
			result.Deleted = append(result.Deleted, FileMtime{FilePath: m.FilePath, MtimeMs: m.MtimeMs})
		}
	}

	return result
}

// Scan enumerates the project directory and classifies the result against
// stored metadata in one call.
func Scan(ctx context.Context, opts Options, stored []StoredMeta) (Result, error) {
	current, err := Enumerate(ctx, opts)
	if err != nil {
		return Result{}, err
	}
	return Classify(current, stored), nil
}

func matchesAny(relPath string, patterns []string) bool {
	for _, p := range patterns {
		if ok, _ := doublestar.Match(p, relPath); ok {
			return true
		}
	}
	return false
}

func excludedFile(relPath string, patterns []string) bool {
	return matchesAny(relPath, patterns)
}

// excludedDir reports whether relPath (a directory, or an ancestor of a
// file) matches an exclude pattern. Patterns ending in "/**" are treated as
// matching the named directory itself, not only its contents, so that
// traversal can be pruned with filepath.SkipDir before descending.
func excludedDir(relPath string, patterns []string) bool {
	for _, p := range patterns {
		if ok, _ := doublestar.Match(p, relPath); ok {
			return true
		}
		if trimmed := strings.TrimSuffix(p, "/**"); trimmed != p {
			if relPath == trimmed || strings.HasPrefix(relPath, trimmed+"/") {
				return true
			}
		}
	}
	return false
}
