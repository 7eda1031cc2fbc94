// Package scanner enumerates files in a project directory against include
// and exclude glob patterns, and classifies them against previously stored
// file metadata to drive incremental indexing decisions.
package scanner

// Classification buckets a scanned file falls into relative to the
// previously stored file metadata.
type Classification string

const (
	Added     Classification = "added"
	Modified  Classification = "modified"
	Unchanged Classification = "unchanged"
	Deleted   Classification = "deleted"
)

// FileMtime pairs an enumerated file's project-relative path with its
// modification time in milliseconds since the epoch.
type FileMtime struct {
	FilePath string
	MtimeMs  int64
}

// Options configures a scan.
type Options struct {
	// RootDir is the project root to scan. Defaults to "." when empty.
	RootDir string

	// IncludePatterns restricts enumeration to files matching at least one
	// glob. When empty, all non-excluded files are included.
	IncludePatterns []string

	// ExcludePatterns removes files matching any glob from the result,
	// evaluated against the path relative to RootDir.
	ExcludePatterns []string

	// Workers bounds the number of concurrent file-stat goroutines. Defaults
	// to runtime.GOMAXPROCS(0) when non-positive.
	Workers int

	// FollowSymlinks controls whether symlinked files are stat'd and
	// included. Defaults to false.
	FollowSymlinks bool
}

// Result is the outcome of a scan: the current enumeration classified
// against stored metadata, split into four disjoint, order-stable lists.
type Result struct {
	Added     []FileMtime
	Modified  []FileMtime
	Unchanged []FileMtime
	Deleted   []FileMtime
}

// StoredMeta is the minimal shape of previously persisted file metadata
// a scan is classified against. It mirrors internal/store.FileMeta without
// importing the store package, keeping scanner free of a persistence
// dependency.
type StoredMeta struct {
	FilePath string
	MtimeMs  int64
}
