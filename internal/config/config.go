// Package config implements the Configuration Resolver (C10): it loads a
// project's indexing configuration from YAML, merges it over built-in
// defaults section by section, and validates bounds on every recognized
// option. An invalid sub-field is dropped and warned about rather than
// failing the whole load; a syntactically invalid file yields a fully
// default configuration plus a warning.
package config

import (
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config is the complete, validated configuration for an indexing project.
type Config struct {
	Patterns        []string        `yaml:"patterns" json:"patterns"`
	ExcludePatterns []string        `yaml:"excludePatterns" json:"excludePatterns"`
	Embedding       EmbeddingConfig `yaml:"embedding" json:"embedding"`
	Chunking        ChunkingConfig  `yaml:"chunking" json:"chunking"`
	Search          SearchConfig    `yaml:"search" json:"search"`
	Indexing        IndexingConfig  `yaml:"indexing" json:"indexing"`
}

// EmbeddingConfig configures the embedding backend (C1).
type EmbeddingConfig struct {
	Backend     string `yaml:"backend" json:"backend"`
	Model       string `yaml:"model" json:"model"`
	Concurrency int    `yaml:"concurrency" json:"concurrency"`
}

// ChunkingConfig configures the structural chunker (C3).
type ChunkingConfig struct {
	MaxLines int `yaml:"maxLines" json:"maxLines"`
	Overlap  int `yaml:"overlap" json:"overlap"`
}

// SearchConfig configures the hybrid ranker (C7).
type SearchConfig struct {
	SemanticWeight float64 `yaml:"semanticWeight" json:"semanticWeight"`
	KeywordWeight  float64 `yaml:"keywordWeight" json:"keywordWeight"`

	// AutoReindex is a pointer so a YAML `autoReindex: false` is
	// distinguishable from the field being omitted; a plain bool's zero
	// value would make an explicit false unrepresentable during the merge.
	// Read it through AutoReindexEnabled.
	AutoReindex *bool `yaml:"autoReindex" json:"autoReindex"`
}

// AutoReindexEnabled reports whether stale indexes should be refreshed
// before a search, treating an unset field as the default (true).
func (s SearchConfig) AutoReindexEnabled() bool {
	return s.AutoReindex == nil || *s.AutoReindex
}

// IndexingConfig configures the indexing orchestrator (C8).
type IndexingConfig struct {
	BatchSize    int `yaml:"batchSize" json:"batchSize"`
	BatchDelayMs int `yaml:"batchDelayMs" json:"batchDelayMs"`
}

// Bounds for the validated numeric options. Values outside a bound are
// dropped in favor of the default rather than failing the load.
const (
	minEmbeddingConcurrency = 1
	maxEmbeddingConcurrency = 200

	minChunkingMaxLines = 10
	maxChunkingMaxLines = 500

	minChunkingOverlap = 0
	maxChunkingOverlap = 50

	minIndexingBatchSize = 1
	maxIndexingBatchSize = 1000

	minIndexingBatchDelayMs = 0
	maxIndexingBatchDelayMs = 10000
)

// defaultExcludePatterns mirrors the common build/dep/VCS paths every
// project wants skipped by default.
var defaultExcludePatterns = []string{
	"**/node_modules/**",
	"**/.git/**",
	"**/vendor/**",
	"**/__pycache__/**",
	"**/dist/**",
	"**/build/**",
	"**/.codeindex/**",
	"**/*.min.js",
	"**/*.min.css",
	"**/package-lock.json",
	"**/yarn.lock",
	"**/pnpm-lock.yaml",
	"**/go.sum",
}

// defaultPatterns mirrors the canonical language mapping's common source
// extensions (see internal/chunk's extension table).
var defaultPatterns = []string{
	"**/*.go", "**/*.ts", "**/*.tsx", "**/*.js", "**/*.jsx",
	"**/*.py", "**/*.rs", "**/*.java", "**/*.rb", "**/*.php",
	"**/*.c", "**/*.h", "**/*.cpp", "**/*.hpp", "**/*.cs",
	"**/*.swift", "**/*.kt", "**/*.md",
}

// Default returns the built-in default configuration.
func Default() *Config {
	return &Config{
		Patterns:        append([]string(nil), defaultPatterns...),
		ExcludePatterns: append([]string(nil), defaultExcludePatterns...),
		Embedding: EmbeddingConfig{
			Backend:     "ollama",
			Model:       "nomic-embed-text",
			Concurrency: 1,
		},
		Chunking: ChunkingConfig{
			MaxLines: 100,
			Overlap:  20,
		},
		Search: SearchConfig{
			SemanticWeight: 0.7,
			KeywordWeight:  0.3,
			AutoReindex:    boolPtr(true),
		},
		Indexing: IndexingConfig{
			BatchSize:    200,
			BatchDelayMs: 0,
		},
	}
}

// Load reads <dir>/.codeindex.yaml (or .yml), merges it section-by-section
// over Default(), and returns the resolved configuration. A missing file is
// not an error: Default() is returned as-is. A file that fails to parse as
// YAML at all yields Default() plus a warning; a file that parses but has
// invalid sub-fields keeps the valid sub-fields and drops+warns on the rest.
func Load(dir string) (*Config, error) {
	cfg := Default()

	path := configPath(dir)
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, nil
	}

	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		slog.Warn("config file is not valid YAML, using defaults", slog.String("path", path), slog.String("error", err.Error()))
		return cfg, nil
	}

	cfg.mergeAndValidate(&parsed)
	return cfg, nil
}

func configPath(dir string) string {
	for _, name := range []string{".codeindex.yaml", ".codeindex.yml"} {
		p := filepath.Join(dir, name)
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// mergeAndValidate merges each section of other into c independently,
// dropping and warning about any sub-field that fails validation rather
// than rejecting the whole section.
func (c *Config) mergeAndValidate(other *Config) {
	if len(other.Patterns) > 0 {
		c.Patterns = other.Patterns
	}
	if len(other.ExcludePatterns) > 0 {
		c.ExcludePatterns = other.ExcludePatterns
	}

	if other.Embedding.Backend != "" {
		c.Embedding.Backend = other.Embedding.Backend
	}
	if other.Embedding.Model != "" {
		c.Embedding.Model = other.Embedding.Model
	}
	if other.Embedding.Concurrency != 0 {
		if inRange(other.Embedding.Concurrency, minEmbeddingConcurrency, maxEmbeddingConcurrency) {
			c.Embedding.Concurrency = other.Embedding.Concurrency
		} else {
			warnDropped("embedding.concurrency", other.Embedding.Concurrency)
		}
	}

	if other.Chunking.MaxLines != 0 {
		if inRange(other.Chunking.MaxLines, minChunkingMaxLines, maxChunkingMaxLines) {
			c.Chunking.MaxLines = other.Chunking.MaxLines
		} else {
			warnDropped("chunking.maxLines", other.Chunking.MaxLines)
		}
	}
	if other.Chunking.Overlap != 0 {
		if inRange(other.Chunking.Overlap, minChunkingOverlap, maxChunkingOverlap) {
			c.Chunking.Overlap = other.Chunking.Overlap
		} else {
			warnDropped("chunking.overlap", other.Chunking.Overlap)
		}
	}

	if other.Search.SemanticWeight != 0 {
		if inRangeFloat(other.Search.SemanticWeight, 0, 1) {
			c.Search.SemanticWeight = other.Search.SemanticWeight
		} else {
			warnDropped("search.semanticWeight", other.Search.SemanticWeight)
		}
	}
	if other.Search.KeywordWeight != 0 {
		if inRangeFloat(other.Search.KeywordWeight, 0, 1) {
			c.Search.KeywordWeight = other.Search.KeywordWeight
		} else {
			warnDropped("search.keywordWeight", other.Search.KeywordWeight)
		}
	}
	if other.Search.AutoReindex != nil {
		c.Search.AutoReindex = other.Search.AutoReindex
	}

	if other.Indexing.BatchSize != 0 {
		if inRange(other.Indexing.BatchSize, minIndexingBatchSize, maxIndexingBatchSize) {
			c.Indexing.BatchSize = other.Indexing.BatchSize
		} else {
			warnDropped("indexing.batchSize", other.Indexing.BatchSize)
		}
	}
	if other.Indexing.BatchDelayMs != 0 {
		if inRange(other.Indexing.BatchDelayMs, minIndexingBatchDelayMs, maxIndexingBatchDelayMs) {
			c.Indexing.BatchDelayMs = other.Indexing.BatchDelayMs
		} else {
			warnDropped("indexing.batchDelayMs", other.Indexing.BatchDelayMs)
		}
	}
}

func boolPtr(b bool) *bool {
	return &b
}

func inRange(v, min, max int) bool {
	return v >= min && v <= max
}

func inRangeFloat(v, min, max float64) bool {
	return v >= min && v <= max
}

func warnDropped(field string, value any) {
	slog.Warn("config sub-field out of range, dropping in favor of default",
		slog.String("field", field), slog.Any("value", value))
}
