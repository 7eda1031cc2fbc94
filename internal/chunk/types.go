// Package chunk implements the Structural Chunker (C3): AST-aware
// segmentation of source files into semantically meaningful code units, with
// a size-bounded splitting pass and a line-based fallback for files the AST
// strategy can't or shouldn't handle.
package chunk

import "context"

// Chunking bounds.
const (
	// DefaultMaxLines is the maximum number of lines a single chunk may span
	// before it is subdivided.
	DefaultMaxLines = 100

	// DefaultMinLines is the minimum size of a subdivided part; smaller
	// trailing parts are merged into the preceding one.
	DefaultMinLines = 3

	// DefaultOverlap is the number of overlapping lines between consecutive
	// windows in the line-strategy fallback.
	DefaultOverlap = 20
)

// SymbolKind tags the structural role a chunk's content plays, per the data
// model's closed enum. The empty value means "no symbol" (e.g. a line-window
// chunk from the fallback strategy).
type SymbolKind string

const (
	SymbolFunction  SymbolKind = "function"
	SymbolMethod    SymbolKind = "method"
	SymbolClass     SymbolKind = "class"
	SymbolInterface SymbolKind = "interface"
	SymbolType      SymbolKind = "type"
	SymbolVariable  SymbolKind = "variable"
	SymbolImport    SymbolKind = "import"
	SymbolOther     SymbolKind = "other"
)

// Chunk is an immutable record of a contiguous region of a source file, the
// unit of embedding and retrieval.
type Chunk struct {
	// ID is "{filepath}:{startLine}-{endLine}[:{symbolName}]".
	ID string

	// FilePath is POSIX-style, relative to the project root.
	FilePath string

	// Content is UTF-8 and never empty after trimming.
	Content string

	// StartLine, EndLine are 1-indexed and inclusive; StartLine <= EndLine.
	StartLine int
	EndLine   int

	// Language is the canonical lowercase language token (see CanonicalLanguage).
	Language string

	// SymbolKind is optional; the zero value means untagged.
	SymbolKind SymbolKind

	// SymbolName is optional; qualified as "Class.method" when nested.
	SymbolName string

	// Embedding is attached by the orchestrator after chunking; nil until
	// then. Its length equals the configured backend's dimensionality for
	// every chunk in a given index.
	Embedding []float32
}

// HasSymbol reports whether the chunk carries a non-empty symbol kind.
func (c *Chunk) HasSymbol() bool { return c.SymbolKind != "" }

// FileInput is the input to a Chunker.
type FileInput struct {
	// Path is relative to the project root, POSIX-style.
	Path string
	// Content is the raw file bytes.
	Content []byte
	// Language is the canonical language token for this file.
	Language string
}

// Chunker splits a file into an ordered, startLine-sorted sequence of chunks.
// Implementations must treat an empty file as producing zero chunks and
// never return a chunk whose trimmed content is empty.
type Chunker interface {
	Chunk(ctx context.Context, file *FileInput) ([]*Chunk, error)

	// SupportedExtensions reports which file extensions this chunker's AST
	// strategy covers. Extensions outside this set always use the line
	// strategy fallback.
	SupportedExtensions() []string
}

// Tree is a parsed AST, rooted at Root, with the full source retained for
// byte-range extraction.
type Tree struct {
	Root     *Node
	Source   []byte
	Language string
}

// Node is a single AST node, keeping only what the chunker needs: its type
// tag, byte/line span, and children.
type Node struct {
	Type       string
	StartByte  uint32
	EndByte    uint32
	StartPoint Point
	EndPoint   Point
	Children   []*Node
	HasError   bool
}

// Point is a 0-indexed row/column position in the source.
type Point struct {
	Row    uint32
	Column uint32
}

// LanguageConfig lists, for one AST-supported language, the node kinds that
// represent each structural role the chunker recognizes.
type LanguageConfig struct {
	Name       string
	Extensions []string

	FunctionTypes  []string
	MethodTypes    []string
	ClassTypes     []string
	InterfaceTypes []string
	TypeDefTypes   []string
	VariableTypes  []string
	ImportTypes    []string

	// NameField is the tree-sitter field name carrying a declaration's
	// identifier, where the grammar exposes one uniformly.
	NameField string
}
