package chunk

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/codeindex/codeindex/internal/logging"
)

// grammarNameForExt maps a file extension to the internal tree-sitter
// grammar variant name (which, unlike the canonical language token, keeps
// tsx/jsx distinct from their base grammar so the right parser is selected).
// Extensions with no entry here have no AST strategy and always fall back
// to the line strategy.
func grammarNameForExt(ext string) string {
	switch strings.ToLower(ext) {
	case ".go":
		return "go"
	case ".ts":
		return "typescript"
	case ".tsx":
		return "tsx"
	case ".js", ".mjs":
		return "javascript"
	case ".jsx":
		return "jsx"
	case ".py":
		return "python"
	default:
		return ""
	}
}

// CodeChunker implements the Structural Chunker's AST strategy (tree-sitter
// backed) with a sliding-window line-strategy fallback for languages with no
// wired grammar or files that fail to parse.
type CodeChunker struct {
	parser    *Parser
	extractor *SymbolExtractor
	registry  *LanguageRegistry

	maxLines int
	minLines int
	overlap  int
}

// CodeChunkerOptions configures chunk size bounds (C10's chunking section).
type CodeChunkerOptions struct {
	MaxLines int
	MinLines int
	Overlap  int
}

// NewCodeChunker creates a chunker using the default bounds.
func NewCodeChunker() *CodeChunker {
	return NewCodeChunkerWithOptions(CodeChunkerOptions{})
}

// NewCodeChunkerWithOptions creates a chunker with custom size bounds; a
// non-positive MaxLines or MinLines and a negative Overlap fall back to the
// package defaults (a zero Overlap is kept as zero).
func NewCodeChunkerWithOptions(opts CodeChunkerOptions) *CodeChunker {
	if opts.MaxLines <= 0 {
		opts.MaxLines = DefaultMaxLines
	}
	if opts.MinLines <= 0 {
		opts.MinLines = DefaultMinLines
	}
	if opts.Overlap < 0 {
		opts.Overlap = DefaultOverlap
	}

	registry := DefaultRegistry()
	return &CodeChunker{
		parser:    NewParserWithRegistry(registry),
		extractor: NewSymbolExtractorWithRegistry(registry),
		registry:  registry,
		maxLines:  opts.MaxLines,
		minLines:  opts.MinLines,
		overlap:   opts.Overlap,
	}
}

// Close releases parser resources.
func (c *CodeChunker) Close() {
	if c.parser != nil {
		c.parser.Close()
	}
}

// SupportedExtensions returns the extensions handled by the AST strategy.
func (c *CodeChunker) SupportedExtensions() []string {
	return []string{".go", ".ts", ".tsx", ".js", ".jsx", ".mjs", ".py"}
}

// Chunk splits a file into chunks, sorted by startLine, using the AST
// strategy when the extension is supported and parsing succeeds, otherwise
// the line strategy. An empty file always yields zero chunks.
func (c *CodeChunker) Chunk(ctx context.Context, file *FileInput) ([]*Chunk, error) {
	if len(strings.TrimSpace(string(file.Content))) == 0 {
		return nil, nil
	}

	ext := filepath.Ext(file.Path)
	language := CanonicalLanguage(ext)
	grammar := grammarNameForExt(ext)

	if grammar == "" {
		return c.chunkByLines(file, language), nil
	}

	tree, err := c.parser.Parse(ctx, file.Content, grammar)
	if err != nil {
		logging.For(slog.Default(), logging.ComponentChunker).Debug("chunker_parse_failed",
			slog.String("path", file.Path),
			slog.String("error", err.Error()))
		return c.chunkByLines(file, language), nil
	}

	config, _ := c.registry.GetByName(grammar)
	chunks := c.chunkTree(tree, file, config, language, grammar)
	if len(chunks) == 0 {
		return nil, nil
	}

	sortChunksByStart(chunks)
	return chunks, nil
}

// chunkTree implements the AST strategy over a parsed tree.
func (c *CodeChunker) chunkTree(tree *Tree, file *FileInput, config *LanguageConfig, language, grammar string) []*Chunk {
	topLevel := c.topLevelNodes(tree.Root, tree.Source, config, grammar)

	var imports []*Node
	var rest []*topLevelNode

	for _, n := range topLevel {
		if isImportNode(n.node, config) {
			imports = append(imports, n.node)
			continue
		}
		rest = append(rest, n)
	}

	var chunks []*Chunk

	if len(imports) > 0 {
		chunks = append(chunks, c.coalesceImports(imports, tree, file, language))
	}

	for _, tn := range rest {
		chunks = append(chunks, c.chunksForNode(tn, tree, file, config, language, grammar)...)
	}

	// Final size-bound pass: subdivide anything still too large.
	var bounded []*Chunk
	for _, ch := range chunks {
		bounded = append(bounded, c.enforceMaxLines(ch, file, language)...)
	}

	return bounded
}

// topLevelNode pairs a direct (possibly unwrapped) top-level AST node with
// its classified symbol kind and extracted name.
type topLevelNode struct {
	node *Node
	kind SymbolKind
	name string
}

// topLevelNodes walks the direct children of root, unwrapping single-level
// export wrappers, and classifies each as a symbol-producing node.
func (c *CodeChunker) topLevelNodes(root *Node, source []byte, config *LanguageConfig, grammar string) []*topLevelNode {
	var out []*topLevelNode

	for _, child := range root.Children {
		n := unwrapExport(child)

		if isImportNode(n, config) {
			out = append(out, &topLevelNode{node: n, kind: SymbolImport})
			continue
		}

		// const/let bindings to an arrow function or function expression are
		// reported as functions, not plain variables.
		if n.Type == "lexical_declaration" || n.Type == "variable_declaration" {
			if sym := c.extractor.extractSpecialSymbol(n, source, grammar); sym != nil {
				out = append(out, &topLevelNode{node: n, kind: SymbolFunction, name: sym.Name})
				continue
			}
		}

		kind, ok := classifyNode(n, config)
		if ok {
			name := c.extractor.extractName(n, source, config, grammar)
			out = append(out, &topLevelNode{node: n, kind: kind, name: name})
			continue
		}
	}

	return out
}

func isImportNode(n *Node, config *LanguageConfig) bool {
	for _, t := range config.ImportTypes {
		if n.Type == t {
			return true
		}
	}
	return false
}

// unwrapExport descends one level into an export wrapper (TS/JS) to reach
// the declaration it wraps, e.g. `export class Foo {}`.
func unwrapExport(n *Node) *Node {
	if !strings.HasPrefix(n.Type, "export_") {
		return n
	}
	for _, child := range n.Children {
		switch child.Type {
		case "class_declaration", "function_declaration", "interface_declaration",
			"type_alias_declaration", "lexical_declaration", "variable_declaration":
			return child
		}
	}
	return n
}

// coalesceImports merges a run of import nodes into a single leading chunk.
func (c *CodeChunker) coalesceImports(imports []*Node, tree *Tree, file *FileInput, language string) *Chunk {
	first, last := imports[0], imports[0]
	for _, n := range imports {
		if n.StartByte < first.StartByte {
			first = n
		}
		if n.EndByte > last.EndByte {
			last = n
		}
	}

	startLine := int(first.StartPoint.Row) + 1
	endLine := int(last.EndPoint.Row) + 1
	content := string(tree.Source[first.StartByte:last.EndByte])

	return &Chunk{
		ID:         chunkID(file.Path, startLine, endLine, ""),
		FilePath:   file.Path,
		Content:    content,
		StartLine:  startLine,
		EndLine:    endLine,
		Language:   language,
		SymbolKind: SymbolImport,
	}
}

// chunksForNode produces the chunk(s) for one top-level symbol node,
// applying the class header+methods split and the type descend rule where
// the node's span exceeds maxLines.
func (c *CodeChunker) chunksForNode(tn *topLevelNode, tree *Tree, file *FileInput, config *LanguageConfig, language, grammar string) []*Chunk {
	node := tn.node
	startLine := int(node.StartPoint.Row) + 1
	endLine := int(node.EndPoint.Row) + 1
	lines := endLine - startLine + 1

	if lines <= c.maxLines {
		content := string(tree.Source[node.StartByte:node.EndByte])
		if strings.TrimSpace(content) == "" {
			return nil
		}
		return []*Chunk{{
			ID:         chunkID(file.Path, startLine, endLine, tn.name),
			FilePath:   file.Path,
			Content:    content,
			StartLine:  startLine,
			EndLine:    endLine,
			Language:   language,
			SymbolKind: tn.kind,
			SymbolName: tn.name,
		}}
	}

	if tn.kind == SymbolClass {
		if chunks := c.splitClassByMethods(tn, tree, file, config, language, grammar); len(chunks) > 0 {
			return chunks
		}
	}

	if tn.kind == SymbolType {
		if chunks := c.descendTypeNode(tn, tree, file, config, language, grammar); len(chunks) > 0 {
			return chunks
		}
	}

	// No structural split applies (or found nothing inside); the uniform
	// size-bound pass in chunkTree will subdivide this by lines.
	content := string(tree.Source[node.StartByte:node.EndByte])
	return []*Chunk{{
		ID:         chunkID(file.Path, startLine, endLine, tn.name),
		FilePath:   file.Path,
		Content:    content,
		StartLine:  startLine,
		EndLine:    endLine,
		Language:   language,
		SymbolKind: tn.kind,
		SymbolName: tn.name,
	}}
}

// splitClassByMethods splits an oversized class into a header chunk (the
// class declaration down to its first method) followed by one chunk per
// method, named "Class.method".
func (c *CodeChunker) splitClassByMethods(tn *topLevelNode, tree *Tree, file *FileInput, config *LanguageConfig, language, grammar string) []*Chunk {
	body := findClassBody(tn.node)
	if body == nil {
		return nil
	}

	var methods []*Node
	for _, child := range body.Children {
		for _, t := range config.MethodTypes {
			if child.Type == t {
				methods = append(methods, child)
				break
			}
		}
	}
	if len(methods) == 0 {
		return nil
	}

	classStart := int(tn.node.StartPoint.Row) + 1
	headerEndByte := methods[0].StartByte
	headerEndLine := int(methods[0].StartPoint.Row)
	if headerEndLine < int(tn.node.StartPoint.Row)+1 {
		headerEndLine = int(tn.node.StartPoint.Row) + 1
	}

	chunks := []*Chunk{{
		ID:         chunkID(file.Path, classStart, headerEndLine, tn.name),
		FilePath:   file.Path,
		Content:    string(tree.Source[tn.node.StartByte:headerEndByte]),
		StartLine:  classStart,
		EndLine:    headerEndLine,
		Language:   language,
		SymbolKind: SymbolClass,
		SymbolName: tn.name,
	}}

	for _, m := range methods {
		mName := c.extractor.extractName(m, tree.Source, config, grammar)
		qualified := mName
		if tn.name != "" && mName != "" {
			qualified = tn.name + "." + mName
		}
		mStart := int(m.StartPoint.Row) + 1
		mEnd := int(m.EndPoint.Row) + 1
		chunks = append(chunks, &Chunk{
			ID:         chunkID(file.Path, mStart, mEnd, qualified),
			FilePath:   file.Path,
			Content:    string(tree.Source[m.StartByte:m.EndByte]),
			StartLine:  mStart,
			EndLine:    mEnd,
			Language:   language,
			SymbolKind: SymbolMethod,
			SymbolName: qualified,
		})
	}

	return chunks
}

// findClassBody locates the node's body container (class_body / block),
// which in turn holds method children.
func findClassBody(n *Node) *Node {
	for _, child := range n.Children {
		switch child.Type {
		case "class_body", "block":
			return child
		}
	}
	return nil
}

// descendTypeNode emits one chunk per function/method-shaped child of an
// oversized type declaration (e.g. impl blocks in languages that have them).
func (c *CodeChunker) descendTypeNode(tn *topLevelNode, tree *Tree, file *FileInput, config *LanguageConfig, language, grammar string) []*Chunk {
	var children []*Node
	tn.node.Walk(func(n *Node) bool {
		if n == tn.node {
			return true
		}
		for _, t := range config.MethodTypes {
			if n.Type == t {
				children = append(children, n)
				return false
			}
		}
		for _, t := range config.FunctionTypes {
			if n.Type == t {
				children = append(children, n)
				return false
			}
		}
		return true
	})
	if len(children) == 0 {
		return nil
	}

	var chunks []*Chunk
	for _, n := range children {
		name := c.extractor.extractName(n, tree.Source, config, grammar)
		qualified := name
		if tn.name != "" && name != "" {
			qualified = tn.name + "." + name
		}
		start := int(n.StartPoint.Row) + 1
		end := int(n.EndPoint.Row) + 1
		chunks = append(chunks, &Chunk{
			ID:         chunkID(file.Path, start, end, qualified),
			FilePath:   file.Path,
			Content:    string(tree.Source[n.StartByte:n.EndByte]),
			StartLine:  start,
			EndLine:    end,
			Language:   language,
			SymbolKind: SymbolMethod,
			SymbolName: qualified,
		})
	}
	return chunks
}

// enforceMaxLines subdivides ch into roughly equal parts of size
// ceil(total/ceil(total/maxLines)) when it still exceeds maxLines, merging
// any trailing part smaller than minLines into the preceding one.
func (c *CodeChunker) enforceMaxLines(ch *Chunk, file *FileInput, language string) []*Chunk {
	total := ch.EndLine - ch.StartLine + 1
	if total <= c.maxLines {
		return []*Chunk{ch}
	}

	numParts := (total + c.maxLines - 1) / c.maxLines
	partSize := (total + numParts - 1) / numParts

	lines := strings.Split(ch.Content, "\n")
	// Guard against content/line-count drift (CRLF, trailing newline, etc).
	if len(lines) < total {
		total = len(lines)
	}

	type part struct{ start, end int } // 0-indexed into lines
	var parts []part
	for i := 0; i < total; i += partSize {
		end := i + partSize
		if end > total {
			end = total
		}
		parts = append(parts, part{start: i, end: end})
	}

	// Merge a too-small trailing part into its predecessor.
	if len(parts) > 1 {
		last := parts[len(parts)-1]
		if last.end-last.start < c.minLines {
			parts = parts[:len(parts)-1]
			parts[len(parts)-1].end = last.end
		}
	}

	var out []*Chunk
	for i, p := range parts {
		partLines := lines[p.start:p.end]
		content := strings.Join(partLines, "\n")
		if strings.TrimSpace(content) == "" {
			continue
		}
		startLine := ch.StartLine + p.start
		endLine := ch.StartLine + p.end - 1
		name := ch.SymbolName
		if len(parts) > 1 {
			name = fmt.Sprintf("%s#%d", ch.SymbolName, i+1)
		}
		out = append(out, &Chunk{
			ID:         chunkID(file.Path, startLine, endLine, name),
			FilePath:   file.Path,
			Content:    content,
			StartLine:  startLine,
			EndLine:    endLine,
			Language:   language,
			SymbolKind: ch.SymbolKind,
			SymbolName: name,
		})
	}
	if len(out) == 0 {
		return []*Chunk{ch}
	}
	return out
}

// chunkByLines is the line-strategy fallback: a sliding window of maxLines
// with overlap lines of overlap, skipping windows whose trimmed content is
// empty.
func (c *CodeChunker) chunkByLines(file *FileInput, language string) []*Chunk {
	content := string(file.Content)
	lines := strings.Split(content, "\n")

	var chunks []*Chunk
	step := c.maxLines - c.overlap
	if step <= 0 {
		step = c.maxLines
	}

	for i := 0; i < len(lines); i += step {
		end := i + c.maxLines
		if end > len(lines) {
			end = len(lines)
		}

		windowContent := strings.Join(lines[i:end], "\n")
		if strings.TrimSpace(windowContent) != "" {
			startLine := i + 1
			endLine := end
			chunks = append(chunks, &Chunk{
				ID:        chunkID(file.Path, startLine, endLine, ""),
				FilePath:  file.Path,
				Content:   windowContent,
				StartLine: startLine,
				EndLine:   endLine,
				Language:  language,
			})
		}

		if end >= len(lines) {
			break
		}
	}

	return chunks
}

// chunkID builds a chunk's ID per the data model: "{filepath}:{start}-{end}"
// optionally suffixed with ":{symbolName}".
func chunkID(filePath string, startLine, endLine int, symbolName string) string {
	id := fmt.Sprintf("%s:%d-%d", filePath, startLine, endLine)
	if symbolName != "" {
		id += ":" + symbolName
	}
	return id
}

func sortChunksByStart(chunks []*Chunk) {
	for i := 1; i < len(chunks); i++ {
		for j := i; j > 0 && chunks[j-1].StartLine > chunks[j].StartLine; j-- {
			chunks[j-1], chunks[j] = chunks[j], chunks[j-1]
		}
	}
}
