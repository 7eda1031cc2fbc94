package chunk

import (
	"context"
	"fmt"
	"log/slog"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/codeindex/codeindex/internal/logging"
)

// maxParseNodes bounds how large a tree this parser will hand back to the
// AST chunking strategy. A handful of generated or minified files produce
// ASTs with millions of nodes for a few megabytes of source; walking one of
// those in FindAllByType/Walk costs far more than the line-strategy
// fallback would. Parse treats exceeding this as the same recoverable
// condition as a grammar failure: the caller falls back to the line
// strategy.
const maxParseNodes = 250_000

// Parser wraps tree-sitter for the AST chunking strategy (C3). It owns a
// single underlying sitter.Parser, so callers must not use one Parser
// concurrently from multiple goroutines. Each CodeChunker builds and owns
// exactly one Parser; no pool is kept.
type Parser struct {
	parser   *sitter.Parser
	registry *LanguageRegistry
}

// NewParser creates a new parser with default language registry
func NewParser() *Parser {
	return &Parser{
		parser:   sitter.NewParser(),
		registry: DefaultRegistry(),
	}
}

// NewParserWithRegistry creates a new parser with a custom language registry
func NewParserWithRegistry(registry *LanguageRegistry) *Parser {
	return &Parser{
		parser:   sitter.NewParser(),
		registry: registry,
	}
}

// Parse parses source code into the internal Tree/Node representation the
// AST chunking strategy walks. Returns an error for an unsupported
// language, a tree-sitter failure, or a tree whose node count exceeds
// maxParseNodes; all three are recoverable conditions the caller falls
// back to the line strategy for.
func (p *Parser) Parse(ctx context.Context, source []byte, language string) (*Tree, error) {
	tsLang, ok := p.registry.GetTreeSitterLanguage(language)
	if !ok {
		return nil, fmt.Errorf("unsupported language: %s", language)
	}

	p.parser.SetLanguage(tsLang)

	tsTree, err := p.parser.ParseCtx(ctx, nil, source)
	if err != nil {
		return nil, fmt.Errorf("failed to parse source: %w", err)
	}
	if tsTree == nil {
		return nil, fmt.Errorf("failed to parse source: nil tree")
	}

	nodeCount := 0
	root := convertNode(tsTree.RootNode(), &nodeCount)
	if nodeCount > maxParseNodes {
		return nil, fmt.Errorf("AST for %s exceeds %d nodes (%d), too large for structural chunking", language, maxParseNodes, nodeCount)
	}

	if root.HasError {
		logging.For(slog.Default(), logging.ComponentChunker).Debug("parsed tree contains syntax errors, chunking best-effort",
			slog.String("language", language))
	}

	return &Tree{
		Root:     root,
		Source:   source,
		Language: language,
	}, nil
}

// Close releases parser resources
func (p *Parser) Close() {
	if p.parser != nil {
		p.parser.Close()
	}
}

// convertNode converts a tree-sitter node to our Node type, tallying every
// node visited into count so Parse can enforce maxParseNodes without a
// separate tree walk.
func convertNode(tsNode *sitter.Node, count *int) *Node {
	if tsNode == nil {
		return nil
	}
	*count++

	node := &Node{
		Type:      tsNode.Type(),
		StartByte: tsNode.StartByte(),
		EndByte:   tsNode.EndByte(),
		StartPoint: Point{
			Row:    tsNode.StartPoint().Row,
			Column: tsNode.StartPoint().Column,
		},
		EndPoint: Point{
			Row:    tsNode.EndPoint().Row,
			Column: tsNode.EndPoint().Column,
		},
		HasError: tsNode.HasError(),
		Children: make([]*Node, 0, int(tsNode.ChildCount())),
	}

	for i := uint32(0); i < tsNode.ChildCount(); i++ {
		child := tsNode.Child(int(i))
		if child != nil {
			childNode := convertNode(child, count)
			node.Children = append(node.Children, childNode)
			if childNode.HasError {
				node.HasError = true
			}
		}
	}

	return node
}

// GetContent returns the source content for a node
func (n *Node) GetContent(source []byte) string {
	if n.StartByte >= n.EndByte || int(n.EndByte) > len(source) {
		return ""
	}
	return string(source[n.StartByte:n.EndByte])
}

// FindChildByType finds the first child with the given type
func (n *Node) FindChildByType(nodeType string) *Node {
	for _, child := range n.Children {
		if child.Type == nodeType {
			return child
		}
	}
	return nil
}

// FindChildrenByType finds all children with the given type (non-recursive)
func (n *Node) FindChildrenByType(nodeType string) []*Node {
	var result []*Node
	for _, child := range n.Children {
		if child.Type == nodeType {
			result = append(result, child)
		}
	}
	return result
}

// FindAllByType recursively finds all nodes with the given type
func (n *Node) FindAllByType(nodeType string) []*Node {
	var result []*Node

	if n.Type == nodeType {
		result = append(result, n)
	}

	for _, child := range n.Children {
		result = append(result, child.FindAllByType(nodeType)...)
	}

	return result
}

// Walk traverses the tree depth-first and calls fn for each node
func (n *Node) Walk(fn func(*Node) bool) {
	if !fn(n) {
		return
	}
	for _, child := range n.Children {
		child.Walk(fn)
	}
}
