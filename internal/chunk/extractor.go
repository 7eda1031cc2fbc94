package chunk

import (
	"strings"
)

// Symbol is an intermediate representation of a named declaration found
// while walking a parsed tree, used internally to derive chunk boundaries
// and names before a Chunk is assembled.
type Symbol struct {
	Name       string
	Type       SymbolKind
	StartLine  int
	EndLine    int
	Signature  string
	DocComment string
}

// SymbolExtractor extracts symbols from parsed AST
type SymbolExtractor struct {
	registry *LanguageRegistry
}

// NewSymbolExtractor creates a new symbol extractor
func NewSymbolExtractor() *SymbolExtractor {
	return &SymbolExtractor{
		registry: DefaultRegistry(),
	}
}

// NewSymbolExtractorWithRegistry creates a new symbol extractor with custom registry
func NewSymbolExtractorWithRegistry(registry *LanguageRegistry) *SymbolExtractor {
	return &SymbolExtractor{
		registry: registry,
	}
}

// Extract extracts symbols from the parsed tree
func (e *SymbolExtractor) Extract(tree *Tree, source []byte) []*Symbol {
	// Empty slice, not nil, so callers can range and append uniformly.
	if tree == nil || tree.Root == nil {
		return []*Symbol{}
	}

	config, ok := e.registry.GetByName(tree.Language)
	if !ok {
		return []*Symbol{}
	}

	var symbols []*Symbol

	tree.Root.Walk(func(n *Node) bool {
		symbol := e.extractSymbolFromNode(n, source, config, tree.Language)
		if symbol != nil {
			symbols = append(symbols, symbol)
		}
		return true // continue walking
	})

	return symbols
}

// symbolKindRoles pairs each symbol kind with the LanguageConfig node-type
// list that identifies it, checked in this order so a node matching more
// than one role (rare, but grammars aren't always disjoint) resolves to the
// first and most specific one.
func symbolKindRoles(config *LanguageConfig) []struct {
	kind  SymbolKind
	types []string
} {
	return []struct {
		kind  SymbolKind
		types []string
	}{
		{SymbolFunction, config.FunctionTypes},
		{SymbolMethod, config.MethodTypes},
		{SymbolClass, config.ClassTypes},
		{SymbolInterface, config.InterfaceTypes},
		{SymbolType, config.TypeDefTypes},
		{SymbolVariable, config.VariableTypes},
	}
}

// classifyNode reports the symbolKind a node represents, per the language's
// node-type table, or ("", false) if the node is not one of the
// role-bearing types the caller should special-case separately (imports are
// handled by the chunker directly rather than through Symbol extraction).
func classifyNode(n *Node, config *LanguageConfig) (SymbolKind, bool) {
	for _, role := range symbolKindRoles(config) {
		for _, nodeType := range role.types {
			if n.Type == nodeType {
				return role.kind, true
			}
		}
	}
	return "", false
}

// extractSymbolFromNode extracts a symbol from a single node if it matches
func (e *SymbolExtractor) extractSymbolFromNode(n *Node, source []byte, config *LanguageConfig, language string) *Symbol {
	// Check for arrow functions and variable declarations with functions
	// first, so a const holding a function is not classified as a variable.
	if symbol := e.extractSpecialSymbol(n, source, language); symbol != nil {
		return symbol
	}
	symbolType, found := classifyNode(n, config)
	if !found {
		return nil
	}

	name := e.extractName(n, source, config, language)
	if name == "" {
		return nil
	}

	return &Symbol{
		Name:       name,
		Type:       symbolType,
		StartLine:  int(n.StartPoint.Row) + 1, // Convert to 1-indexed
		EndLine:    int(n.EndPoint.Row) + 1,
		Signature:  e.extractSignature(n, source, symbolType, language),
		DocComment: e.extractDocComment(n, source, language),
	}
}

// extractName extracts the name of a symbol from a node
func (e *SymbolExtractor) extractName(n *Node, source []byte, config *LanguageConfig, language string) string {
	// Look for identifier child
	switch language {
	case "go":
		return e.extractGoName(n, source)
	case "typescript", "tsx":
		return e.extractTypeScriptName(n, source)
	case "javascript", "jsx":
		return e.extractJavaScriptName(n, source)
	case "python":
		return e.extractPythonName(n, source)
	default:
		// Generic fallback: look for first identifier
		for _, child := range n.Children {
			if child.Type == "identifier" {
				return child.GetContent(source)
			}
		}
	}
	return ""
}

func (e *SymbolExtractor) extractGoName(n *Node, source []byte) string {
	switch n.Type {
	case "function_declaration":
		// Function name is in identifier child
		for _, child := range n.Children {
			if child.Type == "identifier" {
				return child.GetContent(source)
			}
		}
	case "method_declaration":
		// Method name is in field_identifier child (not identifier)
		for _, child := range n.Children {
			if child.Type == "field_identifier" {
				return child.GetContent(source)
			}
		}
	case "type_declaration":
		// Look for type_spec
		for _, child := range n.Children {
			if child.Type == "type_spec" {
				for _, grandchild := range child.Children {
					if grandchild.Type == "type_identifier" {
						return grandchild.GetContent(source)
					}
				}
			}
		}
	case "const_declaration":
		// Go const can be: const Name = value OR const ( Name1 = value1; Name2 = value2 )
		// Look for const_spec children, extract first identifier
		for _, child := range n.Children {
			if child.Type == "const_spec" {
				for _, grandchild := range child.Children {
					if grandchild.Type == "identifier" {
						return grandchild.GetContent(source)
					}
				}
			}
		}
	case "var_declaration":
		// Go var can be: var Name Type = value OR var ( Name1 Type1; Name2 Type2 )
		// Look for var_spec children, extract first identifier
		for _, child := range n.Children {
			if child.Type == "var_spec" {
				for _, grandchild := range child.Children {
					if grandchild.Type == "identifier" {
						return grandchild.GetContent(source)
					}
				}
			}
		}
	}
	return ""
}

func (e *SymbolExtractor) extractTypeScriptName(n *Node, source []byte) string {
	// Handle lexical_declaration (const/let) and variable_declaration (var)
	if n.Type == "lexical_declaration" || n.Type == "variable_declaration" {
		// Name is nested inside variable_declarator
		for _, child := range n.Children {
			if child.Type == "variable_declarator" {
				for _, grandchild := range child.Children {
					if grandchild.Type == "identifier" {
						return grandchild.GetContent(source)
					}
				}
			}
		}
	}

	// Look for identifier, type_identifier, or property_identifier (method names)
	for _, child := range n.Children {
		if child.Type == "identifier" || child.Type == "type_identifier" || child.Type == "property_identifier" {
			return child.GetContent(source)
		}
	}
	return ""
}

func (e *SymbolExtractor) extractJavaScriptName(n *Node, source []byte) string {
	// Handle lexical_declaration (const/let) and variable_declaration (var)
	if n.Type == "lexical_declaration" || n.Type == "variable_declaration" {
		// Name is nested inside variable_declarator
		for _, child := range n.Children {
			if child.Type == "variable_declarator" {
				for _, grandchild := range child.Children {
					if grandchild.Type == "identifier" {
						return grandchild.GetContent(source)
					}
				}
			}
		}
	}

	// Look for identifier or property_identifier (method names)
	for _, child := range n.Children {
		if child.Type == "identifier" || child.Type == "property_identifier" {
			return child.GetContent(source)
		}
	}
	return ""
}

func (e *SymbolExtractor) extractPythonName(n *Node, source []byte) string {
	// Look for identifier
	for _, child := range n.Children {
		if child.Type == "identifier" {
			return child.GetContent(source)
		}
	}
	return ""
}

// extractSpecialSymbol handles special cases like arrow functions and const functions
func (e *SymbolExtractor) extractSpecialSymbol(n *Node, source []byte, language string) *Symbol {
	switch language {
	case "typescript", "tsx", "javascript", "jsx":
		// Handle const arrow = () => {} and const func = function() {}
		if n.Type == "lexical_declaration" || n.Type == "variable_declaration" {
			return e.extractJSVariableFunctionSymbol(n, source)
		}
	}
	return nil
}

// extractJSVariableFunctionSymbol extracts symbols from JS/TS variable declarations
// that contain arrow functions or function expressions
func (e *SymbolExtractor) extractJSVariableFunctionSymbol(n *Node, source []byte) *Symbol {
	// Find variable_declarator children
	for _, child := range n.Children {
		if child.Type == "variable_declarator" {
			var name string
			var hasFunction bool

			for _, grandchild := range child.Children {
				if grandchild.Type == "identifier" {
					name = grandchild.GetContent(source)
				}
				if grandchild.Type == "arrow_function" || grandchild.Type == "function" || grandchild.Type == "function_expression" {
					hasFunction = true
				}
			}

			if name != "" && hasFunction {
				// Extract signature for arrow/const functions
				content := n.GetContent(source)
				signature := e.extractFunctionSignature(content, "javascript")

				return &Symbol{
					Name:      name,
					Type:      SymbolFunction,
					StartLine: int(n.StartPoint.Row) + 1,
					EndLine:   int(n.EndPoint.Row) + 1,
					Signature: signature,
				}
			}
		}
	}
	return nil
}

// extractDocComment extracts the doc comment attached to a symbol. For
// brace languages this walks upward over consecutive `//`-prefixed lines
// immediately preceding the declaration (a Go doc comment is frequently
// several lines, not one). Python instead looks for a docstring as the
// first statement inside the symbol's own body, since Python attaches
// documentation after the signature rather than before it.
func (e *SymbolExtractor) extractDocComment(n *Node, source []byte, language string) string {
	if language == "python" {
		return extractPythonDocstring(n, source)
	}
	return strings.Join(extractLeadingLineComments(n, source), "\n")
}

// extractLeadingLineComments collects consecutive `//` comment lines
// directly above n, nearest line first is walked but the result is
// returned in source order (top to bottom).
func extractLeadingLineComments(n *Node, source []byte) []string {
	var lines []string

	lineStart := int(n.StartByte)
	for lineStart > 0 && source[lineStart-1] != '\n' {
		lineStart--
	}

	for lineStart > 1 {
		prevLineEnd := lineStart - 1
		prevLineStart := prevLineEnd - 1
		for prevLineStart > 0 && source[prevLineStart-1] != '\n' {
			prevLineStart--
		}

		prevLine := strings.TrimSpace(string(source[prevLineStart:prevLineEnd]))
		if !strings.HasPrefix(prevLine, "//") {
			break
		}
		lines = append(lines, strings.TrimSpace(strings.TrimPrefix(prevLine, "//")))
		lineStart = prevLineStart
	}

	// lines was collected bottom-up; reverse to restore source order.
	for i, j := 0, len(lines)-1; i < j; i, j = i+1, j-1 {
		lines[i], lines[j] = lines[j], lines[i]
	}
	return lines
}

// extractPythonDocstring returns the symbol's docstring when its body's
// first statement is a bare string literal, per Python convention. Returns
// "" when the node has no block child or the first statement isn't a
// string.
func extractPythonDocstring(n *Node, source []byte) string {
	block := n.FindChildByType("block")
	if block == nil || len(block.Children) == 0 {
		return ""
	}

	first := block.Children[0]
	if first.Type != "expression_statement" || len(first.Children) == 0 {
		return ""
	}

	str := first.Children[0]
	if str.Type != "string" {
		return ""
	}

	content := str.GetContent(source)
	content = strings.Trim(content, "\"'")
	content = strings.TrimPrefix(content, "\"\"")
	content = strings.TrimSuffix(content, "\"\"")
	return strings.TrimSpace(content)
}

// extractSignature extracts the signature (first line) of a function/method/class declaration.
// This helps embedding models understand the symbol's interface without reading the full body.
func (e *SymbolExtractor) extractSignature(n *Node, source []byte, symbolType SymbolKind, language string) string {
	// Get the full content of the node
	content := n.GetContent(source)
	if content == "" {
		return ""
	}

	// For functions/methods, extract up to the opening brace or colon (Python)
	switch symbolType {
	case SymbolFunction, SymbolMethod:
		return e.extractFunctionSignature(content, language)
	case SymbolClass, SymbolInterface, SymbolType:
		return e.extractTypeSignature(content, language)
	}

	return ""
}

// extractFunctionSignature extracts the signature line from a function/method
func (e *SymbolExtractor) extractFunctionSignature(content, language string) string {
	lines := strings.SplitN(content, "\n", 2)
	if len(lines) == 0 {
		return ""
	}

	firstLine := strings.TrimSpace(lines[0])

	switch language {
	case "go":
		// Go: func (r *Receiver) Name(params) ReturnType {
		// Extract up to and including the opening brace
		if idx := strings.Index(firstLine, "{"); idx != -1 {
			return strings.TrimSpace(firstLine[:idx])
		}
		return firstLine

	case "python":
		// Python: def name(params):
		// Keep the full first line including colon
		return firstLine

	case "typescript", "tsx", "javascript", "jsx":
		// JS/TS: function name(params) { or async function name(params): ReturnType {
		// Also: const name = (params) => { or const name = function(params) {
		if idx := strings.Index(firstLine, "{"); idx != -1 {
			return strings.TrimSpace(firstLine[:idx])
		}
		// For arrow functions without braces
		if strings.Contains(firstLine, "=>") && !strings.Contains(firstLine, "{") {
			return firstLine
		}
		return firstLine
	}

	return firstLine
}

// extractTypeSignature extracts the signature from a type/class/interface definition
func (e *SymbolExtractor) extractTypeSignature(content, language string) string {
	lines := strings.SplitN(content, "\n", 2)
	if len(lines) == 0 {
		return ""
	}

	firstLine := strings.TrimSpace(lines[0])

	switch language {
	case "go":
		// Go: type Name struct { or type Name interface {
		if idx := strings.Index(firstLine, "{"); idx != -1 {
			return strings.TrimSpace(firstLine[:idx])
		}
		// For type aliases: type Name = OtherType
		return firstLine

	case "python":
		// Python: class Name(Parent):
		return firstLine

	case "typescript", "tsx":
		// TS: interface Name { or class Name extends Parent {
		if idx := strings.Index(firstLine, "{"); idx != -1 {
			return strings.TrimSpace(firstLine[:idx])
		}
		return firstLine

	case "javascript", "jsx":
		// JS: class Name extends Parent {
		if idx := strings.Index(firstLine, "{"); idx != -1 {
			return strings.TrimSpace(firstLine[:idx])
		}
		return firstLine
	}

	return firstLine
}
