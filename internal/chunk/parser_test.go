package chunk

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParser_Parse_Go(t *testing.T) {
	p := NewParser()
	defer p.Close()

	tree, err := p.Parse(context.Background(), []byte("package main\n\nfunc main() {}\n"), "go")
	require.NoError(t, err)
	require.NotNil(t, tree.Root)
	assert.Equal(t, "go", tree.Language)

	funcs := tree.Root.FindAllByType("function_declaration")
	assert.Len(t, funcs, 1)
}

func TestParser_Parse_UnsupportedLanguage(t *testing.T) {
	p := NewParser()
	defer p.Close()

	_, err := p.Parse(context.Background(), []byte("x = 1"), "cobol")
	assert.Error(t, err)
}

func TestNode_GetContent(t *testing.T) {
	p := NewParser()
	defer p.Close()

	source := []byte("package main\n\nfunc Hello() {}\n")
	tree, err := p.Parse(context.Background(), source, "go")
	require.NoError(t, err)

	fn := tree.Root.FindAllByType("function_declaration")
	require.Len(t, fn, 1)
	assert.Contains(t, fn[0].GetContent(source), "func Hello")
}

func TestNode_Walk_VisitsAllNodes(t *testing.T) {
	p := NewParser()
	defer p.Close()

	tree, err := p.Parse(context.Background(), []byte("package main\n\nfunc A() {}\nfunc B() {}\n"), "go")
	require.NoError(t, err)

	var count int
	tree.Root.Walk(func(n *Node) bool {
		count++
		return true
	})
	assert.Greater(t, count, 2)
}

func TestNode_Walk_StopsDescendingOnFalse(t *testing.T) {
	p := NewParser()
	defer p.Close()

	tree, err := p.Parse(context.Background(), []byte("package main\n\nfunc A() { x := 1; _ = x }\n"), "go")
	require.NoError(t, err)

	var sawFuncBody bool
	tree.Root.Walk(func(n *Node) bool {
		if n.Type == "function_declaration" {
			return false
		}
		if n.Type == "short_var_declaration" {
			sawFuncBody = true
		}
		return true
	})
	assert.False(t, sawFuncBody, "walk should not descend into a node once fn returns false")
}
