package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test Plan for the tree-sitter-backed extractors:
// - Go source yields a top-level function and a method with correct symbols
// - Python source yields a top-level class and a top-level function, not
//   the methods nested inside the class
// - A syntactically broken source still yields whatever chunks recover,
//   plus at least one SoftError

func TestGoExtractor_FunctionsAndMethods(t *testing.T) {
	t.Parallel()
	src := []byte(`package sample

func Add(a, b int) int {
	return a + b
}

type Greeter struct{}

func (g Greeter) Greet() string {
	return "hi"
}
`)
	registry := NewDefaultRegistry()
	drafts, softErrors, err := registry.Parse("go", src)
	require.NoError(t, err)
	assert.Empty(t, softErrors)

	var symbols []string
	for _, d := range drafts {
		symbols = append(symbols, d.Symbol)
	}
	assert.Contains(t, symbols, "Add")
	assert.Contains(t, symbols, "Greet")
}

func TestPythonExtractor_TopLevelOnly(t *testing.T) {
	t.Parallel()
	src := []byte(`class Repository:
    def save(self, item):
        return item

def standalone():
    return 1
`)
	registry := NewDefaultRegistry()
	drafts, softErrors, err := registry.Parse("python", src)
	require.NoError(t, err)
	assert.Empty(t, softErrors)

	var classes, functions int
	for _, d := range drafts {
		switch d.Kind {
		case KindClass:
			classes++
			assert.Equal(t, "Repository", d.Symbol)
		case KindFunction:
			functions++
			assert.Equal(t, "standalone", d.Symbol)
		}
	}
	assert.Equal(t, 1, classes)
	assert.Equal(t, 1, functions)
}

func TestGoExtractor_MalformedSourceRecoversPartialChunks(t *testing.T) {
	t.Parallel()
	src := []byte(`package sample

func Broken( {
	return
}

func Fine() int {
	return 1
}
`)
	registry := NewDefaultRegistry()
	drafts, softErrors, err := registry.Parse("go", src)
	// tree-sitter is error-tolerant: a well-formed sibling still parses even
	// when another top-level declaration is broken.
	require.NoError(t, err)
	assert.NotEmpty(t, softErrors)

	var symbols []string
	for _, d := range drafts {
		symbols = append(symbols, d.Symbol)
	}
	assert.Contains(t, symbols, "Fine")
}
