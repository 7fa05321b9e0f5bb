// Package parser implements the Parser Capability boundary from spec.md
// §4.2: a pure, deterministic function from (language tag, bytes) to a set
// of semantic chunk drafts, dispatched through an explicit per-language
// registry rather than duck typing or reflection.
package parser

import "fmt"

// Kind identifies the semantic category of a chunk span.
type Kind string

const (
	KindFunction  Kind = "function"
	KindClass     Kind = "class"
	KindMethod    Kind = "method"
	KindClosure   Kind = "closure"
	KindTrait     Kind = "trait"
	KindInterface Kind = "interface"
	KindEnum      Kind = "enum"
	KindStruct    Kind = "struct"
	KindHeader    Kind = "header"
	KindCodeBlock Kind = "code-block"
	KindScript    Kind = "script"
)

// Draft is one extracted chunk before it is assigned a stable identity.
type Draft struct {
	Kind      Kind
	Symbol    string
	StartLine int // 1-indexed, inclusive
	EndLine   int // 1-indexed, inclusive
	Code      []byte
}

// SoftError is a recovered parse error: the extractor kept going and
// produced whatever chunks it could, but flags this span as suspect.
type SoftError struct {
	StartLine int
	EndLine   int
	Message   string
}

// UnsupportedLanguageError is returned when no Extractor is registered for
// a language tag.
type UnsupportedLanguageError struct {
	Language string
}

func (e *UnsupportedLanguageError) Error() string {
	return fmt.Sprintf("unsupported language: %s", e.Language)
}

// ParseError is a hard failure: the extractor could not recover any
// chunks from the input.
type ParseError struct {
	Language  string
	StartLine int
	EndLine   int
	Message   string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error in %s at lines %d-%d: %s", e.Language, e.StartLine, e.EndLine, e.Message)
}

// Extractor is the contract every language-specific chunker implements.
// Implementations must be pure and deterministic for a given input: the
// same bytes always yield the same drafts in the same order.
type Extractor interface {
	// Parse extracts chunk drafts from source bytes. It may return both a
	// non-empty slice of drafts and a non-nil error if it recovered
	// partial results before hitting a hard failure; callers should still
	// persist the partial drafts in that case.
	Parse(source []byte) ([]Draft, []SoftError, error)
}
