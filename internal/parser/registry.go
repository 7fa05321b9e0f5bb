package parser

import (
	"bufio"
	"bytes"
	"path/filepath"
	"strings"
	"sync"
)

// extensionTable maps a file extension (including the leading dot) to a
// language tag. Per spec.md §9's resolved Open Question, language
// resolution is by extension, with a shebang fallback only for
// extensionless files; file content is not sniffed for ambiguous extensions.
var extensionTable = map[string]string{
	".go":        "go",
	".py":        "python",
	".ts":        "typescript",
	".tsx":       "typescript",
	".rs":        "rust",
	".java":      "java",
	".rb":        "ruby",
	".c":         "c",
	".h":         "c",
	".php":       "php",
	".md":        "markdown",
	".markdown":  "markdown",
}

// shebangTable maps an interpreter name found on a shebang line to a
// language tag, used only when the path has no extension. A "#!/usr/bin/env
// NAME" line resolves by NAME.
var shebangTable = map[string]string{
	"python":  "python",
	"python3": "python",
	"ruby":    "ruby",
}

// ResolveLanguage returns the language tag for path, consulting its
// extension first and falling back to a shebang line for extensionless
// scripts. The empty string means "unknown extension, silently ignored".
func ResolveLanguage(path string, firstLine []byte) string {
	ext := strings.ToLower(filepath.Ext(path))
	if lang, ok := extensionTable[ext]; ok {
		return lang
	}
	if ext == "" {
		if lang, ok := languageFromShebang(firstLine); ok {
			return lang
		}
	}
	return ""
}

func languageFromShebang(firstLine []byte) (string, bool) {
	scanner := bufio.NewScanner(bytes.NewReader(firstLine))
	if !scanner.Scan() {
		return "", false
	}
	line := strings.TrimSpace(scanner.Text())
	if !strings.HasPrefix(line, "#!") {
		return "", false
	}
	fields := strings.Fields(strings.TrimPrefix(line, "#!"))
	if len(fields) == 0 {
		return "", false
	}
	interpreter := filepath.Base(fields[0])
	if interpreter == "env" && len(fields) > 1 {
		interpreter = filepath.Base(fields[1])
	}
	lang, ok := shebangTable[interpreter]
	return lang, ok
}

// Registry dispatches a language tag to its Extractor via a single table
// lookup — never attribute probing or runtime registration from plugin
// discovery.
type Registry struct {
	mu         sync.RWMutex
	extractors map[string]Extractor
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{extractors: make(map[string]Extractor)}
}

// Register associates a language tag with its Extractor.
func (r *Registry) Register(language string, e Extractor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.extractors[language] = e
}

// Get returns the Extractor for a language tag, if any.
func (r *Registry) Get(language string) (Extractor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.extractors[language]
	return e, ok
}

// Parse resolves the extractor for language and runs it, converting a
// missing extractor into UnsupportedLanguageError.
func (r *Registry) Parse(language string, source []byte) ([]Draft, []SoftError, error) {
	e, ok := r.Get(language)
	if !ok {
		return nil, nil, &UnsupportedLanguageError{Language: language}
	}
	return e.Parse(source)
}

// NewDefaultRegistry builds a registry with every language this module
// supports out of the box.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	for lang, spec := range defaultLanguageSpecs() {
		r.Register(lang, newTreeSitterExtractor(lang, spec))
	}
	r.Register("markdown", newMarkdownExtractor())
	return r
}
