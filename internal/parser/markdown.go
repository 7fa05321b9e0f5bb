package parser

import (
	"bufio"
	"bytes"
	"strings"
)

// markdownExtractor splits a Markdown document on ATX (#) headings rather
// than walking a tree-sitter grammar — SPEC_FULL.md §4.2 treats prose
// documents as structurally simpler than source code and doesn't require a
// parser dependency for them.
type markdownExtractor struct{}

func newMarkdownExtractor() *markdownExtractor {
	return &markdownExtractor{}
}

func (markdownExtractor) Parse(source []byte) ([]Draft, []SoftError, error) {
	lines := strings.Split(string(source), "\n")

	type section struct {
		heading   string
		startLine int
	}

	var drafts []Draft
	var current *section
	var buf []string

	flush := func(endLine int) {
		if current == nil {
			return
		}
		drafts = append(drafts, Draft{
			Kind:      KindHeader,
			Symbol:    current.heading,
			StartLine: current.startLine,
			EndLine:   endLine,
			Code:      []byte(strings.Join(buf, "\n")),
		})
		buf = nil
	}

	scanner := bufio.NewScanner(bytes.NewReader(source))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if heading, ok := atxHeading(line); ok {
			flush(lineNo - 1)
			current = &section{heading: heading, startLine: lineNo}
			buf = []string{line}
			continue
		}
		if current == nil {
			current = &section{heading: "", startLine: lineNo}
		}
		buf = append(buf, line)
	}
	flush(len(lines))

	return drafts, nil, nil
}

func atxHeading(line string) (string, bool) {
	trimmed := strings.TrimLeft(line, " ")
	if !strings.HasPrefix(trimmed, "#") {
		return "", false
	}
	i := 0
	for i < len(trimmed) && trimmed[i] == '#' {
		i++
	}
	if i > 6 {
		return "", false
	}
	rest := trimmed[i:]
	if rest != "" && rest[0] != ' ' && rest[0] != '\t' {
		return "", false
	}
	return strings.TrimSpace(rest), true
}
