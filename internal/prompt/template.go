// Package prompt derives structure from free-text generation prompts.
package prompt

import (
	"regexp"
	"strings"
)

// bracketed matches the shortest [..] pair on one line. Nested or
// unbalanced brackets are not parsed: "[a [b] c]" yields "a [b".
var bracketed = regexp.MustCompile(`\[(.*?)\]`)

// Template is the ordered list of bracketed instructions of a prompt
type Template []string

// Extract returns the trimmed, non-empty bracketed tokens of text in
// order of appearance
func Extract(text string) Template {
	matches := bracketed.FindAllStringSubmatch(text, -1)
	tokens := make(Template, 0, len(matches))
	for _, m := range matches {
		if tok := strings.TrimSpace(m[1]); tok != "" {
			tokens = append(tokens, tok)
		}
	}
	return tokens
}

// String re-wraps each token in brackets, one per line
func (t Template) String() string {
	var sb strings.Builder
	for i, tok := range t {
		if i > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteByte('[')
		sb.WriteString(tok)
		sb.WriteByte(']')
	}
	return sb.String()
}

// Len is the number of tokens
func (t Template) Len() int {
	return len(t)
}
