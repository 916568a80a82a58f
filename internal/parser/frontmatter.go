package parser

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Frontmatter is the YAML header of a Markdown document.
type Frontmatter map[string]any

// String returns the string value of key, or "".
func (f Frontmatter) String(key string) string {
	switch v := f[key].(type) {
	case string:
		return v
	case int, int64, float64, bool:
		return fmt.Sprint(v)
	}
	return ""
}

// ParseFrontmatter splits a leading "---" YAML block from content. Documents
// without a block, or with invalid YAML, return empty frontmatter and the
// input unchanged.
func ParseFrontmatter(content string) (Frontmatter, string) {
	fm := Frontmatter{}
	normalized := strings.ReplaceAll(content, "\r\n", "\n")
	if !strings.HasPrefix(normalized, "---\n") {
		return fm, content
	}

	endIdx := strings.Index(normalized[4:], "\n---")
	if endIdx < 0 {
		return fm, content
	}
	raw := normalized[4 : 4+endIdx]
	rest := normalized[4+endIdx+4:]
	if i := strings.IndexByte(rest, '\n'); i >= 0 && strings.TrimSpace(rest[:i]) == "" {
		rest = rest[i+1:]
	} else if strings.TrimSpace(rest) == "" {
		rest = ""
	}

	if err := yaml.Unmarshal([]byte(raw), &fm); err != nil {
		return Frontmatter{}, content
	}
	return fm, rest
}
