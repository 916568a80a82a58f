package extract

import (
	"context"

	"github.com/raphaelgruber/docingest/internal/parser"
)

// hintKeys are the frontmatter keys surfaced as metadata hints.
var hintKeys = []string{"subject", "grade", "chapter", "title"}

// MarkdownExtractor strips YAML frontmatter and keeps the body verbatim so
// the chunker sees the original headings.
type MarkdownExtractor struct{}

func (MarkdownExtractor) Extract(ctx context.Context, data []byte) (*Result, error) {
	res, err := TextExtractor{}.Extract(ctx, data)
	if err != nil {
		return nil, err
	}
	fm, body := parser.ParseFrontmatter(res.Text)

	hints := make(map[string]string)
	for _, key := range hintKeys {
		if v := fm.String(key); v != "" {
			hints[key] = v
		}
	}
	return &Result{Text: body, Format: "markdown", Hints: hints}, nil
}
