// Package extract converts raw document bytes into plain text for chunking.
package extract

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

// Result is the extracted text of a document plus metadata hints found in
// the document itself (Markdown frontmatter).
type Result struct {
	Text   string
	Format string
	Hints  map[string]string
}

// Extractor converts document bytes into text.
type Extractor interface {
	Extract(ctx context.Context, data []byte) (*Result, error)
}

// ExtractorFunc adapts a function to Extractor.
type ExtractorFunc func(ctx context.Context, data []byte) (*Result, error)

func (f ExtractorFunc) Extract(ctx context.Context, data []byte) (*Result, error) {
	return f(ctx, data)
}

// Registry picks an extractor by content sniffing first and file extension
// second, falling back to plain text.
type Registry struct {
	PDF      Extractor
	HTML     Extractor
	Markdown Extractor
	Text     Extractor
}

// NewRegistry returns a registry with the built-in extractors.
func NewRegistry() *Registry {
	return &Registry{
		PDF:      PDFExtractor{},
		HTML:     HTMLExtractor{},
		Markdown: MarkdownExtractor{},
		Text:     TextExtractor{},
	}
}

// For returns the extractor for a file.
func (r *Registry) For(name string, data []byte) Extractor {
	head := bytes.TrimSpace(data[:min(len(data), 512)])
	switch {
	case bytes.HasPrefix(head, []byte("%PDF-")):
		return r.PDF
	case hasHTMLPrefix(head):
		return r.HTML
	}

	switch strings.ToLower(filepath.Ext(name)) {
	case ".pdf":
		return r.PDF
	case ".html", ".htm", ".xhtml":
		return r.HTML
	case ".md", ".markdown", ".mdx":
		return r.Markdown
	}
	return r.Text
}

// Extract runs the extractor selected for name and data.
func (r *Registry) Extract(ctx context.Context, name string, data []byte) (*Result, error) {
	return r.For(name, data).Extract(ctx, data)
}

func hasHTMLPrefix(head []byte) bool {
	lower := bytes.ToLower(head[:min(len(head), 64)])
	return bytes.HasPrefix(lower, []byte("<!doctype html")) || bytes.HasPrefix(lower, []byte("<html"))
}

// TextExtractor returns the bytes as UTF-8 text, dropping invalid sequences.
type TextExtractor struct{}

func (TextExtractor) Extract(_ context.Context, data []byte) (*Result, error) {
	text := string(data)
	if !utf8.ValidString(text) {
		text = strings.ToValidUTF8(text, "")
	}
	return &Result{Text: normalizeNewlines(text), Format: "text"}, nil
}

func normalizeNewlines(s string) string {
	return strings.ReplaceAll(strings.ReplaceAll(s, "\r\n", "\n"), "\r", "\n")
}
