// Package parser turns extracted document text into heading-aware chunks.
package parser

import (
	"bufio"
	"regexp"
	"strings"
	"unicode"

	"github.com/raphaelgruber/docingest/internal/models"
)

var (
	headingRegex = regexp.MustCompile(`^(#{1,6})\s+(.+)$`)
	fenceRegex   = regexp.MustCompile("^\\s*(```|~~~)")
)

// ChunkOptions controls chunking. Zero MaxChunkSize disables the
// secondary split of oversized chunks.
type ChunkOptions struct {
	SkipChunking bool
	// MaxChunkSize is the largest chunk in characters (runes).
	MaxChunkSize int
	// Overlap is how many characters adjacent split pieces share.
	Overlap int
}

// DefaultChunkOptions returns the options used when a job doesn't set any.
func DefaultChunkOptions() ChunkOptions {
	return ChunkOptions{
		MaxChunkSize: 2000,
		Overlap:      200,
	}
}

// Merge overlays the job-level options onto o. Zero values keep o's setting.
func (o ChunkOptions) Merge(job models.IngestOptions) ChunkOptions {
	o.SkipChunking = o.SkipChunking || job.SkipChunking
	if job.MaxChunkSize > 0 {
		o.MaxChunkSize = job.MaxChunkSize
	}
	if job.Overlap > 0 {
		o.Overlap = job.Overlap
	}
	if o.MaxChunkSize > 0 && o.Overlap >= o.MaxChunkSize {
		o.Overlap = o.MaxChunkSize / 10
	}
	return o
}

type heading struct {
	level int
	title string
}

// section is one heading-delimited block before the size split.
type section struct {
	lines     []string
	hierarchy []string
}

func (s *section) content() string {
	return strings.TrimSpace(strings.Join(s.lines, "\n"))
}

// Chunk splits text into ordered chunks.
//
// Every heading line closes the chunk being built and opens a new one that
// starts with the heading itself. The heading stack is truncated to the
// parent of the new heading before it is pushed, so a chunk's hierarchy is
// its current nesting, never an accumulation of siblings. Headings inside
// fenced code blocks are treated as body text.
//
// Whitespace-only input yields no chunks.
func Chunk(text string, opts ChunkOptions) []models.Chunk {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if opts.SkipChunking {
		return []models.Chunk{{
			Content:          strings.TrimSpace(text),
			Index:            0,
			HeadingHierarchy: []string{},
		}}
	}

	var chunks []models.Chunk
	for _, sec := range splitSections(text) {
		content := sec.content()
		if content == "" {
			continue
		}
		for _, piece := range splitOversized(content, opts.MaxChunkSize, opts.Overlap) {
			chunks = append(chunks, models.Chunk{
				Content:          piece,
				Index:            len(chunks),
				HeadingHierarchy: sec.hierarchy,
			})
		}
	}
	return chunks
}

func splitSections(text string) []section {
	var (
		sections []section
		stack    []heading
		current  section
		inFence  bool
	)
	current.hierarchy = []string{}

	scanner := bufio.NewScanner(strings.NewReader(text))
	scanner.Buffer(make([]byte, 0, 64*1024), len(text)+1)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")

		if fenceRegex.MatchString(line) {
			inFence = !inFence
		}

		match := headingRegex.FindStringSubmatch(line)
		if match == nil || inFence {
			current.lines = append(current.lines, line)
			continue
		}

		if strings.TrimSpace(strings.Join(current.lines, "")) != "" {
			sections = append(sections, current)
		}

		level := len(match[1])
		title := strings.TrimSpace(strings.TrimRight(match[2], "# \t"))
		if title == "" {
			title = strings.TrimSpace(match[2])
		}
		for len(stack) > 0 && stack[len(stack)-1].level >= level {
			stack = stack[:len(stack)-1]
		}
		stack = append(stack, heading{level: level, title: title})

		current = section{
			lines:     []string{line},
			hierarchy: titles(stack),
		}
	}
	if strings.TrimSpace(strings.Join(current.lines, "")) != "" {
		sections = append(sections, current)
	}
	return sections
}

func titles(stack []heading) []string {
	out := make([]string, len(stack))
	for i, h := range stack {
		out[i] = h.title
	}
	return out
}

// splitOversized cuts content into pieces of at most maxSize runes on
// whitespace boundaries. A single word longer than maxSize is kept whole.
// Each piece after the first starts up to overlap runes before the end of
// the previous one, aligned to the start of a word. Every piece ends past
// the end of the previous one, so no piece is contained in its predecessor.
func splitOversized(content string, maxSize, overlap int) []string {
	runes := []rune(content)
	if maxSize <= 0 || len(runes) <= maxSize {
		return []string{content}
	}

	var pieces []string
	start, prevCut := 0, 0
	for start < len(runes) {
		for start < len(runes) && unicode.IsSpace(runes[start]) {
			start++
		}
		if start >= len(runes) {
			break
		}

		end := start + maxSize
		if end >= len(runes) {
			pieces = append(pieces, strings.TrimSpace(string(runes[start:])))
			break
		}

		cut := end
		for cut > start && !unicode.IsSpace(runes[cut]) {
			cut--
		}
		if cut == start {
			cut = end
			for cut < len(runes) && !unicode.IsSpace(runes[cut]) {
				cut++
			}
		}
		if cut <= prevCut {
			// The overlap window holds no new word; resume without overlap.
			start = prevCut
			continue
		}
		pieces = append(pieces, strings.TrimSpace(string(runes[start:cut])))
		if cut >= len(runes) || strings.TrimSpace(string(runes[cut:])) == "" {
			break
		}
		prevCut = cut

		next := cut
		if overlap > 0 {
			next = max(cut-overlap, start+1)
			for next < cut && !(unicode.IsSpace(runes[next-1]) && !unicode.IsSpace(runes[next])) {
				next++
			}
		}
		start = next
	}
	return pieces
}
