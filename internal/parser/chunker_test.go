package parser

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raphaelgruber/docingest/internal/models"
)

func contents(chunks []models.Chunk) []string {
	out := make([]string, len(chunks))
	for i, c := range chunks {
		out[i] = c.Content
	}
	return out
}

func TestChunk_Empty(t *testing.T) {
	for _, text := range []string{"", "   \n\n\t  "} {
		assert.Empty(t, Chunk(text, ChunkOptions{}))
		assert.Empty(t, Chunk(text, ChunkOptions{SkipChunking: true}))
	}
}

func TestChunk_NoHeadings(t *testing.T) {
	text := "First paragraph.\n\nSecond paragraph."
	chunks := Chunk(text, ChunkOptions{})

	require.Len(t, chunks, 1)
	assert.Equal(t, text, chunks[0].Content)
	assert.Equal(t, 0, chunks[0].Index)
	assert.Empty(t, chunks[0].HeadingHierarchy)
}

func TestChunk_SkipChunking(t *testing.T) {
	text := "# Title\n\nBody\n\n## Sub\n\nMore"
	chunks := Chunk(text, ChunkOptions{SkipChunking: true, MaxChunkSize: 5})

	require.Len(t, chunks, 1)
	assert.Equal(t, text, chunks[0].Content)
	assert.NotNil(t, chunks[0].HeadingHierarchy)
	assert.Empty(t, chunks[0].HeadingHierarchy)
}

func TestChunk_HeadingHierarchy(t *testing.T) {
	text := strings.Join([]string{
		"Preamble text.",
		"# Algebra",
		"Intro to algebra.",
		"## Linear equations",
		"Solve for x.",
		"### Worked example",
		"2x = 4",
		"## Quadratics",
		"Parabolas.",
		"# Geometry",
		"Shapes.",
	}, "\n")

	chunks := Chunk(text, ChunkOptions{})

	want := []struct {
		first     string
		hierarchy []string
	}{
		{"Preamble text.", []string{}},
		{"# Algebra", []string{"Algebra"}},
		{"## Linear equations", []string{"Algebra", "Linear equations"}},
		{"### Worked example", []string{"Algebra", "Linear equations", "Worked example"}},
		{"## Quadratics", []string{"Algebra", "Quadratics"}},
		{"# Geometry", []string{"Geometry"}},
	}
	require.Len(t, chunks, len(want))
	for i, w := range want {
		assert.Equal(t, i, chunks[i].Index)
		assert.True(t, strings.HasPrefix(chunks[i].Content, w.first), "chunk %d: %q", i, chunks[i].Content)
		assert.Equal(t, w.hierarchy, chunks[i].HeadingHierarchy, "chunk %d", i)
	}
}

func TestChunk_TrailingHeadingKept(t *testing.T) {
	chunks := Chunk("Body text.\n## Last", ChunkOptions{})

	require.Len(t, chunks, 2)
	assert.Equal(t, "## Last", chunks[1].Content)
	assert.Equal(t, []string{"Last"}, chunks[1].HeadingHierarchy)
}

func TestChunk_HeadingsInCodeFenceIgnored(t *testing.T) {
	text := "# Shell\n```\n# not a heading\necho hi\n```\nAfter."
	chunks := Chunk(text, ChunkOptions{})

	require.Len(t, chunks, 1)
	assert.Contains(t, chunks[0].Content, "# not a heading")
}

func TestChunk_PreservesLines(t *testing.T) {
	text := "# A\nline one\nline two\n\n# B\nline three"
	chunks := Chunk(text, ChunkOptions{})

	joined := strings.Join(contents(chunks), "\n")
	assert.Equal(t, strings.ReplaceAll(text, "\n\n", "\n"), joined)
}

func TestChunk_SplitsOversized(t *testing.T) {
	words := make([]string, 60)
	for i := range words {
		words[i] = "word"
	}
	body := strings.Join(words, " ") // 60*5-1 = 299 chars
	text := "# Section\n" + body

	chunks := Chunk(text, ChunkOptions{MaxChunkSize: 100})

	require.Greater(t, len(chunks), 1)
	for i, c := range chunks {
		assert.Equal(t, i, c.Index)
		assert.LessOrEqual(t, len([]rune(c.Content)), 100)
		assert.Equal(t, []string{"Section"}, c.HeadingHierarchy)
		for _, w := range strings.Fields(c.Content) {
			assert.Contains(t, []string{"#", "Section", "word"}, w, "word broken in chunk %d", i)
		}
	}
	// Without overlap the pieces reassemble to the original.
	assert.Equal(t, strings.Fields(text), strings.Fields(strings.Join(contents(chunks), " ")))
}

// sharedEdge returns the longest suffix of prev that is also a prefix of cur.
func sharedEdge(prev, cur string) string {
	for k := min(len(prev), len(cur)); k > 0; k-- {
		if strings.HasSuffix(prev, cur[:k]) {
			return cur[:k]
		}
	}
	return ""
}

func TestChunk_SplitOverlap(t *testing.T) {
	text := "alpha beta gamma delta epsilon zeta eta theta iota kappa"

	chunks := Chunk(text, ChunkOptions{MaxChunkSize: 20, Overlap: 8})

	assert.Equal(t, []string{
		"alpha beta gamma",
		"gamma delta epsilon",
		"epsilon zeta eta",
		"zeta eta theta iota",
		"iota kappa",
	}, contents(chunks))
	for i := 1; i < len(chunks); i++ {
		shared := sharedEdge(chunks[i-1].Content, chunks[i].Content)
		assert.NotEmpty(t, shared, "chunk %d", i)
		assert.LessOrEqual(t, len(shared), 8, "chunk %d", i)
	}
}

func TestChunk_OverlapAfterShortWordsAddsNewText(t *testing.T) {
	long := strings.Repeat("e", 20)
	text := "aa bb cc dd " + long + " ff"

	chunks := Chunk(text, ChunkOptions{MaxChunkSize: 10, Overlap: 5})

	assert.Equal(t, []string{"aa bb cc", "bb cc dd", long, "ff"}, contents(chunks))
	for i := 1; i < len(chunks); i++ {
		assert.NotContains(t, chunks[i-1].Content, chunks[i].Content, "chunk %d repeats its predecessor", i)
	}
}

func TestChunk_LongWordNotBroken(t *testing.T) {
	long := strings.Repeat("x", 50)
	chunks := Chunk("short "+long+" tail", ChunkOptions{MaxChunkSize: 10})

	assert.Equal(t, []string{"short", long, "tail"}, contents(chunks))
}

func TestChunkOptionsMerge(t *testing.T) {
	base := DefaultChunkOptions()

	got := base.Merge(models.IngestOptions{MaxChunkSize: 500})
	assert.Equal(t, 500, got.MaxChunkSize)
	assert.Equal(t, base.Overlap, got.Overlap)

	got = base.Merge(models.IngestOptions{MaxChunkSize: 100})
	assert.Less(t, got.Overlap, got.MaxChunkSize)

	got = base.Merge(models.IngestOptions{SkipChunking: true})
	assert.True(t, got.SkipChunking)
}
