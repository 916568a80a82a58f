package models

// Chunk is an ordered slice of a document's extracted text.
type Chunk struct {
	Content          string   `json:"content"`
	Index            int      `json:"index"`
	HeadingHierarchy []string `json:"heading_hierarchy"`
}

// HeadingPath renders the hierarchy as "Outer > Inner".
func (c Chunk) HeadingPath() string {
	path := ""
	for i, h := range c.HeadingHierarchy {
		if i > 0 {
			path += " > "
		}
		path += h
	}
	return path
}

// EmbeddingResult pairs a chunk's text with its vector. A failed embedding
// has an empty (non-nil) vector.
type EmbeddingResult struct {
	Content   string    `json:"content"`
	Embedding []float32 `json:"embedding"`
}

// Failed reports whether the embedding could not be generated.
func (r EmbeddingResult) Failed() bool {
	return len(r.Embedding) == 0
}

// DocumentKey identifies the knowledge-base partition a document is stored under.
type DocumentKey struct {
	Subject string `json:"subject"`
	Grade   string `json:"grade"`
	Chapter string `json:"chapter"`
	Source  string `json:"source"`
}

// ChunkRecord is one chunk+embedding+metadata tuple written to the knowledge base.
type ChunkRecord struct {
	Index            int               `json:"index"`
	Content          string            `json:"content"`
	HeadingHierarchy []string          `json:"heading_hierarchy"`
	Embedding        []float32         `json:"embedding"`
	Metadata         map[string]string `json:"metadata,omitempty"`
}
