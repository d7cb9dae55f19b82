package domain

import "time"

// Chunk is a contiguous slice of one document's extracted text.
// Start and End are rune offsets into that text.
type Chunk struct {
	Source string
	Index  int
	Text   string
	Start  int
	End    int
}

// Metadata keys stored alongside every VectorRecord
const (
	MetaSource     = "source"
	MetaChunkIndex = "chunk_index"
	MetaMediaType  = "media_type"
)

// VectorRecord is an indexed chunk. Records are inserted or wholesale
// cleared, never mutated.
type VectorRecord struct {
	ID        string
	Embedding []float32
	Text      string
	Metadata  map[string]string
	CreatedAt time.Time
}

// Source returns the originating document name.
func (r VectorRecord) Source() string {
	return r.Metadata[MetaSource]
}

// ScoredRecord is a VectorRecord annotated with its similarity to a query
type ScoredRecord struct {
	Record VectorRecord
	Score  float32
}

// RetrievalResult is ordered by descending Score
type RetrievalResult []ScoredRecord

// Texts returns the chunk texts in result order.
func (r RetrievalResult) Texts() []string {
	out := make([]string, len(r))
	for i, sr := range r {
		out[i] = sr.Record.Text
	}
	return out
}
