package service

import (
	"github.com/cloo-solutions/docchat/internal/domain"
)

// ChunkConfig controls how extracted text is split for embedding.
type ChunkConfig struct {
	MaxChars int
	Overlap  int
}

// DefaultChunkConfig provides sane defaults for chunking.
func DefaultChunkConfig() ChunkConfig {
	return ChunkConfig{
		MaxChars: 1000,
		Overlap:  100,
	}
}

// separators in order of preference. When none is found in a window the
// text is hard-split at the window edge.
var separators = [][]rune{
	[]rune("\n\n"),
	[]rune("\n"),
	[]rune(" "),
}

func (c ChunkConfig) normalized() ChunkConfig {
	if c.MaxChars <= 0 {
		c = DefaultChunkConfig()
	}
	if c.Overlap < 0 {
		c.Overlap = 0
	}
	if c.Overlap >= c.MaxChars {
		c.Overlap = c.MaxChars - 1
	}
	return c
}

// ChunkDocument splits one document's extracted text. Chunks never cross
// document boundaries because each document is chunked on its own.
func ChunkDocument(ext *domain.ExtractedText, cfg ChunkConfig) []domain.Chunk {
	if ext == nil {
		return nil
	}
	return chunkText(ext.Source, ext.Text(), cfg)
}

// chunkText packs text into windows of at most MaxChars runes. Every chunk
// after the first starts exactly Overlap runes before the end of its
// predecessor, so chunk[0] followed by chunk[i][Overlap:] for i > 0
// reproduces the input.
func chunkText(source, text string, cfg ChunkConfig) []domain.Chunk {
	cfg = cfg.normalized()
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}

	chunks := make([]domain.Chunk, 0, len(runes)/cfg.MaxChars+1)
	start := 0
	for {
		end := len(runes)
		if end-start > cfg.MaxChars {
			end = splitPoint(runes, start, start+cfg.MaxChars, cfg.Overlap)
		}

		chunks = append(chunks, domain.Chunk{
			Source: source,
			Index:  len(chunks),
			Text:   string(runes[start:end]),
			Start:  start,
			End:    end,
		})

		if end >= len(runes) {
			break
		}
		start = end - cfg.Overlap
	}

	return chunks
}

// splitPoint returns the end of the window [start, limit). A split lands
// just after a separator and must leave more than overlap runes in the
// window so the next one makes progress.
func splitPoint(runes []rune, start, limit, overlap int) int {
	floor := start + overlap
	for _, sep := range separators {
		if idx := lastIndex(runes[:limit], sep, floor); idx >= 0 {
			if p := idx + len(sep); p > floor {
				return p
			}
		}
	}
	return limit
}

// lastIndex finds the last occurrence of sep in s at or after from.
func lastIndex(s, sep []rune, from int) int {
	for i := len(s) - len(sep); i >= from && i >= 0; i-- {
		match := true
		for j, r := range sep {
			if s[i+j] != r {
				match = false
				break
			}
		}
		if match {
			return i
		}
	}
	return -1
}
