package service

import (
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloo-solutions/docchat/internal/domain"
)

func reassemble(chunks []domain.Chunk, overlap int) string {
	var b strings.Builder
	for i, c := range chunks {
		if i == 0 {
			b.WriteString(c.Text)
			continue
		}
		r := []rune(c.Text)
		b.WriteString(string(r[overlap:]))
	}
	return b.String()
}

func TestChunkText_Empty(t *testing.T) {
	assert.Nil(t, chunkText("a.txt", "", DefaultChunkConfig()))
}

func TestChunkText_ShortTextSingleChunk(t *testing.T) {
	chunks := chunkText("a.txt", "  short  ", DefaultChunkConfig())
	require.Len(t, chunks, 1)
	assert.Equal(t, "  short  ", chunks[0].Text)
	assert.Equal(t, 0, chunks[0].Index)
	assert.Equal(t, "a.txt", chunks[0].Source)
}

func TestChunkText_PrefersParagraphBreak(t *testing.T) {
	cfg := ChunkConfig{MaxChars: 40, Overlap: 5}
	text := "first paragraph is here\n\nsecond paragraph follows and is long enough"

	chunks := chunkText("doc", text, cfg)
	require.GreaterOrEqual(t, len(chunks), 2)
	assert.Equal(t, "first paragraph is here\n\n", chunks[0].Text)
	assert.Equal(t, text, reassemble(chunks, cfg.Overlap))
}

func TestChunkText_FallsBackToWordBoundary(t *testing.T) {
	cfg := ChunkConfig{MaxChars: 12, Overlap: 2}
	text := "alpha beta gamma delta epsilon"

	chunks := chunkText("doc", text, cfg)
	require.Greater(t, len(chunks), 1)
	assert.Equal(t, "alpha beta ", chunks[0].Text)
	assert.Equal(t, text, reassemble(chunks, cfg.Overlap))
}

func TestChunkText_HardSplitsLongUnit(t *testing.T) {
	cfg := ChunkConfig{MaxChars: 10, Overlap: 3}
	text := strings.Repeat("x", 25)

	chunks := chunkText("doc", text, cfg)
	require.Len(t, chunks, 4)
	for _, c := range chunks {
		assert.LessOrEqual(t, utf8.RuneCountInString(c.Text), cfg.MaxChars)
	}
	assert.Equal(t, 10, chunks[0].End)
	assert.Equal(t, 7, chunks[1].Start)
	assert.Equal(t, 25, chunks[3].End)
	assert.Equal(t, text, reassemble(chunks, cfg.Overlap))
}

func TestChunkText_MultibyteRunes(t *testing.T) {
	cfg := ChunkConfig{MaxChars: 8, Overlap: 2}
	text := "héllo wörld ünïcode tëxt ñ"

	chunks := chunkText("doc", text, cfg)
	for _, c := range chunks {
		assert.True(t, utf8.ValidString(c.Text))
		assert.LessOrEqual(t, utf8.RuneCountInString(c.Text), cfg.MaxChars)
	}
	assert.Equal(t, text, reassemble(chunks, cfg.Overlap))
}

func TestChunkText_OverlapClamped(t *testing.T) {
	cfg := ChunkConfig{MaxChars: 5, Overlap: 50}
	text := strings.Repeat("ab", 10)

	chunks := chunkText("doc", text, cfg)
	require.NotEmpty(t, chunks)
	assert.Equal(t, text, reassemble(chunks, 4))
}

func TestChunkText_Properties(t *testing.T) {
	words := []string{"lorem", "ipsum", "dolor\n", "sit", "amet\n\n", "consectetur", "adipiscing", "élit", "sed"}
	configs := []ChunkConfig{
		{MaxChars: 20, Overlap: 0},
		{MaxChars: 50, Overlap: 10},
		{MaxChars: 100, Overlap: 30},
		DefaultChunkConfig(),
	}

	for n := 1; n <= 400; n += 37 {
		var b strings.Builder
		for i := 0; i < n; i++ {
			b.WriteString(words[(i*7)%len(words)])
			b.WriteString(" ")
		}
		text := b.String()

		for _, cfg := range configs {
			t.Run(fmt.Sprintf("n=%d/L=%d/O=%d", n, cfg.MaxChars, cfg.Overlap), func(t *testing.T) {
				chunks := chunkText("doc", text, cfg)
				require.NotEmpty(t, chunks)
				assert.Equal(t, text, reassemble(chunks, cfg.Overlap))

				for i, c := range chunks {
					assert.Equal(t, i, c.Index)
					assert.LessOrEqual(t, utf8.RuneCountInString(c.Text), cfg.MaxChars)
					assert.Equal(t, c.End-c.Start, utf8.RuneCountInString(c.Text))
					if i > 0 {
						assert.Equal(t, chunks[i-1].End-cfg.Overlap, c.Start)
					}
				}
				assert.Equal(t, utf8.RuneCountInString(text), chunks[len(chunks)-1].End)
			})
		}
	}
}

func TestChunkDocument(t *testing.T) {
	ext := &domain.ExtractedText{
		Source: "report.pdf",
		Segments: []domain.Segment{
			{Source: "report.pdf", Page: 1, Text: "page one. "},
			{Source: "report.pdf", Page: 2, Text: "page two."},
		},
	}

	chunks := ChunkDocument(ext, DefaultChunkConfig())
	require.Len(t, chunks, 1)
	assert.Equal(t, "page one. page two.", chunks[0].Text)
	assert.Equal(t, "report.pdf", chunks[0].Source)

	assert.Nil(t, ChunkDocument(nil, DefaultChunkConfig()))
}
