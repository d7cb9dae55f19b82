package extract

import (
	"bytes"
	"context"
	"errors"
	"unicode/utf8"

	"github.com/cloo-solutions/docchat/internal/domain"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// ErrInvalidEncoding is returned for text files that are not valid UTF-8
var ErrInvalidEncoding = errors.New("content is not valid UTF-8")

// TextExtractor handles plain text files. The whole file is one segment.
type TextExtractor struct{}

// NewTextExtractor creates a new plain text extractor.
func NewTextExtractor() *TextExtractor {
	return &TextExtractor{}
}

// MediaTypes returns the media types this extractor handles.
func (e *TextExtractor) MediaTypes() []domain.MediaType {
	return []domain.MediaType{domain.MediaTypeText}
}

// Extract returns the file content as a single segment.
func (e *TextExtractor) Extract(_ context.Context, doc domain.Document) (*domain.ExtractedText, error) {
	content := bytes.TrimPrefix(doc.Content, utf8BOM)
	if !utf8.Valid(content) {
		return nil, extractionFailure(doc, ErrInvalidEncoding)
	}

	return &domain.ExtractedText{
		Source: doc.Name,
		Segments: []domain.Segment{
			{Source: doc.Name, Page: 1, Text: string(content)},
		},
	}, nil
}
