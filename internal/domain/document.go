package domain

import (
	"fmt"
	"path/filepath"
	"strings"
)

// MediaType identifies how a document's bytes are interpreted
type MediaType string

const (
	MediaTypePDF  MediaType = "application/pdf"
	MediaTypeText MediaType = "text/plain"
)

// Document is a user-supplied file awaiting extraction.
// It is never retained once indexing or batch processing is done.
type Document struct {
	Name      string
	MediaType MediaType
	Content   []byte
}

// NewDocument builds a Document, deriving the media type from the file name.
func NewDocument(name string, content []byte) Document {
	return Document{
		Name:      name,
		MediaType: MediaTypeFromFilename(name),
		Content:   content,
	}
}

// MediaTypeFromFilename maps a file extension to a MediaType.
// Unknown extensions yield an empty MediaType.
func MediaTypeFromFilename(name string) MediaType {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".pdf":
		return MediaTypePDF
	case ".txt", ".text", ".md":
		return MediaTypeText
	default:
		return ""
	}
}

// ParseMediaType maps a declared content type (as sent by a browser) to a
// MediaType, ignoring parameters such as charset.
func ParseMediaType(contentType string) MediaType {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	switch MediaType(ct) {
	case MediaTypePDF:
		return MediaTypePDF
	case MediaTypeText:
		return MediaTypeText
	}
	return ""
}

// Segment is a piece of extracted text with its provenance
type Segment struct {
	Source string
	Page   int
	Text   string
}

// ExtractedText is the ordered text stream produced from one Document
type ExtractedText struct {
	Source   string
	Segments []Segment
}

// Text concatenates all segments in order with no boundary markers.
func (e *ExtractedText) Text() string {
	if e == nil {
		return ""
	}
	var b strings.Builder
	for _, s := range e.Segments {
		b.WriteString(s.Text)
	}
	return b.String()
}

// ValidateDocument validates a Document instance
func ValidateDocument(d *Document) error {
	if d == nil {
		return fmt.Errorf("document cannot be nil")
	}

	if strings.TrimSpace(d.Name) == "" {
		return fmt.Errorf("document Name is required")
	}

	return nil
}

// ResponseName derives the batch output entry name for a source document.
func ResponseName(source string) string {
	base := filepath.Base(source)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	return stem + "_response.txt"
}
