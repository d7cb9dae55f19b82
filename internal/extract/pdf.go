package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/ledongthuc/pdf"

	"github.com/cloo-solutions/docchat/internal/domain"
)

var pdfMagic = []byte("%PDF-")

// ErrNotPDF is returned when the content does not start with a PDF header
var ErrNotPDF = errors.New("content is not a PDF document")

// PDFExtractor reads the text layer of a PDF in process, one segment per
// page. Pages without a text layer come back empty.
type PDFExtractor struct {
	// fallback handles documents the parser rejects, nil when disabled
	fallback Extractor
}

// NewPDFExtractor creates a PDF extractor without a fallback.
func NewPDFExtractor() *PDFExtractor {
	return &PDFExtractor{}
}

// NewPDFExtractorWithFallback creates a PDF extractor that hands documents
// the parser cannot read to fallback.
func NewPDFExtractorWithFallback(fallback Extractor) *PDFExtractor {
	return &PDFExtractor{fallback: fallback}
}

// MediaTypes returns the media types this extractor handles.
func (e *PDFExtractor) MediaTypes() []domain.MediaType {
	return []domain.MediaType{domain.MediaTypePDF}
}

// Extract parses the PDF and returns its pages in order.
func (e *PDFExtractor) Extract(ctx context.Context, doc domain.Document) (*domain.ExtractedText, error) {
	if !hasPDFHeader(doc.Content) {
		return nil, extractionFailure(doc, ErrNotPDF)
	}

	pages, err := readPages(doc.Content)
	if err == nil {
		return &domain.ExtractedText{Source: doc.Name, Segments: pageSegments(doc.Name, pages)}, nil
	}

	if e.fallback != nil {
		log.Printf("extract: %s: %v, trying fallback", doc.Name, err)
		return e.fallback.Extract(ctx, doc)
	}
	return nil, extractionFailure(doc, err)
}

func hasPDFHeader(content []byte) bool {
	return bytes.HasPrefix(bytes.TrimLeft(content, "\x00\t\r\n "), pdfMagic)
}

// readPages returns the plain text of every page. The parser panics on
// some malformed input, which is reported as an error.
func readPages(content []byte) (pages []string, err error) {
	defer func() {
		if r := recover(); r != nil {
			pages, err = nil, fmt.Errorf("malformed PDF: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, err
	}

	n := reader.NumPage()
	if n <= 0 {
		return nil, errors.New("PDF has no pages")
	}

	fonts := make(map[string]*pdf.Font)
	pages = make([]string, 0, n)
	for i := 1; i <= n; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			pages = append(pages, "")
			continue
		}
		for _, name := range page.Fonts() {
			if _, ok := fonts[name]; !ok {
				f := page.Font(name)
				fonts[name] = &f
			}
		}
		text, err := page.GetPlainText(fonts)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", i, err)
		}
		pages = append(pages, text)
	}
	return pages, nil
}

func pageSegments(source string, pages []string) []domain.Segment {
	segments := make([]domain.Segment, len(pages))
	for i, p := range pages {
		segments[i] = domain.Segment{Source: source, Page: i + 1, Text: p}
	}
	return segments
}
