// Package extract converts uploaded documents into plain text.
package extract

import (
	"context"
	"fmt"
	"sync"

	"github.com/cloo-solutions/docchat/internal/domain"
)

// Extractor turns the bytes of a Document into ExtractedText.
type Extractor interface {
	// MediaTypes returns the media types this extractor handles.
	MediaTypes() []domain.MediaType

	// Extract returns the text of doc, or an ExtractionFailure.
	Extract(ctx context.Context, doc domain.Document) (*domain.ExtractedText, error)
}

// Registry dispatches documents to the Extractor registered for their
// declared media type.
type Registry struct {
	mu         sync.RWMutex
	extractors map[domain.MediaType]Extractor
}

// NewRegistry creates a Registry holding the given extractors.
func NewRegistry(extractors ...Extractor) *Registry {
	r := &Registry{extractors: make(map[domain.MediaType]Extractor)}
	for _, e := range extractors {
		r.Register(e)
	}
	return r
}

// NewDefaultRegistry registers the plain text and PDF extractors. A non
// empty pdftotextPath enables pdftotext for PDFs the parser rejects.
func NewDefaultRegistry(pdftotextPath string) *Registry {
	pdf := NewPDFExtractor()
	if pdftotextPath != "" {
		pdf = NewPDFExtractorWithFallback(NewPdftotextExtractor(pdftotextPath, nil))
	}
	return NewRegistry(NewTextExtractor(), pdf)
}

// Register adds e for every media type it supports, replacing any previous
// registration for those types.
func (r *Registry) Register(e Extractor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, mt := range e.MediaTypes() {
		r.extractors[mt] = e
	}
}

// Supports reports whether an extractor is registered for mt.
func (r *Registry) Supports(mt domain.MediaType) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.extractors[mt]
	return ok
}

// Extract implements Extractor by delegating on doc.MediaType.
func (r *Registry) Extract(ctx context.Context, doc domain.Document) (*domain.ExtractedText, error) {
	r.mu.RLock()
	e, ok := r.extractors[doc.MediaType]
	r.mu.RUnlock()
	if !ok {
		return nil, domain.NewDomainError(domain.ErrCodeUnsupportedFormat,
			fmt.Sprintf("unsupported media type %q for %s", doc.MediaType, doc.Name))
	}
	return e.Extract(ctx, doc)
}

// MediaTypes returns every registered media type.
func (r *Registry) MediaTypes() []domain.MediaType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.MediaType, 0, len(r.extractors))
	for mt := range r.extractors {
		out = append(out, mt)
	}
	return out
}

func extractionFailure(doc domain.Document, err error) error {
	return domain.NewDomainErrorWithCause(domain.ErrCodeExtractionFailure,
		fmt.Sprintf("failed to extract text from %s", doc.Name), err)
}
