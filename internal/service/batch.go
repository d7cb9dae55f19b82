package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/klauspost/compress/zip"

	"github.com/cloo-solutions/docchat/internal/domain"
	"github.com/cloo-solutions/docchat/internal/openai"
	"github.com/cloo-solutions/docchat/internal/telemetry"
)

const (
	// ArchiveName is the download name of a batch result
	ArchiveName = "BatchQueryResponses.zip"

	batchSystemPrompt = "You are a helpful, smart, kind, and efficient AI assistant. You always fulfill the user's requests to the best of your ability."

	batchUserPrompt = `Read through this document: <Start of Document> %s <End of Document>.
After reading and understanding the text thoroughly, I want you to answer this %s as accurately as possible based on the given text`
)

// BatchConfig tunes batch document Q&A
type BatchConfig struct {
	// MaxDocumentChars rejects documents whose extracted text is longer.
	// Zero disables the check.
	MaxDocumentChars int
}

// BatchInput is one instruction applied to every document
type BatchInput struct {
	Instruction string
	Documents   []domain.Document
}

// BatchAnswer is the model's answer for one document
type BatchAnswer struct {
	Source string
	Name   string
	Answer string
}

// BatchService answers a fixed instruction against each document's full
// text, with no indexing and no history
type BatchService struct {
	extractor Extractor
	gateway   AsyncGateway
	maxChars  int
	now       func() time.Time
}

// NewBatchService creates a new BatchService instance
func NewBatchService(extractor Extractor, gateway AsyncGateway, cfg BatchConfig) *BatchService {
	return &BatchService{
		extractor: extractor,
		gateway:   gateway,
		maxChars:  cfg.MaxDocumentChars,
		now:       time.Now,
	}
}

// Run extracts every document, then queries the model for all of them
// concurrently. Any failure fails the whole batch.
func (s *BatchService) Run(ctx context.Context, in BatchInput) ([]BatchAnswer, error) {
	ctx, span := telemetry.StartSpan(ctx, "BatchService.Run", telemetry.SpanAttributes{
		Operation: "batch",
	})
	defer span.End()

	instruction := strings.TrimSpace(in.Instruction)
	if instruction == "" {
		return nil, domain.ErrMissingInstruction
	}
	if len(in.Documents) == 0 {
		return nil, domain.ErrNoDocuments
	}

	prompts := make([]string, len(in.Documents))
	for i, doc := range in.Documents {
		extracted, err := s.extractor.Extract(ctx, doc)
		if err != nil {
			span.SetError(err)
			return nil, fmt.Errorf("document %q: %w", doc.Name, err)
		}

		text := extracted.Text()
		if s.maxChars > 0 {
			if n := utf8.RuneCountInString(text); n > s.maxChars {
				return nil, domain.NewDomainError(domain.ErrCodeContextTooLarge,
					fmt.Sprintf("document %q has %d characters, limit is %d", doc.Name, n, s.maxChars))
			}
		}
		prompts[i] = fmt.Sprintf(batchUserPrompt, text, instruction)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	futures := make([]*openai.Future, len(prompts))
	for i, p := range prompts {
		futures[i] = s.gateway.Go(ctx, batchSystemPrompt, p)
	}

	names := responseNames(in.Documents)
	answers := make([]BatchAnswer, len(futures))
	for i, f := range futures {
		answer, err := f.Await(ctx)
		if err != nil {
			span.SetError(err)
			return nil, fmt.Errorf("document %q: %w", in.Documents[i].Name, batchFailure(err))
		}
		answers[i] = BatchAnswer{
			Source: in.Documents[i].Name,
			Name:   names[i],
			Answer: answer,
		}
	}

	log.Printf("batch: answered %d documents", len(answers))
	return answers, nil
}

// Archive runs the batch and returns the zipped answers.
func (s *BatchService) Archive(ctx context.Context, in BatchInput) ([]byte, error) {
	answers, err := s.Run(ctx, in)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := WriteArchive(&buf, answers, s.now()); err != nil {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeInternalError, "failed to build archive", err)
	}
	return buf.Bytes(), nil
}

// WriteArchive writes one deflated entry per answer.
func WriteArchive(w io.Writer, answers []BatchAnswer, modified time.Time) error {
	zw := zip.NewWriter(w)
	for _, a := range answers {
		entry, err := zw.CreateHeader(&zip.FileHeader{
			Name:     a.Name,
			Method:   zip.Deflate,
			Modified: modified,
		})
		if err != nil {
			return err
		}
		if _, err := io.WriteString(entry, a.Answer); err != nil {
			return err
		}
	}
	return zw.Close()
}

// batchFailure keeps a model rejection for prompt size as ContextTooLarge,
// the same outcome as the local size check. Other failures are generation
// failures.
func batchFailure(err error) error {
	if domain.Code(err) == domain.ErrCodeContextTooLarge {
		return err
	}
	return generationFailure(err)
}

// responseNames derives entry names, numbering repeats so no entry is
// overwritten: a_response.txt, a_response_2.txt, ...
func responseNames(docs []domain.Document) []string {
	seen := make(map[string]int, len(docs))
	names := make([]string, len(docs))
	for i, doc := range docs {
		name := domain.ResponseName(doc.Name)
		seen[name]++
		if n := seen[name]; n > 1 {
			name = fmt.Sprintf("%s_%d.txt", strings.TrimSuffix(name, ".txt"), n)
		}
		names[i] = name
	}
	return names
}
