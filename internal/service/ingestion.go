package service

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/cloo-solutions/docchat/internal/domain"
	"github.com/cloo-solutions/docchat/internal/telemetry"
)

const defaultIngestConcurrency = 4

// IngestResult is the outcome for one uploaded document. Err is nil on
// success.
type IngestResult struct {
	Name         string
	SegmentCount int
	ChunkCount   int
	Err          error
}

// IngestionConfig tunes the ingestion pipeline
type IngestionConfig struct {
	Chunk       ChunkConfig
	Concurrency int
}

// IngestionService extracts, chunks, embeds and indexes documents
type IngestionService struct {
	extractor   Extractor
	embedder    EmbeddingClient
	index       VectorIndex
	chunkCfg    ChunkConfig
	concurrency int
	uuidGen     UUIDGenerator
	now         func() time.Time
}

// NewIngestionService creates a new IngestionService instance
func NewIngestionService(extractor Extractor, embedder EmbeddingClient, index VectorIndex, cfg IngestionConfig) *IngestionService {
	return NewIngestionServiceWithUUIDGen(extractor, embedder, index, cfg, &DefaultUUIDGenerator{})
}

// NewIngestionServiceWithUUIDGen creates an IngestionService with a custom id source
func NewIngestionServiceWithUUIDGen(extractor Extractor, embedder EmbeddingClient, index VectorIndex, cfg IngestionConfig, uuidGen UUIDGenerator) *IngestionService {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultIngestConcurrency
	}
	return &IngestionService{
		extractor:   extractor,
		embedder:    embedder,
		index:       index,
		chunkCfg:    cfg.Chunk.normalized(),
		concurrency: cfg.Concurrency,
		uuidGen:     uuidGen,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Ingest processes every document independently. Results keep input order;
// a failing document never stops the others. The returned error is only
// set when the request itself is invalid.
func (s *IngestionService) Ingest(ctx context.Context, docs []domain.Document) ([]IngestResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "IngestionService.Ingest", telemetry.SpanAttributes{
		Operation: "ingest",
	})
	defer span.End()

	if len(docs) == 0 {
		return nil, domain.ErrNoDocuments
	}

	results := make([]IngestResult, len(docs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i := range docs {
		g.Go(func() error {
			results[i] = s.IngestDocument(gctx, docs[i])
			return nil
		})
	}
	_ = g.Wait()

	for _, r := range results {
		if r.Err != nil {
			log.Printf("ingest: %s failed: %v", r.Name, r.Err)
			telemetry.CaptureError(ctx, r.Err)
		} else {
			log.Printf("ingest: %s indexed (%d segments, %d chunks)", r.Name, r.SegmentCount, r.ChunkCount)
		}
	}

	return results, nil
}

// IngestDocument runs Extract, Chunk, Embed and a single Upsert for doc.
// Nothing is written unless every step succeeds.
func (s *IngestionService) IngestDocument(ctx context.Context, doc domain.Document) IngestResult {
	ctx, span := telemetry.StartSpan(ctx, "IngestionService.IngestDocument", telemetry.SpanAttributes{
		Document:  doc.Name,
		Operation: "ingest",
	})
	defer span.End()

	result := IngestResult{Name: doc.Name}

	if err := domain.ValidateDocument(&doc); err != nil {
		result.Err = domain.NewDomainErrorWithCause(domain.ErrCodeMalformedRequest, "invalid document", err)
		return result
	}

	extracted, err := s.extractor.Extract(ctx, doc)
	if err != nil {
		span.SetError(err)
		result.Err = err
		return result
	}
	result.SegmentCount = len(extracted.Segments)

	chunks := ChunkDocument(extracted, s.chunkCfg)
	result.ChunkCount = len(chunks)
	span.SetData("chunks", len(chunks))
	if len(chunks) == 0 {
		return result
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors, err := s.embedder.GenerateEmbeddings(ctx, texts)
	if err != nil {
		span.SetError(err)
		result.Err = err
		return result
	}
	if len(vectors) != len(chunks) {
		result.Err = domain.NewDomainError(domain.ErrCodeEmbeddingUnavailable,
			fmt.Sprintf("got %d embeddings for %d chunks", len(vectors), len(chunks)))
		return result
	}

	now := s.now()
	records := make([]domain.VectorRecord, len(chunks))
	for i, c := range chunks {
		records[i] = domain.VectorRecord{
			ID:        s.uuidGen.NewString(),
			Embedding: vectors[i],
			Text:      c.Text,
			Metadata: map[string]string{
				domain.MetaSource:     doc.Name,
				domain.MetaChunkIndex: strconv.Itoa(c.Index),
				domain.MetaMediaType:  string(doc.MediaType),
			},
			CreatedAt: now,
		}
	}

	if err := s.index.Upsert(ctx, records); err != nil {
		span.SetError(err)
		result.Err = domain.NewDomainErrorWithCause(domain.ErrCodeInternalError, "failed to store vectors", err)
		return result
	}

	return result
}

// ResetIndex removes every indexed record.
func (s *IngestionService) ResetIndex(ctx context.Context) error {
	ctx, span := telemetry.StartSpan(ctx, "IngestionService.ResetIndex", telemetry.SpanAttributes{
		Operation: "reset",
	})
	defer span.End()

	if err := s.index.Reset(ctx); err != nil {
		span.SetError(err)
		return domain.NewDomainErrorWithCause(domain.ErrCodeInternalError, "failed to reset index", err)
	}
	log.Println("index: cleared")
	return nil
}
