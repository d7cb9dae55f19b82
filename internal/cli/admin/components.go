package admin

import (
	"context"
	"fmt"
	"log"

	"github.com/cloo-solutions/docchat/internal/config"
	"github.com/cloo-solutions/docchat/internal/database"
	"github.com/cloo-solutions/docchat/internal/embedding"
	"github.com/cloo-solutions/docchat/internal/extract"
	"github.com/cloo-solutions/docchat/internal/openai"
	"github.com/cloo-solutions/docchat/internal/repository"
	"github.com/cloo-solutions/docchat/internal/service"
	"github.com/cloo-solutions/docchat/internal/storage"
)

// vectorIndex is implemented by both index backends.
type vectorIndex interface {
	service.VectorIndex
	Count(ctx context.Context) (int, error)
}

type embedder interface {
	service.EmbeddingClient
	Probe(ctx context.Context) error
}

// components are the pieces shared by serve, ingest and index.
type components struct {
	cfg       *config.Config
	index     vectorIndex
	extractor *extract.Registry
	closers   []func()
}

func (c *components) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
	c.closers = nil
}

// openIndex connects to Postgres when DATABASE_URL is set and otherwise
// opens the SQLite index file.
func openIndex(ctx context.Context, cfg *config.Config, migrate bool) (*components, error) {
	c := &components{
		cfg:       cfg,
		extractor: newExtractor(cfg),
	}

	if cfg.HasPostgres() {
		pool, err := database.NewPool(ctx, database.Config{URL: cfg.DatabaseURL, ConnectAttempts: 5})
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		c.closers = append(c.closers, pool.Close)
		log.Println("connected to database")

		if migrate {
			if err := database.Migrate(cfg.DatabaseURL); err != nil {
				c.Close()
				return nil, fmt.Errorf("failed to run migrations: %w", err)
			}
		}
		c.index = repository.NewVectorRecordRepository(pool)
		return c, nil
	}

	idx, err := repository.OpenSQLiteVectorIndex(cfg.IndexPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open index: %w", err)
	}
	c.closers = append(c.closers, func() {
		if err := idx.Close(); err != nil {
			log.Printf("failed to close index: %v", err)
		}
	})
	log.Printf("using sqlite index at %s", idx.Path())
	c.index = idx
	return c, nil
}

func newExtractor(cfg *config.Config) *extract.Registry {
	if cfg.PDFToTextPath == "" {
		return extract.NewDefaultRegistry("")
	}
	fallback := extract.NewPdftotextExtractor(cfg.PDFToTextPath, nil)
	if !fallback.Available() {
		log.Printf("warning: %s not found, PDF fallback disabled", fallback.Binary())
		return extract.NewDefaultRegistry("")
	}
	return extract.NewRegistry(extract.NewTextExtractor(), extract.NewPDFExtractorWithFallback(fallback))
}

// newEmbedder builds the configured embedding provider and proves it works.
// The returned closer releases model resources.
func newEmbedder(ctx context.Context, cfg *config.Config) (embedder, func(), error) {
	var (
		emb     embedder
		closeFn = func() {}
	)

	if cfg.UsesOpenAIEmbeddings() {
		baseURL, apiKey := cfg.EmbeddingEndpoint()
		emb = openai.NewClientWithConfig(openai.Config{
			BaseURL:             baseURL,
			APIKey:              apiKey,
			EmbeddingModel:      cfg.EmbeddingModel,
			EmbeddingDimensions: cfg.EmbeddingDimensions,
			BatchSize:           cfg.EmbeddingBatchSize,
		})
	} else {
		local, err := embedding.NewLocalEmbedder(cfg.ModelDir, cfg.EmbeddingModel, cfg.EmbeddingBatchSize)
		if err != nil {
			return nil, closeFn, err
		}
		emb = local
		closeFn = func() {
			if err := local.Close(); err != nil {
				log.Printf("failed to release embedding model: %v", err)
			}
		}
	}

	if err := emb.Probe(ctx); err != nil {
		closeFn()
		return nil, func() {}, fmt.Errorf("embedding provider %s: %w", cfg.EmbeddingProvider, err)
	}
	log.Printf("embedding provider %s ready", cfg.EmbeddingProvider)
	return emb, closeFn, nil
}

func newGateway(cfg *config.Config) *openai.Gateway {
	return openai.NewGateway(openai.GatewayConfig{
		BaseURL:        cfg.LLMBaseURL,
		APIKey:         cfg.LLMAPIKey,
		Model:          cfg.LLMModel,
		Temperature:    cfg.LLMTemperature,
		Timeout:        cfg.LLMTimeout,
		MaxRetries:     cfg.LLMMaxRetries,
		MaxConcurrency: cfg.LLMMaxConcurrency,
	})
}

func newStager(ctx context.Context, cfg *config.Config) (storage.Stager, error) {
	if !cfg.HasS3() {
		stager, err := storage.NewLocalStager(cfg.StagingDir)
		if err != nil {
			return nil, fmt.Errorf("failed to create staging directory: %w", err)
		}
		return stager, nil
	}

	stager, err := storage.NewS3Stager(ctx, storage.S3Config{
		Endpoint:        cfg.S3Endpoint,
		Region:          cfg.S3Region,
		AccessKeyID:     cfg.S3AccessKey,
		SecretAccessKey: cfg.S3SecretKey,
		Bucket:          cfg.S3Bucket,
		UsePathStyle:    true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 client: %w", err)
	}
	if err := stager.EnsureBucket(ctx); err != nil {
		return nil, fmt.Errorf("failed to ensure S3 bucket: %w", err)
	}
	log.Printf("S3 staging bucket '%s' ready", cfg.S3Bucket)
	return stager, nil
}

func ingestionConfig(cfg *config.Config) service.IngestionConfig {
	return service.IngestionConfig{
		Chunk: service.ChunkConfig{
			MaxChars: cfg.ChunkSize,
			Overlap:  cfg.ChunkOverlap,
		},
		Concurrency: cfg.IngestConcurrency,
	}
}
