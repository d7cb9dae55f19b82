package config

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Prefix is prepended to every environment variable name
const Prefix = "DOCCHAT"

const (
	EmbeddingProviderLocal  = "local"
	EmbeddingProviderOpenAI = "openai"
)

type Config struct {
	Port        string `envconfig:"PORT" default:"8080"`
	Debug       bool   `envconfig:"DEBUG" default:"false"`
	Environment string `envconfig:"ENVIRONMENT" default:"development"`
	SentryDSN   string `envconfig:"SENTRY_DSN"`

	CORSAllowedOrigins []string `envconfig:"CORS_ALLOWED_ORIGINS"`
	MaxUploadBytes     int64    `envconfig:"MAX_UPLOAD_BYTES" default:"67108864"`

	// Postgres with pgvector when set, otherwise the SQLite index at IndexPath.
	DatabaseURL string `envconfig:"DATABASE_URL"`
	IndexPath   string `envconfig:"INDEX_PATH" default:"./db/index.db"`

	LLMBaseURL        string        `envconfig:"LLM_BASE_URL" default:"http://localhost:1234/v1"`
	LLMAPIKey         string        `envconfig:"LLM_API_KEY" default:"lm-studio"`
	LLMModel          string        `envconfig:"LLM_MODEL" default:"lmstudio-community/Meta-Llama-3-8B-Instruct-GGUF"`
	LLMTemperature    float32       `envconfig:"LLM_TEMPERATURE" default:"0.5"`
	LLMTimeout        time.Duration `envconfig:"LLM_TIMEOUT" default:"120s"`
	LLMMaxRetries     int           `envconfig:"LLM_MAX_RETRIES" default:"2"`
	LLMMaxConcurrency int           `envconfig:"LLM_MAX_CONCURRENCY" default:"4"`

	EmbeddingProvider   string `envconfig:"EMBEDDING_PROVIDER" default:"local"`
	EmbeddingBaseURL    string `envconfig:"EMBEDDING_BASE_URL"`
	EmbeddingAPIKey     string `envconfig:"EMBEDDING_API_KEY"`
	EmbeddingModel      string `envconfig:"EMBEDDING_MODEL"`
	EmbeddingDimensions int    `envconfig:"EMBEDDING_DIMENSIONS" default:"0"`
	EmbeddingBatchSize  int    `envconfig:"EMBEDDING_BATCH_SIZE" default:"64"`
	ModelDir            string `envconfig:"MODEL_DIR" default:"./models"`

	ChunkSize               int     `envconfig:"CHUNK_SIZE" default:"1000"`
	ChunkOverlap            int     `envconfig:"CHUNK_OVERLAP" default:"100"`
	RetrievalTopK           int     `envconfig:"RETRIEVAL_TOP_K" default:"10"`
	RetrievalScoreThreshold float32 `envconfig:"RETRIEVAL_SCORE_THRESHOLD" default:"0.1"`
	IngestConcurrency       int     `envconfig:"INGEST_CONCURRENCY" default:"4"`
	BatchMaxDocumentChars   int     `envconfig:"BATCH_MAX_DOCUMENT_CHARS" default:"24000"`
	PDFToTextPath           string  `envconfig:"PDFTOTEXT_PATH"`

	HistoryMaxTurns int           `envconfig:"HISTORY_MAX_TURNS" default:"100"`
	SessionTTL      time.Duration `envconfig:"SESSION_TTL" default:"24h"`

	StagingDir  string `envconfig:"STAGING_DIR" default:"./static/uploads"`
	S3Endpoint  string `envconfig:"S3_ENDPOINT"`
	S3AccessKey string `envconfig:"S3_ACCESS_KEY_ID"`
	S3SecretKey string `envconfig:"S3_SECRET_ACCESS_KEY"`
	S3Bucket    string `envconfig:"S3_BUCKET" default:"docchat-staging"`
	S3Region    string `envconfig:"S3_REGION" default:"us-east-1"`
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}
	cfg.EmbeddingProvider = strings.ToLower(strings.TrimSpace(cfg.EmbeddingProvider))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	return cfg
}

// Validate rejects settings the pipeline cannot run with.
func (c *Config) Validate() error {
	var errs []error

	if c.ChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("CHUNK_SIZE must be positive, got %d", c.ChunkSize))
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		errs = append(errs, fmt.Errorf("CHUNK_OVERLAP must be in [0, CHUNK_SIZE), got %d", c.ChunkOverlap))
	}
	if c.RetrievalTopK <= 0 {
		errs = append(errs, fmt.Errorf("RETRIEVAL_TOP_K must be positive, got %d", c.RetrievalTopK))
	}
	if c.RetrievalScoreThreshold < -1 || c.RetrievalScoreThreshold > 1 {
		errs = append(errs, fmt.Errorf("RETRIEVAL_SCORE_THRESHOLD must be in [-1, 1], got %g", c.RetrievalScoreThreshold))
	}
	if c.EmbeddingDimensions < 0 {
		errs = append(errs, fmt.Errorf("EMBEDDING_DIMENSIONS must not be negative, got %d", c.EmbeddingDimensions))
	}
	switch c.EmbeddingProvider {
	case EmbeddingProviderLocal, EmbeddingProviderOpenAI:
	default:
		errs = append(errs, fmt.Errorf("EMBEDDING_PROVIDER must be %q or %q, got %q",
			EmbeddingProviderLocal, EmbeddingProviderOpenAI, c.EmbeddingProvider))
	}

	return errors.Join(errs...)
}

func (c *Config) HasS3() bool {
	return c.S3Endpoint != "" && c.S3AccessKey != "" && c.S3SecretKey != ""
}

func (c *Config) HasPostgres() bool {
	return c.DatabaseURL != ""
}

func (c *Config) UsesOpenAIEmbeddings() bool {
	return c.EmbeddingProvider == EmbeddingProviderOpenAI
}

// EmbeddingEndpoint falls back to the language model server when no
// dedicated embedding endpoint is configured.
func (c *Config) EmbeddingEndpoint() (baseURL, apiKey string) {
	baseURL, apiKey = c.EmbeddingBaseURL, c.EmbeddingAPIKey
	if baseURL == "" {
		baseURL = c.LLMBaseURL
	}
	if apiKey == "" {
		apiKey = c.LLMAPIKey
	}
	return baseURL, apiKey
}
