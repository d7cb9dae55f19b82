package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"

	openai "github.com/sashabaranov/go-openai"

	"github.com/cloo-solutions/docchat/internal/domain"
)

const (
	// DefaultEmbeddingModel is used when no embedding model is configured
	DefaultEmbeddingModel = openai.SmallEmbedding3
	// DefaultBatchSize bounds how many texts are sent per embeddings request
	DefaultBatchSize = 64
)

var (
	// ErrEmptyText is returned when text is empty
	ErrEmptyText = errors.New("text cannot be empty")
	// ErrWrongDimensions is returned when an embedding's length differs from
	// the dimension fixed for this process
	ErrWrongDimensions = errors.New("embedding has wrong dimensions")
	// ErrCountMismatch is returned when the API returns fewer vectors than inputs
	ErrCountMismatch = errors.New("embedding count does not match input count")
)

// EmbeddingAPI defines the interface for batch embedding generation
type EmbeddingAPI interface {
	CreateEmbeddings(ctx context.Context, texts []string) ([][]float32, error)
}

// Client generates embeddings through an OpenAI-compatible endpoint. The
// vector dimension is fixed by configuration or by the first response.
type Client struct {
	api       EmbeddingAPI
	batchSize int

	mu         sync.Mutex
	dimensions int
}

// OpenAIAdapter adapts go-openai to EmbeddingAPI.
type OpenAIAdapter struct {
	client     *openai.Client
	model      openai.EmbeddingModel
	dimensions int
}

// NewAPIClient builds a go-openai client for an OpenAI-compatible server.
func NewAPIClient(baseURL, apiKey string, httpClient *http.Client) *openai.Client {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	if httpClient != nil {
		cfg.HTTPClient = httpClient
	}
	return openai.NewClientWithConfig(cfg)
}

func NewOpenAIAdapter(client *openai.Client, model openai.EmbeddingModel, dimensions int) *OpenAIAdapter {
	if model == "" {
		model = DefaultEmbeddingModel
	}
	return &OpenAIAdapter{
		client:     client,
		model:      model,
		dimensions: dimensions,
	}
}

// CreateEmbeddings calls the embeddings endpoint, returning vectors in input order
func (a *OpenAIAdapter) CreateEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	resp, err := a.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input:      texts,
		Model:      a.model,
		Dimensions: a.dimensions,
	})
	if err != nil {
		return nil, err
	}

	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrCountMismatch, len(resp.Data), len(texts))
	}

	data := resp.Data
	sort.Slice(data, func(i, j int) bool { return data[i].Index < data[j].Index })

	out := make([][]float32, len(data))
	for i, d := range data {
		out[i] = d.Embedding
	}
	return out, nil
}

type Config struct {
	BaseURL             string
	APIKey              string
	EmbeddingModel      string
	EmbeddingDimensions int
	BatchSize           int
	HTTPClient          *http.Client
}

// NewClient creates an embeddings client for the official OpenAI endpoint.
func NewClient(apiKey string) *Client {
	return NewClientWithConfig(Config{APIKey: apiKey})
}

// NewClientWithConfig creates a new embeddings client with explicit configuration.
func NewClientWithConfig(cfg Config) *Client {
	api := NewOpenAIAdapter(
		NewAPIClient(cfg.BaseURL, cfg.APIKey, cfg.HTTPClient),
		openai.EmbeddingModel(cfg.EmbeddingModel),
		cfg.EmbeddingDimensions,
	)
	return NewClientWithAPI(api, cfg.EmbeddingDimensions, cfg.BatchSize)
}

// NewClientWithAPI wraps an arbitrary EmbeddingAPI.
func NewClientWithAPI(api EmbeddingAPI, dimensions, batchSize int) *Client {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Client{
		api:        api,
		batchSize:  batchSize,
		dimensions: dimensions,
	}
}

// Dimensions returns the fixed vector dimension, or 0 before the first call.
func (c *Client) Dimensions() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dimensions
}

// Probe embeds a fixed string to prove the model is reachable.
func (c *Client) Probe(ctx context.Context) error {
	_, err := c.GenerateEmbedding(ctx, "ping")
	return err
}

// GenerateEmbedding generates an embedding for the given text
func (c *Client) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, ErrEmptyText
	}

	vectors, err := c.GenerateEmbeddings(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// GenerateEmbeddings embeds texts in batches, preserving order.
func (c *Client) GenerateEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	for _, t := range texts {
		if t == "" {
			return nil, ErrEmptyText
		}
	}

	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += c.batchSize {
		end := min(start+c.batchSize, len(texts))

		vectors, err := c.api.CreateEmbeddings(ctx, texts[start:end])
		if err != nil {
			return nil, domain.NewDomainErrorWithCause(domain.ErrCodeEmbeddingUnavailable,
				"failed to create embedding", err)
		}
		if len(vectors) != end-start {
			return nil, domain.NewDomainErrorWithCause(domain.ErrCodeEmbeddingUnavailable,
				"failed to create embedding", ErrCountMismatch)
		}
		for _, v := range vectors {
			if err := c.checkDimensions(len(v)); err != nil {
				return nil, err
			}
		}
		out = append(out, vectors...)
	}

	return out, nil
}

func (c *Client) checkDimensions(n int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dimensions <= 0 {
		c.dimensions = n
		return nil
	}
	if n != c.dimensions {
		return fmt.Errorf("%w: got %d, expected %d", ErrWrongDimensions, n, c.dimensions)
	}
	return nil
}
