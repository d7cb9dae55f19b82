package service

import (
	"context"

	"github.com/google/uuid"

	"github.com/cloo-solutions/docchat/internal/domain"
	"github.com/cloo-solutions/docchat/internal/openai"
)

// Extractor turns a Document into text
type Extractor interface {
	Extract(ctx context.Context, doc domain.Document) (*domain.ExtractedText, error)
}

// EmbeddingClient defines the interface for generating embeddings
type EmbeddingClient interface {
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)
	GenerateEmbeddings(ctx context.Context, texts []string) ([][]float32, error)
}

// VectorIndex is the durable similarity store. Each call is atomic on its
// own; Reset racing Upsert or Query has no defined outcome.
type VectorIndex interface {
	Upsert(ctx context.Context, records []domain.VectorRecord) error
	Query(ctx context.Context, embedding []float32, k int, threshold float32) (domain.RetrievalResult, error)
	Reset(ctx context.Context) error
}

// ChatGateway is the synchronous side of the language model gateway
type ChatGateway interface {
	Complete(ctx context.Context, systemPrompt, userContent string) (string, error)
	CompleteWithHistory(ctx context.Context, systemPrompt string, history []domain.ChatTurn, userContent string) (string, error)
}

// AsyncGateway starts completions that are awaited later
type AsyncGateway interface {
	Go(ctx context.Context, systemPrompt, userContent string) *openai.Future
}

// SessionStore holds chat histories
type SessionStore interface {
	GetOrCreate(id string) string
	History(id string) []domain.ChatTurn
	AppendExchange(id, question, answer string)
}

// UUIDGenerator defines an interface for generating UUIDs
type UUIDGenerator interface {
	NewString() string
}

// DefaultUUIDGenerator uses google/uuid
type DefaultUUIDGenerator struct{}

// NewString generates a new UUID string
func (g *DefaultUUIDGenerator) NewString() string {
	return uuid.NewString()
}
