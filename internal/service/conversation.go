package service

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"

	"github.com/cloo-solutions/docchat/internal/domain"
	"github.com/cloo-solutions/docchat/internal/telemetry"
)

const (
	reformulateInstruction = "Given the above conversation, generate a search query to lookup relevant documents in order to get information relevant to the conversation"

	groundedSystemPrompt = "You are a technical assistant who is good at searching and analyzing documents. If you do not have an answer from the provided information then say so."

	directSystemPrompt = "You are a Helpful Assistant who is able to read documents and provide in-depth analysis."

	DefaultTopK           = 10
	DefaultScoreThreshold = float32(0.1)
)

// RetrievalConfig controls the similarity search step
type RetrievalConfig struct {
	TopK           int
	ScoreThreshold float32
}

// AskInput is one conversational query
type AskInput struct {
	SessionID string
	Question  string
}

// Source identifies a retrieved chunk used as context
type Source struct {
	Name       string  `json:"name"`
	ChunkIndex int     `json:"chunk_index"`
	Score      float32 `json:"score"`
}

// AskOutput is the answer to a conversational query
type AskOutput struct {
	Answer          string
	SessionID       string
	StandaloneQuery string
	Sources         []Source
}

// ConversationService answers questions from indexed documents, keeping
// per-session chat history
type ConversationService struct {
	gateway   ChatGateway
	embedder  EmbeddingClient
	index     VectorIndex
	sessions  SessionStore
	retrieval RetrievalConfig
}

// NewConversationService creates a new ConversationService instance
func NewConversationService(gateway ChatGateway, embedder EmbeddingClient, index VectorIndex, sessions SessionStore, cfg RetrievalConfig) *ConversationService {
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultTopK
	}
	return &ConversationService{
		gateway:   gateway,
		embedder:  embedder,
		index:     index,
		sessions:  sessions,
		retrieval: cfg,
	}
}

// Ask reformulates the question against the session history, retrieves
// context, synthesizes an answer and records the exchange. History is only
// touched after the answer exists.
func (s *ConversationService) Ask(ctx context.Context, in AskInput) (*AskOutput, error) {
	ctx, span := telemetry.StartSpan(ctx, "ConversationService.Ask", telemetry.SpanAttributes{
		SessionID: in.SessionID,
		Operation: "ask",
	})
	defer span.End()

	question := strings.TrimSpace(in.Question)
	if question == "" {
		return nil, domain.ErrEmptyQuestion
	}

	sessionID := s.sessions.GetOrCreate(in.SessionID)
	history := s.sessions.History(sessionID)

	standalone, err := s.reformulate(ctx, history, question)
	if err != nil {
		span.SetError(err)
		return nil, err
	}

	vector, err := s.embedder.GenerateEmbedding(ctx, standalone)
	if err != nil {
		span.SetError(err)
		return nil, err
	}

	results, err := s.index.Query(ctx, vector, s.retrieval.TopK, s.retrieval.ScoreThreshold)
	if err != nil {
		span.SetError(err)
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeInternalError, "failed to query index", err)
	}
	span.SetData("retrieved", len(results))

	answer, err := s.gateway.Complete(ctx, groundedSystemPrompt, groundedPrompt(question, results))
	if err != nil {
		span.SetError(err)
		return nil, generationFailure(err)
	}

	s.sessions.AppendExchange(sessionID, question, answer)
	log.Printf("ask: session=%s retrieved=%d", sessionID, len(results))

	return &AskOutput{
		Answer:          answer,
		SessionID:       sessionID,
		StandaloneQuery: standalone,
		Sources:         sourcesOf(results),
	}, nil
}

// AskModel sends the question straight to the model with no retrieval
// and no history.
func (s *ConversationService) AskModel(ctx context.Context, question string) (string, error) {
	ctx, span := telemetry.StartSpan(ctx, "ConversationService.AskModel", telemetry.SpanAttributes{
		Operation: "ask_llm",
	})
	defer span.End()

	if strings.TrimSpace(question) == "" {
		return "", domain.ErrEmptyQuestion
	}

	answer, err := s.gateway.Complete(ctx, directSystemPrompt, question)
	if err != nil {
		span.SetError(err)
		return "", generationFailure(err)
	}
	return answer, nil
}

// reformulate turns a follow-up into a standalone search query. With no
// history the question is already standalone.
func (s *ConversationService) reformulate(ctx context.Context, history []domain.ChatTurn, question string) (string, error) {
	if len(history) == 0 {
		return question, nil
	}

	out, err := s.gateway.CompleteWithHistory(ctx, "", history, question+"\n\n"+reformulateInstruction)
	if err != nil {
		return "", generationFailure(err)
	}

	out = strings.TrimSpace(out)
	if out == "" {
		return question, nil
	}
	return out, nil
}

func groundedPrompt(question string, results domain.RetrievalResult) string {
	return fmt.Sprintf("%s\nContext: %s\nAnswer:", question, strings.Join(results.Texts(), "\n\n"))
}

func sourcesOf(results domain.RetrievalResult) []Source {
	sources := make([]Source, len(results))
	for i, r := range results {
		idx, _ := strconv.Atoi(r.Record.Metadata[domain.MetaChunkIndex])
		sources[i] = Source{
			Name:       r.Record.Source(),
			ChunkIndex: idx,
			Score:      r.Score,
		}
	}
	return sources
}

// generationFailure wraps gateway errors. The gateway code stays reachable
// through errors.Is.
func generationFailure(err error) error {
	return domain.NewDomainErrorWithCause(domain.ErrCodeGenerationFailure, "failed to generate answer", err)
}
