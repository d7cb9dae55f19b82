package service

import (
	"context"
	"hash/fnv"
	"strings"
	"sync"
	"unicode"

	goopenai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/mock"

	"github.com/cloo-solutions/docchat/internal/domain"
	"github.com/cloo-solutions/docchat/internal/extract"
	"github.com/cloo-solutions/docchat/internal/openai"
)

// hashEmbedder is a deterministic bag-of-words embedder
type hashEmbedder struct {
	dims int
}

func (e hashEmbedder) GenerateEmbedding(_ context.Context, text string) ([]float32, error) {
	v := make([]float32, e.dims)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		h := fnv.New32a()
		_, _ = h.Write([]byte(w))
		v[h.Sum32()%uint32(e.dims)]++
	}
	return v, nil
}

func (e hashEmbedder) GenerateEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := e.GenerateEmbedding(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// MockEmbeddingClient is a mock implementation of EmbeddingClient
type MockEmbeddingClient struct {
	mock.Mock
}

func (m *MockEmbeddingClient) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	args := m.Called(ctx, text)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]float32), args.Error(1)
}

func (m *MockEmbeddingClient) GenerateEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	args := m.Called(ctx, texts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([][]float32), args.Error(1)
}

// MockVectorIndex is a mock implementation of VectorIndex
type MockVectorIndex struct {
	mock.Mock
}

func (m *MockVectorIndex) Upsert(ctx context.Context, records []domain.VectorRecord) error {
	args := m.Called(ctx, records)
	return args.Error(0)
}

func (m *MockVectorIndex) Query(ctx context.Context, embedding []float32, k int, threshold float32) (domain.RetrievalResult, error) {
	args := m.Called(ctx, embedding, k, threshold)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(domain.RetrievalResult), args.Error(1)
}

func (m *MockVectorIndex) Reset(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

type gatewayCall struct {
	System  string
	History []domain.ChatTurn
	User    string
}

// fakeGateway records calls and answers through respond
type fakeGateway struct {
	mu      sync.Mutex
	calls   []gatewayCall
	respond func(call gatewayCall) (string, error)
}

func (g *fakeGateway) Complete(ctx context.Context, systemPrompt, userContent string) (string, error) {
	return g.CompleteWithHistory(ctx, systemPrompt, nil, userContent)
}

func (g *fakeGateway) CompleteWithHistory(_ context.Context, systemPrompt string, history []domain.ChatTurn, userContent string) (string, error) {
	call := gatewayCall{System: systemPrompt, History: history, User: userContent}
	g.mu.Lock()
	g.calls = append(g.calls, call)
	g.mu.Unlock()
	return g.respond(call)
}

func (g *fakeGateway) Calls() []gatewayCall {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]gatewayCall(nil), g.calls...)
}

// chatFunc adapts a function to openai.ChatAPI
type chatFunc func(ctx context.Context, req goopenai.ChatCompletionRequest) (goopenai.ChatCompletionResponse, error)

func (f chatFunc) CreateChatCompletion(ctx context.Context, req goopenai.ChatCompletionRequest) (goopenai.ChatCompletionResponse, error) {
	return f(ctx, req)
}

func chatReply(content string) goopenai.ChatCompletionResponse {
	return goopenai.ChatCompletionResponse{
		Choices: []goopenai.ChatCompletionChoice{
			{Message: goopenai.ChatCompletionMessage{Role: goopenai.ChatMessageRoleAssistant, Content: content}},
		},
	}
}

// newFakeLLM builds a real Gateway over fn with retries disabled
func newFakeLLM(fn chatFunc) *openai.Gateway {
	return openai.NewGatewayWithAPI(fn, openai.GatewayConfig{Model: "fake"})
}

func newTestRegistry() *extract.Registry {
	return extract.NewDefaultRegistry("")
}
