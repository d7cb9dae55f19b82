package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/cloo-solutions/docchat/internal/api/handlers"
	"github.com/cloo-solutions/docchat/internal/domain"
	"github.com/cloo-solutions/docchat/internal/service"
	"github.com/cloo-solutions/docchat/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockIngester struct {
	mock.Mock
}

func (m *MockIngester) Ingest(ctx context.Context, docs []domain.Document) ([]service.IngestResult, error) {
	args := m.Called(ctx, docs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]service.IngestResult), args.Error(1)
}

func (m *MockIngester) ResetIndex(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

type MockStager struct {
	mock.Mock
}

func (m *MockStager) StageDocuments(ctx context.Context, uploads []service.Upload) ([]domain.Document, error) {
	args := m.Called(ctx, uploads)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Document), args.Error(1)
}

type MockChatService struct {
	mock.Mock
}

func (m *MockChatService) Ask(ctx context.Context, in service.AskInput) (*service.AskOutput, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.AskOutput), args.Error(1)
}

func (m *MockChatService) AskModel(ctx context.Context, question string) (string, error) {
	args := m.Called(ctx, question)
	return args.String(0), args.Error(1)
}

type MockArchiver struct {
	mock.Mock
}

func (m *MockArchiver) Archive(ctx context.Context, in service.BatchInput) ([]byte, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

type testRouter struct {
	handler  http.Handler
	ingester *MockIngester
	chat     *MockChatService
	sessions *session.Store
}

func setupRouter(maxBody int64) *testRouter {
	ingester := new(MockIngester)
	stager := new(MockStager)
	chat := new(MockChatService)
	archiver := new(MockArchiver)
	sessions := session.NewStore(0)

	cfg := RouterConfig{
		DocumentHandler: handlers.NewDocumentHandler(stager, ingester),
		ChatHandler:     handlers.NewChatHandler(chat),
		BatchHandler:    handlers.NewBatchHandler(stager, archiver),
		SessionHandler:  handlers.NewSessionHandler(sessions),
		MaxBodyBytes:    maxBody,
	}

	return &testRouter{
		handler:  NewRouter(cfg),
		ingester: ingester,
		chat:     chat,
		sessions: sessions,
	}
}

func TestRouter_HealthEndpoint(t *testing.T) {
	tr := setupRouter(0)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()

	tr.handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
	var resp map[string]interface{}
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	require.NoError(t, err)
	data := resp["data"].(map[string]interface{})
	assert.Equal(t, "ok", data["status"])
}

func TestRouter_ResetAliases(t *testing.T) {
	tr := setupRouter(0)
	tr.ingester.On("ResetIndex", mock.Anything).Return(nil).Twice()

	for _, route := range []struct{ method, path string }{
		{http.MethodPost, "/clear_db"},
		{http.MethodDelete, "/index"},
	} {
		t.Run(route.method+" "+route.path, func(t *testing.T) {
			w := httptest.NewRecorder()
			tr.handler.ServeHTTP(w, httptest.NewRequest(route.method, route.path, nil))
			assert.Equal(t, http.StatusOK, w.Code)
		})
	}

	tr.ingester.AssertExpectations(t)
}

func TestRouter_AskDocuments_SessionHeader(t *testing.T) {
	tr := setupRouter(0)
	tr.chat.On("Ask", mock.Anything, service.AskInput{SessionID: "s-9", Question: "hi"}).
		Return(&service.AskOutput{Answer: "hello", SessionID: "s-9"}, nil)

	req := httptest.NewRequest(http.MethodPost, "/ask_documents", strings.NewReader(`{"query":"hi"}`))
	req.Header.Set("X-Session-ID", "s-9")
	w := httptest.NewRecorder()

	tr.handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "s-9", w.Header().Get("X-Session-ID"))
	tr.chat.AssertExpectations(t)
}

func TestRouter_SessionRoutes(t *testing.T) {
	tr := setupRouter(0)
	tr.sessions.AppendExchange("s-1", "q", "a")

	w := httptest.NewRecorder()
	tr.handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/sessions/s-1/history", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"content":"q"`)

	w = httptest.NewRecorder()
	tr.handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/sessions/s-1/clear", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, tr.sessions.History("s-1"))

	w = httptest.NewRecorder()
	tr.handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/sessions/s-1/history", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), `"content":"q"`)

	w = httptest.NewRecorder()
	tr.handler.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/sessions/s-1", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = httptest.NewRecorder()
	tr.handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/sessions/s-1/history", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRouter_CORSPreflight(t *testing.T) {
	tr := setupRouter(0)

	req := httptest.NewRequest(http.MethodOptions, "/ask_documents", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "Content-Type")
	w := httptest.NewRecorder()

	tr.handler.ServeHTTP(w, req)

	assert.Less(t, w.Code, 300)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestRouter_MaxBody(t *testing.T) {
	tr := setupRouter(16)

	req := httptest.NewRequest(http.MethodPost, "/ask_llm", strings.NewReader(`{"query":"`+strings.Repeat("x", 64)+`"}`))
	w := httptest.NewRecorder()

	tr.handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	tr.chat.AssertNotCalled(t, "AskModel", mock.Anything, mock.Anything)
}

func TestRouter_UnknownRoute(t *testing.T) {
	tr := setupRouter(0)

	w := httptest.NewRecorder()
	tr.handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/projects", nil))

	assert.Equal(t, http.StatusNotFound, w.Code)
}
