package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/sync/semaphore"

	"github.com/cloo-solutions/docchat/internal/domain"
	"github.com/cloo-solutions/docchat/internal/telemetry"
)

const (
	DefaultMaxRetries     = 2
	DefaultTimeout        = 120 * time.Second
	DefaultMaxConcurrency = 4

	codeContextLengthExceeded = "context_length_exceeded"
)

// ChatAPI is the subset of the go-openai client used by the Gateway
type ChatAPI interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

type GatewayConfig struct {
	BaseURL        string
	APIKey         string
	Model          string
	Temperature    float32
	Timeout        time.Duration
	MaxRetries     int
	MaxConcurrency int
	HTTPClient     *http.Client
}

// Gateway sends chat completions to the language model with bounded retry.
// Transient failures are retried up to MaxRetries extra attempts; every
// attempt gets its own Timeout.
type Gateway struct {
	api         ChatAPI
	model       string
	temperature float32
	timeout     time.Duration
	maxRetries  int
	sem         *semaphore.Weighted

	newBackOff func() backoff.BackOff
}

// NewGateway creates a Gateway for an OpenAI-compatible chat endpoint.
func NewGateway(cfg GatewayConfig) *Gateway {
	return NewGatewayWithAPI(NewAPIClient(cfg.BaseURL, cfg.APIKey, cfg.HTTPClient), cfg)
}

// NewGatewayWithAPI creates a Gateway over a custom ChatAPI.
func NewGatewayWithAPI(api ChatAPI, cfg GatewayConfig) *Gateway {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = DefaultMaxConcurrency
	}
	return &Gateway{
		api:         api,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		timeout:     cfg.Timeout,
		maxRetries:  cfg.MaxRetries,
		sem:         semaphore.NewWeighted(int64(cfg.MaxConcurrency)),
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 500 * time.Millisecond
			b.MaxInterval = 5 * time.Second
			return b
		},
	}
}

// Model returns the configured model identifier.
func (g *Gateway) Model() string {
	return g.model
}

// Complete sends one system prompt and one user message.
func (g *Gateway) Complete(ctx context.Context, systemPrompt, userContent string) (string, error) {
	return g.CompleteWithHistory(ctx, systemPrompt, nil, userContent)
}

// CompleteWithHistory sends the system prompt, prior turns and the user message.
func (g *Gateway) CompleteWithHistory(ctx context.Context, systemPrompt string, history []domain.ChatTurn, userContent string) (string, error) {
	ctx, span := telemetry.StartSpan(ctx, "Gateway.Complete", telemetry.SpanAttributes{
		Model:     g.model,
		Operation: "llm",
	})
	defer span.End()

	messages := make([]openai.ChatCompletionMessage, 0, len(history)+2)
	if systemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: systemPrompt,
		})
	}
	for _, turn := range history {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    toOpenAIRole(turn.Role),
			Content: turn.Content,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: userContent,
	})

	req := openai.ChatCompletionRequest{
		Model:       g.model,
		Messages:    messages,
		Temperature: g.temperature,
	}

	var answer string
	op := func() error {
		out, err := g.attempt(ctx, req)
		if err != nil {
			return err
		}
		answer = out
		return nil
	}

	attempts := 1
	notify := func(err error, wait time.Duration) {
		attempts++
		telemetry.AddBreadcrumb(ctx, "llm", fmt.Sprintf("attempt %d failed, retrying in %s: %v", attempts-1, wait, err))
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(g.newBackOff(), uint64(g.maxRetries)), ctx)
	if err := backoff.RetryNotify(op, policy, notify); err != nil {
		span.SetData("attempts", attempts)
		// cancellation while waiting between attempts comes back bare
		if domain.Code(err) == "" {
			err = unavailable(err)
		}
		return "", err
	}
	span.SetData("attempts", attempts)
	return answer, nil
}

func (g *Gateway) attempt(ctx context.Context, req openai.ChatCompletionRequest) (string, error) {
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return "", backoff.Permanent(unavailable(err))
	}
	defer g.sem.Release(1)

	attemptCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	resp, err := g.api.CreateChatCompletion(attemptCtx, req)
	if err != nil {
		if ctx.Err() != nil {
			return "", backoff.Permanent(unavailable(err))
		}
		return "", classify(err)
	}

	if len(resp.Choices) == 0 {
		return "", backoff.Permanent(domain.NewDomainError(domain.ErrCodeGatewayProtocol,
			"language model response has no choices"))
	}
	msg := resp.Choices[0].Message
	if msg.Content == "" && len(msg.ToolCalls) == 0 && msg.FunctionCall == nil {
		return "", backoff.Permanent(domain.NewDomainError(domain.ErrCodeGatewayProtocol,
			"language model response has no content"))
	}
	return msg.Content, nil
}

// classify maps a client error to a domain error. Permanent errors stop the
// retry loop.
func classify(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if isContextLengthError(apiErr) {
			return backoff.Permanent(domain.NewDomainErrorWithCause(domain.ErrCodeContextTooLarge,
				"prompt exceeds the model context window", err))
		}
		return byStatus(apiErr.HTTPStatusCode, err)
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return byStatus(reqErr.HTTPStatusCode, err)
	}

	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return backoff.Permanent(domain.NewDomainErrorWithCause(domain.ErrCodeGatewayProtocol,
			"malformed language model response", err))
	}

	return unavailable(err)
}

func byStatus(status int, err error) error {
	if status == http.StatusTooManyRequests || status >= http.StatusInternalServerError {
		return unavailable(err)
	}
	return backoff.Permanent(domain.NewDomainErrorWithCause(domain.ErrCodeGatewayProtocol,
		fmt.Sprintf("language model rejected request (status %d)", status), err))
}

func isContextLengthError(apiErr *openai.APIError) bool {
	if code, ok := apiErr.Code.(string); ok && code == codeContextLengthExceeded {
		return true
	}
	msg := strings.ToLower(apiErr.Message)
	return strings.Contains(msg, "context length") || strings.Contains(msg, "context window")
}

func unavailable(err error) error {
	return domain.NewDomainErrorWithCause(domain.ErrCodeGatewayUnavailable, "language model unavailable", err)
}

func toOpenAIRole(r domain.Role) string {
	if r == domain.RoleAssistant {
		return openai.ChatMessageRoleAssistant
	}
	return openai.ChatMessageRoleUser
}

// Future is the pending result of an asynchronous completion.
type Future struct {
	done   chan struct{}
	answer string
	err    error
}

// Go starts a completion in the background.
func (g *Gateway) Go(ctx context.Context, systemPrompt, userContent string) *Future {
	f := &Future{done: make(chan struct{})}
	go func() {
		defer close(f.done)
		f.answer, f.err = g.Complete(ctx, systemPrompt, userContent)
	}()
	return f
}

// Await blocks until the completion finishes or ctx is done.
func (f *Future) Await(ctx context.Context) (string, error) {
	select {
	case <-f.done:
		return f.answer, f.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
