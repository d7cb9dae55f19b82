package server

import (
	"net/http"

	"github.com/cloo-solutions/docchat/internal/api"
	"github.com/cloo-solutions/docchat/internal/api/handlers"
	"github.com/cloo-solutions/docchat/internal/api/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
)

const defaultMaxBodyBytes int64 = 64 << 20

type RouterConfig struct {
	DocumentHandler *handlers.DocumentHandler
	ChatHandler     *handlers.ChatHandler
	BatchHandler    *handlers.BatchHandler
	SessionHandler  *handlers.SessionHandler

	// MaxBodyBytes caps every request body. Zero means 64 MiB.
	MaxBodyBytes int64
	// AllowedOrigins defaults to any origin.
	AllowedOrigins []string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	maxBodyBytes := cfg.MaxBodyBytes
	if maxBodyBytes == 0 {
		maxBodyBytes = defaultMaxBodyBytes
	}
	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", middleware.SessionIDHeader, "X-Request-ID", "sentry-trace", "baggage"},
		ExposedHeaders: []string{middleware.SessionIDHeader, "X-Request-ID", "Content-Disposition"},
		MaxAge:         300,
	}))
	r.Use(middleware.RequestID)
	r.Use(middleware.SessionID)
	r.Use(middleware.SentryMiddleware)
	r.Use(middleware.AccessLog)
	r.Use(middleware.MaxBodyBytes(maxBodyBytes))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		api.Success(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Post("/upload_documents", cfg.DocumentHandler.Upload)
	r.Post("/clear_db", cfg.DocumentHandler.Reset)
	r.Delete("/index", cfg.DocumentHandler.Reset)

	r.Post("/ask_documents", cfg.ChatHandler.AskDocuments)
	r.Post("/ask_llm", cfg.ChatHandler.AskLLM)

	r.Post("/batch_file_query", cfg.BatchHandler.Query)

	r.Route("/sessions/{id}", func(r chi.Router) {
		r.Get("/history", cfg.SessionHandler.History)
		r.Post("/clear", cfg.SessionHandler.Clear)
		r.Delete("/", cfg.SessionHandler.Delete)
	})

	return r
}
