package admin

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cloo-solutions/docchat/internal/api/handlers"
	"github.com/cloo-solutions/docchat/internal/cli"
	"github.com/cloo-solutions/docchat/internal/config"
	"github.com/cloo-solutions/docchat/internal/jobs"
	"github.com/cloo-solutions/docchat/internal/server"
	"github.com/cloo-solutions/docchat/internal/service"
	"github.com/cloo-solutions/docchat/internal/session"
	"github.com/cloo-solutions/docchat/internal/telemetry"
	"github.com/spf13/cobra"
)

const janitorInterval = 5 * time.Minute

// ServeCmd returns the serve command
func ServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		Long:  "Start the docchat API server on the specified port",
		RunE:  runServe,
		Annotations: map[string]string{
			cli.EnvAnnotation: "DOCCHAT_PORT,DOCCHAT_DATABASE_URL,DOCCHAT_INDEX_PATH,DOCCHAT_LLM_BASE_URL,DOCCHAT_SENTRY_DSN",
		},
	}

	cmd.Flags().StringP("port", "p", "8080", "Port to listen on")
	cmd.Flags().Bool("no-migrate", false, "Skip automatic database migrations on startup")

	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if cfg.SentryDSN != "" {
		// 10% sampling in production, everything elsewhere
		sampleRate := 0.1
		if cfg.Environment == "development" {
			sampleRate = 1.0
		}

		shutdownTelemetry, err := telemetry.Init(telemetry.Config{
			DSN:              cfg.SentryDSN,
			Environment:      cfg.Environment,
			TracesSampleRate: sampleRate,
			Debug:            cfg.Debug,
		})
		if err != nil {
			log.Printf("telemetry init failed (continuing without tracing): %v", err)
		} else {
			defer shutdownTelemetry()
		}
	}

	if cmd.Flags().Changed("port") {
		cfg.Port, _ = cmd.Flags().GetString("port")
	}
	noMigrate, _ := cmd.Flags().GetBool("no-migrate")

	comps, err := openIndex(ctx, cfg, !noMigrate)
	if err != nil {
		return err
	}
	defer comps.Close()

	emb, closeEmbedder, err := newEmbedder(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeEmbedder()

	stager, err := newStager(ctx, cfg)
	if err != nil {
		return err
	}

	gateway := newGateway(cfg)
	log.Printf("language model %s at %s", gateway.Model(), cfg.LLMBaseURL)

	sessions := session.NewStore(cfg.HistoryMaxTurns)
	janitor := jobs.NewWorker("session-janitor", jobs.NewSessionJanitor(sessions, cfg.SessionTTL), janitorInterval)
	go janitor.Start(ctx)

	stagingSvc := service.NewStagingService(stager)
	ingestionSvc := service.NewIngestionService(comps.extractor, emb, comps.index, ingestionConfig(cfg))
	conversationSvc := service.NewConversationService(gateway, emb, comps.index, sessions, service.RetrievalConfig{
		TopK:           cfg.RetrievalTopK,
		ScoreThreshold: cfg.RetrievalScoreThreshold,
	})
	batchSvc := service.NewBatchService(comps.extractor, gateway, service.BatchConfig{
		MaxDocumentChars: cfg.BatchMaxDocumentChars,
	})

	router := server.NewRouter(server.RouterConfig{
		DocumentHandler: handlers.NewDocumentHandler(stagingSvc, ingestionSvc),
		ChatHandler:     handlers.NewChatHandler(conversationSvc),
		BatchHandler:    handlers.NewBatchHandler(stagingSvc, batchSvc),
		SessionHandler:  handlers.NewSessionHandler(sessions),
		MaxBodyBytes:    cfg.MaxUploadBytes,
		AllowedOrigins:  cfg.CORSAllowedOrigins,
	})

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		log.Printf("starting server on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("shutting down...")

	janitor.Stop()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelShutdown()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Println("server exited")
	return nil
}
