// Package main is the entry point for the support desk API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/ruriclub/supportdesk/internal/config"
	"github.com/ruriclub/supportdesk/internal/handler"
	"github.com/ruriclub/supportdesk/internal/llm"
	natsclient "github.com/ruriclub/supportdesk/internal/nats"
	"github.com/ruriclub/supportdesk/internal/service"
	"github.com/ruriclub/supportdesk/internal/store"
	"github.com/ruriclub/supportdesk/pkg/logger"
	"github.com/ruriclub/supportdesk/pkg/tracing"
)

func main() {
	cfg := config.Load()

	var (
		log *logger.Logger
		err error
	)
	if cfg.Env == "development" {
		log, err = logger.NewDevelopment()
	} else {
		log, err = logger.New(cfg.LogLevel)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger.Install(log)

	log.Info("starting API server", zap.String("env", cfg.Env))

	ctx := context.Background()
	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "supportdesk-api", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer tracing.Shutdown(ctx, tp)
		}
	}

	// Storage: MySQL when a DSN is configured, in-memory otherwise.
	var st store.Store
	if cfg.DatabaseDSN != "" {
		st, err = store.OpenMySQL(ctx, cfg.DatabaseDSN)
		if err != nil {
			log.Fatal("failed to open database", zap.Error(err))
		}
		log.Info("using MySQL store")
	} else {
		st = store.NewMemory()
		log.Warn("DATABASE_DSN not set, using in-memory store")
	}
	defer st.Close()

	if cfg.SeedDemoData {
		added, err := service.SeedDemo(ctx, st)
		if err != nil {
			log.Fatal("failed to seed demo data", zap.Error(err))
		}
		log.Info("demo accounts ready", zap.Int("added", added))
	}

	// Support events are optional.
	var (
		natsClient *natsclient.Client
		events     service.EventPublisher
		reader     handler.EventReader
	)
	if cfg.NATSURL != "" {
		natsClient, err = natsclient.Connect(ctx, natsclient.Config{
			URL:      cfg.NATSURL,
			CAFile:   cfg.NATSCAFile,
			CertFile: cfg.NATSCertFile,
			KeyFile:  cfg.NATSKeyFile,
			Token:    cfg.NATSToken,
		}, log)
		if err != nil {
			log.Fatal("failed to connect to NATS", zap.Error(err))
		}
		defer natsClient.Close()

		streamManager := natsclient.NewStreamManager(natsClient)
		if err := streamManager.EnsureStream(ctx); err != nil {
			log.Fatal("failed to ensure stream", zap.Error(err))
		}
		events = streamManager
		reader = streamManager
	}

	llmClient, err := llm.FromKeys(llm.Provider(cfg.DefaultLLM), cfg.AnthropicAPIKey, cfg.OpenAIAPIKey, llm.Options{
		Model:   cfg.LLMModel,
		BaseURL: cfg.LLMBaseURL,
	})
	if err != nil {
		log.Warn("failed to create LLM client, fallback disabled", zap.Error(err))
		llmClient = nil
	}
	if llmClient != nil {
		log.Info("LLM fallback enabled", zap.String("provider", llmClient.Name()))
	}

	faq := service.DefaultFAQ
	if cfg.FAQFile != "" {
		faq, err = service.LoadFAQ(cfg.FAQFile)
		if err != nil {
			log.Fatal("failed to load FAQ", zap.Error(err))
		}
	}

	authSvc := service.NewAuthService(st, cfg.JWTSecret, cfg.JWTExpiration, log)
	chatSvc := service.NewChatService(st, service.NewResponder(faq, llmClient, log), events, service.ChatOptions{
		AIAgentID:     cfg.AIAgentID,
		AssignableIDs: cfg.AssignableIDs,
	}, log)

	router := handler.NewRouter(handler.RouterConfig{
		Health:             handler.NewHealthHandler(st, natsClient),
		Auth:               handler.NewAuthHandler(authSvc, log),
		Chat:               handler.NewChatHandler(chatSvc, reader, log),
		JWTSecret:          cfg.JWTSecret,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		RateLimitRequests:  cfg.RateLimitRequests,
		RateLimitWindow:    cfg.RateLimitWindow,
		Logger:             log,
	})

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info("server listening", zap.String("port", cfg.ServerPort))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	log.Info("server stopped")
}
