package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"openrouter-chat/internal/config"
	"openrouter-chat/internal/db"
	apihttp "openrouter-chat/internal/http"
	"openrouter-chat/internal/llm"
	"openrouter-chat/internal/repository"
	"openrouter-chat/internal/service"
	"openrouter-chat/internal/sessionid"
	"openrouter-chat/internal/telemetry"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := godotenv.Load(); err != nil {
		log.Printf("warning: loading .env: %v", err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal(err)
	}

	logger, err := telemetry.NewLogger(cfg.LogFile)
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	var svcOpts []service.ChatServiceOption
	svcOpts = append(svcOpts, service.WithTimeout(cfg.LLMTimeout))
	if cfg.TraceFile != "" {
		traceFile, err := telemetry.NewRotatingFile(cfg.TraceFile)
		if err != nil {
			logger.Fatal("trace file", zap.Error(err))
		}
		tracer, shutdown, err := telemetry.InitTracer(ctx, traceFile)
		if err != nil {
			logger.Fatal("init tracer", zap.Error(err))
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = shutdown(shutdownCtx)
		}()
		svcOpts = append(svcOpts, service.WithTracer(tracer))
	}

	conversations, cleanup, err := newConversationRepository(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("conversation store", zap.String("backend", cfg.StoreBackend), zap.Error(err))
	}
	defer cleanup()

	llmClient := llm.NewHTTPClient(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMTimeout, logger,
		llm.WithAttribution(cfg.AppReferer, cfg.AppTitle),
	)
	chatSvc := service.NewChatService(llmClient, conversations, logger, cfg.DefaultModel, svcOpts...)
	chatHandler := apihttp.NewChatHandler(logger, chatSvc, sessionid.ForMode(cfg.SessionIDMode))
	router := apihttp.NewRouter(logger, chatHandler)

	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("server shutdown", zap.Error(err))
		}
	}()

	logger.Info("starting server",
		zap.String("port", cfg.HTTPPort),
		zap.String("store", cfg.StoreBackend),
		zap.String("default_model", cfg.DefaultModel),
	)

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("server error", zap.Error(err))
	}
}

// newConversationRepository construye el store del servidor según STORE_BACKEND.
func newConversationRepository(ctx context.Context, cfg *config.Config, logger *zap.Logger) (repository.ConversationRepository, func(), error) {
	switch cfg.StoreBackend {
	case config.StoreBackendRedis:
		if cfg.RedisAddr == "" {
			return nil, nil, errors.New("REDIS_ADDR is required for the redis backend")
		}
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		ctxPing, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := client.Ping(ctxPing).Err(); err != nil {
			client.Close()
			return nil, nil, err
		}
		return repository.NewRedisConversationRepository(client, cfg.RedisTTL), func() { client.Close() }, nil

	case config.StoreBackendPostgres:
		if cfg.DatabaseURL == "" {
			return nil, nil, errors.New("DATABASE_URL is required for the postgres backend")
		}
		pool, err := db.NewPool(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		if err := db.Ping(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, err
		}
		repo := repository.NewPgConversationRepository(pool)
		if err := repo.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return repo, pool.Close, nil

	case config.StoreBackendMemory, "":
		return repository.NewMemoryConversationRepository(), func() {}, nil

	default:
		logger.Warn("unknown store backend, using memory", zap.String("backend", cfg.StoreBackend))
		return repository.NewMemoryConversationRepository(), func() {}, nil
	}
}
