package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/syntellix/syntellix-go/api"
	"github.com/syntellix/syntellix-go/internal/agent"
	"github.com/syntellix/syntellix-go/internal/chat"
	"github.com/syntellix/syntellix-go/internal/config"
	"github.com/syntellix/syntellix-go/internal/conversation"
	"github.com/syntellix/syntellix-go/internal/database"
	"github.com/syntellix/syntellix-go/internal/llm"
	"github.com/syntellix/syntellix-go/internal/log"
	"github.com/syntellix/syntellix-go/internal/retrieval"
	"github.com/syntellix/syntellix-go/internal/vector"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe() error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := log.New(log.Config{JSON: true})
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	pool, err := database.Open(ctx, cfg.PostgresConnectionString())
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer pool.Close()

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer func() { _ = redisClient.Close() }()

	cache := conversation.NewCache(redisClient, cfg.RAG.CacheLimit, cfg.RAG.CacheTTL, logger)
	store := conversation.NewStore(pool, cache, logger)
	agents := agent.NewStore(pool, logger)

	embedder, err := llm.NewGeminiEmbedder(ctx, cfg.Model.EmbedAPIKey, cfg.Model.EmbedModel, cfg.Model.EmbedDimension)
	if err != nil {
		return fmt.Errorf("creating embedder: %w", err)
	}
	chatModel, err := llm.NewChatModel(cfg.Model.ChatProvider, llm.ProviderConfig{
		Model:       cfg.Model.ChatModel,
		APIKey:      cfg.Model.ChatAPIKey,
		Temperature: cfg.Model.Temperature,
		MaxTokens:   cfg.Model.MaxTokens,
	})
	if err != nil {
		return fmt.Errorf("creating chat model: %w", err)
	}
	reranker := llm.NewHTTPReranker(cfg.Model.RerankBaseURL)

	indexes := vector.NewPGProvider(pool, cfg.Model.EmbedDimension, logger)
	engine := retrieval.NewEngine(indexes, embedder, reranker, logger)
	orchestrator := chat.NewOrchestrator(agents, store, engine, chatModel, cfg.RAG.CacheLimit, logger)

	server := api.NewServer(pool, store, agents, orchestrator, logger)
	logger.Info("engine ready",
		"chat_provider", cfg.Model.ChatProvider,
		"embed_dimension", cfg.Model.EmbedDimension)
	return server.Run(ctx, cfg.ListenAddr)
}
