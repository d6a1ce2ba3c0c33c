package cmd

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/syntellix/syntellix-go/internal/config"
	"github.com/syntellix/syntellix-go/internal/database"
	"github.com/syntellix/syntellix-go/internal/imagestore"
	"github.com/syntellix/syntellix-go/internal/indexing"
	"github.com/syntellix/syntellix-go/internal/llm"
	"github.com/syntellix/syntellix-go/internal/log"
	"github.com/syntellix/syntellix-go/internal/vector"
)

var (
	indexTenantID        int64
	indexKnowledgeBaseID int64
	indexDocumentID      int64
	indexConcurrency     int
	indexRate            float64
)

var indexCmd = &cobra.Command{
	Use:   "index <document.json>",
	Short: "Index a parsed document into a knowledge base",
	Long: `Index reads a parsed document from a JSON file and runs it through the
indexing pipeline: each chunk is situated within the full document by the
chat model, embedded, and written to the tenant's vector index.

The input file format:

  {
    "file_name": "handbook.pdf",
    "document_text": "full text of the document",
    "chunks": [
      {"content": "chunk text", "image": "<base64, optional>"}
    ]
  }`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runIndex(args[0])
	},
}

func init() {
	indexCmd.Flags().Int64Var(&indexTenantID, "tenant", 0, "tenant ID (required)")
	indexCmd.Flags().Int64Var(&indexKnowledgeBaseID, "knowledge-base", 0, "knowledge base ID (required)")
	indexCmd.Flags().Int64Var(&indexDocumentID, "document", 0, "document ID (required)")
	indexCmd.Flags().IntVar(&indexConcurrency, "concurrency", 4, "parallel chunk workers")
	indexCmd.Flags().Float64Var(&indexRate, "rate", 0, "model calls per second, 0 for unlimited")
	_ = indexCmd.MarkFlagRequired("tenant")
	_ = indexCmd.MarkFlagRequired("knowledge-base")
	_ = indexCmd.MarkFlagRequired("document")
	rootCmd.AddCommand(indexCmd)
}

// indexInput is the on-disk document format accepted by the index command.
type indexInput struct {
	FileName     string `json:"file_name"`
	DocumentText string `json:"document_text"`
	Chunks       []struct {
		Content string `json:"content"`
		Image   string `json:"image,omitempty"`
	} `json:"chunks"`
}

func runIndex(path string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := log.New(log.Config{})
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading document file: %w", err)
	}
	var input indexInput
	if err := json.Unmarshal(data, &input); err != nil {
		return fmt.Errorf("parsing document file: %w", err)
	}

	chunks := make([]indexing.RawChunk, 0, len(input.Chunks))
	for i, c := range input.Chunks {
		chunk := indexing.RawChunk{Content: c.Content}
		if c.Image != "" {
			img, err := base64.StdEncoding.DecodeString(c.Image)
			if err != nil {
				return fmt.Errorf("decoding image for chunk %d: %w", i, err)
			}
			chunk.Image = img
		}
		chunks = append(chunks, chunk)
	}

	pool, err := database.Open(ctx, cfg.PostgresConnectionString())
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer pool.Close()

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

	images, err := imagestore.New(cfg.ImageDir)
	if err != nil {
		return fmt.Errorf("opening image store: %w", err)
	}

	pipeline := indexing.NewPipeline(
		vector.NewPGProvider(pool, cfg.Model.EmbedDimension, logger),
		embedder,
		indexing.NewContextualizer(chatModel),
		images,
		indexing.Options{
			Concurrency:         indexConcurrency,
			ModelCallsPerSecond: indexRate,
		},
		logger,
	)

	result, err := pipeline.IndexDocument(ctx, indexing.Request{
		TenantID:        indexTenantID,
		KnowledgeBaseID: indexKnowledgeBaseID,
		DocumentID:      indexDocumentID,
		FileName:        input.FileName,
		DocumentText:    input.DocumentText,
		Chunks:          chunks,
		Progress: func(fraction float64, message string) {
			fmt.Printf("%3.0f%%  %s\n", fraction*100, message)
		},
	})
	if err != nil {
		return fmt.Errorf("indexing %s: %w", input.FileName, err)
	}

	fmt.Printf("indexed %d nodes (%d chunk errors)\n", result.NodeCount, len(result.ChunkErrors))
	for _, msg := range result.ChunkErrors {
		fmt.Println("  " + msg)
	}
	return nil
}
