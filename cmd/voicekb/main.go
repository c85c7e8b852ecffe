// Package main provides the admin CLI for the voice knowledge-base backend.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/bull/voicekb/internal/catalog"
	"github.com/bull/voicekb/internal/chunker"
	"github.com/bull/voicekb/internal/embedding"
	"github.com/bull/voicekb/internal/extractor"
	"github.com/bull/voicekb/internal/ingest"
	"github.com/bull/voicekb/internal/mcptools"
	"github.com/bull/voicekb/internal/retrieval"
	"github.com/bull/voicekb/internal/store"
)

var userID string

var rootCmd = &cobra.Command{
	Use:   "voicekb",
	Short: "Voice knowledge-base administration tool",
	Long:  "CLI tool for ingesting, searching and managing per-user knowledge bases",
}

var ingestCmd = &cobra.Command{
	Use:   "ingest <file>...",
	Short: "Extract, chunk, embed and index documents",
	Long: `Runs the full ingestion pipeline for each file: text extraction,
chunking, embedding and indexing into the user's collection. Re-uploading
a filename replaces the previous version atomically.

Environment variables:
  QDRANT_HOST    Qdrant hostname (default: localhost)
  QDRANT_PORT    Qdrant gRPC port (default: 6334)
  OPENAI_API_KEY OpenAI API key for embeddings (required)
  CATALOG_PATH   SQLite document catalog path (default: voicekb.db)`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIngest,
}

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search the user's knowledge base",
	Args:  cobra.ExactArgs(1),
	RunE:  runSearch,
}

var filesCmd = &cobra.Command{
	Use:   "files",
	Short: "List indexed documents for the user",
	RunE:  runFiles,
}

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Delete the user's collection and catalog entries",
	RunE:  runReset,
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve knowledge-base tools over MCP stdio",
	Long: `Starts an MCP server on stdin/stdout exposing kb_search and
list_documents, scoped to the --user id. Point a desktop agent at this
command to give it retrieval over the user's documents.`,
	RunE: runMCP,
}

var searchK int

func init() {
	rootCmd.PersistentFlags().StringVarP(&userID, "user", "u", "", "user id owning the knowledge base (required)")
	_ = rootCmd.MarkPersistentFlagRequired("user")

	searchCmd.Flags().IntVarP(&searchK, "top", "k", 3, "number of excerpts to return")

	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(filesCmd)
	rootCmd.AddCommand(resetCmd)
	rootCmd.AddCommand(mcpCmd)
}

func main() {
	// Load .env file if present (local development), ignore if missing.
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// deps bundles the components every subcommand wires the same way.
type deps struct {
	store    store.Store
	catalog  *catalog.Catalog
	embedder *embedding.Embedder
}

func (d *deps) close() {
	d.catalog.Close()
	d.store.Close()
}

func buildDeps(ctx context.Context) (*deps, error) {
	embeddingClient, err := embedding.NewClient()
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding client: %w", err)
	}
	embedder := embedding.NewEmbedder(embeddingClient, embedding.Config{
		Model:     getEnv("OPENAI_MODEL_EMBEDDING", embedding.DefaultModel),
		Dimension: getEnvInt("EMBEDDING_DIMENSION", embedding.DefaultDimension),
	})

	vectorStore, err := store.NewQdrantStore(
		getEnv("QDRANT_HOST", "localhost"),
		getEnvInt("QDRANT_PORT", 6334),
		embedder.Dimension(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to qdrant: %w", err)
	}
	if err := vectorStore.Health(ctx); err != nil {
		vectorStore.Close()
		return nil, fmt.Errorf("qdrant health check failed: %w", err)
	}

	cat, err := catalog.Open(getEnv("CATALOG_PATH", "voicekb.db"))
	if err != nil {
		vectorStore.Close()
		return nil, fmt.Errorf("failed to open catalog: %w", err)
	}

	return &deps{store: vectorStore, catalog: cat, embedder: embedder}, nil
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	start := time.Now()

	d, err := buildDeps(ctx)
	if err != nil {
		return err
	}
	defer d.close()

	ext := extractor.New(
		int64(getEnvInt("MAX_UPLOAD_SIZE_MB", 15))<<20,
		getEnv("ALLOWED_FILE_EXTENSIONS", extractor.DefaultExtensions),
	)
	ch := chunker.New(
		getEnvInt("CHUNK_SIZE", chunker.DefaultSize),
		getEnvInt("CHUNK_OVERLAP", chunker.DefaultOverlap),
	)
	pipeline := ingest.NewPipeline(ext, ch, d.embedder, d.store, d.catalog, slog.Default())

	indexed, failed := 0, 0
	for _, path := range args {
		data, err := os.ReadFile(path)
		if err != nil {
			fmt.Printf("  - %s: %v\n", path, err)
			failed++
			continue
		}
		filename := filepath.Base(path)
		mimeType := mime.TypeByExtension(filepath.Ext(filename))

		doc, err := pipeline.Ingest(ctx, userID, filename, data, mimeType)
		if err != nil {
			fmt.Printf("  - %s: %v\n", filename, err)
			failed++
			continue
		}
		fmt.Printf("  + %s: %d chunks\n", filename, doc.ChunkCount)
		indexed++
	}

	fmt.Println()
	fmt.Printf("Indexed %d, failed %d in %s\n", indexed, failed, time.Since(start).Round(time.Millisecond))
	if failed > 0 {
		return fmt.Errorf("%d document(s) failed", failed)
	}
	return nil
}

func runSearch(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	d, err := buildDeps(ctx)
	if err != nil {
		return err
	}
	defer d.close()

	svc := retrieval.NewService(d.embedder, d.store, retrieval.Config{}, slog.Default())
	results, err := svc.Search(ctx, userID, args[0], searchK)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}
	if len(results) == 0 {
		fmt.Println("No matching excerpts found")
		return nil
	}

	for i, r := range results {
		fmt.Printf("%d. %s (chunk %d, score %.3f)\n", i+1, r.Filename, r.ChunkIndex, r.Score)
		fmt.Println(r.Excerpt)
		fmt.Println()
	}
	return nil
}

func runFiles(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	d, err := buildDeps(ctx)
	if err != nil {
		return err
	}
	defer d.close()

	docs, err := d.catalog.ListByUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to list documents: %w", err)
	}
	if len(docs) == 0 {
		fmt.Println("No documents")
		return nil
	}

	for _, doc := range docs {
		fmt.Printf("  %-40s %-10s %d chunks\n", doc.Filename, doc.Status, doc.ChunkCount)
	}
	return nil
}

func runReset(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	d, err := buildDeps(ctx)
	if err != nil {
		return err
	}
	defer d.close()

	if err := d.store.Drop(ctx, userID); err != nil {
		return fmt.Errorf("failed to drop collection: %w", err)
	}
	if err := d.catalog.DeleteByUser(ctx, userID); err != nil {
		return fmt.Errorf("failed to clear catalog: %w", err)
	}
	fmt.Printf("Knowledge base for %s reset\n", userID)
	return nil
}

func runMCP(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	d, err := buildDeps(ctx)
	if err != nil {
		return err
	}
	defer d.close()

	svc := retrieval.NewService(d.embedder, d.store, retrieval.Config{}, slog.Default())
	server := mcptools.NewServer(&mcptools.Config{
		Retrieval: svc,
		Catalog:   d.catalog,
		UserID:    userID,
	})
	return server.Run(ctx)
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		var i int
		if _, err := fmt.Sscanf(v, "%d", &i); err == nil {
			return i
		}
	}
	return defaultValue
}
