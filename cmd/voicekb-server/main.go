// Package main provides the HTTP server entry point for the voice
// knowledge-base backend.
package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/bull/voicekb/internal/catalog"
	"github.com/bull/voicekb/internal/chunker"
	"github.com/bull/voicekb/internal/embedding"
	"github.com/bull/voicekb/internal/extractor"
	"github.com/bull/voicekb/internal/httpapi"
	"github.com/bull/voicekb/internal/ingest"
	"github.com/bull/voicekb/internal/realtime"
	"github.com/bull/voicekb/internal/retrieval"
	"github.com/bull/voicekb/internal/session"
	"github.com/bull/voicekb/internal/store"
)

func main() {
	// Load .env if present (local development), ignore if missing.
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	logger := slog.Default()

	// Embedding client and embedder, shared read-only across sessions.
	embeddingClient, err := embedding.NewClient()
	if err != nil {
		log.Fatalf("failed to create embedding client: %v", err)
	}
	embedder := embedding.NewEmbedder(embeddingClient, embedding.Config{
		Model:     getEnv("OPENAI_MODEL_EMBEDDING", embedding.DefaultModel),
		Dimension: getEnvInt("EMBEDDING_DIMENSION", embedding.DefaultDimension),
	})

	// Vector store: qdrant by default, memory for local development.
	var vectorStore store.Store
	switch backend := getEnv("KB_STORE", "qdrant"); backend {
	case "qdrant":
		vectorStore, err = store.NewQdrantStore(
			getEnv("QDRANT_HOST", "localhost"),
			getEnvInt("QDRANT_PORT", 6334),
			embedder.Dimension(),
		)
		if err != nil {
			log.Fatalf("failed to connect to qdrant: %v", err)
		}
	case "memory":
		vectorStore = store.NewMemoryStore(embedder.Dimension())
	default:
		log.Fatalf("unknown KB_STORE backend: %s", backend)
	}
	defer vectorStore.Close()

	// Document catalog.
	cat, err := catalog.Open(getEnv("CATALOG_PATH", "voicekb.db"))
	if err != nil {
		log.Fatalf("failed to open catalog: %v", err)
	}
	defer cat.Close()

	ext := extractor.New(
		int64(getEnvInt("MAX_UPLOAD_SIZE_MB", 15))<<20,
		getEnv("ALLOWED_FILE_EXTENSIONS", extractor.DefaultExtensions),
	)
	ch := chunker.New(
		getEnvInt("CHUNK_SIZE", chunker.DefaultSize),
		getEnvInt("CHUNK_OVERLAP", chunker.DefaultOverlap),
	)

	pipeline := ingest.NewPipeline(ext, ch, embedder, vectorStore, cat, logger)
	search := retrieval.NewService(embedder, vectorStore, retrieval.Config{
		DefaultK: getEnvInt("DEFAULT_N_RESULTS", 3),
		MinK:     getEnvInt("MIN_N_RESULTS", 1),
		MaxK:     getEnvInt("MAX_N_RESULTS", 10),
	}, logger)

	sessions := session.NewManager(search, logger)
	defer sessions.CloseAll()

	realtimeClient := realtime.New(
		embeddingClient.APIKey(),
		getEnv("OPENAI_API_BASE_URL", realtime.DefaultBaseURL),
		time.Duration(getEnvInt("REALTIME_SESSION_TIMEOUT", 20))*time.Second,
	)

	server := httpapi.NewServer(&httpapi.Config{
		Pipeline:  pipeline,
		Retrieval: search,
		Catalog:   cat,
		Store:     vectorStore,
		Sessions:  sessions,
		Realtime:  realtimeClient,
		RealtimeConfig: realtime.SessionConfig{
			Model:        getEnv("OPENAI_MODEL_REALTIME", "gpt-realtime"),
			Voice:        getEnv("OPENAI_VOICE", "marin"),
			Modalities:   splitList(getEnv("OPENAI_MODALITIES", "audio,text")),
			Instructions: getEnv("OPENAI_INSTRUCTIONS", "Answer briefly and cite the knowledge base when it is used."),
		},
		Logger: logger,
	})

	addr := "0.0.0.0:" + getEnv("PORT", "8080")
	httpServer := &http.Server{
		Addr:    addr,
		Handler: server.Routes(),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("shutdown error: %v", err)
		}
	}()

	log.Printf("Starting server on %s", addr)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("server error: %v", err)
	}
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
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
