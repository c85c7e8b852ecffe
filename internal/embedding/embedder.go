package embedding

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/openai/openai-go"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

const (
	// DefaultModel is the embedding model in use.
	DefaultModel = "text-embedding-3-small"

	// DefaultDimension is the vector dimension for text-embedding-3-small.
	DefaultDimension = 1536

	// DefaultBatchSize balances requests-per-minute vs tokens-per-minute rate
	// limits. The provider accepts up to 2048 texts per request.
	DefaultBatchSize = 500

	// DefaultRequestsPerMinute caps outgoing embedding requests.
	DefaultRequestsPerMinute = 300
)

// ErrUnavailable indicates the embedding service could not be reached within
// the retry budget, or the circuit breaker is open. Callers must treat a
// whole batch as failed; no partial results are returned.
var ErrUnavailable = errors.New("embedding service unavailable")

// Config tunes the embedder. Zero values fall back to defaults.
type Config struct {
	Model             string
	Dimension         int
	BatchSize         int
	RequestsPerMinute int
}

// api abstracts the provider call so batching and retry logic is testable.
type api interface {
	embed(ctx context.Context, model string, texts []string) ([][]float32, error)
}

// Embedder converts texts into fixed-dimension vectors. It batches requests,
// rate-limits them, retries transient failures with exponential backoff and
// trips a circuit breaker when the provider is persistently down.
type Embedder struct {
	api       api
	model     string
	dimension int
	batchSize int
	limiter   *rate.Limiter
	breaker   *gobreaker.CircuitBreaker
}

// NewEmbedder creates an embedder backed by the given client.
func NewEmbedder(client *Client, cfg Config) *Embedder {
	return newEmbedder(&openaiAPI{client: client}, cfg)
}

func newEmbedder(api api, cfg Config) *Embedder {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Dimension <= 0 {
		cfg.Dimension = DefaultDimension
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.RequestsPerMinute <= 0 {
		cfg.RequestsPerMinute = DefaultRequestsPerMinute
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "embeddings",
		MaxRequests: 3,
		Interval:    30 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 5 && failureRatio >= 0.6
		},
	})

	return &Embedder{
		api:       api,
		model:     cfg.Model,
		dimension: cfg.Dimension,
		batchSize: cfg.BatchSize,
		limiter:   rate.NewLimiter(rate.Limit(float64(cfg.RequestsPerMinute)/60.0), cfg.RequestsPerMinute/10+1),
		breaker:   breaker,
	}
}

// Dimension returns the vector dimension this embedder produces.
func (e *Embedder) Dimension() int {
	return e.dimension
}

// Embed generates one vector per input text, order-preserving. A failure in
// any batch fails the whole call so positions never silently misalign.
func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	all := make([][]float32, 0, len(texts))
	for i := 0; i < len(texts); i += e.batchSize {
		end := min(i+e.batchSize, len(texts))
		vectors, err := e.embedBatchWithRetry(ctx, texts[i:end])
		if err != nil {
			return nil, fmt.Errorf("batch %d-%d: %w", i, end, err)
		}
		all = append(all, vectors...)
	}
	return all, nil
}

// EmbedQuery embeds a single query text.
func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// embedBatchWithRetry runs one batch with backoff on transient failures.
// Exhausting the retry budget surfaces ErrUnavailable.
func (e *Embedder) embedBatchWithRetry(ctx context.Context, texts []string) ([][]float32, error) {
	var vectors [][]float32

	operation := func() error {
		if err := e.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}

		result, err := e.breaker.Execute(func() (any, error) {
			return e.api.embed(ctx, e.model, texts)
		})
		if err != nil {
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				return backoff.Permanent(fmt.Errorf("%w: circuit open", ErrUnavailable))
			}
			if isRetryable(err) {
				return err
			}
			return backoff.Permanent(err)
		}

		batch := result.([][]float32)
		if len(batch) != len(texts) {
			return backoff.Permanent(fmt.Errorf("%w: got %d vectors for %d texts",
				ErrUnavailable, len(batch), len(texts)))
		}
		for i, vec := range batch {
			if len(vec) != e.dimension {
				return backoff.Permanent(fmt.Errorf("vector %d has %d dimensions, expected %d",
					i, len(vec), e.dimension))
			}
		}
		vectors = batch
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 30 * time.Second

	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		if errors.Is(err, ErrUnavailable) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		if isRetryable(err) {
			// Retry budget exhausted on a transient fault.
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		return nil, err
	}
	return vectors, nil
}

// isRetryable reports whether the error is a transient provider fault:
// rate limiting (429) or a server-side error (5xx).
func isRetryable(err error) bool {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429 || apiErr.StatusCode >= 500
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	// Non-API errors (connection reset, refused) are treated as transient.
	return true
}

// openaiAPI adapts the OpenAI SDK to the api interface.
type openaiAPI struct {
	client *Client
}

func (a *openaiAPI) embed(ctx context.Context, model string, texts []string) ([][]float32, error) {
	resp, err := a.client.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{
			OfArrayOfStrings: texts,
		},
		Model: openai.EmbeddingModel(model),
	})
	if err != nil {
		return nil, err
	}

	vectors := make([][]float32, len(resp.Data))
	for i, data := range resp.Data {
		vectors[i] = toFloat32(data.Embedding)
	}
	return vectors, nil
}

// toFloat32 converts the API's float64 vectors to float32 for storage.
func toFloat32(f64 []float64) []float32 {
	f32 := make([]float32, len(f64))
	for i, v := range f64 {
		f32[i] = float32(v)
	}
	return f32
}
