package embedding

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubAPI records every batch and produces per-text vectors, failing on
// request when told to.
type stubAPI struct {
	dimension int
	batches   [][]string
	failOn    func(call int) error
	shortBy   int // return this many fewer vectors than requested
}

func (s *stubAPI) embed(_ context.Context, _ string, texts []string) ([][]float32, error) {
	call := len(s.batches)
	s.batches = append(s.batches, texts)
	if s.failOn != nil {
		if err := s.failOn(call); err != nil {
			return nil, err
		}
	}

	n := len(texts) - s.shortBy
	vectors := make([][]float32, 0, n)
	for i := 0; i < n; i++ {
		vec := make([]float32, s.dimension)
		vec[0] = float32(len(texts[i])) // deterministic marker per text
		vectors = append(vectors, vec)
	}
	return vectors, nil
}

// nonRetryable wraps context.Canceled so the retry loop gives up immediately
// instead of burning the backoff budget in tests.
func nonRetryable(msg string) error {
	return fmt.Errorf("%s: %w", msg, context.Canceled)
}

func TestEmbed_Batching(t *testing.T) {
	api := &stubAPI{dimension: 4}
	e := newEmbedder(api, Config{Dimension: 4, BatchSize: 2})

	texts := []string{"a", "bb", "ccc", "dddd", "eeeee"}
	vectors, err := e.Embed(context.Background(), texts)
	require.NoError(t, err)
	require.Len(t, vectors, 5)

	// Three batches of at most two texts, in order.
	require.Len(t, api.batches, 3)
	assert.Equal(t, []string{"a", "bb"}, api.batches[0])
	assert.Equal(t, []string{"ccc", "dddd"}, api.batches[1])
	assert.Equal(t, []string{"eeeee"}, api.batches[2])

	// Output positions line up with input texts.
	for i, text := range texts {
		assert.Equal(t, float32(len(text)), vectors[i][0], "vector %d", i)
	}
}

func TestEmbed_Empty(t *testing.T) {
	api := &stubAPI{dimension: 4}
	e := newEmbedder(api, Config{Dimension: 4})

	vectors, err := e.Embed(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, vectors)
	assert.Empty(t, api.batches, "no provider call for empty input")
}

func TestEmbed_BatchFailureFailsWholeCall(t *testing.T) {
	api := &stubAPI{
		dimension: 4,
		failOn: func(call int) error {
			if call == 1 {
				return nonRetryable("provider rejected batch")
			}
			return nil
		},
	}
	e := newEmbedder(api, Config{Dimension: 4, BatchSize: 2})

	vectors, err := e.Embed(context.Background(), []string{"a", "b", "c", "d"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "provider rejected batch")
	assert.Nil(t, vectors, "no partial results on failure")
}

func TestEmbed_CountMismatch(t *testing.T) {
	api := &stubAPI{dimension: 4, shortBy: 1}
	e := newEmbedder(api, Config{Dimension: 4, BatchSize: 10})

	_, err := e.Embed(context.Background(), []string{"a", "b", "c"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnavailable)
	// One attempt only: a malformed response is not retried.
	assert.Len(t, api.batches, 1)
}

func TestEmbed_DimensionValidation(t *testing.T) {
	api := &stubAPI{dimension: 3}
	e := newEmbedder(api, Config{Dimension: 4})

	_, err := e.Embed(context.Background(), []string{"a"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dimensions")
	assert.Len(t, api.batches, 1)
}

func TestEmbedQuery(t *testing.T) {
	api := &stubAPI{dimension: 4}
	e := newEmbedder(api, Config{Dimension: 4})

	vec, err := e.EmbedQuery(context.Background(), "hello")
	require.NoError(t, err)
	require.Len(t, vec, 4)
	assert.Equal(t, float32(5), vec[0])
}

func TestEmbed_ContextCancelled(t *testing.T) {
	api := &stubAPI{dimension: 4}
	e := newEmbedder(api, Config{Dimension: 4})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := e.Embed(ctx, []string{"a"})
	assert.Error(t, err)
}
