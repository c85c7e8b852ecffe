package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"hash/fnv"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bull/voicekb/internal/catalog"
	"github.com/bull/voicekb/internal/chunker"
	"github.com/bull/voicekb/internal/extractor"
	"github.com/bull/voicekb/internal/ingest"
	"github.com/bull/voicekb/internal/realtime"
	"github.com/bull/voicekb/internal/retrieval"
	"github.com/bull/voicekb/internal/session"
	"github.com/bull/voicekb/internal/store"
)

const testDim = 8

// hashEmbedder derives a deterministic vector per text so uploads and queries
// line up without a provider.
type hashEmbedder struct{}

func hashVector(text string) []float32 {
	h := fnv.New64a()
	h.Write([]byte(text))
	seed := h.Sum64()
	vec := make([]float32, testDim)
	for i := range vec {
		seed = seed*6364136223846793005 + 1442695040888963407
		vec[i] = float32(int64(seed>>33))/float32(1<<30) + 0.001
	}
	return vec
}

func (hashEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vectors[i] = hashVector(text)
	}
	return vectors, nil
}

func (hashEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	return hashVector(text), nil
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	st := store.NewMemoryStore(testDim)
	cat, err := catalog.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { cat.Close() })

	emb := hashEmbedder{}
	pipeline := ingest.NewPipeline(extractor.New(0, ""), chunker.New(0, 0), emb, st, cat, nil)
	search := retrieval.NewService(emb, st, retrieval.Config{}, nil)
	sessions := session.NewManager(search, nil)
	t.Cleanup(sessions.CloseAll)

	// Stub out the hosted realtime endpoint.
	mint := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"client_secret": map[string]any{"value": "ek_test", "expires_at": 1234567890},
		})
	}))
	t.Cleanup(mint.Close)

	server := NewServer(&Config{
		Pipeline:  pipeline,
		Retrieval: search,
		Catalog:   cat,
		Store:     st,
		Sessions:  sessions,
		Realtime:  realtime.New("test-key", mint.URL, 0),
		Logger:    nil,
	})
	ts := httptest.NewServer(server.Routes())
	t.Cleanup(ts.Close)
	return ts
}

func doRequest(t *testing.T, method, url, userID string, body *bytes.Buffer, contentType string) *http.Response {
	t.Helper()
	if body == nil {
		body = &bytes.Buffer{}
	}
	req, err := http.NewRequest(method, url, body)
	require.NoError(t, err)
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func uploadBody(t *testing.T, files map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for name, content := range files {
		part, err := w.CreateFormFile("files", name)
		require.NoError(t, err)
		_, err = part.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func decodeJSON[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestServer_RequiresUserIdentity(t *testing.T) {
	ts := newTestServer(t)

	for _, route := range []struct{ method, path string }{
		{http.MethodPost, "/upload"},
		{http.MethodPost, "/query"},
		{http.MethodGet, "/files"},
		{http.MethodDelete, "/reset-knowledge-base"},
		{http.MethodGet, "/session"},
		{http.MethodPost, "/sessions"},
	} {
		resp := doRequest(t, route.method, ts.URL+route.path, "", nil, "")
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, "%s %s", route.method, route.path)
	}
}

func TestServer_UploadQueryFlow(t *testing.T) {
	ts := newTestServer(t)

	body, contentType := uploadBody(t, map[string]string{
		"plan.txt": "Launch is scheduled for March.",
	})
	resp := doRequest(t, http.MethodPost, ts.URL+"/upload", "alice", body, contentType)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	upload := decodeJSON[uploadResponse](t, resp)
	assert.Equal(t, 1, upload.Indexed)
	assert.Equal(t, 0, upload.Skipped)
	require.Len(t, upload.Documents, 1)
	assert.Equal(t, "indexed", upload.Documents[0].Status)

	// The uploaded text is retrievable by the same user.
	query, _ := json.Marshal(map[string]any{"query": "Launch is scheduled for March.", "n_results": 1})
	resp = doRequest(t, http.MethodPost, ts.URL+"/query", "alice", bytes.NewBuffer(query), "application/json")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	results := decodeJSON[[]retrieval.Result](t, resp)
	require.Len(t, results, 1)
	assert.Equal(t, "plan.txt", results[0].Filename)

	// And invisible to anyone else.
	resp = doRequest(t, http.MethodPost, ts.URL+"/query", "bob", bytes.NewBuffer(query), "application/json")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, decodeJSON[[]retrieval.Result](t, resp))
}

func TestServer_UploadBadFileDoesNotBlockOthers(t *testing.T) {
	ts := newTestServer(t)

	body, contentType := uploadBody(t, map[string]string{
		"good.txt":  "Perfectly valid content.",
		"setup.exe": "MZbinary",
	})
	resp := doRequest(t, http.MethodPost, ts.URL+"/upload", "alice", body, contentType)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	upload := decodeJSON[uploadResponse](t, resp)
	assert.Equal(t, 1, upload.Indexed)
	assert.Equal(t, 1, upload.Skipped)
	require.Len(t, upload.Warnings, 1)
	assert.Contains(t, upload.Warnings[0], "setup.exe")
}

func TestServer_UploadEmptyForm(t *testing.T) {
	ts := newTestServer(t)
	body, contentType := uploadBody(t, nil)
	resp := doRequest(t, http.MethodPost, ts.URL+"/upload", "alice", body, contentType)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestServer_QueryEmptyText(t *testing.T) {
	ts := newTestServer(t)
	query, _ := json.Marshal(map[string]any{"query": "  "})
	resp := doRequest(t, http.MethodPost, ts.URL+"/query", "alice", bytes.NewBuffer(query), "application/json")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestServer_FilesListsIndexedOnly(t *testing.T) {
	ts := newTestServer(t)

	body, contentType := uploadBody(t, map[string]string{
		"kept.txt":   "Real content here.",
		"broken.exe": "MZ",
	})
	resp := doRequest(t, http.MethodPost, ts.URL+"/upload", "alice", body, contentType)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = doRequest(t, http.MethodGet, ts.URL+"/files", "alice", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	files := decodeJSON[[]string](t, resp)
	assert.Equal(t, []string{"kept.txt"}, files)
}

func TestServer_Reset(t *testing.T) {
	ts := newTestServer(t)

	body, contentType := uploadBody(t, map[string]string{"doc.txt": "Some content."})
	resp := doRequest(t, http.MethodPost, ts.URL+"/upload", "alice", body, contentType)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = doRequest(t, http.MethodDelete, ts.URL+"/reset-knowledge-base", "alice", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = doRequest(t, http.MethodGet, ts.URL+"/files", "alice", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, decodeJSON[[]string](t, resp))
}

func TestServer_RealtimeSessionMint(t *testing.T) {
	ts := newTestServer(t)

	resp := doRequest(t, http.MethodGet, ts.URL+"/session", "alice", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	payload := decodeJSON[map[string]any](t, resp)
	assert.Equal(t, "ek_test", payload["client_secret"])
}

func TestServer_SessionLifecycle(t *testing.T) {
	ts := newTestServer(t)

	resp := doRequest(t, http.MethodPost, ts.URL+"/sessions", "alice", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	opened := decodeJSON[map[string]string](t, resp)
	require.NotEmpty(t, opened["session_id"])
	assert.Equal(t, "connecting", opened["state"])

	resp = doRequest(t, http.MethodDelete, ts.URL+"/sessions/"+opened["session_id"], "", nil, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestServer_Health(t *testing.T) {
	ts := newTestServer(t)

	resp := doRequest(t, http.MethodGet, ts.URL+"/health", "", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	health := decodeJSON[HealthResponse](t, resp)
	assert.Equal(t, "healthy", health.Status)
}
