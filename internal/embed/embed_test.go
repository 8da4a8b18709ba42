package embed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/Aman-CERP/repoindex/internal/config"
	rerrors "github.com/Aman-CERP/repoindex/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticEmbedder_Deterministic(t *testing.T) {
	// Given: two static embedders
	a, b := NewStaticEmbedder(64), NewStaticEmbedder(64)

	// When: embedding the same text
	va, err := a.Embed(context.Background(), "func parseHTTPRequest(r *Request)")
	require.NoError(t, err)
	vb, err := b.Embed(context.Background(), "func parseHTTPRequest(r *Request)")
	require.NoError(t, err)

	// Then: vectors match and have unit length
	assert.Equal(t, va, vb)
	assert.Len(t, va, 64)
	var sum float64
	for _, x := range va {
		sum += float64(x) * float64(x)
	}
	assert.InDelta(t, 1.0, sum, 1e-5)
}

func TestStaticEmbedder_BlankTextIsZero(t *testing.T) {
	v, err := NewStaticEmbedder(0).Embed(context.Background(), "  \n")

	require.NoError(t, err)
	assert.Len(t, v, DefaultDimensions)
	assert.Empty(t, BinaryTokens(v))
}

func TestStaticEmbedder_ClosedAndCancelled(t *testing.T) {
	e := NewStaticEmbedder(8)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := e.Embed(ctx, "x")
	assert.ErrorIs(t, err, context.Canceled)

	require.NoError(t, e.Close())
	_, err = e.EmbedBatch(context.Background(), []string{"x"})
	assert.Error(t, err)
}

func TestBinaryTokens(t *testing.T) {
	tokens := BinaryTokens([]float32{0.5, -0.1, 0, 0.2})

	assert.Equal(t, []string{"embedding_0", "embedding_3"}, tokens)
	assert.Equal(t, "embedding_12", TokenFor(12))
}

type countingEmbedder struct {
	*StaticEmbedder
	batches atomic.Int32
	texts   atomic.Int32
}

func (c *countingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	c.batches.Add(1)
	c.texts.Add(int32(len(texts)))
	return c.StaticEmbedder.EmbedBatch(ctx, texts)
}

func (c *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	c.texts.Add(1)
	return c.StaticEmbedder.Embed(ctx, text)
}

func TestCachedEmbedder_OnlyMissesReachInner(t *testing.T) {
	// Given: a cache in front of a counting embedder, warmed with one text
	inner := &countingEmbedder{StaticEmbedder: NewStaticEmbedder(16)}
	c := NewCachedEmbedder(inner, 10)
	first, err := c.Embed(context.Background(), "alpha")
	require.NoError(t, err)

	// When: embedding a batch containing the cached text
	vecs, err := c.EmbedBatch(context.Background(), []string{"alpha", "beta", "gamma"})

	// Then: one batch with only the two misses was sent
	require.NoError(t, err)
	require.Len(t, vecs, 3)
	assert.Equal(t, first, vecs[0])
	assert.Equal(t, int32(1), inner.batches.Load())
	assert.Equal(t, int32(3), inner.texts.Load())
	assert.Equal(t, 3, c.Len())

	_, err = c.EmbedBatch(context.Background(), []string{"beta", "gamma"})
	require.NoError(t, err)
	assert.Equal(t, int32(1), inner.batches.Load())

	require.NoError(t, c.Close())
	assert.Zero(t, c.Len())
}

func fakeOllama(t *testing.T, models []string, dims int) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/tags":
			var resp ollamaTagsResponse
			for _, m := range models {
				resp.Models = append(resp.Models, struct {
					Name string `json:"name"`
				}{Name: m})
			}
			_ = json.NewEncoder(w).Encode(resp)
		case "/api/embed":
			calls.Add(1)
			var req ollamaEmbedRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			resp := ollamaEmbedResponse{Model: req.Model}
			for i := range req.Input {
				v := make([]float64, dims)
				v[i%dims] = 3
				resp.Embeddings = append(resp.Embeddings, v)
			}
			_ = json.NewEncoder(w).Encode(resp)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func TestOllamaEmbedder_PingResolvesModelAndDimensions(t *testing.T) {
	// Given: a server with a tagged model
	srv, _ := fakeOllama(t, []string{"nomic-embed-text:latest"}, 8)
	e := NewOllamaEmbedder(OllamaConfig{Host: srv.URL + "/", Model: "nomic-embed-text"})
	defer func() { _ = e.Close() }()

	// When: pinging
	err := e.Ping(context.Background())

	// Then: the installed tag and vector size are learned
	require.NoError(t, err)
	assert.Equal(t, "nomic-embed-text:latest", e.ModelName())
	assert.Equal(t, 8, e.Dimensions())
}

func TestOllamaEmbedder_PingMissingModel(t *testing.T) {
	srv, _ := fakeOllama(t, []string{"llama3:8b"}, 8)
	e := NewOllamaEmbedder(OllamaConfig{Host: srv.URL, Model: "nomic-embed-text"})

	err := e.Ping(context.Background())

	require.Error(t, err)
	assert.Equal(t, rerrors.ErrCodeEmbeddingConfig, rerrors.GetCode(err))
}

func TestOllamaEmbedder_PingUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()
	e := NewOllamaEmbedder(OllamaConfig{Host: srv.URL})

	err := e.Ping(context.Background())

	assert.Equal(t, rerrors.ErrCodeEmbeddingConfig, rerrors.GetCode(err))
}

func TestOllamaEmbedder_BatchesAndNormalizes(t *testing.T) {
	srv, calls := fakeOllama(t, []string{"m"}, 4)
	e := NewOllamaEmbedder(OllamaConfig{Host: srv.URL, Model: "m", Dimensions: 4, BatchSize: 2})

	vecs, err := e.EmbedBatch(context.Background(), []string{"a", "b", "c", "d", "e"})

	require.NoError(t, err)
	require.Len(t, vecs, 5)
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, []float32{1, 0, 0, 0}, vecs[0])
	assert.Equal(t, []float32{0, 1, 0, 0}, vecs[1])
}

func TestOllamaEmbedder_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "model not loaded", http.StatusInternalServerError)
	}))
	defer srv.Close()
	e := NewOllamaEmbedder(OllamaConfig{Host: srv.URL, Dimensions: 4})

	_, err := e.Embed(context.Background(), "x")

	require.Error(t, err)
	assert.Equal(t, rerrors.ErrCodeEmbeddingFailed, rerrors.GetCode(err))
	assert.Contains(t, err.Error(), "ollama embedding request failed")
}

func TestNew_Providers(t *testing.T) {
	e, err := New(context.Background(), config.EmbeddingConfig{Provider: "static", Dimensions: 32, CacheSize: 8})
	require.NoError(t, err)
	assert.Equal(t, 32, e.Dimensions())
	assert.Equal(t, ProviderStatic, e.ModelName())
	_, cached := e.(*CachedEmbedder)
	assert.True(t, cached)

	srv, _ := fakeOllama(t, []string{"nomic-embed-text"}, 6)
	e, err = New(context.Background(), config.EmbeddingConfig{
		Provider: "ollama", OllamaHost: srv.URL, Model: "nomic-embed-text", Timeout: "5s",
	})
	require.NoError(t, err)
	assert.Equal(t, 6, e.Dimensions())

	_, err = New(context.Background(), config.EmbeddingConfig{Provider: "openai"})
	assert.Equal(t, rerrors.ErrCodeEmbeddingConfig, rerrors.GetCode(err))
}
