package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	rerrors "github.com/Aman-CERP/repoindex/internal/errors"
)

// Ollama defaults.
const (
	DefaultOllamaHost  = "http://localhost:11434"
	DefaultOllamaModel = "nomic-embed-text"
	DefaultBatchSize   = 32
	DefaultTimeout     = 30 * time.Second
)

// OllamaConfig configures OllamaEmbedder.
type OllamaConfig struct {
	Host  string
	Model string

	// Dimensions overrides detection when positive.
	Dimensions int

	// BatchSize caps the texts sent in one request.
	BatchSize int

	// Timeout bounds each request.
	Timeout time.Duration

	// Client is used instead of a default pooled client when set.
	Client *http.Client
}

type ollamaEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type ollamaEmbedResponse struct {
	Model      string      `json:"model"`
	Embeddings [][]float64 `json:"embeddings"`
}

type ollamaTagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// OllamaEmbedder calls the /api/embed endpoint of an Ollama server.
type OllamaEmbedder struct {
	cfg    OllamaConfig
	client *http.Client

	mu     sync.RWMutex
	model  string
	dims   int
	closed bool
}

var _ Embedder = (*OllamaEmbedder)(nil)

// NewOllamaEmbedder returns an embedder for cfg. It does not contact the
// server; call Ping to check the model and learn its dimensions.
func NewOllamaEmbedder(cfg OllamaConfig) *OllamaEmbedder {
	if cfg.Host == "" {
		cfg.Host = DefaultOllamaHost
	}
	cfg.Host = strings.TrimRight(cfg.Host, "/")
	if cfg.Model == "" {
		cfg.Model = DefaultOllamaModel
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{Transport: &http.Transport{
			MaxIdleConns:        4,
			MaxIdleConnsPerHost: 4,
			IdleConnTimeout:     10 * time.Second,
		}}
	}
	return &OllamaEmbedder{cfg: cfg, client: client, model: cfg.Model, dims: cfg.Dimensions}
}

// Ping checks that the server is up and serves the model. It resolves the
// model name to the installed tag and detects the vector size when no
// dimensions were configured.
func (e *OllamaEmbedder) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	var tags ollamaTagsResponse
	if err := e.do(ctx, http.MethodGet, "/api/tags", nil, &tags); err != nil {
		return rerrors.EmbeddingConfigError("ollama is not reachable at "+e.cfg.Host, err).
			WithSuggestion("Start Ollama with 'ollama serve' or switch embedding.provider to static")
	}

	want := strings.ToLower(e.cfg.Model)
	found := ""
	for _, m := range tags.Models {
		name := strings.ToLower(m.Name)
		if name == want || strings.SplitN(name, ":", 2)[0] == want {
			found = m.Name
			break
		}
	}
	if found == "" {
		return rerrors.EmbeddingConfigError(fmt.Sprintf("embedding model %q is not installed", e.cfg.Model), nil).
			WithSuggestion("Run 'ollama pull " + e.cfg.Model + "'")
	}

	e.mu.Lock()
	e.model = found
	needDims := e.dims <= 0
	e.mu.Unlock()

	if needDims {
		vecs, err := e.embed(ctx, []string{"dimension probe"})
		if err != nil {
			return err
		}
		e.mu.Lock()
		e.dims = len(vecs[0])
		e.mu.Unlock()
	}
	return nil
}

// Embed implements Embedder.
func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch implements Embedder, splitting texts into requests of at most
// BatchSize inputs.
func (e *OllamaEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += e.cfg.BatchSize {
		end := start + e.cfg.BatchSize
		if end > len(texts) {
			end = len(texts)
		}
		reqCtx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
		vecs, err := e.embed(reqCtx, texts[start:end])
		cancel()
		if err != nil {
			return nil, err
		}
		out = append(out, vecs...)
	}
	return out, nil
}

func (e *OllamaEmbedder) embed(ctx context.Context, texts []string) ([][]float32, error) {
	e.mu.RLock()
	closed, model := e.closed, e.model
	e.mu.RUnlock()
	if closed {
		return nil, errClosed
	}

	var resp ollamaEmbedResponse
	if err := e.do(ctx, http.MethodPost, "/api/embed", ollamaEmbedRequest{Model: model, Input: texts}, &resp); err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return nil, ctx.Err()
		}
		return nil, rerrors.New(rerrors.ErrCodeEmbeddingFailed, "ollama embedding request failed", err)
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, rerrors.New(rerrors.ErrCodeEmbeddingFailed,
			fmt.Sprintf("ollama returned %d embeddings for %d inputs", len(resp.Embeddings), len(texts)), nil)
	}

	out := make([][]float32, len(resp.Embeddings))
	for i, emb := range resp.Embeddings {
		v := make([]float32, len(emb))
		for j, x := range emb {
			v[j] = float32(x)
		}
		out[i] = normalizeVector(v)
	}
	return out, nil
}

func (e *OllamaEmbedder) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, e.cfg.Host+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// Dimensions implements Embedder. It is zero until Ping has detected it,
// unless configured.
func (e *OllamaEmbedder) Dimensions() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.dims
}

// ModelName implements Embedder.
func (e *OllamaEmbedder) ModelName() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.model
}

// Close implements Embedder.
func (e *OllamaEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	e.client.CloseIdleConnections()
	return nil
}
