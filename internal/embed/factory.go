package embed

import (
	"context"
	"log/slog"
	"strings"

	"github.com/Aman-CERP/repoindex/internal/config"
	rerrors "github.com/Aman-CERP/repoindex/internal/errors"
)

// New builds the embedder selected by cfg, wrapped in a cache. An Ollama
// embedder is pinged first, so a missing server or model fails here rather
// than halfway through a build.
func New(ctx context.Context, cfg config.EmbeddingConfig) (Embedder, error) {
	var inner Embedder
	switch strings.ToLower(cfg.Provider) {
	case "", ProviderStatic:
		inner = NewStaticEmbedder(cfg.Dimensions)
	case ProviderOllama:
		o := NewOllamaEmbedder(OllamaConfig{
			Host:    cfg.OllamaHost,
			Model:   cfg.Model,
			Timeout: cfg.TimeoutDuration(),
		})
		if err := o.Ping(ctx); err != nil {
			_ = o.Close()
			return nil, err
		}
		inner = o
	default:
		return nil, rerrors.EmbeddingConfigError("unknown embedding provider "+cfg.Provider, nil).
			WithSuggestion("Use 'static' or 'ollama'")
	}

	slog.Debug("embedder_ready",
		slog.String("provider", cfg.Provider),
		slog.String("model", inner.ModelName()),
		slog.Int("dimensions", inner.Dimensions()))
	return NewCachedEmbedder(inner, cfg.CacheSize), nil
}
