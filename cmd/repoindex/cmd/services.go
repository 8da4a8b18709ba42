package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/Aman-CERP/repoindex/internal/build"
	"github.com/Aman-CERP/repoindex/internal/chunk"
	"github.com/Aman-CERP/repoindex/internal/config"
	"github.com/Aman-CERP/repoindex/internal/embed"
	"github.com/Aman-CERP/repoindex/internal/indexer"
	"github.com/Aman-CERP/repoindex/internal/lifecycle"
	"github.com/Aman-CERP/repoindex/internal/query"
	"github.com/Aman-CERP/repoindex/internal/source"
	"github.com/Aman-CERP/repoindex/internal/store"
	"github.com/Aman-CERP/repoindex/internal/telemetry"
)

// services are the components shared by the server and the CLI commands.
type services struct {
	cfg       *config.Config
	registry  *store.Registry
	meta      *store.MetadataStore
	metrics   *telemetry.Metrics
	builds    *build.Orchestrator
	queries   *query.Engine
	lifecycle *lifecycle.Manager
}

func openServices(cfg *config.Config) (*services, error) {
	cloner, err := source.NewCloner(cfg.Source.GitBackend)
	if err != nil {
		return nil, err
	}
	meta, err := store.OpenMetadata(cfg.Index.MetadataPath())
	if err != nil {
		return nil, err
	}

	registry := store.NewRegistry()
	metrics := telemetry.New()
	resolver := source.NewResolver(source.ResolverConfig{
		TempDir:         cfg.Source.TempDir,
		Cloner:          cloner,
		MaxArchiveBytes: cfg.Source.MaxArchiveBytes(),
		CloneTimeout:    cfg.Source.CloneTimeoutDuration(),
	})
	embedding := cfg.Embedding

	return &services{
		cfg:      cfg,
		registry: registry,
		meta:     meta,
		metrics:  metrics,
		builds: build.New(build.Config{
			IndexDir:        cfg.Index.Dir,
			ChannelCapacity: cfg.Index.ChannelCapacity,
			Resolver:        resolver,
			Registry:        registry,
			Metadata:        meta,
			Chunker:         chunk.New(cfg.Chunk),
			NewEmbedder: func(ctx context.Context) (embed.Embedder, error) {
				return embed.New(ctx, embedding)
			},
			Indexing: indexer.Options{
				Include:         cfg.Scan.Include,
				Exclude:         cfg.Scan.Exclude,
				IgnoreGitignore: cfg.Scan.IgnoreGitignore,
				MaxFileSize:     int64(cfg.Scan.MaxFileSizeKB) * 1024,
				Workers:         cfg.Index.Workers,
				BatchSize:       cfg.Index.BatchSize,
			},
			Metrics: metrics,
		}),
		queries:   query.New(registry, cfg.Index.Dir, query.WithMetrics(metrics)),
		lifecycle: lifecycle.New(registry, meta, cfg),
	}, nil
}

// Close releases the index handles and the metadata database.
func (s *services) Close() error {
	var errs []error
	if err := s.registry.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close index: %w", err))
	}
	if err := s.meta.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close metadata: %w", err))
	}
	return errors.Join(errs...)
}
