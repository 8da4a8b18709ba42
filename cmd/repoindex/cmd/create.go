package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/repoindex/internal/api"
	"github.com/Aman-CERP/repoindex/internal/build"
	rerrors "github.com/Aman-CERP/repoindex/internal/errors"
	"github.com/Aman-CERP/repoindex/internal/output"
	"github.com/Aman-CERP/repoindex/internal/progress"
	"github.com/Aman-CERP/repoindex/internal/source"
	"github.com/Aman-CERP/repoindex/internal/ui"
	"github.com/Aman-CERP/repoindex/internal/watcher"
)

func newCreateCmd() *cobra.Command {
	var req api.CreateRequest
	var plain, noColor, watch bool

	cmd := &cobra.Command{
		Use:   "create <source>",
		Short: "Build or refresh the index from a source",
		Long: `Acquire a source and index it into the local index.

The source is a git URL, a zip archive URL (with --zip) or a local
directory. Unchanged files of an earlier build of the same source are
skipped.

Examples:
  repoindex create https://github.com/acme/app.git
  repoindex create --zip https://example.com/app.zip
  repoindex create --language go ./services/api`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.Source = args[0]
			breq, err := req.BuildRequest()
			if err != nil {
				return err
			}
			if watch && breq.Source.Kind != source.KindLocal {
				return rerrors.ValidationError("--watch needs a local source", nil)
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			svc, err := openServices(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = svc.Close() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			renderer := ui.NewRenderer(ui.NewConfig(cmd.OutOrStdout(),
				ui.WithForcePlain(plain || watch),
				ui.WithNoColor(noColor),
				ui.WithSource(breq.Source.Location),
			))
			if err := runBuild(ctx, svc, breq, renderer); err != nil {
				return err
			}
			if !watch {
				return nil
			}
			return watchAndRebuild(ctx, cmd, svc, breq)
		},
	}

	cmd.Flags().BoolVar(&req.IsRemoteZip, "zip", false, "Treat the source as a zip archive URL")
	cmd.Flags().StringVar(&req.Kind, "kind", "", "Source kind: git, archive or local (inferred when empty)")
	cmd.Flags().StringVar(&req.Name, "name", "", "Display name of the source")
	cmd.Flags().StringVar(&req.Language, "language", "", "Only index files of this language")
	cmd.Flags().IntVar(&req.MaxFileSize, "max-file-size", 0, "Skip files larger than this many KB")
	cmd.Flags().StringSliceVar(&req.Include, "include", nil, "Only index paths matching these globs")
	cmd.Flags().StringSliceVar(&req.Exclude, "exclude", nil, "Skip paths matching these globs")
	cmd.Flags().BoolVar(&plain, "plain", false, "Plain text progress output")
	cmd.Flags().BoolVar(&noColor, "no-color", false, "Disable colors")
	cmd.Flags().BoolVar(&watch, "watch", false, "Keep running and rebuild a local source when it changes")

	return cmd
}

// runBuild starts a build, renders its progress and reports a failed
// build as an error.
func runBuild(ctx context.Context, svc *services, req build.Request, r ui.Renderer) error {
	b, err := svc.builds.Start(ctx, req)
	if err != nil {
		return err
	}
	if _, _, err := ui.Follow(ctx, r, b.Events()); err != nil {
		b.Cancel()
		<-b.Done()
		return err
	}
	final, err := b.Wait()
	if err != nil {
		return err
	}
	if final.Status == progress.StatusFailed {
		return fmt.Errorf("build failed: %s", final.StatusMsg)
	}
	return nil
}

// watchAndRebuild rebuilds a local source whenever files under it change,
// until ctx is cancelled. Failed rebuilds are reported and watching goes on.
func watchAndRebuild(ctx context.Context, cmd *cobra.Command, svc *services, req build.Request) error {
	w, err := watcher.New(req.Source.Location, watcher.Options{})
	if err != nil {
		return rerrors.ValidationError("cannot watch source: "+err.Error(), err)
	}
	defer func() { _ = w.Close() }()

	out := output.New(cmd.OutOrStdout())
	out.Statusf("→", "Watching %s (Ctrl+C to stop)", w.Root())

	runErr := make(chan error, 1)
	go func() { runErr <- w.Run(ctx) }()

	for batch := range w.Changes() {
		out.Statusf("→", "%d paths changed, rebuilding", len(batch))
		r := ui.NewPlainRenderer(ui.NewConfig(cmd.OutOrStdout()))
		if err := runBuild(ctx, svc, req, r); err != nil {
			if ctx.Err() != nil {
				break
			}
			out.Error(err.Error())
		}
	}

	if err := <-runErr; err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
