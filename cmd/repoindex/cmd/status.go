package cmd

import (
	"github.com/spf13/cobra"

	"github.com/Aman-CERP/repoindex/internal/source"
	"github.com/Aman-CERP/repoindex/internal/ui"
)

const recentBuilds = 5

func newStatusCmd() *cobra.Command {
	var jsonOutput bool
	var noColor bool

	cmd := &cobra.Command{
		Use:   "status [index-id]",
		Short: "Show index health and recent builds",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := source.DefaultSourceID
			if len(args) == 1 {
				id = args[0]
			}

			svc, err := servicesFromConfig()
			if err != nil {
				return err
			}
			defer func() { _ = svc.Close() }()

			ctx := cmd.Context()
			st, err := svc.lifecycle.Status(ctx, id)
			if err != nil {
				return err
			}
			info, err := svc.queries.Info(ctx)
			if err != nil {
				return err
			}
			builds, err := svc.meta.Builds(ctx, id, recentBuilds)
			if err != nil {
				return err
			}

			out := ui.StatusInfo{
				IndexID:   st.IndexID,
				Status:    st.Status,
				Documents: st.DocumentCount,
				Segments:  info.NumSegments,
				SizeBytes: info.TotalBytes,
				Version:   st.Version,
			}
			if st.LastUpdated != nil {
				out.LastUpdated = *st.LastUpdated
			}
			for _, b := range builds {
				src := b.GitURL
				if src == "" {
					src = b.SourceID
				}
				out.Builds = append(out.Builds, ui.BuildSummary{
					ID:            b.ID,
					Source:        src,
					Status:        b.Status,
					Message:       b.Message,
					TotalFiles:    b.TotalFiles,
					UpdatedChunks: b.UpdatedChunks,
					FinishedAt:    b.FinishedAt,
				})
			}

			r := ui.NewStatusRenderer(cmd.OutOrStdout(), noColor || ui.DetectNoColor() || !ui.IsTTY(cmd.OutOrStdout()))
			if jsonOutput {
				return r.RenderJSON(out)
			}
			return r.Render(out)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output status as JSON")
	cmd.Flags().BoolVar(&noColor, "no-color", false, "Disable colors")

	return cmd
}
