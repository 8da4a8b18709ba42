package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/repoindex/internal/query"
)

func newSearchCmd() *cobra.Command {
	var req query.SearchRequest
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search indexed code",
		Long: `Run a ranked full-text search over the index.

The query uses the query string syntax: terms, "phrases", +required,
-excluded and field:value. Language and path filters apply to the
ranked page, so a filtered page can hold fewer than --limit results.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.Query = strings.Join(args, " ")
			svc, err := servicesFromConfig()
			if err != nil {
				return err
			}
			defer func() { _ = svc.Close() }()

			resp, err := svc.queries.Search(cmd.Context(), req)
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd.OutOrStdout(), resp)
			}
			return printResults(cmd.OutOrStdout(), resp)
		},
	}

	cmd.Flags().IntVarP(&req.Limit, "limit", "n", query.DefaultLimit, "Maximum number of results")
	cmd.Flags().IntVar(&req.Offset, "offset", 0, "Number of ranked hits to skip")
	cmd.Flags().StringVarP(&req.Language, "language", "l", "", "Only show results of this language")
	cmd.Flags().StringVarP(&req.FilePath, "path", "p", "", "Only show results whose path contains this")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output results as JSON")

	return cmd
}

func printResults(w io.Writer, resp *query.SearchResponse) error {
	if len(resp.Results) == 0 {
		_, err := fmt.Fprintln(w, "No results found.")
		return err
	}
	for i, r := range resp.Results {
		loc := r.Filepath
		if r.StartLine != nil {
			loc = fmt.Sprintf("%s:%d", r.Filepath, *r.StartLine)
		}
		_, _ = fmt.Fprintf(w, "%d. %s (%s, score %.3f)\n", i+1, loc, r.Language, r.Score)
		_, _ = fmt.Fprintln(w, indent(firstLines(r.Body, 5), "   "))
	}
	_, err := fmt.Fprintf(w, "\n%d results in %dms\n", resp.Total, resp.QueryTimeMs)
	return err
}

func newFilesCmd() *cobra.Command {
	var limit int
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "files <query>",
		Short: "Find indexed file paths by approximate name",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := servicesFromConfig()
			if err != nil {
				return err
			}
			defer func() { _ = svc.Close() }()

			paths, err := svc.queries.SearchFiles(cmd.Context(), args[0], limit)
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd.OutOrStdout(), paths)
			}
			for _, p := range paths {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), p)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", query.DefaultFileLimit, "Maximum number of paths")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output paths as JSON")

	return cmd
}

func newDocsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "docs <corpus>",
		Short: "List stored chunks of a corpus",
		Long: `Print up to ten stored chunks of a corpus as JSON. A source's corpus
is the --name it was created with, or "default".`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := servicesFromConfig()
			if err != nil {
				return err
			}
			defer func() { _ = svc.Close() }()

			docs, err := svc.queries.Documents(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), docs)
		},
	}
	return cmd
}

func servicesFromConfig() (*services, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return openServices(cfg)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func firstLines(s string, n int) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	if len(lines) > n {
		lines = append(lines[:n], "...")
	}
	return strings.Join(lines, "\n")
}

func indent(s, prefix string) string {
	return prefix + strings.ReplaceAll(s, "\n", "\n"+prefix)
}
