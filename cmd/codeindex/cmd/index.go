package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/codeindex/codeindex/internal/index"
)

func newIndexCmd() *cobra.Command {
	var force bool
	var patterns []string
	var excludePatterns []string

	cmd := &cobra.Command{
		Use:   "index",
		Short: "Build or update the index for the current project",
		RunE: func(cmd *cobra.Command, _ []string) error {
			root, err := resolveRoot()
			if err != nil {
				return err
			}

			engine := newEngine(root)
			defer engine.Close()

			ctx := cmd.Context()
			if err := engine.Initialize(ctx); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			lastPhase := index.Phase("")
			sink := func(p index.Progress) {
				if p.Phase != lastPhase {
					fmt.Fprintf(out, "%s\n", p.Phase)
					lastPhase = p.Phase
				}
				if p.Total > 0 {
					fmt.Fprintf(out, "  %d/%d %s\n", p.Current, p.Total, p.Message)
				} else {
					fmt.Fprintf(out, "  %s\n", p.Message)
				}
			}

			start := time.Now()
			result, err := engine.IndexCodebase(ctx, patterns, excludePatterns, force, sink)
			if err != nil {
				return err
			}

			mode := "full"
			if result.Incremental {
				mode = "incremental"
			}
			fmt.Fprintf(out, "done: %s index, %d files, %d chunks, %s\n",
				mode, result.FilesIndexed, result.ChunksCreated, time.Since(start).Round(time.Millisecond))
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "discard the existing index and reindex from scratch")
	cmd.Flags().StringSliceVar(&patterns, "include", nil, "glob patterns to include (defaults to the resolved configuration)")
	cmd.Flags().StringSliceVar(&excludePatterns, "exclude", nil, "glob patterns to exclude (defaults to the resolved configuration)")

	return cmd
}
