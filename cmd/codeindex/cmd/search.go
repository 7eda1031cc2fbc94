package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/codeindex/codeindex"
)

func newSearchCmd() *cobra.Command {
	var limit int
	var pathPattern string
	var languages []string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Run a hybrid semantic + keyword search over the index",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
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

			results, err := engine.Search(ctx, codeindex.SearchOptions{
				Query:       strings.Join(args, " "),
				Limit:       limit,
				PathPattern: pathPattern,
				Languages:   languages,
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(results)
			}

			if len(results) == 0 {
				fmt.Fprintln(out, "no results")
				return nil
			}
			for i, r := range results {
				fmt.Fprintf(out, "%d. %s:%d-%d  score=%.3f\n", i+1, r.Chunk.FilePath, r.Chunk.StartLine, r.Chunk.EndLine, r.Score)
				if r.Chunk.SymbolName != "" {
					fmt.Fprintf(out, "   %s %s\n", r.Chunk.SymbolKind, r.Chunk.SymbolName)
				}
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "maximum number of results (defaults to the ranker's default)")
	cmd.Flags().StringVar(&pathPattern, "path", "", "glob to restrict results by file path (prefix with ! to invert)")
	cmd.Flags().StringSliceVar(&languages, "lang", nil, "restrict results to these languages")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print results as JSON")

	return cmd
}
