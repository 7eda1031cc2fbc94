package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Report whether the project is indexed, its size, and whether it looks corrupted",
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

			status, err := engine.GetStatus(ctx)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(status)
			}

			if !status.Indexed {
				fmt.Fprintln(out, "not indexed")
				return nil
			}
			fmt.Fprintf(out, "indexed: %d files, %d chunks, last updated %s\n",
				status.FileCount, status.ChunkCount, status.LastUpdated.Format("2006-01-02 15:04:05"))
			fmt.Fprintf(out, "embedding: %s/%s\n", status.EmbeddingBackend, status.EmbeddingModel)
			if status.Corrupted {
				fmt.Fprintf(out, "corrupted: %s\n", status.CorruptionReason)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print status as JSON")

	return cmd
}

func newStaleCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "stale",
		Short: "Report whether the index has drifted from the on-disk project",
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

			result, err := engine.CheckIfStale(ctx)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(result)
			}

			if !result.Stale {
				fmt.Fprintln(out, "up to date")
				return nil
			}
			fmt.Fprintf(out, "stale: %s\n", result.Reason)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print the result as JSON")

	return cmd
}
