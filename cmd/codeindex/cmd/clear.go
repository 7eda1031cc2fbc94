package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newClearCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Drop the index: chunks, vectors, the query cache, and any in-flight checkpoint",
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

			if err := engine.ClearIndex(ctx); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "index cleared")
			return nil
		},
	}

	return cmd
}
