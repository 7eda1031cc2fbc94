// Package cmd provides the CLI commands for codeindex.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/codeindex/codeindex"
	"github.com/codeindex/codeindex/internal/logging"
)

var (
	rootDir        string
	debugMode      bool
	loggingCleanup func()
)

// NewRootCmd creates the root command for the codeindex CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "codeindex",
		Short: "Hybrid semantic + keyword search over a codebase",
		Long: `codeindex builds a local index of a codebase (structural chunks,
embeddings, and a keyword-searchable metadata store) and serves hybrid
semantic and keyword search over it.

Run 'codeindex index' once per project, then 'codeindex search <query>'.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&rootDir, "root", "", "project root (defaults to the current directory)")
	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "enable debug logging")

	cmd.PersistentPreRunE = func(_ *cobra.Command, _ []string) error {
		if debugMode {
			logger, cleanup, err := logging.Setup(logging.DebugConfig())
			if err != nil {
				return fmt.Errorf("failed to set up debug logging: %w", err)
			}
			loggingCleanup = cleanup
			slog.SetDefault(logger)
		}
		return nil
	}
	cmd.PersistentPostRunE = func(_ *cobra.Command, _ []string) error {
		if loggingCleanup != nil {
			loggingCleanup()
			loggingCleanup = nil
		}
		return nil
	}

	cmd.AddCommand(newIndexCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newStaleCmd())
	cmd.AddCommand(newClearCmd())

	return cmd
}

// Execute runs the root command.
func Execute() error {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return err
	}
	return nil
}

// resolveRoot returns the --root flag value, or the current working
// directory when it is unset.
func resolveRoot() (string, error) {
	if rootDir != "" {
		return rootDir, nil
	}
	return os.Getwd()
}

// newEngine constructs an Engine for root. Callers are responsible for
// calling Close on the result.
func newEngine(root string) *codeindex.Engine {
	return codeindex.New(root)
}
