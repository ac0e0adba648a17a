// Package cmd provides the CLI commands for memdex.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	memdexerrors "github.com/openclaw/memdex/internal/errors"
	"github.com/openclaw/memdex/pkg/version"
)

// errPartial marks a run that finished with degraded coverage, mapped
// to exit code 2.
var errPartial = errors.New("completed with warnings")

var verboseMode bool

// NewRootCmd creates the root command for the memdex CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "memdex",
		Short: "Hybrid search over your markdown corpus",
		Long: `Memdex ingests markdown corpora (notes, summaries, memory files,
daily logs) into a local hybrid index and searches them by combining
BM25 keyword matching with vector similarity.

Everything runs locally: SQLite FTS5 for keywords, HNSW for vectors,
and an OpenAI-compatible endpoint (or offline hash embeddings) for
the vectors themselves.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.SetVersionTemplate("memdex version {{.Version}}\n")

	cmd.PersistentFlags().BoolVarP(&verboseMode, "verbose", "v", false, "Enable debug logging")

	cmd.AddCommand(newInitCmd())
	cmd.AddCommand(newIngestCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute runs the CLI and returns the process exit code: 0 on
// success, 2 when a run completed partially, 1 on failure.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := NewRootCmd()
	if err := root.ExecuteContext(ctx); err != nil {
		if errors.Is(err, errPartial) {
			return 2
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if suggestion := memdexerrors.GetSuggestion(err); suggestion != "" {
			fmt.Fprintf(os.Stderr, "Hint: %s\n", suggestion)
		}
		return 1
	}
	return 0
}
