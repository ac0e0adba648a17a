package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/openclaw/memdex/internal/ingest"
	"github.com/openclaw/memdex/internal/output"
	"github.com/openclaw/memdex/internal/source"
)

func newIngestCmd() *cobra.Command {
	var (
		fullScan bool
		dryRun   bool
		since    time.Duration
		sources  []string
	)

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Scan sources and update the indexes",
		Long: `Ingest scans the configured source directories for markdown
documents, indexes new and changed files, and embeds their chunks.

By default only files with a changed mtime or size are re-read. A
full scan (--full-scan) re-hashes everything, removes deleted
documents, backs up the indexes, and repairs cross-index drift.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			// A full scan treats anything not enumerated as deleted, so
			// narrowing the sources would purge the rest of the corpus.
			if fullScan && len(sources) > 0 {
				return fmt.Errorf("--sources cannot be combined with --full-scan")
			}

			app, err := openApp(ctx, fullScan)
			if err != nil {
				return err
			}
			defer app.Close()

			dirs := app.cfg.SourceDirs()
			if len(sources) > 0 {
				dirs, err = filterSources(dirs, sources)
				if err != nil {
					return err
				}
			}

			enum := source.NewFSEnumerator(dirs, app.logger)
			out := output.New(os.Stdout)

			for _, kind := range enum.UnavailableKinds() {
				out.Warningf("source %q unavailable, skipping", kind)
			}

			orch := ingest.NewOrchestrator(ingest.OrchestratorConfig{
				Config:     app.cfg,
				Store:      app.store,
				Lexical:    app.lexical,
				Vector:     app.vector,
				Embedder:   app.embedder,
				Enumerator: enum,
				Logger:     app.logger,
			})

			report, err := orch.Run(ctx, ingest.Options{
				FullScan: fullScan,
				DryRun:   dryRun,
				Since:    since,
			})
			if err != nil {
				return err
			}

			if dryRun {
				out.Statusf("·", "dry run: %d to add, %d to update, %d to remove (%d unchanged)",
					report.Added, report.Modified, report.Removed, report.Unchanged)
				return nil
			}

			printReport(out, report)

			if report.Partial() {
				return fmt.Errorf("%w: %d chunks still pending embedding", errPartial, report.PendingChunks)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&fullScan, "full-scan", false, "Re-hash all files, reconcile deletions, and repair indexes")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Detect changes without modifying any index")
	cmd.Flags().DurationVar(&since, "since", 0, "Only consider files modified within this window (e.g. 24h, 168h)")
	cmd.Flags().StringSliceVar(&sources, "sources", nil, "Restrict to source kinds (notes, summary, memory, logs)")

	return cmd
}

// filterSources restricts the configured source map to the requested
// kinds, rejecting names that aren't configured.
func filterSources(dirs map[string]string, kinds []string) (map[string]string, error) {
	filtered := make(map[string]string, len(kinds))
	for _, kind := range kinds {
		dir, ok := dirs[kind]
		if !ok {
			return nil, fmt.Errorf("unknown or unconfigured source kind %q", kind)
		}
		filtered[kind] = dir
	}
	return filtered, nil
}

func printReport(out *output.Writer, r *ingest.Report) {
	out.Successf("ingested %d documents in %s", r.Scanned, r.Duration.Round(10*time.Millisecond))
	out.Field("added", r.Added)
	out.Field("modified", r.Modified)
	out.Field("unchanged", r.Unchanged)
	if r.Removed > 0 {
		out.Field("removed", r.Removed)
	}
	out.Field("chunks indexed", r.ChunksIndexed)
	out.Field("chunks embedded", r.ChunksEmbedded)
	if r.EmbedFailures > 0 {
		out.Field("embed failures", r.EmbedFailures)
	}
	if r.PendingChunks > 0 {
		out.Warningf("%d chunks pending embedding; run 'memdex ingest' again when the provider is up", r.PendingChunks)
	}
}
