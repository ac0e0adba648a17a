package cmd

import (
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/openclaw/memdex/internal/ingest"
	"github.com/openclaw/memdex/internal/output"
	"github.com/openclaw/memdex/internal/source"
	"github.com/openclaw/memdex/internal/store"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show index health and ingestion state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			app, err := openApp(ctx, false)
			if err != nil {
				return err
			}
			defer app.Close()

			out := output.New(os.Stdout)

			stats, err := app.store.Stats(ctx)
			if err != nil {
				return err
			}

			out.Section("Index")
			out.Field("data dir", app.cfg.Storage.DataDir)
			out.Field("documents", stats.DocumentCount)
			out.Field("chunks", stats.ChunkCount)
			out.Field("embedded", stats.EmbeddedCount)
			if stats.PendingCount > 0 {
				out.Field("pending", stats.PendingCount)
			}
			out.Field("lexical backend", string(store.DetectLexicalBackend(app.cfg.LexicalBasePath())))
			out.Field("lexical entries", app.lexical.Count())
			out.Field("vector entries", app.vector.Count())

			checker := ingest.NewConsistencyChecker(app.store, app.lexical, app.vector, app.embedder.ModelName(), app.logger)
			if consistent, err := checker.QuickCheck(ctx); err != nil {
				out.Warningf("consistency check failed: %v", err)
			} else if consistent {
				out.Success("index counts consistent")
			} else {
				out.Warning("index counts drifted; run 'memdex ingest --full-scan' to repair")
			}

			if len(stats.ByKind) > 0 {
				out.Newline()
				out.Section("Documents by kind")
				kinds := make([]string, 0, len(stats.ByKind))
				for kind := range stats.ByKind {
					kinds = append(kinds, kind)
				}
				sort.Strings(kinds)
				for _, kind := range kinds {
					out.Field(kind, stats.ByKind[kind])
				}
			}

			out.Newline()
			out.Section("Embeddings")
			out.Field("model", app.embedder.ModelName())
			if model, _ := app.store.GetState(ctx, store.StateKeyIndexModel); model != "" {
				out.Field("index model", model)
			}
			if dim, _ := app.store.GetState(ctx, store.StateKeyIndexDimension); dim != "" {
				out.Field("index dimensions", dim)
			}
			if app.embedder.Available(ctx) {
				out.Success("provider reachable")
			} else {
				out.Warning("provider unreachable; search degrades to keyword-only")
			}

			out.Newline()
			out.Section("Ingestion")
			if last, _ := app.store.GetState(ctx, store.StateKeyLastIngest); last != "" {
				out.Field("last run", last)
			} else {
				out.Field("last run", "never")
			}
			if last, _ := app.store.GetState(ctx, store.StateKeyLastFullScan); last != "" {
				out.Field("last full scan", last)
			}
			if stage, _ := app.store.GetState(ctx, store.StateKeyIngestStage); stage != "" && stage != ingest.StageIdle {
				out.Warningf("last run interrupted during %q; run 'memdex ingest --full-scan'", stage)
			}

			enum := source.NewFSEnumerator(app.cfg.SourceDirs(), app.logger)
			if unavailable := enum.UnavailableKinds(); len(unavailable) > 0 {
				for _, kind := range unavailable {
					out.Warningf("source %q unavailable", kind)
				}
			}

			return nil
		},
	}
}
