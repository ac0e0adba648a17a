package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/openclaw/memdex/internal/output"
	"github.com/openclaw/memdex/internal/search"
)

func newSearchCmd() *cobra.Command {
	var (
		limit       int
		kinds       []string
		lexicalOnly bool
		format      string
		wLexical    float64
		wVector     float64
	)

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the index",
		Long: `Search runs a hybrid query against the index: BM25 keyword
matching fused with vector similarity, collapsed to one result per
document.

When the embedding provider is unreachable the query degrades to
keyword-only matching instead of failing.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			query := strings.Join(args, " ")

			if format != "text" && format != "json" {
				return fmt.Errorf("unknown format %q (want text or json)", format)
			}

			weightsSet := cmd.Flags().Changed("w-lexical") || cmd.Flags().Changed("w-vector")
			if weightsSet {
				if wLexical < 0 || wVector < 0 || wLexical+wVector <= 0 {
					return fmt.Errorf("weights must be non-negative and sum to a positive value")
				}
				// Normalize so fused scores stay in [0,1].
				sum := wLexical + wVector
				wLexical /= sum
				wVector /= sum
			}

			app, err := openApp(ctx, false)
			if err != nil {
				return err
			}
			defer app.Close()

			engine, err := search.NewEngine(app.store, app.lexical, app.vector, app.embedder, search.EngineConfig{
				LexicalWeight: app.cfg.Search.LexicalWeight,
				VectorWeight:  app.cfg.Search.VectorWeight,
				Overfetch:     app.cfg.Search.Overfetch,
				MaxResults:    app.cfg.Search.MaxResults,
				SnippetLength: app.cfg.Search.SnippetLength,
			}, app.logger)
			if err != nil {
				return err
			}

			opts := search.Options{
				Limit:       limit,
				Kinds:       kinds,
				LexicalOnly: lexicalOnly,
			}
			if weightsSet {
				opts.LexicalWeight = wLexical
				opts.VectorWeight = wVector
			}

			results, err := engine.Search(ctx, query, opts)
			if err != nil {
				return err
			}

			if format == "json" {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(results)
			}

			printResults(output.New(os.Stdout), query, results)
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Maximum number of results (default from config)")
	cmd.Flags().StringSliceVar(&kinds, "kind", nil, "Restrict to source kinds (notes, summary, memory, logs)")
	cmd.Flags().BoolVar(&lexicalOnly, "lexical-only", false, "Skip vector search, keyword matching only")
	cmd.Flags().StringVar(&format, "format", "text", "Output format: text or json")
	cmd.Flags().Float64Var(&wLexical, "w-lexical", 0, "Lexical weight override (normalized with --w-vector)")
	cmd.Flags().Float64Var(&wVector, "w-vector", 0, "Vector weight override (normalized with --w-lexical)")

	return cmd
}

func printResults(out *output.Writer, query string, results []*search.Result) {
	if len(results) == 0 {
		out.Printf("No results for %q\n", query)
		return
	}

	for i, r := range results {
		marker := " "
		if r.InBoth {
			marker = "*"
		}
		out.Printf("%2d.%s [%.3f] %s (%s)\n", i+1, marker, r.Score, r.Path, r.Kind)
		if r.Title != "" {
			out.Printf("      %s\n", r.Title)
		}
		if r.Snippet != "" {
			out.Printf("      %s\n", r.Snippet)
		}
	}
	out.Newline()
	out.Printf("%d results; * matched both keyword and vector search\n", len(results))
}
