package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/medfuse/medfuse/internal/fusion"
	"github.com/medfuse/medfuse/internal/output"
	"github.com/medfuse/medfuse/internal/retrieval"
	"github.com/medfuse/medfuse/internal/store"
)

// searchOptions holds CLI flags for search.
type searchOptions struct {
	corpus  string
	limit   int
	budget  time.Duration
	format  string // "text", "json"
	explain bool
}

func newSearchCmd() *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search a corpus with multi-path fusion",
		Long: `Search a corpus file using multi-path retrieval fusion.

Runs dense vector search plus BM25 over the keywords, summary,
and content fields concurrently, then fuses the rankings with
weighted reciprocal rank fusion.

Examples:
  medfuse search "metformin dosing in renal impairment" --corpus docs.json
  medfuse search "hypertension first line treatment" --corpus docs.json --limit 5
  medfuse search "ACE inhibitor contraindications" --corpus docs.json --format json
  medfuse search "insulin titration" --corpus docs.json --explain`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			return runSearch(cmd.Context(), cmd, query, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.corpus, "corpus", "c", "", "Path to corpus file (JSON or YAML)")
	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 0, "Maximum number of results (default from config)")
	cmd.Flags().DurationVar(&opts.budget, "budget", 0, "Time budget for progressive retrieval (e.g. 5s)")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")
	cmd.Flags().BoolVar(&opts.explain, "explain", false, "Show per-path scores, weights, and stage decisions")
	_ = cmd.MarkFlagRequired("corpus")

	return cmd
}

func runSearch(ctx context.Context, cmd *cobra.Command, query string, opts searchOptions) error {
	slog.Info("search_started", slog.String("query", query), slog.Int("limit", opts.limit))
	out := output.New(cmd.OutOrStdout())

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	docs, err := loadCorpus(opts.corpus)
	if err != nil {
		return err
	}
	engine, err := buildEngine(cfg, docs)
	if err != nil {
		return err
	}

	resp, err := engine.Retrieve(ctx, query, retrieval.RetrieveOptions{
		TopK:       opts.limit,
		TimeBudget: opts.budget,
	})
	if err != nil {
		return fmt.Errorf("retrieve: %w", err)
	}
	slog.Info("search_complete",
		slog.String("request_id", resp.Stats.RequestID),
		slog.Int("results", len(resp.Documents)),
		slog.Duration("elapsed", resp.Stats.Elapsed))

	if opts.format == "json" {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	}
	return formatText(out, query, resp, opts.explain)
}

// formatText outputs results in human-readable form.
func formatText(out *output.Writer, query string, resp *retrieval.Response, explain bool) error {
	if explain {
		formatExplainHeader(out, resp)
	}

	if len(resp.Documents) == 0 {
		out.Status("", fmt.Sprintf("No results found for %q", query))
		return nil
	}

	out.Statusf("🔍", "Found %d results for %q:", len(resp.Documents), query)
	out.Newline()

	for i, d := range resp.Documents {
		if explain {
			out.Statusf("", "%d. %s (score: %.4f)", i+1, d.ID, d.ScoreOf())
			out.Status("", "      "+contributionLine(d))
		} else {
			out.Statusf("", "%d. %s (score: %.3f)", i+1, d.ID, d.ScoreOf())
		}
		for _, line := range snippet(d.Content, 3) {
			out.Status("", "   "+line)
		}
		out.Newline()
	}
	return nil
}

// formatExplainHeader summarizes the retrieval decisions for one query.
func formatExplainHeader(out *output.Writer, resp *retrieval.Response) {
	s := resp.Stats
	out.Status("", "════════════════════════════════════════")
	out.Status("", "RETRIEVAL EXPLANATION")
	out.Status("", "════════════════════════════════════════")
	out.Status("", fmt.Sprintf("Query type: %s (%s, confidence %.2f)", s.QueryType, s.Complexity, s.Confidence))
	out.Status("", fmt.Sprintf("Fusion: %s over %d candidates", s.FusionMethod, s.FusedCount))
	if s.Stage != "" {
		out.Status("", fmt.Sprintf("Stage: %s (stop: %s, quality %.2f)", s.Stage, s.StopReason, s.Quality))
	}
	if s.Reranked {
		line := "Reranked: " + s.RerankInfo
		if s.RerankCache {
			line += " (cache hit)"
		}
		out.Status("", line)
	}
	if s.RerankErr != "" {
		out.Status("", "Rerank error: "+s.RerankErr)
	}

	for _, path := range store.AllPaths() {
		po, ok := s.Paths[path]
		if !ok {
			continue
		}
		line := fmt.Sprintf("%-8s weight %.2f, %d candidates, %d duplicates removed, %s",
			path, s.Weights[path], po.Candidates, po.Removed, po.Latency.Round(time.Millisecond))
		if po.Err != "" {
			line += " (failed: " + po.Err + ")"
		}
		out.Status("", line)
	}
	out.Status("", fmt.Sprintf("Elapsed: %s", s.Elapsed.Round(time.Millisecond)))
	out.Status("", "════════════════════════════════════════")
	out.Newline()
}

// contributionLine renders per-path rank and score provenance.
func contributionLine(d *fusion.FusedDocument) string {
	parts := make([]string, 0, len(d.Contributions))
	for _, path := range store.AllPaths() {
		c, ok := d.Contributions[path]
		if !ok {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s: rank %d (%.3f)", path, c.Rank, c.Score))
	}
	return strings.Join(parts, " | ")
}

// snippet returns the first n non-empty-trailing lines of content.
func snippet(content string, n int) []string {
	lines := strings.Split(content, "\n")
	if len(lines) > n {
		lines = lines[:n]
	}
	for len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}
