package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newStatsCmd() *cobra.Command {
	var corpus string
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show index statistics for a corpus",
		Long: `Display per-field index statistics for a corpus:
  - Document count per BM25 field
  - Distinct term count per field
  - Average document length per field`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStats(cmd, corpus, jsonOutput)
		},
	}

	cmd.Flags().StringVarP(&corpus, "corpus", "c", "", "Path to corpus file (JSON or YAML)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	_ = cmd.MarkFlagRequired("corpus")

	return cmd
}

func runStats(cmd *cobra.Command, corpus string, jsonOutput bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	docs, err := loadCorpus(corpus)
	if err != nil {
		return err
	}
	engine, err := buildEngine(cfg, docs)
	if err != nil {
		return err
	}

	stats := engine.GetPerformanceStats()

	if jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(stats)
	}

	w := cmd.OutOrStdout()
	fmt.Fprintln(w, "Index Statistics")
	fmt.Fprintln(w, "================")
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Documents: %d\n", len(docs))
	fmt.Fprintln(w)

	fmt.Fprintln(w, "BM25 Fields:")
	for _, fs := range stats.FieldStats {
		fmt.Fprintf(w, "  %-8s %d documents, %d terms, avg length %.1f\n",
			fs.Field, fs.DocumentCount, fs.TermCount, fs.AvgDocLen)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Circuit Breakers:")
	for name, state := range stats.Breakers {
		fmt.Fprintf(w, "  %-12s %s\n", name, state)
	}
	return nil
}
