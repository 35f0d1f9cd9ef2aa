package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/medfuse/medfuse/internal/output"
	"github.com/medfuse/medfuse/internal/validation"
)

func newIndexCmd() *cobra.Command {
	var strict bool

	cmd := &cobra.Command{
		Use:   "index <corpus>",
		Short: "Validate a corpus and build its indexes",
		Long: `Validate a corpus file, build the field indexes and vector store,
and report what was indexed. Warnings flag documents that will be
invisible to some retrieval paths.

The engine is in-memory, so this is a dry run: search builds the
same indexes on startup. Use it to vet a corpus before serving it.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIndex(cmd, args[0], strict)
		},
	}

	cmd.Flags().BoolVar(&strict, "strict", false, "Treat warnings as errors")
	return cmd
}

func runIndex(cmd *cobra.Command, path string, strict bool) error {
	out := output.New(cmd.OutOrStdout())

	docs, err := parseCorpus(path)
	if err != nil {
		return err
	}

	report := validation.ValidateCorpus(docs)
	for _, issue := range report.Errors {
		out.Error(issue.String())
	}
	for _, issue := range report.Warnings {
		out.Warning(issue.String())
	}
	if err := report.Err(); err != nil {
		return err
	}
	if strict && len(report.Warnings) > 0 {
		return fmt.Errorf("%d warnings with --strict", len(report.Warnings))
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	engine, err := buildEngine(cfg, docs)
	if err != nil {
		return err
	}

	stats := engine.GetPerformanceStats()
	out.Successf("Indexed %d documents from %s", len(docs), path)
	for _, fs := range stats.FieldStats {
		out.Statusf("", "%-8s %d documents, %d terms", fs.Field, fs.DocumentCount, fs.TermCount)
	}
	return nil
}
