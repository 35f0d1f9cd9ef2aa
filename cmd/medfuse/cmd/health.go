package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/medfuse/medfuse/internal/output"
	"github.com/medfuse/medfuse/internal/reliability"
)

func newHealthCmd() *cobra.Command {
	var corpus string
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check component health for a corpus",
		Long: `Run health checks against a freshly built engine: index
population, circuit breaker states, and configuration validity.

Exits non-zero when any component is unhealthy.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHealth(cmd, corpus, jsonOutput)
		},
	}

	cmd.Flags().StringVarP(&corpus, "corpus", "c", "", "Path to corpus file (JSON or YAML)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	_ = cmd.MarkFlagRequired("corpus")

	return cmd
}

func runHealth(cmd *cobra.Command, corpus string, jsonOutput bool) error {
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

	report := engine.HealthCheck(cmd.Context())

	if jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return err
		}
	} else {
		out := output.New(cmd.OutOrStdout())
		for _, c := range report.Components {
			icon := "✅"
			switch c.Status {
			case reliability.HealthDegraded, reliability.HealthUnknown:
				icon = "⚠️ "
			case reliability.HealthUnhealthy:
				icon = "❌"
			}
			line := string(c.Status) + "  " + c.Name
			if c.Detail != "" {
				line += " (" + c.Detail + ")"
			}
			out.Status(icon, line)
		}
		out.Newline()
		out.Statusf("", "Overall: %s", report.Overall)
	}

	if report.Overall == reliability.HealthUnhealthy {
		return fmt.Errorf("health check failed")
	}
	return nil
}
