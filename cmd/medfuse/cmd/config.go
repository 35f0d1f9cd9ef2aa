package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/medfuse/medfuse/configs"
	"github.com/medfuse/medfuse/internal/output"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and scaffold configuration",
	}

	cmd.AddCommand(newConfigExampleCmd())
	cmd.AddCommand(newConfigShowCmd())
	return cmd
}

func newConfigExampleCmd() *cobra.Command {
	var outPath string

	cmd := &cobra.Command{
		Use:   "example",
		Short: "Print or write the annotated example configuration",
		Long: `Print the annotated example configuration to stdout, or write
it to a file with --output for editing.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if outPath == "" {
				_, err := fmt.Fprint(cmd.OutOrStdout(), configs.ExampleConfig)
				return err
			}

			if _, err := os.Stat(outPath); err == nil {
				return fmt.Errorf("%s already exists, refusing to overwrite", outPath)
			}
			if err := os.WriteFile(outPath, []byte(configs.ExampleConfig), 0o644); err != nil {
				return fmt.Errorf("write config: %w", err)
			}
			output.New(cmd.OutOrStdout()).Successf("Wrote example configuration to %s", outPath)
			return nil
		},
	}

	cmd.Flags().StringVarP(&outPath, "output", "o", "", "Write the template to a file instead of stdout")
	return cmd
}

func newConfigShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration as JSON",
		Long: `Resolve the effective configuration from --config or --preset
(defaults when neither is set) and print it as JSON.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(cfg)
		},
	}
	return cmd
}
