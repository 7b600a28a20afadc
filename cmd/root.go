// Package cmd implements the benders command line.
package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/kilianp07/benders/config"
)

var (
	cfgPath     string
	problemPath string
	outputPath  string
	format      string
)

var rootCmd = &cobra.Command{
	Use:          "benders",
	Short:        "Two-stage stochastic economic dispatch by Benders decomposition",
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "configuration file (yaml or json)")
	rootCmd.PersistentFlags().StringVarP(&problemPath, "problem", "p", "", "problem definition; defaults to the reference instance")
	rootCmd.PersistentFlags().StringVarP(&outputPath, "output", "o", "", "output file; defaults to stdout")
	rootCmd.PersistentFlags().StringVarP(&format, "format", "f", "json", "output format: json or csv")
}

// Execute runs the CLI.
func Execute() error { return rootCmd.Execute() }

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if problemPath != "" {
		cfg.Problem = problemPath
	}
	return cfg, nil
}

func validateFormat() error {
	switch format {
	case "json", "csv":
		return nil
	default:
		return fmt.Errorf("unknown format %q", format)
	}
}

// output opens the destination selected by --output.
func output(cmd *cobra.Command) (io.Writer, func() error, error) {
	if outputPath == "" {
		return cmd.OutOrStdout(), func() error { return nil }, nil
	}
	f, err := os.Create(outputPath)
	if err != nil {
		return nil, nil, err
	}
	return f, f.Close, nil
}
