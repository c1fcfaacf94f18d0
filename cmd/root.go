// Package cmd implements the gridopt command line.
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kilianp07/gridopt/config"
)

var cfgPath string

var rootCmd = &cobra.Command{
	Use:           "gridopt",
	Short:         "Optimal power flow dispatch routines",
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "configuration file (defaults apply when empty)")
}

// Execute runs the CLI.
func Execute() error { return rootCmd.Execute() }

func loadConfig() (*config.Config, error) {
	if cfgPath == "" {
		return config.Default(), nil
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}
