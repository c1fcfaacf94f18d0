package cmd

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kilianp07/gridopt/app"
	"github.com/kilianp07/gridopt/infra/caseio"
	"github.com/kilianp07/gridopt/infra/logger"
)

var (
	casePath string
	jsonOut  bool
)

var acopfCmd = &cobra.Command{
	Use:   "acopf",
	Short: "Solve the AC optimal power flow of a case",
	RunE:  func(cmd *cobra.Command, _ []string) error { return runRoutine(cmd, app.ACOPF) },
}

var dcopfCmd = &cobra.Command{
	Use:   "dcopf",
	Short: "Solve the DC optimal power flow of a case",
	RunE:  func(cmd *cobra.Command, _ []string) error { return runRoutine(cmd, app.DCOPF) },
}

var dcpfCmd = &cobra.Command{
	Use:   "dcpf",
	Short: "Solve the DC power flow of a case",
	RunE:  func(cmd *cobra.Command, _ []string) error { return runRoutine(cmd, app.DCPF) },
}

func init() {
	for _, c := range []*cobra.Command{acopfCmd, dcopfCmd, dcpfCmd} {
		c.Flags().StringVar(&casePath, "case", "builtin:case9", "case file (.yaml, .json) or builtin:<name>")
		c.Flags().BoolVar(&jsonOut, "json", false, "print the result as JSON")
		rootCmd.AddCommand(c)
	}
}

func runRoutine(cmd *cobra.Command, name string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	c, err := caseio.Load(casePath)
	if err != nil {
		return err
	}
	svc, err := app.New(cfg, app.WithOutput(cmd.OutOrStdout()))
	if err != nil {
		return err
	}
	defer func() {
		if err := svc.Close(); err != nil {
			logger.New("main").Errorf("service close: %v", err)
		}
	}()

	res, err := svc.Run(ctx, name, c)
	if err != nil {
		return err
	}
	if jsonOut {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(res.Record())
	}
	return nil
}
