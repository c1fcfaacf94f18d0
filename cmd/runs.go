package cmd

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/kilianp07/gridopt/app"
	"github.com/kilianp07/gridopt/core/runlog"
	"github.com/kilianp07/gridopt/infra/logger"
)

var (
	runsRoutine   string
	runsSince     time.Duration
	runsLimit     int
	runsConverged bool
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List stored routine runs",
	RunE:  listRuns,
}

func init() {
	runsCmd.Flags().StringVar(&runsRoutine, "routine", "", "only runs of this routine (ACOPF, DCOPF)")
	runsCmd.Flags().DurationVar(&runsSince, "since", 0, "only runs younger than this")
	runsCmd.Flags().IntVar(&runsLimit, "limit", 20, "most recent runs to show, 0 for all")
	runsCmd.Flags().BoolVar(&runsConverged, "converged", false, "only converged runs")
	rootCmd.AddCommand(runsCmd)
}

func listRuns(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
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

	q := runlog.RunQuery{Routine: runsRoutine, ConvergedOnly: runsConverged, Limit: runsLimit}
	if runsSince > 0 {
		q.Start = time.Now().Add(-runsSince)
	}
	recs, err := svc.Runs(cmd.Context(), q)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "id\ttime\troutine\tcase\tconverged\tobjective\titerations\telapsed ms")
	for _, r := range recs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%t\t%.4f\t%d\t%.1f\n",
			r.ID, r.Timestamp.Format(time.RFC3339), r.Routine, r.Case, r.Converged, r.Objective, r.Iterations, r.ElapsedMS)
	}
	return tw.Flush()
}
