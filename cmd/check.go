package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kilianp07/gridopt/core/opf"
	"github.com/kilianp07/gridopt/infra/caseio"
)

var checkTol float64

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Compare analytic derivatives with finite differences",
	RunE:  checkDerivatives,
}

func init() {
	checkCmd.Flags().StringVar(&casePath, "case", "builtin:case9", "case file (.yaml, .json) or builtin:<name>")
	checkCmd.Flags().Float64Var(&checkTol, "tol", 1e-5, "largest accepted relative error")
	rootCmd.AddCommand(checkCmd)
}

func checkDerivatives(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	c, err := caseio.Load(casePath)
	if err != nil {
		return err
	}
	ac, err := cfg.OPF.ACOptions()
	if err != nil {
		return err
	}
	oc, err := opf.NewContext(c.InService(), opf.Options{FlowLim: ac.FlowLim})
	if err != nil {
		return err
	}
	checks, err := opf.CheckDerivatives(oc, oc.InitialPoint(), ac.CostMult)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "derivative\tshape\tmax abs err\tmax rel err\tresult")
	failed := 0
	for _, d := range checks {
		result := "ok"
		if !d.OK(checkTol) {
			result = "FAIL"
			failed++
		}
		fmt.Fprintf(tw, "%s\t%dx%d\t%.3g\t%.3g\t%s\n", d.Name, d.Rows, d.Cols, d.MaxAbsErr, d.MaxRelErr, result)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d derivative checks exceed %g", failed, len(checks), checkTol)
	}
	return nil
}
