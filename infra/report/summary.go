// Package report renders routine results as text summaries and charts.
package report

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/kilianp07/gridopt/core/routine"
)

// perUnit lists the result vectors expressed in per unit of BaseMVA.
var perUnit = map[string]bool{"pg": true, "qg": true, "plf": true}

// WriteSummary prints the run header followed by one line per result
// vector. Power vectors are converted to MW/MVAr.
func WriteSummary(w io.Writer, res *routine.Result) error {
	if res == nil {
		return fmt.Errorf("report: nil result")
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "routine\t%s\n", res.Routine)
	fmt.Fprintf(tw, "case\t%s\n", res.Case)
	fmt.Fprintf(tw, "run\t%s\n", res.ID)
	fmt.Fprintf(tw, "status\t%s\n", res.Status)
	fmt.Fprintf(tw, "objective\t%.4f\n", res.Objective)
	fmt.Fprintf(tw, "iterations\t%d\n", res.Iterations)
	fmt.Fprintf(tw, "elapsed\t%s\n", res.Elapsed.Round(time.Microsecond))
	fmt.Fprintf(tw, "solver\t%s\n", res.Solver)
	fmt.Fprintln(tw)

	names := make([]string, 0, len(res.Vars))
	for name := range res.Vars {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		vals := res.Vars[name]
		scale, unit := 1.0, ""
		if perUnit[name] && res.BaseMVA > 0 {
			scale, unit = res.BaseMVA, " (MW)"
			if name == "qg" {
				unit = " (MVAr)"
			}
		}
		parts := make([]string, len(vals))
		for i, v := range vals {
			parts[i] = fmt.Sprintf("%.4f", v*scale)
		}
		fmt.Fprintf(tw, "%s%s\t%s\n", name, unit, strings.Join(parts, "\t"))
	}
	return tw.Flush()
}

// SummaryHook returns a report stage callback writing to w.
func SummaryHook(w io.Writer) func(*routine.Result) (*routine.Result, error) {
	return func(res *routine.Result) (*routine.Result, error) {
		return res, WriteSummary(w, res)
	}
}
