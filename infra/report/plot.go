package report

import (
	"fmt"
	"path/filepath"
	"strings"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"github.com/kilianp07/gridopt/core/routine"
)

const (
	plotWidth  = 6 * vg.Inch
	plotHeight = 4 * vg.Inch
)

// DispatchPlot builds a bar chart of the generator set points in MW, with
// reactive output beside it when the routine produced one.
func DispatchPlot(res *routine.Result) (*plot.Plot, error) {
	pg, _ := res.Value("pg")
	if len(pg) == 0 {
		return nil, fmt.Errorf("report: %s run %s has no pg", res.Routine, res.ID)
	}
	base := res.BaseMVA
	if base <= 0 {
		base = 1
	}
	p := plot.New()
	p.Title.Text = fmt.Sprintf("%s dispatch, %s", res.Routine, res.Case)
	p.X.Label.Text = "generator"
	p.Y.Label.Text = "MW / MVAr"

	series := []struct {
		name string
		vals []float64
	}{{"Pg", pg}}
	if qg, _ := res.Value("qg"); len(qg) == len(pg) {
		series = append(series, struct {
			name string
			vals []float64
		}{"Qg", qg})
	}
	w := vg.Points(20)
	for i, s := range series {
		vs := make(plotter.Values, len(s.vals))
		for k, v := range s.vals {
			vs[k] = v * base
		}
		bars, err := plotter.NewBarChart(vs, w)
		if err != nil {
			return nil, err
		}
		bars.Color = plotutil.Color(i)
		bars.LineStyle.Width = 0
		bars.Offset = w * vg.Length(2*i-len(series)+1) / 2
		p.Add(bars)
		p.Legend.Add(s.name, bars)
	}
	p.Legend.Top = true
	labels := make([]string, len(pg))
	for i := range labels {
		labels[i] = fmt.Sprintf("G%d", i+1)
	}
	p.NominalX(labels...)
	return p, nil
}

// VoltagePlot draws the bus voltage magnitudes against their index.
func VoltagePlot(res *routine.Result) (*plot.Plot, error) {
	vm, _ := res.Value("vBus")
	if len(vm) == 0 {
		return nil, fmt.Errorf("report: %s run %s has no vBus", res.Routine, res.ID)
	}
	p := plot.New()
	p.Title.Text = fmt.Sprintf("%s voltage profile, %s", res.Routine, res.Case)
	p.X.Label.Text = "bus"
	p.Y.Label.Text = "|V| (p.u.)"
	pts := make(plotter.XYs, len(vm))
	for i, v := range vm {
		pts[i].X = float64(i + 1)
		pts[i].Y = v
	}
	if err := plotutil.AddLinePoints(p, "Vm", pts); err != nil {
		return nil, err
	}
	return p, nil
}

// PlotDispatch saves the dispatch chart to path. The format follows the
// extension. Results carrying voltages also get a profile chart next to it.
func PlotDispatch(res *routine.Result, path string) error {
	p, err := DispatchPlot(res)
	if err != nil {
		return err
	}
	if err := p.Save(plotWidth, plotHeight, path); err != nil {
		return fmt.Errorf("report: save %s: %w", path, err)
	}
	if _, ok := res.Value("vBus"); !ok {
		return nil
	}
	vp, err := VoltagePlot(res)
	if err != nil {
		return err
	}
	vpath := withSuffix(path, "voltage")
	if err := vp.Save(plotWidth, plotHeight, vpath); err != nil {
		return fmt.Errorf("report: save %s: %w", vpath, err)
	}
	return nil
}

// PathFor inserts the lower-cased routine name before the extension of
// pattern: dispatch.png becomes dispatch-acopf.png.
func PathFor(pattern, routineName string) string {
	return withSuffix(pattern, strings.ToLower(routineName))
}

func withSuffix(path, suffix string) string {
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + "-" + suffix + ext
}

// PlotHook returns a report stage callback saving charts under pattern.
func PlotHook(pattern string) func(*routine.Result) (*routine.Result, error) {
	return func(res *routine.Result) (*routine.Result, error) {
		return res, PlotDispatch(res, PathFor(pattern, res.Routine))
	}
}
