package report

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/gridopt/core/routine"
)

func acResult() *routine.Result {
	return &routine.Result{
		ID:         "run-7",
		Routine:    "ACOPF",
		Case:       "case9",
		Converged:  true,
		Status:     "converged",
		Objective:  5296.6862,
		Iterations: 9,
		Elapsed:    12 * time.Millisecond,
		Solver:     "augmented-lagrangian/newton",
		BaseMVA:    100,
		Vars: map[string][]float64{
			"pg":   {0.8979, 1.3432, 0.9419},
			"qg":   {0.1296, 0.0001, -0.2263},
			"vBus": {1.1, 1.0974, 1.0866, 1.0942, 1.0844, 1.1, 1.0895, 1.1, 1.0718},
		},
	}
}

func TestWriteSummary(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteSummary(&buf, acResult()))
	out := buf.String()
	assert.Contains(t, out, "ACOPF")
	assert.Contains(t, out, "case9")
	assert.Contains(t, out, "converged")
	assert.Contains(t, out, "5296.6862")
	assert.Contains(t, out, "pg (MW)")
	assert.Contains(t, out, "134.3200")
	assert.Contains(t, out, "qg (MVAr)")
	assert.Contains(t, out, "1.0974")
}

func TestWriteSummaryNil(t *testing.T) {
	assert.Error(t, WriteSummary(&bytes.Buffer{}, nil))
}

func TestPlotDispatch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dispatch.png")
	require.NoError(t, PlotDispatch(acResult(), path))

	for _, p := range []string{path, filepath.Join(dir, "dispatch-voltage.png")} {
		st, err := os.Stat(p)
		require.NoError(t, err, p)
		assert.Positive(t, st.Size(), p)
	}
}

func TestPlotDispatchSVGWithoutVoltage(t *testing.T) {
	res := acResult()
	delete(res.Vars, "vBus")
	delete(res.Vars, "qg")
	dir := t.TempDir()
	path := filepath.Join(dir, "dc.svg")
	require.NoError(t, PlotDispatch(res, path))
	_, err := os.Stat(path)
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, "dc-voltage.svg"))
	assert.True(t, os.IsNotExist(err))
}

func TestDispatchPlotNeedsPg(t *testing.T) {
	res := acResult()
	delete(res.Vars, "pg")
	_, err := DispatchPlot(res)
	assert.Error(t, err)
	_, err = VoltagePlot(&routine.Result{})
	assert.Error(t, err)
}

func TestPathFor(t *testing.T) {
	assert.Equal(t, "out/dispatch-dcopf.png", PathFor("out/dispatch.png", "DCOPF"))
	assert.Equal(t, "chart-acopf", PathFor("chart", "ACOPF"))
}

func TestHooks(t *testing.T) {
	var buf bytes.Buffer
	pattern := filepath.Join(t.TempDir(), "run.png")
	hooks := routine.NewHooks()
	require.NoError(t, hooks.Report.Add("summary", SummaryHook(&buf)))
	require.NoError(t, hooks.Report.Add("plot", PlotHook(pattern)))

	res, err := hooks.Report.Run(acResult())
	require.NoError(t, err)
	assert.Equal(t, "run-7", res.ID)
	assert.Contains(t, buf.String(), "ACOPF")
	_, err = os.Stat(PathFor(pattern, "ACOPF"))
	assert.NoError(t, err)
}
