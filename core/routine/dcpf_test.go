package routine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/gridopt/core/errs"
	"github.com/kilianp07/gridopt/core/network"
	"github.com/kilianp07/gridopt/infra/logger"
)

func TestDCPFCase2(t *testing.T) {
	rec := &captureRecorder{}
	d := NewDCPF(Deps{Logger: logger.NopLogger{}, Recorder: rec})
	assert.Equal(t, "DCPF", d.Name())

	res, err := d.Run(context.Background(), network.Case2())
	require.NoError(t, err)
	assert.True(t, res.Converged)
	assert.Equal(t, 1, res.Iterations)
	assert.Equal(t, "gonum/dense-solve", res.Solver)

	pg, _ := res.Value("pg")
	assert.InDeltaSlice(t, []float64{0.5}, pg, 1e-12)
	aBus, _ := res.Value("aBus")
	assert.InDeltaSlice(t, []float64{0, -0.05}, aBus, 1e-12)
	plf, _ := res.Value("plf")
	assert.InDeltaSlice(t, []float64{0.5}, plf, 1e-12)
	assert.InDelta(t, 525, res.Objective, 1e-9)
	require.Len(t, rec.events, 1)
}

func TestDCPFCase9SlackTakesImbalance(t *testing.T) {
	res, err := NewDCPF(Deps{}).Run(context.Background(), network.Case9())
	require.NoError(t, err)

	pg, _ := res.Value("pg")
	assert.InDeltaSlice(t, []float64{0.67, 1.63, 0.85}, pg, 1e-9)
	aBus, _ := res.Value("aBus")
	require.Len(t, aBus, 9)
	assert.Equal(t, 0.0, aBus[0])
	plf, _ := res.Value("plf")
	require.Len(t, plf, 9)
	// the slack feeds the network through branch 1-4 only
	assert.InDelta(t, 0.67, plf[0], 1e-9)
	assert.InDelta(t, 978.79+3053.965+1305.0625, res.Objective, 1e-6)
}

func TestDCPFNoSlackGenerator(t *testing.T) {
	c := network.Case9()
	c.Gens[0].Status = 0
	_, err := NewDCPF(Deps{}).Run(context.Background(), c)
	assert.ErrorIs(t, err, errs.ErrConfiguration)
}
