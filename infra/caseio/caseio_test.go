package caseio

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/gridopt/core/errs"
	"github.com/kilianp07/gridopt/core/network"
)

const twoBus = `base_mva: 100
buses:
  - {id: 1, type: 3, vm: 1, vmax: 1.05, vmin: 0.95}
  - {id: 2, type: 1, pd: 50, qd: 10, vm: 1, vmax: 1.05, vmin: 0.95}
branches:
  - {from: 1, to: 2, r: 0.01, x: 0.1, status: 1, angmin: -360, angmax: 360}
gens:
  - {bus: 1, qmax: 100, qmin: -100, vg: 1, mbase: 100, status: 1, pmax: 200}
gencost:
  - {model: 2, coeffs: [0.01, 10, 0]}
`

func write(t *testing.T, name, data string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))
	return path
}

func TestLoadYAML(t *testing.T) {
	c, err := Load(write(t, "two_bus.yaml", twoBus))
	require.NoError(t, err)
	assert.Equal(t, "two_bus", c.Name)
	assert.Equal(t, 100.0, c.BaseMVA)
	require.Len(t, c.Buses, 2)
	assert.Equal(t, network.Ref, c.Buses[0].Type)
	assert.Equal(t, 50.0, c.Buses[1].Pd)
	assert.Equal(t, 0.1, c.Branches[0].X)
	assert.Equal(t, []float64{0.01, 10, 0}, c.GenCosts[0].Coeffs)
}

func TestLoadJSON(t *testing.T) {
	var sb strings.Builder
	require.NoError(t, Encode(&sb, network.Case9(), JSON))
	c, err := Load(write(t, "nine.json", sb.String()))
	require.NoError(t, err)
	assert.Equal(t, "case9", c.Name)
	assert.Equal(t, network.Case9().Branches, c.Branches)
}

func TestSaveThenLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "case9.yml")
	require.NoError(t, Save(path, network.Case9()))
	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, network.Case9().Gens, c.Gens)
}

func TestLoadBuiltin(t *testing.T) {
	c, err := Load("builtin:case9")
	require.NoError(t, err)
	assert.Len(t, c.Buses, 9)

	_, err = Load("builtin:case300")
	assert.ErrorIs(t, err, errs.ErrConfiguration)
	assert.Equal(t, []string{"case2", "case9"}, Builtins())
}

func TestLoadRejectsUnknownField(t *testing.T) {
	_, err := Load(write(t, "bad.yaml", twoBus+"extra: 1\n"))
	assert.ErrorIs(t, err, errs.ErrConfiguration)
}

func TestLoadValidates(t *testing.T) {
	bad := strings.Replace(twoBus, "{bus: 1,", "{bus: 7,", 1)
	_, err := Load(write(t, "bad.yaml", bad))
	assert.ErrorIs(t, err, errs.ErrConfiguration)
}

func TestLoadUnsupportedFormat(t *testing.T) {
	_, err := Load(write(t, "case.m", "mpc = struct();"))
	assert.ErrorIs(t, err, errs.ErrConfiguration)
}
