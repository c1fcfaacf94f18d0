package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/gridopt/core/runlog"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		cfgPath, casePath, jsonOut = "", "builtin:case9", false
	})
	err := rootCmd.Execute()
	return out.String(), err
}

func writeConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	data := "logging:\n  backend: jsonl\n  path: " + filepath.Join(dir, "runs.log") + "\nmetrics:\n  sinks:\n    - type: nop\n"
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))
	return path
}

func TestDCOPFCommandJSON(t *testing.T) {
	cfg := writeConfig(t)
	out, err := execute(t, "dcopf", "-c", cfg, "--case", "builtin:case2", "--json")
	require.NoError(t, err)

	var rec runlog.RunRecord
	require.NoError(t, json.Unmarshal([]byte(out), &rec))
	assert.Equal(t, "DCOPF", rec.Routine)
	assert.True(t, rec.Converged)
	assert.InDelta(t, 0.5, rec.Vars["pg"][0], 1e-9)

	out, err = execute(t, "runs", "-c", cfg, "--routine", "DCOPF")
	require.NoError(t, err)
	assert.Contains(t, out, rec.ID)
}

func TestDCPFCommandJSON(t *testing.T) {
	cfg := writeConfig(t)
	out, err := execute(t, "dcpf", "-c", cfg, "--case", "builtin:case9", "--json")
	require.NoError(t, err)

	var rec runlog.RunRecord
	require.NoError(t, json.Unmarshal([]byte(out), &rec))
	assert.Equal(t, "DCPF", rec.Routine)
	assert.True(t, rec.Converged)
	assert.InDelta(t, 0.67, rec.Vars["pg"][0], 1e-9)
	assert.Len(t, rec.Vars["aBus"], 9)
}

func TestCheckCommand(t *testing.T) {
	out, err := execute(t, "check", "--case", "builtin:case2")
	require.NoError(t, err)
	assert.Contains(t, out, "power balance jacobian")
	assert.Contains(t, out, "lagrangian hessian")
	assert.NotContains(t, out, "FAIL")
}

func TestUnknownCase(t *testing.T) {
	_, err := execute(t, "acopf", "--case", "builtin:case118")
	assert.Error(t, err)
}
