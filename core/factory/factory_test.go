package factory

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/gridopt/core/errs"
)

type store struct {
	Path    string
	Timeout time.Duration
}

type storeConf struct {
	Path    string        `json:"path"`
	Timeout time.Duration `json:"timeout"`
	Retries int           `json:"retries"`
}

func TestRegistryCreate(t *testing.T) {
	reg := NewRegistry[*store]()
	require.NoError(t, reg.Register("jsonl", func(conf map[string]any) (*store, error) {
		var c storeConf
		if err := Decode(conf, &c); err != nil {
			return nil, err
		}
		return &store{Path: c.Path, Timeout: c.Timeout}, nil
	}))
	inst, err := reg.Create(ModuleConfig{Type: "jsonl", Conf: map[string]any{"path": "runs.jsonl", "timeout": "2s"}})
	require.NoError(t, err)
	assert.Equal(t, "runs.jsonl", inst.Path)
	assert.Equal(t, 2*time.Second, inst.Timeout)
	assert.Equal(t, []string{"jsonl"}, reg.Names())
}

func TestRegistryErrors(t *testing.T) {
	reg := NewRegistry[int]()
	require.NoError(t, reg.Register("x", func(map[string]any) (int, error) { return 1, nil }))
	assert.ErrorIs(t, reg.Register("x", func(map[string]any) (int, error) { return 2, nil }), errs.ErrConfiguration)
	assert.ErrorIs(t, reg.Register("y", nil), errs.ErrConfiguration)

	_, err := reg.Create(ModuleConfig{Type: "y"})
	assert.ErrorIs(t, err, errs.ErrConfiguration)
	assert.Contains(t, err.Error(), "name=y")
}

func TestDecodeWeakTypes(t *testing.T) {
	var c storeConf
	require.NoError(t, Decode(map[string]any{"retries": "3"}, &c))
	assert.Equal(t, 3, c.Retries)
}
