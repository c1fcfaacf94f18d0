// Package runlog persists a record of every routine run so past results can
// be listed and compared.
package runlog

import (
	"context"
	"time"

	"github.com/kilianp07/gridopt/core/factory"
)

// RunRecord captures one routine run.
type RunRecord struct {
	ID         string               `json:"id"`
	Timestamp  time.Time            `json:"timestamp"`
	Routine    string               `json:"routine"`
	Case       string               `json:"case"`
	Converged  bool                 `json:"converged"`
	Objective  float64              `json:"objective"`
	Iterations int                  `json:"iterations"`
	ElapsedMS  float64              `json:"elapsed_ms"`
	Solver     string               `json:"solver"`
	Vars       map[string][]float64 `json:"vars,omitempty"`
}

// RunQuery filters records. Zero fields match everything.
type RunQuery struct {
	Start         time.Time
	End           time.Time
	Routine       string
	ConvergedOnly bool
	// Limit keeps the most recent records when positive.
	Limit         int
}

func (q RunQuery) match(r RunRecord) bool {
	if !q.Start.IsZero() && r.Timestamp.Before(q.Start) {
		return false
	}
	if !q.End.IsZero() && r.Timestamp.After(q.End) {
		return false
	}
	if q.Routine != "" && r.Routine != q.Routine {
		return false
	}
	if q.ConvergedOnly && !r.Converged {
		return false
	}
	return true
}

func (q RunQuery) limit(recs []RunRecord) []RunRecord {
	if q.Limit > 0 && len(recs) > q.Limit {
		return recs[len(recs)-q.Limit:]
	}
	return recs
}

// Store persists RunRecords and supports querying. Query returns records in
// chronological order.
type Store interface {
	Append(ctx context.Context, rec RunRecord) error
	Query(ctx context.Context, q RunQuery) ([]RunRecord, error)
	Close() error
}

// Config selects the backend.
type Config struct {
	Backend string `json:"backend" yaml:"backend" koanf:"backend" validate:"omitempty,oneof=none jsonl sqlite"`
	Path    string `json:"path" yaml:"path" koanf:"path"`
}

// NopStore drops every record.
type NopStore struct{}

func (NopStore) Append(context.Context, RunRecord) error               { return nil }
func (NopStore) Query(context.Context, RunQuery) ([]RunRecord, error) { return nil, nil }
func (NopStore) Close() error                                         { return nil }

var stores = factory.NewRegistry[Store]()

func init() {
	_ = stores.Register("none", func(map[string]any) (Store, error) { return NopStore{}, nil })
	_ = stores.Register("jsonl", func(conf map[string]any) (Store, error) {
		var c Config
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		return NewJSONLStore(c.Path)
	})
	_ = stores.Register("sqlite", func(conf map[string]any) (Store, error) {
		var c Config
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		return NewSQLiteStore(c.Path)
	})
}

// Open builds the configured store. An empty backend means none.
func Open(c Config) (Store, error) {
	backend := c.Backend
	if backend == "" {
		backend = "none"
	}
	return stores.Create(factory.ModuleConfig{Type: backend, Conf: map[string]any{"path": c.Path}})
}
