// Package index assigns contiguous ranges of a flat state vector to named
// variable blocks.
package index

import (
	"math"

	"github.com/kilianp07/gridopt/core/errs"
)

// Standard block names of the AC formulation.
const (
	Va = "Va"
	Vm = "Vm"
	Pg = "Pg"
	Qg = "Qg"
	Y  = "y"
)

// Spec declares a block and its length.
type Spec struct {
	Name string
	Len  int
}

// FromFloat builds a Spec from a configuration value, rejecting lengths that
// are not whole numbers.
func FromFloat(name string, v float64) (Spec, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) || v != math.Trunc(v) {
		return Spec{}, errs.Config(name, "block length %v is not an integer", v)
	}
	if v < 0 {
		return Spec{}, errs.Config(name, "block length %v is negative", v)
	}
	return Spec{Name: name, Len: int(v)}, nil
}

// Range is the half-open interval [Start, End) of a block.
type Range struct {
	Start int
	End   int
}

// Len returns the number of entries in the range.
func (r Range) Len() int { return r.End - r.Start }

// Map is an immutable block layout.
type Map struct {
	names  []string
	ranges map[string]Range
	n      int
}

// New lays the blocks out in order. The first block starts at zero and each
// block ends where the next one starts.
func New(specs ...Spec) (*Map, error) {
	m := &Map{names: make([]string, 0, len(specs)), ranges: make(map[string]Range, len(specs))}
	for _, s := range specs {
		if s.Name == "" {
			return nil, errs.Config("", "block name is empty")
		}
		if s.Len < 0 {
			return nil, errs.Config(s.Name, "block length %d is negative", s.Len)
		}
		if _, dup := m.ranges[s.Name]; dup {
			return nil, errs.Config(s.Name, "block declared twice")
		}
		m.ranges[s.Name] = Range{Start: m.n, End: m.n + s.Len}
		m.names = append(m.names, s.Name)
		m.n += s.Len
	}
	return m, nil
}

// Len returns the total length of the state vector.
func (m *Map) Len() int { return m.n }

// Names returns the block names in layout order.
func (m *Map) Names() []string {
	out := make([]string, len(m.names))
	copy(out, m.names)
	return out
}

// Range returns the bounds of a block.
func (m *Map) Range(name string) (Range, bool) {
	r, ok := m.ranges[name]
	return r, ok
}

// MustRange returns the bounds of a block and panics when it is missing.
func (m *Map) MustRange(name string) Range {
	r, ok := m.ranges[name]
	if !ok {
		panic("index: unknown block " + name)
	}
	return r
}

// Slice returns the sub-slice of x belonging to a block, or nil when the
// block is unknown. The result aliases x.
func (m *Map) Slice(x []float64, name string) []float64 {
	r, ok := m.ranges[name]
	if !ok {
		return nil
	}
	return x[r.Start:r.End:r.End]
}
