package opf

import (
	"strings"

	"github.com/kilianp07/gridopt/core/errs"
)

// FlowLimit selects the quantity branch limits are enforced on.
type FlowLimit int

const (
	// FlowApparent limits |S|², the default.
	FlowApparent FlowLimit = iota
	// FlowReal limits P².
	FlowReal
	// FlowCurrent limits |I|².
	FlowCurrent
)

func (f FlowLimit) String() string {
	switch f {
	case FlowReal:
		return "real"
	case FlowCurrent:
		return "current"
	default:
		return "apparent"
	}
}

// ParseFlowLimit accepts the configuration names of the flow-limit modes.
// An empty string selects FlowApparent.
func ParseFlowLimit(s string) (FlowLimit, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "apparent", "s":
		return FlowApparent, nil
	case "real", "p":
		return FlowReal, nil
	case "current", "i":
		return FlowCurrent, nil
	}
	return FlowApparent, errs.Config(s, "unknown flow limit mode")
}

// Options are the formulation settings captured by a Context.
type Options struct {
	FlowLim FlowLimit
}
