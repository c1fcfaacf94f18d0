package config

import (
	"sort"

	"github.com/kilianp07/gridopt/core/formulation"
	"github.com/kilianp07/gridopt/core/index"
	"github.com/kilianp07/gridopt/core/opf"
	"github.com/kilianp07/gridopt/core/routine"
)

// OPFConfig tunes the ACOPF routine.
type OPFConfig struct {
	// FlowLim is apparent, real or current.
	FlowLim   string  `json:"flow_lim" validate:"omitempty,oneof=apparent real current"`
	FeasTol   float64 `json:"feas_tol" validate:"gte=0"`
	GradTol   float64 `json:"grad_tol" validate:"gte=0"`
	MaxOuter  int     `json:"max_outer" validate:"gte=0"`
	MaxInner  int     `json:"max_inner" validate:"gte=0"`
	Rho       float64 `json:"rho" validate:"gte=0"`
	RhoGrowth float64 `json:"rho_growth" validate:"gte=0"`
	RhoMax    float64 `json:"rho_max" validate:"gte=0"`
	CostMult  float64 `json:"cost_mult" validate:"gte=0"`

	// ExtraBlocks appends named blocks to the AC state vector, for user
	// costs that reference variables of their own.
	ExtraBlocks map[string]float64 `json:"extra_blocks"`
}

func (c *OPFConfig) SetDefaults() {
	if c.FlowLim == "" {
		c.FlowLim = "apparent"
	}
	if c.FeasTol == 0 {
		c.FeasTol = routine.DefaultFeasTol
	}
	if c.GradTol == 0 {
		c.GradTol = routine.DefaultGradTol
	}
	if c.MaxOuter == 0 {
		c.MaxOuter = routine.DefaultMaxOuter
	}
	if c.MaxInner == 0 {
		c.MaxInner = routine.DefaultMaxInner
	}
	if c.Rho == 0 {
		c.Rho = routine.DefaultRho
	}
	if c.RhoGrowth == 0 {
		c.RhoGrowth = routine.DefaultRhoGrowth
	}
	if c.RhoMax == 0 {
		c.RhoMax = routine.DefaultRhoMax
	}
	if c.CostMult == 0 {
		c.CostMult = routine.DefaultCostMult
	}
}

// ACOptions converts the section into routine options.
func (c OPFConfig) ACOptions() (routine.ACOptions, error) {
	fl, err := opf.ParseFlowLimit(c.FlowLim)
	if err != nil {
		return routine.ACOptions{}, err
	}
	names := make([]string, 0, len(c.ExtraBlocks))
	for name := range c.ExtraBlocks {
		names = append(names, name)
	}
	sort.Strings(names)
	var extra []index.Spec
	for _, name := range names {
		spec, err := index.FromFloat(name, c.ExtraBlocks[name])
		if err != nil {
			return routine.ACOptions{}, err
		}
		extra = append(extra, spec)
	}
	return routine.ACOptions{
		Extra:     extra,
		FlowLim:   fl,
		FeasTol:   c.FeasTol,
		GradTol:   c.GradTol,
		MaxOuter:  c.MaxOuter,
		MaxInner:  c.MaxInner,
		Rho:       c.Rho,
		RhoGrowth: c.RhoGrowth,
		RhoMax:    c.RhoMax,
		CostMult:  c.CostMult,
	}, nil
}

// DCOPFConfig tunes the DCOPF routine.
type DCOPFConfig struct {
	// GapTol is the relative gap closing the tangent cuts of quadratic costs.
	GapTol    float64 `json:"gap_tol" validate:"gte=0,lt=1"`
	MaxRounds int     `json:"max_rounds" validate:"gte=0,lte=100000"`
}

func (c *DCOPFConfig) SetDefaults() {
	if c.GapTol == 0 {
		c.GapTol = formulation.DefaultGapTol
	}
	if c.MaxRounds == 0 {
		c.MaxRounds = formulation.DefaultMaxRounds
	}
}

func (c DCOPFConfig) DCOptions() routine.DCOptions {
	return routine.DCOptions{GapTol: c.GapTol, MaxRounds: c.MaxRounds}
}
