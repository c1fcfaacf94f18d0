package routine

import (
	"github.com/kilianp07/gridopt/core/formulation"
	"github.com/kilianp07/gridopt/core/network"
	"github.com/kilianp07/gridopt/core/opf"
	"github.com/kilianp07/gridopt/core/userfcn"
)

// Stage names, also used as span names.
const (
	StagePreIndexing   = "pre_indexing"
	StageFormulation   = "formulation"
	StagePostIndexing  = "post_indexing"
	StageReport        = "report"
	StagePersist       = "persist"
	stageSolve         = "solve"
	stageFormulationAC = "ac_formulation"
	stageFormulationDC = "dc_formulation"
)

// Hooks are the callback stages run around every routine. PreIndexing sees
// a private copy of the case. The formulation stage matching the routine
// may reshape the problem before it is frozen. The last three stages see
// the finished result in order.
type Hooks struct {
	PreIndexing   *userfcn.Stage[*network.Case]
	ACFormulation *userfcn.Stage[*opf.Setup]
	DCFormulation *userfcn.Stage[*formulation.Problem]
	PostIndexing  *userfcn.Stage[*Result]
	Report        *userfcn.Stage[*Result]
	Persist       *userfcn.Stage[*Result]
}

// NewHooks returns empty stages.
func NewHooks() *Hooks {
	return &Hooks{
		PreIndexing:   userfcn.NewStage[*network.Case](StagePreIndexing),
		ACFormulation: userfcn.NewStage[*opf.Setup](stageFormulationAC),
		DCFormulation: userfcn.NewStage[*formulation.Problem](stageFormulationDC),
		PostIndexing:  userfcn.NewStage[*Result](StagePostIndexing),
		Report:        userfcn.NewStage[*Result](StageReport),
		Persist:       userfcn.NewStage[*Result](StagePersist),
	}
}
