// Package transition implements the orchestrator's sole authority on
// legal state changes: a static, declarative table mapping
// (phase, stage, command) to (next phase, next stage, action).
//
// The table is grounded on the condition/action rule rows of
// processor/workflow-orchestrator's RulesFile in the teacher repo — a
// flat list of (match, action) entries consulted by Lookup, never
// branching business logic.
package transition

import "github.com/c360studio/orc/internal/model"

// Transition is the result of a table lookup.
type Transition struct {
	NextPhase model.Phase
	NextStage model.Stage
	Action    model.Action
}

// key identifies one row of the table.
type key struct {
	Phase   model.Phase
	Stage   model.Stage
	Command model.Command
}

// table holds every legal active-phase row. Built once at package init
// and never mutated — Lookup is a pure function over it.
var table = map[key]Transition{
	{model.PhaseInit, model.StageNone, model.CommandInit}: {model.PhasePlan, model.StagePrompt, model.ActionCreatePrompt},

	{model.PhasePlan, model.StagePrompt, model.CommandApprove}:   {model.PhasePlan, model.StageResponse, model.ActionCallAI},
	{model.PhasePlan, model.StageResponse, model.CommandApprove}: {model.PhaseGenerate, model.StagePrompt, model.ActionCreatePrompt},

	{model.PhaseGenerate, model.StagePrompt, model.CommandApprove}:   {model.PhaseGenerate, model.StageResponse, model.ActionCallAI},
	{model.PhaseGenerate, model.StageResponse, model.CommandApprove}: {model.PhaseReview, model.StagePrompt, model.ActionCreatePrompt},

	{model.PhaseReview, model.StagePrompt, model.CommandApprove}: {model.PhaseReview, model.StageResponse, model.ActionCallAI},
	// REVIEW[RESPONSE] approve has no single static next (phase,stage): the
	// action is CHECK_VERDICT, which itself decides FINALIZE vs REVISE. The
	// table still records the action; the engine resolves the branch.
	{model.PhaseReview, model.StageResponse, model.CommandApprove}: {model.PhaseReview, model.StageResponse, model.ActionCheckVerdict},

	{model.PhaseRevise, model.StagePrompt, model.CommandApprove}:   {model.PhaseRevise, model.StageResponse, model.ActionCallAI},
	{model.PhaseRevise, model.StageResponse, model.CommandApprove}: {model.PhaseReview, model.StagePrompt, model.ActionCreatePrompt},
}

// activePhases lists phases that carry a stage and accept reject/retry
// as same-state rows (these are uniform across phases, so they are handled
// in Lookup directly rather than enumerated per-phase in the table above).
// Cancel and status are handled in Lookup too, for every phase.
var activePhases = map[model.Phase]bool{
	model.PhasePlan:     true,
	model.PhaseGenerate: true,
	model.PhaseReview:   true,
	model.PhaseRevise:   true,
}

// Lookup returns the transition for (phase, stage, command), or ok=false
// if no such row exists (an InvalidCommand as far as the caller is
// concerned). Lookup has no side effects.
func Lookup(phase model.Phase, stage model.Stage, cmd model.Command) (Transition, bool) {
	switch cmd {
	case model.CommandCancel:
		return Transition{model.PhaseCancelled, model.StageNone, model.ActionHalt}, true
	case model.CommandReject:
		if activePhases[phase] {
			return Transition{phase, stage, model.ActionHalt}, true
		}
		return Transition{}, false
	case model.CommandRetry:
		if activePhases[phase] {
			return Transition{phase, stage, model.ActionRetry}, true
		}
		return Transition{}, false
	case model.CommandStatus:
		return Transition{phase, stage, model.ActionNone}, true
	}

	t, ok := table[key{phase, stage, cmd}]
	return t, ok
}
