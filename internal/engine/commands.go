package engine

import (
	"context"

	"github.com/c360studio/orc/internal/model"
	"github.com/c360studio/orc/internal/transition"
)

// handleApprove implements the `approve` command per spec §4.6. It is
// legal either when a gate is pending manual approval, or when the most
// recent gate failed with a provider error (last_error set). The two
// cases behave differently: a pending approval means a human is
// standing in for the approval provider, so `approve` records the
// approval directly and advances the workflow without calling the
// provider again; a prior provider error means the provider itself
// should be retried, so `approve` re-runs the same gate.
func (e *Engine) handleApprove(ctx context.Context, working *model.WorkflowState, hadPendingApproval, hadLastError bool) error {
	if !hadPendingApproval && !hadLastError {
		return &model.InvalidCommandError{
			SessionID: working.SessionID, Phase: working.Phase, Stage: working.Stage,
			Command: model.CommandApprove, Reason: "no pending approval or prior error to retry",
		}
	}
	if hadLastError {
		return e.runGateAndContinue(ctx, working)
	}
	return e.applyApprovalAndContinue(ctx, working, working.Phase, working.Stage)
}

// handleRetry implements the `retry` command per spec §4.6: it requires
// a pending approval or a prior error, then regenerates the rejected
// artifact (re-running CALL_AI for a RESPONSE stage, or regenerating the
// prompt for a PROMPT stage whose profile supports it) and re-runs its
// gate. A PROMPT stage whose profile does not support regeneration
// cannot retry at all; it pauses instead (see the comment at the bottom
// of this function).
func (e *Engine) handleRetry(ctx context.Context, working *model.WorkflowState, hadPendingApproval, hadLastError bool) error {
	if !hadPendingApproval && !hadLastError {
		return &model.InvalidCommandError{
			SessionID: working.SessionID, Phase: working.Phase, Stage: working.Stage,
			Command: model.CommandRetry, Reason: "no pending approval or prior error to retry",
		}
	}
	if _, ok := transition.Lookup(working.Phase, working.Stage, model.CommandRetry); !ok {
		return &model.InvalidCommandError{
			SessionID: working.SessionID, Phase: working.Phase, Stage: working.Stage,
			Command: model.CommandRetry, Reason: "retry not legal in this phase",
		}
	}

	working.PendingApproval = false

	if working.Stage == model.StageResponse {
		return e.executeCallAI(ctx, working)
	}

	prof, err := profileFor(working)
	if err != nil {
		return err
	}
	if prof.CanRegeneratePrompts() {
		return e.regeneratePrompt(ctx, working)
	}

	// spec.md:518: retry at a PROMPT stage is ambiguous in source for
	// profiles that don't declare can_regenerate_prompts; the spec
	// forbids it rather than guessing. §4.6.4's rejection-handling rule
	// for this same case says to pause, not re-run the gate — re-running
	// would re-invoke the configured approval provider against the same,
	// unchanged prompt content, which could non-deterministically flip
	// to APPROVED on a provider that previously rejected it.
	working.PendingApproval = true
	working.AddMessage("cannot regenerate this prompt; re-approve or cancel")
	return nil
}
