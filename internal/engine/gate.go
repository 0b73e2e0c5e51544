package engine

import (
	"context"
	"fmt"

	"github.com/c360studio/orc/internal/config"
	"github.com/c360studio/orc/internal/model"
	"github.com/c360studio/orc/internal/provider"
	"github.com/c360studio/orc/internal/store"
	"github.com/c360studio/orc/internal/transition"
)

// autoContinue applies the static transition for the just-approved
// (phase, stage) and executes the resulting action, per spec §4.6.5.
func (e *Engine) autoContinue(ctx context.Context, working *model.WorkflowState) error {
	t, ok := transition.Lookup(working.Phase, working.Stage, model.CommandApprove)
	if !ok {
		return &model.UnexpectedInternalError{Reason: fmt.Sprintf("no approve transition from (%s, %s)", working.Phase, working.Stage)}
	}
	working.Phase = t.NextPhase
	working.Stage = t.NextStage
	working.RetryCount = 0
	e.emit(Event{Kind: EventPhaseEntered, SessionID: working.SessionID, Phase: working.Phase, Stage: working.Stage})
	return e.executeAction(ctx, working, t.Action)
}

// runGateAndContinue resolves the stage config, assembles the gate's
// files per the §6 contract, evaluates the configured approval
// provider, and applies the decision to working: APPROVED hashes
// artifacts and advances the workflow (autoContinue); PENDING and
// REJECTED (once retries are exhausted or not applicable) leave working
// paused for a later `approve`/`retry`/`reject` command; a provider
// error is recorded on LastError rather than propagated, since a gate
// failure is never fatal to the session.
func (e *Engine) runGateAndContinue(ctx context.Context, working *model.WorkflowState) error {
	phase, stage := working.Phase, working.Stage

	cfg, err := e.resolveStageConfig(phase, stage)
	if err != nil {
		return &model.UnexpectedInternalError{Reason: err.Error()}
	}

	rawFiles, err := e.buildGateFiles(working, phase, stage)
	if err != nil {
		return err
	}

	approver, err := provider.CreateApprovalProvider(cfg.ApprovalProvider, cfg.ApproverConfig)
	if err != nil {
		return &model.UnexpectedInternalError{Reason: "approval provider vanished after init validation: " + err.Error()}
	}

	files := make(map[string]*string, len(rawFiles))
	if approver.Metadata().FSAbility == provider.FSNone {
		for path, content := range rawFiles {
			c := content
			files[path] = &c
		}
	} else {
		for path := range rawFiles {
			files[path] = nil
		}
	}

	approvalCtx := map[string]any{}
	for k, v := range working.Context {
		approvalCtx[k] = v
	}
	approvalCtx["feedback"] = working.ApprovalFeedback
	approvalCtx["suggested_content"] = working.SuggestedContent
	approvalCtx["retry_count"] = working.RetryCount

	result, err := approver.Evaluate(ctx, phase.String(), stage.String(), files, approvalCtx)
	if err != nil {
		working.LastError = (&model.ProviderError{ProviderKey: cfg.ApprovalProvider, Op: "evaluate", Cause: err}).Error()
		working.AddMessage("Approval check failed: " + err.Error() + ". Run `approve` to retry.")
		return nil
	}

	decision := model.Decision(result.Decision)
	e.emit(Event{Kind: EventGateOutcome, SessionID: working.SessionID, Phase: phase, Stage: stage, Decision: decision})

	switch decision {
	case model.DecisionApproved:
		return e.applyApprovalAndContinue(ctx, working, phase, stage)

	case model.DecisionPending:
		working.PendingApproval = true
		if result.Feedback != "" {
			working.AddMessage(result.Feedback)
		}
		e.emit(Event{Kind: EventApprovalRequired, SessionID: working.SessionID, Phase: phase, Stage: stage})
		return nil

	case model.DecisionRejected:
		return e.handleRejection(ctx, working, phase, stage, cfg, result)

	default:
		return &model.UnexpectedInternalError{Reason: "approver returned unrecognized decision: " + result.Decision}
	}
}

// applyApprovalAndContinue records an approval (deferred hashing,
// clearing rejection/pending bookkeeping) and advances the workflow via
// autoContinue. It is also used directly by the `approve` command when
// a human is resolving a PENDING gate: a human approval never re-invokes
// the approval provider, since PENDING means "this gate needs a human",
// not "ask the provider again".
func (e *Engine) applyApprovalAndContinue(ctx context.Context, working *model.WorkflowState, phase model.Phase, stage model.Stage) error {
	if err := e.hashStageArtifacts(working, phase, stage); err != nil {
		return err
	}
	working.ApprovalFeedback = ""
	working.SuggestedContent = ""
	working.PendingApproval = false
	working.RetryCount = 0
	e.emit(Event{Kind: EventApprovalGranted, SessionID: working.SessionID, Phase: phase, Stage: stage})
	e.emit(Event{Kind: EventArtifactApproved, SessionID: working.SessionID, Phase: phase, Stage: stage})
	return e.autoContinue(ctx, working)
}

// handleRejection applies a REJECTED decision per spec §4.6.4: record
// feedback (and, if the stage config allows it, a suggested rewrite),
// then either auto-retry (RESPONSE stage, retries remaining, or a
// PROMPT-regenerating profile) or pause for manual intervention.
func (e *Engine) handleRejection(ctx context.Context, working *model.WorkflowState, phase model.Phase, stage model.Stage, cfg config.ResolvedStageConfig, result provider.ApprovalResult) error {
	working.ApprovalFeedback = result.Feedback
	working.SuggestedContent = ""
	if cfg.ApprovalAllowRewrite {
		working.SuggestedContent = result.SuggestedContent
	}
	working.RetryCount++

	if stage == model.StageResponse {
		if working.RetryCount <= cfg.ApprovalMaxRetries {
			return e.executeCallAI(ctx, working)
		}
		working.PendingApproval = true
		working.AddMessage(fmt.Sprintf("Maximum retry attempts (%d) exceeded for %s/%s. Manual intervention required.", cfg.ApprovalMaxRetries, phase, stage))
		return nil
	}

	prof, err := profileFor(working)
	if err != nil {
		return err
	}
	if prof.CanRegeneratePrompts() {
		return e.regeneratePrompt(ctx, working)
	}

	working.PendingApproval = true
	working.AddMessage("Prompt rejected: " + result.Feedback)
	return nil
}

// buildGateFiles assembles the relative-path -> content map for one
// gate, per the files contract table in spec §6.
func (e *Engine) buildGateFiles(working *model.WorkflowState, phase model.Phase, stage model.Stage) (map[string]string, error) {
	files := map[string]string{}
	session := working.SessionID
	iter := working.CurrentIteration

	add := func(relPath string) error {
		content, err := e.store.ReadArtifact(session, relPath)
		if err != nil {
			return err
		}
		files[relPath] = content
		return nil
	}
	addCodeDir := func(iteration int) error {
		paths, err := e.store.ListCodeFiles(session, iteration)
		if err != nil {
			return err
		}
		for _, p := range paths {
			content, err := e.store.ReadArtifact(session, p)
			if err != nil {
				return err
			}
			files[p] = content
		}
		return nil
	}

	switch phase {
	case model.PhasePlan:
		if err := add(store.ArtifactPath(iter, "planning-prompt.md")); err != nil {
			return nil, err
		}
		if stage == model.StageResponse {
			if err := add(store.ArtifactPath(iter, "planning-response.md")); err != nil {
				return nil, err
			}
		}

	case model.PhaseGenerate:
		if err := add(store.ArtifactPath(iter, "generation-prompt.md")); err != nil {
			return nil, err
		}
		if stage == model.StagePrompt {
			if e.store.ArtifactExists(session, "plan.md") {
				if err := add("plan.md"); err != nil {
					return nil, err
				}
			}
		} else {
			if err := addCodeDir(iter); err != nil {
				return nil, err
			}
		}

	case model.PhaseReview:
		if err := add(store.ArtifactPath(iter, "review-prompt.md")); err != nil {
			return nil, err
		}
		if stage == model.StagePrompt {
			if err := addCodeDir(iter); err != nil {
				return nil, err
			}
		} else {
			if err := add(store.ArtifactPath(iter, "review-response.md")); err != nil {
				return nil, err
			}
		}

	case model.PhaseRevise:
		if err := add(store.ArtifactPath(iter, "revision-prompt.md")); err != nil {
			return nil, err
		}
		if stage == model.StagePrompt {
			if iter > 1 {
				prev := iter - 1
				if err := add(store.ArtifactPath(prev, "review-response.md")); err != nil {
					return nil, err
				}
				if err := addCodeDir(prev); err != nil {
					return nil, err
				}
			}
		} else {
			if err := addCodeDir(iter); err != nil {
				return nil, err
			}
		}
	}

	return files, nil
}

// hashStageArtifacts computes deferred SHA-256 hashes at approval time
// (invariant P4): content is hashed only once the approver has seen it,
// so a human edit made before approving is what gets captured. Every
// artifact of the approved stage gets its SHA256 set. It also copies the
// approved plan response to the session-root plan.md, and, if
// hash_prompts is enabled, records an approved PROMPT artifact's hash in
// PromptHashes as well.
func (e *Engine) hashStageArtifacts(working *model.WorkflowState, phase model.Phase, stage model.Stage) error {
	session := working.SessionID
	iter := working.CurrentIteration

	hashOne := func(path string) error {
		hash, err := e.store.HashFile(session, path)
		if err != nil {
			return err
		}
		if a, ok := working.FindArtifact(path); ok {
			a.SHA256 = hash
		}
		return nil
	}
	hashCodeDir := func(iteration int) error {
		paths, err := e.store.ListCodeFiles(session, iteration)
		if err != nil {
			return err
		}
		for _, p := range paths {
			if err := hashOne(p); err != nil {
				return err
			}
		}
		return nil
	}

	if stage == model.StageResponse {
		switch phase {
		case model.PhasePlan:
			path := store.ArtifactPath(iter, "planning-response.md")
			if err := hashOne(path); err != nil {
				return err
			}
			hash, err := e.store.HashFile(session, path)
			if err != nil {
				return err
			}
			working.PlanHash = hash
			if err := e.store.CopyArtifact(session, path, "plan.md"); err != nil {
				return err
			}
		case model.PhaseGenerate, model.PhaseRevise:
			if err := hashCodeDir(iter); err != nil {
				return err
			}
			filename, err := store.CanonicalFilename(phase, stage)
			if err != nil {
				return err
			}
			if respPath := store.ArtifactPath(iter, filename); e.store.ArtifactExists(session, respPath) {
				if err := hashOne(respPath); err != nil {
					return err
				}
			}
		case model.PhaseReview:
			path := store.ArtifactPath(iter, "review-response.md")
			if err := hashOne(path); err != nil {
				return err
			}
			hash, err := e.store.HashFile(session, path)
			if err != nil {
				return err
			}
			working.ReviewHash = hash
		}
	}

	if stage == model.StagePrompt {
		filename, err := store.CanonicalFilename(phase, stage)
		if err != nil {
			return err
		}
		path := store.ArtifactPath(iter, filename)
		hash, err := e.store.HashFile(session, path)
		if err != nil {
			return err
		}
		if a, ok := working.FindArtifact(path); ok {
			a.SHA256 = hash
		}
		if e.cfg.HashPrompts {
			if working.PromptHashes == nil {
				working.PromptHashes = map[string]string{}
			}
			working.PromptHashes[path] = hash
		}
	}

	return nil
}
