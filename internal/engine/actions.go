package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/c360studio/orc/internal/model"
	"github.com/c360studio/orc/internal/plugin"
	"github.com/c360studio/orc/internal/provider"
	"github.com/c360studio/orc/internal/store"
)

// executeAction runs one Action emitted by the transition table, per
// spec §4.6.1.
func (e *Engine) executeAction(ctx context.Context, working *model.WorkflowState, action model.Action) error {
	if action != model.ActionNone {
		e.emit(Event{Kind: EventActionExecuted, SessionID: working.SessionID, Phase: working.Phase, Stage: working.Stage, Action: action})
	}
	switch action {
	case model.ActionCreatePrompt:
		return e.executeCreatePrompt(ctx, working)
	case model.ActionCallAI:
		return e.executeCallAI(ctx, working)
	case model.ActionCheckVerdict:
		return e.executeCheckVerdict(ctx, working)
	case model.ActionFinalize:
		return e.executeFinalize(working)
	case model.ActionHalt, model.ActionNone:
		return nil
	default:
		return &model.UnexpectedInternalError{Reason: "transition table emitted unknown action: " + action.String()}
	}
}

// executeCreatePrompt asks the session's profile for this phase's prompt
// sections, assembles and writes the canonical prompt file, then runs
// (and, if approved, continues past) its gate.
func (e *Engine) executeCreatePrompt(ctx context.Context, working *model.WorkflowState) error {
	prof, err := profileFor(working)
	if err != nil {
		return err
	}

	req, err := e.buildPromptRequest(working)
	if err != nil {
		return err
	}

	sections, err := prof.CreatePrompt(req)
	if err != nil {
		return &model.ProviderError{ProviderKey: working.Profile, Op: "create_prompt", Cause: err}
	}

	if err := e.writePromptArtifact(working, sections); err != nil {
		return err
	}

	return e.runGateAndContinue(ctx, working)
}

// regeneratePrompt rewrites the current PROMPT-stage artifact using
// profile.RegeneratePrompt with the stored approval feedback, then
// re-runs its gate. Used by the retry command and by prompt-stage
// rejection handling when the profile supports regeneration.
func (e *Engine) regeneratePrompt(ctx context.Context, working *model.WorkflowState) error {
	prof, err := profileFor(working)
	if err != nil {
		return err
	}
	req, err := e.buildPromptRequest(working)
	if err != nil {
		return err
	}
	sections, err := prof.RegeneratePrompt(req, working.ApprovalFeedback)
	if err != nil {
		return &model.ProviderError{ProviderKey: working.Profile, Op: "regenerate_prompt", Cause: err}
	}
	if err := e.writePromptArtifact(working, sections); err != nil {
		return err
	}
	return e.runGateAndContinue(ctx, working)
}

func (e *Engine) buildPromptRequest(working *model.WorkflowState) (plugin.PromptRequest, error) {
	standards, err := e.store.ReadArtifact(working.SessionID, "standards-bundle.md")
	if err != nil {
		return plugin.PromptRequest{}, err
	}
	prev, err := e.previousResponses(working)
	if err != nil {
		return plugin.PromptRequest{}, err
	}
	return plugin.PromptRequest{
		Phase:             working.Phase,
		Iteration:         working.CurrentIteration,
		Context:           working.Context,
		PreviousResponses: prev,
		Standards:         standards,
		Feedback:          working.ApprovalFeedback,
	}, nil
}

// previousResponses collects the RESPONSE-stage artifacts the profile is
// likely to need for context: the prior phase's response for the
// current iteration, and, for REVISE, the previous iteration's review.
func (e *Engine) previousResponses(working *model.WorkflowState) (map[string]string, error) {
	out := map[string]string{}
	session := working.SessionID
	iter := working.CurrentIteration

	add := func(path string) error {
		if !e.store.ArtifactExists(session, path) {
			return nil
		}
		content, err := e.store.ReadArtifact(session, path)
		if err != nil {
			return err
		}
		out[path] = content
		return nil
	}

	switch working.Phase {
	case model.PhaseGenerate:
		if err := add(store.ArtifactPath(iter, "planning-response.md")); err != nil {
			return nil, err
		}
	case model.PhaseReview:
		if err := add(store.ArtifactPath(iter, "generation-response.md")); err != nil {
			return nil, err
		}
	case model.PhaseRevise:
		if iter > 1 {
			if err := add(store.ArtifactPath(iter-1, "review-response.md")); err != nil {
				return nil, err
			}
		}
	}
	return out, nil
}

// writePromptArtifact assembles a profile's PromptSections into the
// final prompt file (Instructions, Body, OutputNotes) and writes it to
// the canonical path, recording a new artifact entry if one doesn't
// already exist at that path (a rewrite during retry/regeneration keeps
// the original artifact's CreatedAt).
func (e *Engine) writePromptArtifact(working *model.WorkflowState, sections plugin.PromptSections) error {
	filename, err := store.CanonicalFilename(working.Phase, working.Stage)
	if err != nil {
		return err
	}
	path := store.ArtifactPath(working.CurrentIteration, filename)

	content := assemblePrompt(working, sections)
	if _, err := e.store.WriteArtifact(working.SessionID, path, content); err != nil {
		return err
	}

	if a, ok := working.FindArtifact(path); ok {
		a.SHA256 = ""
	} else {
		working.AppendArtifact(path, working.Phase, working.CurrentIteration, time.Now())
		e.emit(Event{Kind: EventArtifactCreated, SessionID: working.SessionID, Phase: working.Phase, Stage: working.Stage, Detail: path})
	}
	return nil
}

func assemblePrompt(working *model.WorkflowState, sections plugin.PromptSections) string {
	var header string
	if sections.Instructions != "" {
		header = sections.Instructions + "\n\n"
	}
	body := sections.Body
	footer := ""
	if sections.OutputNotes != "" {
		footer = "\n\n" + sections.OutputNotes
	}
	return fmt.Sprintf("%s%s%s", header, body, footer)
}

// executeCallAI invokes the AI provider configured for the current
// phase against the freshly re-read prompt file (so user edits made
// before approving are what gets sent), writes any returned response
// text and files, then runs its gate.
func (e *Engine) executeCallAI(ctx context.Context, working *model.WorkflowState) error {
	key, err := aiProviderKeyFor(working, working.Phase)
	if err != nil {
		return err
	}
	ai, err := provider.CreateAIProvider(key)
	if err != nil {
		return &model.UnexpectedInternalError{Reason: err.Error()}
	}

	filename, err := store.CanonicalFilename(working.Phase, model.StagePrompt)
	if err != nil {
		return err
	}
	promptPath := store.ArtifactPath(working.CurrentIteration, filename)
	prompt, err := e.store.ReadArtifact(working.SessionID, promptPath)
	if err != nil {
		return err
	}

	genCtx := map[string]any{}
	for k, v := range working.Context {
		genCtx[k] = v
	}
	if working.ApprovalFeedback != "" {
		genCtx["feedback"] = working.ApprovalFeedback
	}
	if working.SuggestedContent != "" {
		genCtx["suggested_content"] = working.SuggestedContent
	}

	result, err := ai.Generate(ctx, prompt, genCtx)
	if err != nil {
		working.LastError = (&model.ProviderError{ProviderKey: key, Op: "generate", Cause: err}).Error()
		working.AddMessage("AI call failed: " + err.Error() + ". Run `approve` to retry.")
		return nil
	}

	if result != nil {
		if result.Response != "" {
			respFilename, err := store.CanonicalFilename(working.Phase, model.StageResponse)
			if err != nil {
				return err
			}
			respPath := store.ArtifactPath(working.CurrentIteration, respFilename)
			if _, err := e.store.WriteArtifact(working.SessionID, respPath, result.Response); err != nil {
				return err
			}
			if a, ok := working.FindArtifact(respPath); ok {
				a.SHA256 = ""
			} else {
				working.AppendArtifact(respPath, working.Phase, working.CurrentIteration, time.Now())
			}
			e.emit(Event{Kind: EventArtifactCreated, SessionID: working.SessionID, Phase: working.Phase, Stage: model.StageResponse, Detail: respPath})
		}

		for relPath, content := range result.Files {
			codePath := store.ArtifactPath(working.CurrentIteration, "code/"+relPath)
			if content != nil {
				if _, err := e.store.WriteArtifact(working.SessionID, codePath, *content); err != nil {
					return err
				}
			} else if !e.store.ArtifactExists(working.SessionID, codePath) {
				working.AddMessage(fmt.Sprintf("provider reported writing %s but the file was not found on disk", codePath))
				continue
			}
			if _, ok := working.FindArtifact(codePath); !ok {
				working.AppendArtifact(codePath, working.Phase, working.CurrentIteration, time.Now())
			}
		}
	}

	return e.runGateAndContinue(ctx, working)
}

// executeCheckVerdict parses the just-approved review response and
// either finalizes the session (PASS) or starts a new revise iteration
// (FAIL), per spec §4.6.1.
func (e *Engine) executeCheckVerdict(ctx context.Context, working *model.WorkflowState) error {
	prof, err := profileFor(working)
	if err != nil {
		return err
	}
	filename, err := store.CanonicalFilename(model.PhaseReview, model.StageResponse)
	if err != nil {
		return err
	}
	path := store.ArtifactPath(working.CurrentIteration, filename)
	content, err := e.store.ReadArtifact(working.SessionID, path)
	if err != nil {
		return err
	}

	verdict, err := prof.ParseReviewVerdict(content)
	if err != nil {
		working.LastError = (&model.ProviderError{ProviderKey: working.Profile, Op: "parse_review_verdict", Cause: err}).Error()
		working.PendingApproval = true
		working.AddMessage("Could not parse a PASS/FAIL verdict from the review response; run `approve` to retry parsing.")
		return nil
	}

	if verdict == model.VerdictPass {
		return e.executeFinalize(working)
	}

	working.CurrentIteration++
	working.Phase = model.PhaseRevise
	working.Stage = model.StagePrompt
	working.RetryCount = 0
	e.emit(Event{Kind: EventIterationStarted, SessionID: working.SessionID, Phase: working.Phase, Stage: working.Stage})
	return e.executeCreatePrompt(ctx, working)
}

// executeFinalize marks the session complete and ensures plan.md exists
// at the session root (the normal path copies it at PLAN/RESPONSE
// approval; this is an idempotent safeguard, not the primary copy).
func (e *Engine) executeFinalize(working *model.WorkflowState) error {
	working.Phase = model.PhaseComplete
	working.Stage = model.StageNone
	working.Status = model.StatusSuccess
	working.PendingApproval = false

	if !e.store.ArtifactExists(working.SessionID, "plan.md") {
		planResp := store.ArtifactPath(1, "planning-response.md")
		if e.store.ArtifactExists(working.SessionID, planResp) {
			if err := e.store.CopyArtifact(working.SessionID, planResp, "plan.md"); err != nil {
				return err
			}
		}
	}

	e.emit(Event{Kind: EventWorkflowCompleted, SessionID: working.SessionID, Phase: working.Phase})
	return nil
}
