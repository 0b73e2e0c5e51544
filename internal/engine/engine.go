// Package engine implements the orchestrator (spec component C6): the
// single place that executes commands against a WorkflowState, drives
// the transition table, calls out to AI and approval providers through
// gates, and persists the result.
//
// The command-dispatch-then-save shape is grounded on Component.handleCompletion /
// Component.executeAction in the teacher's
// processor/workflow-orchestrator/component.go — a rule table consulted
// once per event, with no branching business logic living in the
// dispatcher itself.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/c360studio/orc/internal/config"
	"github.com/c360studio/orc/internal/model"
	"github.com/c360studio/orc/internal/plugin"
	"github.com/c360studio/orc/internal/store"
	"github.com/c360studio/orc/internal/transition"
)

// Engine is the orchestrator. One Engine serves every session under a
// single store root; it holds no per-session state itself.
type Engine struct {
	store    *store.Store
	cfg      *config.WorkflowConfig
	logger   *slog.Logger
	observer Observer
}

// New constructs an Engine. observer may be nil, in which case events are
// discarded.
func New(st *store.Store, cfg *config.WorkflowConfig, logger *slog.Logger, observer Observer) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if observer == nil {
		observer = noopObserver{}
	}
	return &Engine{store: st, cfg: cfg, logger: logger, observer: observer}
}

// InitOptions carries the arguments to InitializeRun.
type InitOptions struct {
	ProfileKey         string
	Context            map[string]any
	AIProviders        map[string]string // phase name -> AI provider key for plan/generate/review/revise; nil uses each phase's resolved response-stage ai_provider
	StandardsProvider  string            // defaults to "none"
}

// newSessionID returns a fresh session identifier, the same way the
// teacher mints task and response IDs throughout the orchestrator.
func newSessionID() (string, error) {
	return uuid.New().String(), nil
}

// InitializeRun creates a new session per spec §4.6's init handling: it
// validates the profile and its context schema, resolves and validates
// the workflow config, assembles the standards bundle, writes the
// initial state, and runs the first action (CREATE_PROMPT for PLAN's
// prompt stage) through to its gate.
func (e *Engine) InitializeRun(ctx context.Context, opts InitOptions) (*model.WorkflowState, error) {
	prof, ok := plugin.GetProfile(opts.ProfileKey)
	if !ok {
		return nil, &model.ConfigurationError{Reason: fmt.Sprintf("unknown profile: %s", opts.ProfileKey)}
	}
	if err := validateContext(prof, opts.Context); err != nil {
		return nil, err
	}
	if err := e.cfg.Validate(); err != nil {
		return nil, err
	}

	standardsKey := opts.StandardsProvider
	if standardsKey == "" {
		standardsKey = "none"
	}
	standards, ok := plugin.GetStandardsProvider(standardsKey)
	if !ok {
		return nil, &model.ConfigurationError{Reason: fmt.Sprintf("unknown standards provider: %s", standardsKey)}
	}

	aiProviders := opts.AIProviders
	if aiProviders == nil {
		aiProviders = map[string]string{}
		for _, phase := range []model.Phase{model.PhasePlan, model.PhaseGenerate, model.PhaseReview, model.PhaseRevise} {
			cfg, err := e.resolveStageConfig(phase, model.StageResponse)
			if err != nil {
				return nil, &model.ConfigurationError{Reason: err.Error()}
			}
			aiProviders[phase.String()] = cfg.AIProvider
		}
	}

	sessionID, err := newSessionID()
	if err != nil {
		return nil, &model.UnexpectedInternalError{Reason: "could not generate session id: " + err.Error()}
	}

	now := time.Now()
	working := &model.WorkflowState{
		SessionID:         sessionID,
		Profile:           opts.ProfileKey,
		Phase:             model.PhaseInit,
		Stage:             model.StageNone,
		Status:            model.StatusInProgress,
		CurrentIteration:  1,
		Context:           opts.Context,
		AIProviders:       aiProviders,
		StandardsProvider: standardsKey,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	bundle, err := standards.Bundle(ctx)
	if err != nil {
		return nil, &model.ProviderError{ProviderKey: standardsKey, Op: "bundle", Cause: err}
	}
	if _, err := e.store.WriteArtifact(sessionID, "standards-bundle.md", bundle); err != nil {
		return nil, err
	}
	hash, err := e.store.HashFile(sessionID, "standards-bundle.md")
	if err != nil {
		return nil, err
	}
	working.StandardsHash = hash

	t, ok := transition.Lookup(model.PhaseInit, model.StageNone, model.CommandInit)
	if !ok {
		return nil, &model.UnexpectedInternalError{Reason: "no transition row for init"}
	}
	working.Phase = t.NextPhase
	working.Stage = t.NextStage

	e.emit(Event{Kind: EventIterationStarted, SessionID: sessionID, Phase: working.Phase, Stage: working.Stage})

	if err := e.executeAction(ctx, working, t.Action); err != nil {
		return nil, e.persistIfInternal(ctx, working, err)
	}

	working.UpdatedAt = time.Now()
	if err := e.store.Save(ctx, working); err != nil {
		return nil, err
	}
	return working, nil
}

func validateContext(prof plugin.Profile, ctx map[string]any) error {
	for _, field := range prof.ContextSchema() {
		v, present := ctx[field.Name]
		if !present {
			if field.Required {
				return &model.ContextValidationError{Field: field.Name, Reason: "required field missing"}
			}
			continue
		}
		if field.Type == plugin.FieldChoice {
			s, ok := v.(string)
			if !ok {
				return &model.ContextValidationError{Field: field.Name, Reason: "must be a string"}
			}
			valid := false
			for _, c := range field.Choices {
				if c == s {
					valid = true
					break
				}
			}
			if !valid {
				return &model.ContextValidationError{Field: field.Name, Reason: fmt.Sprintf("must be one of %v", field.Choices)}
			}
		}
	}
	return nil
}

// Execute runs one command against an existing session and persists the
// result, per spec §4.6: messages and last_error are cleared for every
// command except status (which is a pure read with no mutation, to
// preserve its idempotence), then the command is dispatched.
func (e *Engine) Execute(ctx context.Context, sessionID string, cmd model.Command, feedback string) (*model.WorkflowState, error) {
	state, err := e.store.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	if cmd == model.CommandStatus {
		return state, nil
	}

	working := state.Clone()
	hadLastError := working.LastError != ""
	hadPendingApproval := working.PendingApproval
	// A prior `reject` clears PendingApproval but leaves ApprovalFeedback
	// set (it is only cleared once an approval is actually applied), so
	// it is the signal that distinguishes "just rejected, awaiting retry
	// or cancel" from a fresh session with nothing to retry.
	hadRejected := !hadPendingApproval && !hadLastError && working.ApprovalFeedback != ""
	working.ClearTransientMessages()

	var dispatchErr error
	switch cmd {
	case model.CommandApprove:
		dispatchErr = e.handleApprove(ctx, working, hadPendingApproval, hadLastError)
	case model.CommandReject:
		dispatchErr = e.handleReject(working, hadPendingApproval, feedback)
	case model.CommandRetry:
		dispatchErr = e.handleRetry(ctx, working, hadPendingApproval || hadRejected, hadLastError)
	case model.CommandCancel:
		dispatchErr = e.handleCancel(working)
	default:
		dispatchErr = &model.InvalidCommandError{SessionID: sessionID, Phase: working.Phase, Stage: working.Stage, Command: cmd, Reason: "unrecognized command"}
	}

	if dispatchErr != nil {
		return nil, e.persistIfInternal(ctx, working, dispatchErr)
	}

	working.UpdatedAt = time.Now()
	if err := e.store.Save(ctx, working); err != nil {
		return nil, err
	}
	return working, nil
}

// persistIfInternal implements spec §7's UnexpectedInternal propagation
// policy: unlike every other error kind (surfaced without mutating
// on-disk state), an invariant violation sets status=ERROR and saves
// before surfacing, so the session doesn't silently sit on its last-good
// snapshot pretending nothing happened.
func (e *Engine) persistIfInternal(ctx context.Context, working *model.WorkflowState, err error) error {
	var internal *model.UnexpectedInternalError
	if !errors.As(err, &internal) {
		return err
	}
	working.Status = model.StatusError
	working.LastError = err.Error()
	working.UpdatedAt = time.Now()
	if saveErr := e.store.Save(ctx, working); saveErr != nil {
		return saveErr
	}
	return err
}

// Status returns the current state without mutating it.
func (e *Engine) Status(ctx context.Context, sessionID string) (*model.WorkflowState, error) {
	return e.store.Load(ctx, sessionID)
}

// List returns every session id known to the store.
func (e *Engine) List() ([]string, error) {
	return e.store.List()
}

func (e *Engine) handleCancel(working *model.WorkflowState) error {
	t, ok := transition.Lookup(working.Phase, working.Stage, model.CommandCancel)
	if !ok {
		return &model.InvalidCommandError{SessionID: working.SessionID, Phase: working.Phase, Stage: working.Stage, Command: model.CommandCancel, Reason: "cancel not legal here"}
	}
	working.Phase = t.NextPhase
	working.Stage = t.NextStage
	working.Status = model.StatusCancelled
	working.PendingApproval = false
	e.emit(Event{Kind: EventWorkflowFailed, SessionID: working.SessionID, Phase: working.Phase, Detail: "cancelled"})
	return nil
}

func (e *Engine) handleReject(working *model.WorkflowState, hadPendingApproval bool, feedback string) error {
	if _, ok := transition.Lookup(working.Phase, working.Stage, model.CommandReject); !ok {
		return &model.InvalidCommandError{SessionID: working.SessionID, Phase: working.Phase, Stage: working.Stage, Command: model.CommandReject, Reason: "reject not legal in this phase"}
	}
	if !hadPendingApproval {
		return &model.InvalidCommandError{SessionID: working.SessionID, Phase: working.Phase, Stage: working.Stage, Command: model.CommandReject, Reason: "no pending approval to reject"}
	}
	working.ApprovalFeedback = feedback
	working.PendingApproval = false
	working.AddMessage("Rejected. Run `retry` to regenerate with this feedback, or `cancel` to abandon the session.")
	return nil
}

func (e *Engine) resolveStageConfig(phase model.Phase, stage model.Stage) (config.ResolvedStageConfig, error) {
	return e.cfg.Resolve(phase.String(), stage.String())
}

func profileFor(working *model.WorkflowState) (plugin.Profile, error) {
	p, ok := plugin.GetProfile(working.Profile)
	if !ok {
		return nil, &model.UnexpectedInternalError{Reason: "profile no longer registered: " + working.Profile}
	}
	return p, nil
}

func aiProviderKeyFor(working *model.WorkflowState, phase model.Phase) (string, error) {
	key, ok := working.AIProviders[phase.String()]
	if !ok || key == "" {
		return "", &model.ConfigurationError{Reason: fmt.Sprintf("no ai_provider recorded for phase %s", phase)}
	}
	return key, nil
}
