package engine

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/c360studio/orc/internal/config"
	"github.com/c360studio/orc/internal/model"
	"github.com/c360studio/orc/internal/plugin"
	"github.com/c360studio/orc/internal/plugin/testprofile"
	"github.com/c360studio/orc/internal/provider"
	"github.com/c360studio/orc/internal/provider/fixtureprovider"
	"github.com/c360studio/orc/internal/store"
)

// TestInvariant_StatusIsReadOnly asserts status never mutates state: two
// consecutive reads return identical snapshots, and a read never touches
// LastError/Messages the way every other command's ClearTransientMessages
// does.
func TestInvariant_StatusIsReadOnly(t *testing.T) {
	h := newHarness(t, manualGenerateResponseYAML, false)
	h.ai.Results = []*provider.AIResult{{Response: "The plan."}}

	state, err := h.engine.InitializeRun(context.Background(), InitOptions{
		ProfileKey:  h.profile,
		Context:     map[string]any{"entity": "Widget"},
		AIProviders: h.aiProviders,
	})
	require.NoError(t, err)

	first, err := h.engine.Status(context.Background(), state.SessionID)
	require.NoError(t, err)
	second, err := h.engine.Status(context.Background(), state.SessionID)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

// TestInvariant_PendingApprovalNeverReinvokesProvider is the direct test
// for the bypass semantics fixed in commands.go: resolving a PENDING gate
// via `approve` must not call Generate/Evaluate again. Manual approval
// always returns PENDING, so if `approve` re-invoked it the workflow
// could never advance past a manual gate.
func TestInvariant_PendingApprovalNeverReinvokesProvider(t *testing.T) {
	h := newHarness(t, manualGenerateResponseYAML, false)
	h.ai.Results = []*provider.AIResult{
		{Response: "The plan."},
		{Response: "Generated code.", Files: map[string]*string{"main.go": strPtr("package main\n")}},
		{Response: "Review: PASS."},
	}

	state, err := h.engine.InitializeRun(context.Background(), InitOptions{
		ProfileKey:  h.profile,
		Context:     map[string]any{"entity": "Widget"},
		AIProviders: h.aiProviders,
	})
	require.NoError(t, err)
	require.True(t, state.PendingApproval)
	callsBeforeApprove := h.ai.CallCount()

	state, err = h.engine.Execute(context.Background(), state.SessionID, model.CommandApprove, "")
	require.NoError(t, err)

	// Exactly one more AI call (the review) happened; none were spent
	// re-running the generate/response gate itself.
	assert.Equal(t, callsBeforeApprove+1, h.ai.CallCount())
	assert.Equal(t, model.PhaseComplete, state.Phase)
}

// TestInvariant_RetryRequiresSomethingToRetry asserts retry is rejected
// once a session has nothing pending: no open approval, no provider
// error, and no just-recorded rejection feedback.
func TestInvariant_RetryRequiresSomethingToRetry(t *testing.T) {
	h := newHarness(t, skipAllYAML, false)
	h.ai.Results = []*provider.AIResult{
		{Response: "The plan."},
		{Response: "Generated code.", Files: map[string]*string{"main.go": strPtr("package main\n")}},
		{Response: "Review: PASS."},
	}

	state, err := h.engine.InitializeRun(context.Background(), InitOptions{
		ProfileKey:  h.profile,
		Context:     map[string]any{"entity": "Widget"},
		AIProviders: h.aiProviders,
	})
	require.NoError(t, err)
	require.Equal(t, model.PhaseComplete, state.Phase)

	_, err = h.engine.Execute(context.Background(), state.SessionID, model.CommandRetry, "")
	var invalidCmd *model.InvalidCommandError
	assert.ErrorAs(t, err, &invalidCmd)
}

// TestInvariant_DeferredHashingCapturesEditsBeforeApproval exercises the
// deferred-hashing invariant: content is hashed only at approval time, so
// the hash reflects whatever is on disk at that moment, not what was
// first written.
func TestInvariant_DeferredHashingCapturesEditsBeforeApproval(t *testing.T) {
	h := newHarness(t, manualGenerateResponseYAML, false)
	h.ai.Results = []*provider.AIResult{
		{Response: "The plan."},
		{Response: "Generated code.", Files: map[string]*string{"main.go": strPtr("original\n")}},
		{Response: "Review: PASS."},
	}

	state, err := h.engine.InitializeRun(context.Background(), InitOptions{
		ProfileKey:  h.profile,
		Context:     map[string]any{"entity": "Widget"},
		AIProviders: h.aiProviders,
	})
	require.NoError(t, err)
	require.True(t, state.PendingApproval)

	editedPath, err := h.st.WriteArtifact(state.SessionID, "iteration-1/code/main.go", "edited by a human\n")
	require.NoError(t, err)
	_ = editedPath

	beforeHash, err := h.st.HashFile(state.SessionID, "iteration-1/code/main.go")
	require.NoError(t, err)

	state, err = h.engine.Execute(context.Background(), state.SessionID, model.CommandApprove, "")
	require.NoError(t, err)

	a, ok := state.FindArtifact("iteration-1/code/main.go")
	require.True(t, ok)
	assert.Equal(t, beforeHash, a.SHA256)
}

// TestInvariant_RetryAtNonRegeneratingPromptStagePauses is the direct
// test for spec.md:518's ambiguity, resolved against the engine: `retry`
// at a PROMPT stage for a profile that doesn't declare
// CanRegeneratePrompts must pause rather than re-run the gate. Re-running
// the gate would re-invoke the configured approval provider against the
// same, unchanged prompt content — which, for any non-deterministic
// approver, could silently flip a previously REJECTED gate to APPROVED
// purely from provider non-determinism, advancing a workflow the spec
// says must stay paused.
func TestInvariant_RetryAtNonRegeneratingPromptStagePauses(t *testing.T) {
	suffix := t.Name()
	profileKey := "testprofile-" + suffix
	aiKey := "fixture-ai-" + suffix
	approverKey := "rejecting-approver-" + suffix

	// canRegenerate=false: this profile cannot regenerate prompts.
	plugin.RegisterProfile(testprofile.New(profileKey))

	ai := fixtureprovider.New(aiKey)
	provider.RegisterAIProvider(ai)

	// A scripted AI-as-approver that rejects every call it sees; wired
	// as plan/prompt's approval_provider so it's exercised via the
	// AIApprovalProvider adapter, not the manual/skip builtins.
	rejecter := fixtureprovider.New(approverKey)
	rejecter.Results = []*provider.AIResult{{Response: "DECISION: REJECTED\nFEEDBACK: not good enough\n"}}
	provider.RegisterAIProvider(rejecter)

	cfgYAML := fmt.Sprintf(`
workflow:
  defaults:
    ai_provider: %[1]s
    approval_provider: skip
  plan:
    prompt:
      approval_provider: %[2]s
  generate: {}
  review: {}
  revise: {}
`, aiKey, approverKey)

	var doc config.Document
	require.NoError(t, yaml.Unmarshal([]byte(cfgYAML), &doc))

	st := store.New(t.TempDir())
	e := New(st, &doc.Workflow, nil, nil)

	aiProviders := map[string]string{
		"plan": aiKey, "generate": aiKey, "review": aiKey, "revise": aiKey,
	}

	state, err := e.InitializeRun(context.Background(), InitOptions{
		ProfileKey:  profileKey,
		Context:     map[string]any{"entity": "Widget"},
		AIProviders: aiProviders,
	})
	require.NoError(t, err)
	require.Equal(t, model.PhasePlan, state.Phase)
	require.Equal(t, model.StagePrompt, state.Stage)
	require.True(t, state.PendingApproval)

	callsBeforeRetry := rejecter.CallCount()

	state, err = e.Execute(context.Background(), state.SessionID, model.CommandRetry, "")
	require.NoError(t, err)

	assert.Equal(t, callsBeforeRetry, rejecter.CallCount(), "retry must not re-invoke the approval provider")
	assert.True(t, state.PendingApproval)
	assert.Equal(t, model.PhasePlan, state.Phase)
	assert.Equal(t, model.StagePrompt, state.Stage)
}
