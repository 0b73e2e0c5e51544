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

// TestS1_FullyAutomatedPass mirrors scenario S1: every approver is
// "skip" and every AI call returns a canned response; the session
// should complete on its first pass through REVIEW with iteration 1.
func TestS1_FullyAutomatedPass(t *testing.T) {
	h := newHarness(t, skipAllYAML, false)
	h.ai.Results = []*provider.AIResult{
		{Response: "This is the plan."},
		{Response: "Generated code.", Files: map[string]*string{"main.go": strPtr("package main\n")}},
		{Response: "Review: PASS, looks great."},
	}

	state, err := h.engine.InitializeRun(context.Background(), InitOptions{
		ProfileKey:  h.profile,
		Context:     map[string]any{"entity": "Widget"},
		AIProviders: h.aiProviders,
	})
	require.NoError(t, err)

	assert.Equal(t, model.PhaseComplete, state.Phase)
	assert.Equal(t, model.StatusSuccess, state.Status)
	assert.Equal(t, 1, state.CurrentIteration)
	assert.Equal(t, 3, h.ai.CallCount())
	assert.NotEmpty(t, state.PlanHash)
	assert.NotEmpty(t, state.ReviewHash)
	assert.Len(t, state.PlanHash, 64)

	for _, want := range []string{
		"iteration-1/planning-prompt.md", "iteration-1/planning-response.md",
		"iteration-1/generation-prompt.md", "iteration-1/generation-response.md",
		"iteration-1/code/main.go",
		"iteration-1/review-prompt.md", "iteration-1/review-response.md",
	} {
		assert.True(t, h.st.ArtifactExists(state.SessionID, want), "expected artifact %s", want)
	}
	assert.True(t, h.st.ArtifactExists(state.SessionID, "plan.md"))

	for _, a := range state.Artifacts {
		assert.NotEmpty(t, a.SHA256, "artifact %s should be hashed", a.Path)
	}
}

// TestS2_OneRevisionThenPass mirrors scenario S2: the first review FAILs,
// the second PASSes. current_iteration ends at 2 with both iteration
// directories populated.
func TestS2_OneRevisionThenPass(t *testing.T) {
	h := newHarness(t, skipAllYAML, false)
	h.ai.Results = []*provider.AIResult{
		{Response: "The plan."},
		{Response: "v1 code.", Files: map[string]*string{"main.go": strPtr("v1\n")}},
		{Response: "Review: FAIL, needs fixes."},
		{Response: "v2 code.", Files: map[string]*string{"main.go": strPtr("v2\n")}},
		{Response: "Review: PASS now."},
	}

	state, err := h.engine.InitializeRun(context.Background(), InitOptions{
		ProfileKey:  h.profile,
		Context:     map[string]any{"entity": "Widget"},
		AIProviders: h.aiProviders,
	})
	require.NoError(t, err)

	assert.Equal(t, model.PhaseComplete, state.Phase)
	assert.Equal(t, model.StatusSuccess, state.Status)
	assert.Equal(t, 2, state.CurrentIteration)
	assert.Equal(t, 5, h.ai.CallCount())

	for _, want := range []string{
		"iteration-1/review-response.md",
		"iteration-2/revision-prompt.md", "iteration-2/revision-response.md",
		"iteration-2/code/main.go",
		"iteration-2/review-prompt.md", "iteration-2/review-response.md",
	} {
		assert.True(t, h.st.ArtifactExists(state.SessionID, want), "expected artifact %s", want)
	}
}

// TestS3_ManualPendingPause mirrors scenario S3: a manual approver at
// generate/response pauses the workflow; a subsequent approve resolves
// the pause directly, without re-invoking any provider.
func TestS3_ManualPendingPause(t *testing.T) {
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

	assert.Equal(t, model.PhaseGenerate, state.Phase)
	assert.Equal(t, model.StageResponse, state.Stage)
	assert.True(t, state.PendingApproval)
	assert.Equal(t, model.StatusInProgress, state.Status)
	assert.True(t, h.st.ArtifactExists(state.SessionID, "iteration-1/generation-response.md"))
	assert.Equal(t, 2, h.ai.CallCount())

	state, err = h.engine.Execute(context.Background(), state.SessionID, model.CommandApprove, "")
	require.NoError(t, err)

	assert.Equal(t, model.PhaseComplete, state.Phase)
	assert.Equal(t, 3, h.ai.CallCount())
}

// TestS4_AIApproverRejectsTwiceThenApproves mirrors scenario S4: a
// rejecting approval provider retries executeCallAI up to
// approval_max_retries, then succeeds; retry_count resets to 0 once the
// gate is finally approved.
func TestS4_AIApproverRejectsTwiceThenApproves(t *testing.T) {
	profileKey := "testprofile-" + t.Name()
	aiKey := "fixture-ai-" + t.Name()
	approverKey := "reject-twice-" + t.Name()

	plugin.RegisterProfile(testprofile.New(profileKey))
	ai := fixtureprovider.New(aiKey)
	provider.RegisterAIProvider(ai)
	rejectTwice := &scriptedApprover{
		key:       approverKey,
		decisions: []model.Decision{model.DecisionRejected, model.DecisionRejected, model.DecisionApproved},
		feedback:  "missing field",
	}
	provider.RegisterApprovalProvider(rejectTwice)

	var doc config.Document
	require.NoError(t, yaml.Unmarshal([]byte(fmt.Sprintf(`
workflow:
  defaults:
    ai_provider: %[1]s
    approval_provider: skip
  plan: {}
  generate:
    response:
      approval_provider: %[2]s
      approval_max_retries: 2
  review: {}
  revise: {}
`, aiKey, approverKey)), &doc))

	e := New(store.New(t.TempDir()), &doc.Workflow, nil, nil)
	ai.Results = []*provider.AIResult{
		{Response: "The plan."},
		{Response: "v1 code.", Files: map[string]*string{"main.go": strPtr("v1\n")}},
		{Response: "v2 code.", Files: map[string]*string{"main.go": strPtr("v2\n")}},
		{Response: "v3 code.", Files: map[string]*string{"main.go": strPtr("v3\n")}},
		{Response: "Review: PASS."},
	}

	state, err := e.InitializeRun(context.Background(), InitOptions{
		ProfileKey: profileKey,
		Context:    map[string]any{"entity": "Widget"},
		AIProviders: map[string]string{
			"plan": aiKey, "generate": aiKey, "review": aiKey, "revise": aiKey,
		},
	})
	require.NoError(t, err)

	assert.Equal(t, model.PhaseComplete, state.Phase)
	assert.Equal(t, model.StatusSuccess, state.Status)
	assert.Equal(t, 0, state.RetryCount)
	assert.Equal(t, 3, rejectTwice.calls)
	for _, a := range state.Artifacts {
		assert.NotEmpty(t, a.SHA256)
	}
}

// TestS5_RejectHaltsWorkflow mirrors scenario S5: reject records feedback
// and clears pending_approval without advancing (phase, stage).
func TestS5_RejectHaltsWorkflow(t *testing.T) {
	h := newHarness(t, manualGenerateResponseYAML, false)
	h.ai.Results = []*provider.AIResult{
		{Response: "The plan."},
		{Response: "Generated code.", Files: map[string]*string{"main.go": strPtr("package main\n")}},
	}

	state, err := h.engine.InitializeRun(context.Background(), InitOptions{
		ProfileKey:  h.profile,
		Context:     map[string]any{"entity": "Widget"},
		AIProviders: h.aiProviders,
	})
	require.NoError(t, err)
	require.True(t, state.PendingApproval)
	phase, stage := state.Phase, state.Stage

	state, err = h.engine.Execute(context.Background(), state.SessionID, model.CommandReject, "needs more detail")
	require.NoError(t, err)

	assert.Equal(t, "needs more detail", state.ApprovalFeedback)
	assert.False(t, state.PendingApproval)
	assert.Equal(t, phase, state.Phase)
	assert.Equal(t, stage, state.Stage)
	assert.Equal(t, model.StatusInProgress, state.Status)
}

// TestS6_CancelFromMidWorkflow mirrors scenario S6: cancel from any
// active state moves to CANCELLED without touching existing artifacts.
func TestS6_CancelFromMidWorkflow(t *testing.T) {
	h := newHarness(t, skipAllYAML, false)
	h.ai.Results = []*provider.AIResult{
		{Response: "The plan."},
		{Response: "Generated code.", Files: map[string]*string{"main.go": strPtr("package main\n")}},
	}

	state, err := h.engine.InitializeRun(context.Background(), InitOptions{
		ProfileKey:  h.profile,
		Context:     map[string]any{"entity": "Widget"},
		AIProviders: h.aiProviders,
	})
	require.NoError(t, err)
	hashesBefore := map[string]string{}
	for _, a := range state.Artifacts {
		hashesBefore[a.Path] = a.SHA256
	}

	state, err = h.engine.Execute(context.Background(), state.SessionID, model.CommandCancel, "")
	require.NoError(t, err)

	assert.Equal(t, model.PhaseCancelled, state.Phase)
	assert.Equal(t, model.StageNone, state.Stage)
	assert.Equal(t, model.StatusCancelled, state.Status)
	for _, a := range state.Artifacts {
		assert.Equal(t, hashesBefore[a.Path], a.SHA256, "artifact %s hash must not change on cancel", a.Path)
	}
}

// scriptedApprover is a minimal fixture ApprovalProvider returning a
// scripted decision sequence, grounded the same way fixtureprovider
// scripts AI results: one value consumed per call.
type scriptedApprover struct {
	key       string
	decisions []model.Decision
	feedback  string
	calls     int
}

func (s *scriptedApprover) Metadata() provider.Metadata {
	// fs_ability=read even though Evaluate ignores files: a directly
	// registered ApprovalProvider declaring fs_ability=none fails
	// WorkflowConfig.Validate at load time (it would have no path to
	// receiving file contents), so a scripted fixture that never reads
	// files still has to declare itself able to.
	return provider.Metadata{Key: s.key, FSAbility: provider.FSRead}
}

func (s *scriptedApprover) Evaluate(ctx context.Context, phase, stage string, files map[string]*string, approvalCtx map[string]any) (provider.ApprovalResult, error) {
	idx := s.calls
	if idx >= len(s.decisions) {
		idx = len(s.decisions) - 1
	}
	s.calls++
	d := s.decisions[idx]
	result := provider.ApprovalResult{Decision: string(d)}
	if d == model.DecisionRejected {
		result.Feedback = s.feedback
	}
	return result, nil
}
