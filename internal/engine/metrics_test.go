package engine

import (
	"context"
	"fmt"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
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

// TestPrometheusObserver_RecordsGateOutcomesAndActions drives a full S1
// style pass through an Engine wired with a real PrometheusObserver
// (isolated registry), asserting the counters only ever move through
// engine-emitted events, never by being poked directly.
func TestPrometheusObserver_RecordsGateOutcomesAndActions(t *testing.T) {
	profileKey := "testprofile-" + t.Name()
	aiKey := "fixture-ai-" + t.Name()

	plugin.RegisterProfile(testprofile.New(profileKey))
	ai := fixtureprovider.New(aiKey)
	provider.RegisterAIProvider(ai)

	var doc config.Document
	require.NoError(t, yaml.Unmarshal([]byte(fmt.Sprintf(`
workflow:
  defaults:
    ai_provider: %[1]s
    approval_provider: skip
  plan: {}
  generate: {}
  review: {}
  revise: {}
`, aiKey)), &doc))

	reg := prometheus.NewRegistry()
	obs := NewPrometheusObserver(reg)
	e := New(store.New(t.TempDir()), &doc.Workflow, nil, obs)

	ai.Results = []*provider.AIResult{
		{Response: "The plan."},
		{Response: "Generated code.", Files: map[string]*string{"main.go": strPtr("package main\n")}},
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
	require.Equal(t, model.PhaseComplete, state.Phase)

	for _, tc := range []struct {
		phase, stage string
	}{
		{"plan", "prompt"}, {"plan", "response"},
		{"generate", "prompt"}, {"generate", "response"},
		{"review", "prompt"}, {"review", "response"},
	} {
		assert.Equal(t, float64(1),
			testutil.ToFloat64(obs.gateOutcomes.WithLabelValues(tc.phase, tc.stage, "approved")),
			"gate outcome %s/%s", tc.phase, tc.stage)
	}

	assert.Equal(t, float64(3), testutil.ToFloat64(obs.actions.WithLabelValues(string(model.ActionCreatePrompt))))
	assert.Equal(t, float64(3), testutil.ToFloat64(obs.actions.WithLabelValues(string(model.ActionCallAI))))
	assert.Equal(t, float64(1), testutil.ToFloat64(obs.actions.WithLabelValues(string(model.ActionCheckVerdict))))
}
