package engine

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/c360studio/orc/internal/config"
	"github.com/c360studio/orc/internal/plugin"
	"github.com/c360studio/orc/internal/plugin/testprofile"
	"github.com/c360studio/orc/internal/provider"
	"github.com/c360studio/orc/internal/provider/fixtureprovider"
	"github.com/c360studio/orc/internal/store"
)

// testHarness wires a fresh Engine, store and uniquely-keyed test
// profile/AI provider for one test, so package-level provider/profile
// registries (shared process-wide state) never leak between tests.
type testHarness struct {
	engine      *Engine
	st          *store.Store
	ai          *fixtureprovider.Provider
	profile     string
	aiProviders map[string]string
}

func newHarness(t *testing.T, cfgYAML string, canRegenerate bool) *testHarness {
	t.Helper()

	suffix := t.Name()
	profileKey := "testprofile-" + suffix
	aiKey := "fixture-ai-" + suffix

	prof := testprofile.New(profileKey)
	if canRegenerate {
		prof = prof.WithRegeneration()
	}
	plugin.RegisterProfile(prof)

	ai := fixtureprovider.New(aiKey)
	provider.RegisterAIProvider(ai)

	var doc config.Document
	require.NoError(t, yaml.Unmarshal([]byte(fmt.Sprintf(cfgYAML, aiKey)), &doc))

	st := store.New(t.TempDir())
	e := New(st, &doc.Workflow, nil, nil)

	aiProviders := map[string]string{
		"plan": aiKey, "generate": aiKey, "review": aiKey, "revise": aiKey,
	}

	return &testHarness{engine: e, st: st, ai: ai, profile: profileKey, aiProviders: aiProviders}
}

const skipAllYAML = `
workflow:
  defaults:
    ai_provider: %[1]s
    approval_provider: skip
  plan: {}
  generate: {}
  review: {}
  revise: {}
`

const manualGenerateResponseYAML = `
workflow:
  defaults:
    ai_provider: %[1]s
    approval_provider: skip
  plan: {}
  generate:
    response:
      approval_provider: manual
  review: {}
  revise: {}
`

const manualWithRetriesYAML = `
workflow:
  defaults:
    ai_provider: %[1]s
    approval_provider: skip
  plan: {}
  generate:
    response:
      approval_provider: manual
      approval_max_retries: 2
  review: {}
  revise: {}
`

func strPtr(s string) *string { return &s }
