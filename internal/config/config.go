// Package config resolves the workflow configuration document described
// in spec §4.3: a YAML document cascading defaults -> phase -> stage.
//
// The cascading-merge shape (each layer overrides only explicitly set
// fields) is grounded on Config.Merge in the teacher's config/config.go.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// StageConfig is one layer of configuration (defaults, phase-wide, or
// stage-specific); a nil field is unset in that layer. Resolve merges the
// layers into a ResolvedStageConfig.
type StageConfig struct {
	AIProvider           string         `yaml:"ai_provider,omitempty"`
	ApprovalProvider      *string        `yaml:"approval_provider,omitempty"`
	ApprovalMaxRetries    *int           `yaml:"approval_max_retries,omitempty"`
	ApprovalAllowRewrite  *bool          `yaml:"approval_allow_rewrite,omitempty"`
	ApproverConfig        map[string]any `yaml:"approver_config,omitempty"`
}

// resolved applies the documented defaults for any field left nil after
// cascading, and returns a fully-populated snapshot. The spec's default
// table: approval_provider="manual", approval_max_retries=0,
// approval_allow_rewrite=false.
func (s StageConfig) resolved() ResolvedStageConfig {
	out := ResolvedStageConfig{
		AIProvider:           s.AIProvider,
		ApprovalProvider:     "manual",
		ApprovalMaxRetries:   0,
		ApprovalAllowRewrite: false,
		ApproverConfig:       s.ApproverConfig,
	}
	if s.ApprovalProvider != nil {
		out.ApprovalProvider = *s.ApprovalProvider
	}
	if s.ApprovalMaxRetries != nil {
		out.ApprovalMaxRetries = *s.ApprovalMaxRetries
	}
	if s.ApprovalAllowRewrite != nil {
		out.ApprovalAllowRewrite = *s.ApprovalAllowRewrite
	}
	return out
}

// ResolvedStageConfig is a StageConfig with every field's final value
// filled in (defaults applied).
type ResolvedStageConfig struct {
	AIProvider           string
	ApprovalProvider     string
	ApprovalMaxRetries   int
	ApprovalAllowRewrite bool
	ApproverConfig       map[string]any
}

// PhaseConfig holds one active phase's settings: an inlined phase-wide
// layer (applies to both stages unless a stage overrides a given field)
// plus the two stage-specific override blocks.
type PhaseConfig struct {
	StageConfig `yaml:",inline"`

	Prompt   *StageConfig `yaml:"prompt,omitempty"`
	Response *StageConfig `yaml:"response,omitempty"`
}

// WorkflowConfig is the top-level document under the "workflow" key.
type WorkflowConfig struct {
	Defaults StageConfig            `yaml:"defaults"`
	Phases   map[string]PhaseConfig `yaml:"-"`

	// HashPrompts, when true, also records each approved PROMPT-stage
	// artifact's hash in WorkflowState.PromptHashes, keyed by path. The
	// per-artifact SHA256 (and PlanHash/ReviewHash) are set at approval
	// time regardless of this flag. Off by default.
	HashPrompts bool `yaml:"hash_prompts,omitempty"`

	// Raw phase fields, named explicitly so the YAML tags are literal
	// (avoiding a custom UnmarshalYAML for the fixed phase set).
	Plan     PhaseConfig `yaml:"plan"`
	Generate PhaseConfig `yaml:"generate"`
	Review   PhaseConfig `yaml:"review"`
	Revise   PhaseConfig `yaml:"revise"`
}

// Document is the file-level wrapper: { workflow: {...} }.
type Document struct {
	Workflow WorkflowConfig `yaml:"workflow"`
}

// Load reads and parses a workflow config document from path.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	return &doc, nil
}

func (w *WorkflowConfig) phaseConfig(phase string) (PhaseConfig, bool) {
	switch phase {
	case "plan":
		return w.Plan, true
	case "generate":
		return w.Generate, true
	case "review":
		return w.Review, true
	case "revise":
		return w.Revise, true
	default:
		return PhaseConfig{}, false
	}
}

// Resolve cascades defaults -> phase -> stage for one (phase, stage) pair
// and returns the fully-resolved StageConfig. Each later layer overrides
// only the fields it explicitly sets (mergeStage), matching the spec's
// cascade law of commutativity under disjoint overrides.
func (w *WorkflowConfig) Resolve(phase, stage string) (ResolvedStageConfig, error) {
	pc, ok := w.phaseConfig(phase)
	if !ok {
		return ResolvedStageConfig{}, fmt.Errorf("unknown phase in workflow config: %s", phase)
	}

	var stageOverride *StageConfig
	switch stage {
	case "prompt":
		stageOverride = pc.Prompt
	case "response":
		stageOverride = pc.Response
	default:
		return ResolvedStageConfig{}, fmt.Errorf("unknown stage in workflow config: %s", stage)
	}

	// Three literal layers: defaults -> phase-wide -> stage-specific.
	merged := mergeStage(w.Defaults, pc.StageConfig)
	if stageOverride != nil {
		merged = mergeStage(merged, *stageOverride)
	}

	return merged.resolved(), nil
}

// mergeStage layers override on top of base: fields override explicitly
// sets (non-empty/non-nil) replace base's; unset fields in override leave
// base's value untouched.
func mergeStage(base, override StageConfig) StageConfig {
	out := base
	if override.AIProvider != "" {
		out.AIProvider = override.AIProvider
	}
	if override.ApprovalProvider != nil {
		out.ApprovalProvider = override.ApprovalProvider
	}
	if override.ApprovalMaxRetries != nil {
		out.ApprovalMaxRetries = override.ApprovalMaxRetries
	}
	if override.ApprovalAllowRewrite != nil {
		out.ApprovalAllowRewrite = override.ApprovalAllowRewrite
	}
	if override.ApproverConfig != nil {
		out.ApproverConfig = override.ApproverConfig
	}
	return out
}
