package config

import (
	"fmt"

	"github.com/c360studio/orc/internal/model"
	"github.com/c360studio/orc/internal/provider"
)

var activePhases = []string{"plan", "generate", "review", "revise"}
var stages = []string{"prompt", "response"}

// Validate fail-fasts on everything §4.3 names: unknown provider keys,
// missing ai_provider on RESPONSE stages, and approvers whose fs_ability
// is "none" (they cannot read the files they must evaluate). An AI
// provider used as an approver is exempt from the fs_ability check: the
// engine inlines gate file contents for it.
func (w *WorkflowConfig) Validate() error {
	for _, phase := range activePhases {
		for _, stage := range stages {
			cfg, err := w.Resolve(phase, stage)
			if err != nil {
				return &model.ConfigurationError{Reason: err.Error()}
			}

			if stage == "response" && cfg.AIProvider == "" {
				return &model.ConfigurationError{
					Reason: fmt.Sprintf("%s/%s: ai_provider is required for response stages", phase, stage),
				}
			}
			if cfg.AIProvider != "" {
				if _, ok := provider.GetAIProvider(cfg.AIProvider); !ok {
					return &model.ConfigurationError{
						Reason: fmt.Sprintf("%s/%s: unknown ai_provider %q", phase, stage, cfg.AIProvider),
					}
				}
			}

			approver, err := provider.CreateApprovalProvider(cfg.ApprovalProvider, cfg.ApproverConfig)
			if err != nil {
				return &model.ConfigurationError{
					Reason: fmt.Sprintf("%s/%s: %v", phase, stage, err),
				}
			}
			if approver.Metadata().FSAbility == provider.FSNone {
				// fs_ability=none approvers that also declare themselves as
				// AI providers cannot read files on their own; the engine
				// inlines content for them, so this is legal. Only a
				// registered ApprovalProvider (not an AI-wrapped adapter)
				// declaring "none" directly is rejected, since such a
				// provider would have no path to receiving file contents.
				if _, isAIWrapped := provider.GetAIProvider(cfg.ApprovalProvider); !isAIWrapped {
					return &model.ConfigurationError{
						Reason: fmt.Sprintf("%s/%s: approval provider %q declares fs_ability=none and cannot read files", phase, stage, cfg.ApprovalProvider),
					}
				}
			}
		}
	}
	return nil
}
