// Package testprofile provides a minimal in-memory Profile used only by
// the engine's own tests. It is not a real profile plugin — profiles
// such as a JPA/ORM code-generation profile are external to this module.
package testprofile

import (
	"fmt"
	"strings"

	"github.com/c360studio/orc/internal/model"
	"github.com/c360studio/orc/internal/plugin"
)

// Profile is a trivial profile: it echoes context fields into the
// prompt body and parses a review verdict from a literal "PASS"/"FAIL"
// marker, mirroring the scriptable-fixture style of the teacher's
// cmd/mock-llm fake.
type Profile struct {
	key                  string
	canRegeneratePrompts bool
}

// New constructs a test profile with the given registry key.
func New(key string) *Profile {
	return &Profile{key: key}
}

// WithRegeneration returns a copy that declares CanRegeneratePrompts.
func (p *Profile) WithRegeneration() *Profile {
	return &Profile{key: p.key, canRegeneratePrompts: true}
}

func (p *Profile) Key() string { return p.key }

func (p *Profile) ContextSchema() []plugin.ContextField {
	return []plugin.ContextField{
		{Name: "entity", Type: plugin.FieldString, Required: true},
	}
}

func (p *Profile) CanRegeneratePrompts() bool { return p.canRegeneratePrompts }

func (p *Profile) CreatePrompt(req plugin.PromptRequest) (plugin.PromptSections, error) {
	entity, _ := req.Context["entity"].(string)
	var b strings.Builder
	fmt.Fprintf(&b, "phase=%s iteration=%d entity=%s\n", req.Phase, req.Iteration, entity)
	if req.Feedback != "" {
		fmt.Fprintf(&b, "feedback: %s\n", req.Feedback)
	}
	return plugin.PromptSections{
		Instructions: fmt.Sprintf("Produce the %s artifact for %s.", req.Phase, entity),
		Body:         b.String(),
	}, nil
}

func (p *Profile) RegeneratePrompt(req plugin.PromptRequest, feedback string) (plugin.PromptSections, error) {
	req.Feedback = feedback
	return p.CreatePrompt(req)
}

func (p *Profile) ParseReviewVerdict(reviewContent string) (model.Verdict, error) {
	if strings.Contains(strings.ToUpper(reviewContent), "FAIL") {
		return model.VerdictFail, nil
	}
	if strings.Contains(strings.ToUpper(reviewContent), "PASS") {
		return model.VerdictPass, nil
	}
	return "", fmt.Errorf("no PASS/FAIL verdict found in review content")
}
