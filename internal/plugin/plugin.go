// Package plugin declares the two external collaborator interfaces the
// engine consumes without implementing: Profile (domain-specific prompt
// generation and response parsing) and StandardsProvider (the standards
// bundle). Concrete profiles and standards providers are plugins outside
// this module's scope.
package plugin

import (
	"context"

	"github.com/c360studio/orc/internal/model"
)

// ContextFieldType is one of a small closed set of context value types a
// profile may declare in its context schema.
type ContextFieldType string

const (
	FieldString ContextFieldType = "string"
	FieldInt    ContextFieldType = "int"
	FieldBool   ContextFieldType = "bool"
	FieldPath   ContextFieldType = "path"
	FieldChoice ContextFieldType = "choice"
)

// ContextField describes one field of a profile's declared context
// schema, validated once at session init.
type ContextField struct {
	Name     string
	Type     ContextFieldType
	Required bool
	// Choices is populated only when Type == FieldChoice.
	Choices []string
}

// PromptRequest carries everything a profile needs to produce prompt
// content for one phase.
type PromptRequest struct {
	Phase             model.Phase
	Iteration         int
	Context           map[string]any
	PreviousResponses map[string]string // session-relative path (e.g. "iteration-1/planning-response.md") -> content
	Standards         string
	Feedback          string
}

// PromptSections is the profile's structured prompt output. The engine
// writes Instructions, Body and OutputNotes to the prompt file in that
// order, separated by blank lines (an empty Instructions or OutputNotes
// is left out); it adds no metadata header and no listing of session
// artifacts of its own. A profile may also return a raw string via Body
// alone.
type PromptSections struct {
	Instructions string
	Body         string
	OutputNotes  string
}

// Profile is the domain-specific plugin: it knows how to generate
// prompts and parse responses for one kind of code-generation task
// (e.g. "jpa-mt"). The engine stores and forwards Context opaquely; it
// never interprets it beyond validating against ContextSchema.
type Profile interface {
	Key() string
	ContextSchema() []ContextField
	// CanRegeneratePrompts reports whether RegeneratePrompt may be called
	// to recover from a rejected PROMPT stage (§4.6.4).
	CanRegeneratePrompts() bool
	CreatePrompt(req PromptRequest) (PromptSections, error)
	RegeneratePrompt(req PromptRequest, feedback string) (PromptSections, error)
	ParseReviewVerdict(reviewContent string) (model.Verdict, error)
}

// StandardsProvider assembles the standards bundle written once per
// session at init and hashed for audit.
type StandardsProvider interface {
	Key() string
	Bundle(ctx context.Context) (string, error)
}
