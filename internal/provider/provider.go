// Package provider defines the AI and approval provider contracts and
// their process-wide registries.
//
// The registry shape — a package-level sync.RWMutex-guarded map keyed by
// string name, with Register/Get/List functions — is grounded on
// llm.Provider / llm.RegisterProvider / llm.GetProvider in the teacher
// repo's llm/provider.go.
package provider

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// FSAbility declares a provider's self-reported filesystem access level.
type FSAbility string

const (
	// FSNone means the provider cannot read files itself; the engine must
	// inline file contents into the call.
	FSNone FSAbility = "none"
	// FSRead means the provider reads files on its own given a path.
	FSRead FSAbility = "read"
	// FSLocalWrite means the provider may also create/modify files (e.g.
	// the human driving a manual approver, or a coding-agent CLI).
	FSLocalWrite FSAbility = "local-write"
)

// Metadata is the static descriptor every provider exposes.
type Metadata struct {
	Key               string
	FSAbility         FSAbility
	DefaultTimeout    time.Duration
	ConfigKeys        []string
	CanRegeneratePrompts bool
}

// AIResult is what an AI provider's Generate call returns. A nil *AIResult
// (with nil error) means "manual: the user will write the response file".
type AIResult struct {
	// Response is the raw text response, if any.
	Response string
	// Files maps relative path -> content. A nil content value means the
	// provider wrote the file directly (tracked via its own tool/CLI); a
	// non-nil value means the engine must write the file itself.
	Files map[string]*string
}

// AIProvider generates prompt responses (and optionally files) for a
// session phase.
type AIProvider interface {
	Metadata() Metadata
	Validate(ctx context.Context) error
	Generate(ctx context.Context, prompt string, genCtx map[string]any) (*AIResult, error)
}

// ApprovalResult is the outcome of an approval gate evaluation.
type ApprovalResult struct {
	Decision         string // model.Decision value, kept as string to avoid import cycle
	Feedback         string
	SuggestedContent string
}

// ApprovalProvider evaluates the artifacts produced by a gate and decides
// whether the workflow may proceed.
type ApprovalProvider interface {
	Metadata() Metadata
	// Evaluate receives the gate's files map: relative path -> content, or
	// nil if the provider is expected to read the file itself
	// (fs_ability != none).
	Evaluate(ctx context.Context, phase, stage string, files map[string]*string, approvalCtx map[string]any) (ApprovalResult, error)
}

var (
	aiMu       sync.RWMutex
	aiRegistry = make(map[string]AIProvider)

	approvalMu       sync.RWMutex
	approvalRegistry = make(map[string]ApprovalProvider)
)

// RegisterAIProvider adds an AI provider to the process-wide registry.
// Registration is explicit, at startup; registries are effectively
// immutable afterward.
func RegisterAIProvider(p AIProvider) {
	aiMu.Lock()
	defer aiMu.Unlock()
	aiRegistry[p.Metadata().Key] = p
}

// GetAIProvider retrieves a registered AI provider by key.
func GetAIProvider(key string) (AIProvider, bool) {
	aiMu.RLock()
	defer aiMu.RUnlock()
	p, ok := aiRegistry[key]
	return p, ok
}

// ListAIProviders returns every registered AI provider key.
func ListAIProviders() []string {
	aiMu.RLock()
	defer aiMu.RUnlock()
	keys := make([]string, 0, len(aiRegistry))
	for k := range aiRegistry {
		keys = append(keys, k)
	}
	return keys
}

// RegisterApprovalProvider adds an approval provider to the registry.
func RegisterApprovalProvider(p ApprovalProvider) {
	approvalMu.Lock()
	defer approvalMu.Unlock()
	approvalRegistry[p.Metadata().Key] = p
}

// GetApprovalProvider retrieves a registered approval provider by key,
// without falling back to the AI registry (see CreateApprovalProvider for
// the full factory behavior including the AI-as-approver adapter).
func GetApprovalProvider(key string) (ApprovalProvider, bool) {
	approvalMu.RLock()
	defer approvalMu.RUnlock()
	p, ok := approvalRegistry[key]
	return p, ok
}

// ListApprovalProviders returns every registered approval provider key.
func ListApprovalProviders() []string {
	approvalMu.RLock()
	defer approvalMu.RUnlock()
	keys := make([]string, 0, len(approvalRegistry))
	for k := range approvalRegistry {
		keys = append(keys, k)
	}
	return keys
}

// CreateAIProvider resolves an AI provider by key via the factory.
func CreateAIProvider(key string) (AIProvider, error) {
	p, ok := GetAIProvider(key)
	if !ok {
		return nil, fmt.Errorf("unknown AI provider key: %s", key)
	}
	return p, nil
}

// CreateApprovalProvider resolves an approval provider by key. It first
// looks in the approval registry; if absent, it looks in the AI registry
// and wraps the result via the AIApprovalProvider adapter (§4.5).
func CreateApprovalProvider(key string, approverConfig map[string]any) (ApprovalProvider, error) {
	if p, ok := GetApprovalProvider(key); ok {
		return p, nil
	}
	if ai, ok := GetAIProvider(key); ok {
		return NewAIApprovalProvider(ai, approverConfig), nil
	}
	return nil, fmt.Errorf("unknown approval provider key: %s", key)
}
