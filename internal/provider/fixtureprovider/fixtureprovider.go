// Package fixtureprovider is a scriptable, deterministic AIProvider for
// tests: it returns a configured sequence of results (or an error) in
// order, and records every prompt it was called with.
//
// Grounded on the teacher's llm/testutil.MockLLMClient: a mutex-guarded
// struct holding a response queue and a call count, advancing one
// position per call.
package fixtureprovider

import (
	"context"
	"fmt"
	"sync"

	"github.com/c360studio/orc/internal/provider"
)

// Provider is a scripted AIProvider. Zero value is usable: Generate
// returns a nil *AIResult (manual mode) until Results is populated.
type Provider struct {
	KeyName    string
	FS         provider.FSAbility
	Results    []*provider.AIResult // returned in sequence, one per call
	Err        error                // if set, every call returns this error
	Regenerate bool                 // Metadata().CanRegeneratePrompts

	mu       sync.Mutex
	calls    int
	prompts  []string
	contexts []map[string]any
}

// New constructs a fixture provider with the given registry key.
func New(key string) *Provider {
	return &Provider{KeyName: key, FS: provider.FSRead}
}

func (p *Provider) Metadata() provider.Metadata {
	return provider.Metadata{
		Key:                  p.KeyName,
		FSAbility:            p.FS,
		CanRegeneratePrompts: p.Regenerate,
	}
}

func (p *Provider) Validate(ctx context.Context) error { return nil }

func (p *Provider) Generate(ctx context.Context, prompt string, genCtx map[string]any) (*provider.AIResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.calls++
	p.prompts = append(p.prompts, prompt)
	p.contexts = append(p.contexts, genCtx)

	if p.Err != nil {
		return nil, p.Err
	}
	idx := p.calls - 1
	if idx < len(p.Results) {
		return p.Results[idx], nil
	}
	if len(p.Results) == 0 {
		return nil, nil
	}
	return p.Results[len(p.Results)-1], fmt.Errorf("fixtureprovider %s: call %d exceeds scripted results", p.KeyName, p.calls)
}

// CallCount returns how many times Generate was called.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

// LastPrompt returns the prompt text passed on the most recent call.
func (p *Provider) LastPrompt() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.prompts) == 0 {
		return ""
	}
	return p.prompts[len(p.prompts)-1]
}
