package provider

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// AIApprovalProvider wraps an AIProvider so it can act as an
// ApprovalProvider (§4.5): it builds a gate prompt, calls Generate, and
// leniently parses the response into a Decision.
type AIApprovalProvider struct {
	ai             AIProvider
	allowRewrite   bool
	approverConfig map[string]any
}

// NewAIApprovalProvider constructs the adapter. approverConfig may carry
// an "approval_allow_rewrite" bool, consulted at evaluation time.
func NewAIApprovalProvider(ai AIProvider, approverConfig map[string]any) *AIApprovalProvider {
	allow, _ := approverConfig["approval_allow_rewrite"].(bool)
	return &AIApprovalProvider{ai: ai, allowRewrite: allow, approverConfig: approverConfig}
}

func (a *AIApprovalProvider) Metadata() Metadata {
	m := a.ai.Metadata()
	m.Key = a.ai.Metadata().Key
	return m
}

// Evaluate builds a structured gate prompt, calls the wrapped AI
// provider, and leniently parses its response into a Decision.
func (a *AIApprovalProvider) Evaluate(ctx context.Context, phase, stage string, files map[string]*string, approvalCtx map[string]any) (ApprovalResult, error) {
	prompt := buildGatePrompt(phase, stage, files, a.ai.Metadata().FSAbility)

	result, err := a.ai.Generate(ctx, prompt, approvalCtx)
	if err != nil {
		return ApprovalResult{}, &providerCallError{key: a.ai.Metadata().Key, err: err}
	}

	response := ""
	if result != nil {
		response = result.Response
	}

	decision, feedback := parseApproverResponse(response)

	out := ApprovalResult{Decision: decision, Feedback: feedback}
	if a.allowRewrite {
		if rewrite, ok := parseRewriteBlock(response); ok {
			out.SuggestedContent = rewrite
		}
	}
	return out, nil
}

type providerCallError struct {
	key string
	err error
}

func (e *providerCallError) Error() string { return fmt.Sprintf("%s: %v", e.key, e.err) }
func (e *providerCallError) Unwrap() error { return e.err }

// buildGatePrompt assembles a structured prompt describing the question
// for the current gate, including file contents when the underlying
// provider cannot read files itself.
func buildGatePrompt(phase, stage string, files map[string]*string, fs FSAbility) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Review the %s/%s artifacts below and decide APPROVED, REJECTED, or PENDING.\n", phase, stage)
	b.WriteString("Respond with a line starting \"DECISION: \" followed by your verdict.\n")
	b.WriteString("If REJECTED, also include a \"FEEDBACK: \" line explaining why.\n\n")

	// Stable order for deterministic prompts in tests.
	paths := make([]string, 0, len(files))
	for p := range files {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	for _, p := range paths {
		content := files[p]
		if fs == FSNone && content != nil {
			fmt.Fprintf(&b, "--- %s ---\n%s\n\n", p, *content)
		} else {
			fmt.Fprintf(&b, "--- %s (read from disk) ---\n\n", p)
		}
	}
	return b.String()
}

// parseApproverResponse leniently parses an approver's free-text response
// into a decision string and optional feedback, per §4.5:
//  1. Look for "DECISION: APPROVED|REJECTED|PENDING" (case-insensitive).
//  2. If absent, keyword scan, "approved" winning only if explicit.
//  3. If ambiguous or empty, default to REJECTED with a defensive message.
func parseApproverResponse(response string) (decision, feedback string) {
	lines := strings.Split(response, "\n")
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		upper := strings.ToUpper(trimmed)
		if strings.HasPrefix(upper, "DECISION:") {
			verdict := strings.TrimSpace(trimmed[len("DECISION:"):])
			switch strings.ToUpper(verdict) {
			case "APPROVED":
				return "approved", ""
			case "REJECTED":
				return "rejected", extractFeedback(response)
			case "PENDING":
				return "pending", ""
			}
		}
	}

	lower := strings.ToLower(response)
	hasApproved := strings.Contains(lower, "approved")
	hasRejected := strings.Contains(lower, "rejected")
	switch {
	case hasRejected && !hasApproved:
		return "rejected", extractFeedback(response)
	case hasApproved && !hasRejected:
		return "approved", ""
	default:
		return "rejected", "unparseable approver response; content must be re-evaluated"
	}
}

func extractFeedback(response string) string {
	for _, line := range strings.Split(response, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(strings.ToUpper(trimmed), "FEEDBACK:") {
			fb := strings.TrimSpace(trimmed[len("FEEDBACK:"):])
			if fb != "" {
				return fb
			}
		}
	}
	return "rejected by approver"
}

// parseRewriteBlock extracts a fenced ```rewrite ... ``` block, if present.
func parseRewriteBlock(response string) (string, bool) {
	const marker = "```rewrite"
	start := strings.Index(response, marker)
	if start == -1 {
		return "", false
	}
	rest := response[start+len(marker):]
	end := strings.Index(rest, "```")
	if end == -1 {
		return "", false
	}
	return strings.TrimSpace(rest[:end]), true
}
