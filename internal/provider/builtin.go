package provider

import "context"

// SkipApprover always approves. It carries no filesystem dependency.
type SkipApprover struct{}

func (SkipApprover) Metadata() Metadata {
	return Metadata{Key: "skip", FSAbility: FSRead}
}

func (SkipApprover) Evaluate(ctx context.Context, phase, stage string, files map[string]*string, approvalCtx map[string]any) (ApprovalResult, error) {
	return ApprovalResult{Decision: "approved"}, nil
}

// ManualApprover always returns PENDING, yielding control to whoever is
// driving the session (a human via the CLI). Its fs_ability is
// local-write: a human has full filesystem access and may edit artifacts
// directly before approving.
type ManualApprover struct{}

func (ManualApprover) Metadata() Metadata {
	return Metadata{Key: "manual", FSAbility: FSLocalWrite}
}

func (ManualApprover) Evaluate(ctx context.Context, phase, stage string, files map[string]*string, approvalCtx map[string]any) (ApprovalResult, error) {
	return ApprovalResult{Decision: "pending"}, nil
}

func init() {
	RegisterApprovalProvider(SkipApprover{})
	RegisterApprovalProvider(ManualApprover{})
}
