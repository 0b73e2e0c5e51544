package plugin

import "context"

// NoStandards is the default StandardsProvider: an empty bundle. Sessions
// that don't configure a standards provider still get a deterministic,
// hashable (empty) bundle rather than a special-cased absence.
type NoStandards struct{}

func (NoStandards) Key() string { return "none" }

func (NoStandards) Bundle(ctx context.Context) (string, error) { return "", nil }

func init() {
	RegisterStandardsProvider(NoStandards{})
}
