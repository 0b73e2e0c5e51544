package plugin

import "sync"

// Registries for Profile and StandardsProvider plugins, mirroring the
// provider package's AI/approval registries: a package-level
// sync.RWMutex-guarded map populated at process startup by each plugin's
// init(), never mutated afterward.
var (
	profileMu       sync.RWMutex
	profileRegistry = make(map[string]Profile)

	standardsMu       sync.RWMutex
	standardsRegistry = make(map[string]StandardsProvider)
)

// RegisterProfile adds a profile plugin to the process-wide registry.
func RegisterProfile(p Profile) {
	profileMu.Lock()
	defer profileMu.Unlock()
	profileRegistry[p.Key()] = p
}

// GetProfile retrieves a registered profile by key.
func GetProfile(key string) (Profile, bool) {
	profileMu.RLock()
	defer profileMu.RUnlock()
	p, ok := profileRegistry[key]
	return p, ok
}

// ListProfiles returns every registered profile key.
func ListProfiles() []string {
	profileMu.RLock()
	defer profileMu.RUnlock()
	keys := make([]string, 0, len(profileRegistry))
	for k := range profileRegistry {
		keys = append(keys, k)
	}
	return keys
}

// RegisterStandardsProvider adds a standards provider to the registry.
func RegisterStandardsProvider(p StandardsProvider) {
	standardsMu.Lock()
	defer standardsMu.Unlock()
	standardsRegistry[p.Key()] = p
}

// GetStandardsProvider retrieves a registered standards provider by key.
func GetStandardsProvider(key string) (StandardsProvider, bool) {
	standardsMu.RLock()
	defer standardsMu.RUnlock()
	p, ok := standardsRegistry[key]
	return p, ok
}

// ListStandardsProviders returns every registered standards provider key.
func ListStandardsProviders() []string {
	standardsMu.RLock()
	defer standardsMu.RUnlock()
	keys := make([]string, 0, len(standardsRegistry))
	for k := range standardsRegistry {
		keys = append(keys, k)
	}
	return keys
}
