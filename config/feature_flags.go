package config

import (
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// FeatureFlags manages runtime toggles of optional infrastructure. Each flag
// can be overridden with FEATURE_<NAME>=true|false.
type FeatureFlags struct {
	mu       sync.RWMutex
	features map[string]*Feature
}

// Feature represents a single feature flag.
type Feature struct {
	Name        string
	Description string
	Enabled     bool
}

// Predefined feature flag names.
const (
	// FeatureCatalogCache serves course structures through Redis.
	FeatureCatalogCache = "catalog_cache"

	// FeatureDistributedEvents fans events out to every instance over Redis pub/sub.
	FeatureDistributedEvents = "distributed_events"

	// FeatureNotifications forwards events to the notification collaborator.
	FeatureNotifications = "notifications"

	// FeatureEmbeddedRelay runs the outbox relay inside the API process.
	FeatureEmbeddedRelay = "embedded_relay"
)

// LoadFeatureFlags creates the default flags and applies environment overrides.
func LoadFeatureFlags() *FeatureFlags {
	ff := &FeatureFlags{features: make(map[string]*Feature)}
	ff.initializeDefaults()
	ff.loadFromEnvironment()
	return ff
}

func (ff *FeatureFlags) initializeDefaults() {
	for _, f := range []*Feature{
		{Name: FeatureCatalogCache, Description: "Read-through Redis cache for course structures", Enabled: true},
		{Name: FeatureDistributedEvents, Description: "Redis pub/sub event bus across instances", Enabled: false},
		{Name: FeatureNotifications, Description: "Deliver payment and completion notifications", Enabled: true},
		{Name: FeatureEmbeddedRelay, Description: "Relay the outbox from the API process", Enabled: true},
	} {
		ff.features[f.Name] = f
	}
}

func (ff *FeatureFlags) loadFromEnvironment() {
	for name, f := range ff.features {
		val := os.Getenv(featureNameToEnvKey(name))
		if val == "" {
			continue
		}
		if enabled, err := strconv.ParseBool(val); err == nil {
			f.Enabled = enabled
		}
	}
}

func featureNameToEnvKey(name string) string {
	return "FEATURE_" + strings.ToUpper(name)
}

// IsEnabled reports whether the named feature is on. Unknown names are off.
func (ff *FeatureFlags) IsEnabled(featureName string) bool {
	ff.mu.RLock()
	defer ff.mu.RUnlock()

	f, ok := ff.features[featureName]
	return ok && f.Enabled
}

// EnableFeature turns a feature on.
func (ff *FeatureFlags) EnableFeature(featureName string) error {
	return ff.set(featureName, true)
}

// DisableFeature turns a feature off.
func (ff *FeatureFlags) DisableFeature(featureName string) error {
	return ff.set(featureName, false)
}

func (ff *FeatureFlags) set(featureName string, enabled bool) error {
	ff.mu.Lock()
	defer ff.mu.Unlock()

	f, ok := ff.features[featureName]
	if !ok {
		return &FeatureFlagError{Feature: featureName, Message: "unknown feature"}
	}
	f.Enabled = enabled
	return nil
}

// GetAllFeatures returns a copy of every flag, sorted by name.
func (ff *FeatureFlags) GetAllFeatures() []Feature {
	ff.mu.RLock()
	defer ff.mu.RUnlock()

	out := make([]Feature, 0, len(ff.features))
	for _, f := range ff.features {
		out = append(out, *f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// FeatureFlagError is returned for operations on unknown flags.
type FeatureFlagError struct {
	Feature string
	Message string
}

func (e *FeatureFlagError) Error() string {
	return "feature " + e.Feature + ": " + e.Message
}
