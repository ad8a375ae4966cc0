// Package runtimecfg decodes the YAML document a host uses to configure a
// runtime instance: where its mount points are and the handful of tunables
// the spec calls out by name.
package runtimecfg

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// MountSpec overlays one physical directory onto a virtual prefix. Entries
// earlier in the list win on ambiguity, the same as repeated AddMapping
// calls in mount order.
type MountSpec struct {
	Physical string `yaml:"physical"`
	Virtual  string `yaml:"virtual"`
}

// Config is the in-memory form of a runtime's YAML configuration document.
type Config struct {
	Mounts []MountSpec `yaml:"mounts"`

	// MaxInstructionsPerTick bounds how many instructions a scheduled
	// context may run in a single scheduler tick.
	MaxInstructionsPerTick uint64 `yaml:"max_instructions_per_tick"`

	// MaxTotalInstructions bounds the lifetime instruction count of any
	// single context before it is terminated with a diagnostic.
	MaxTotalInstructions uint64 `yaml:"max_total_instructions"`

	// StrictMode raises UnassignedVariable diagnostics from Warning to
	// Error; they are emitted either way.
	StrictMode bool `yaml:"strict_mode"`

	// CaseSensitivePaths governs whether the mount tree folds path
	// segment case when resolving a virtual path.
	CaseSensitivePaths bool `yaml:"case_sensitive_paths"`

	// EnableClassicIncludes makes a quoted #include resolve relative to
	// the including file before falling back to an absolute lookup.
	EnableClassicIncludes bool `yaml:"enable_classic_includes"`
}

// Default returns the configuration a runtime uses when no document was
// supplied, chosen to match the permissive defaults of the original engine.
func Default() Config {
	return Config{
		MaxInstructionsPerTick: 10000,
		MaxTotalInstructions:   10_000_000,
		CaseSensitivePaths:     false,
		EnableClassicIncludes:  true,
	}
}

// Load reads and parses a YAML configuration file.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config %s: %w", path, err)
	}
	return Parse(data, path)
}

// Parse decodes YAML configuration content from bytes. path is used only
// to make error messages locate the offending file.
func Parse(data []byte, path string) (Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing %s: %w", path, err)
	}
	return cfg, nil
}
