package girder

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Request describes what one generation run should produce. It is usually
// loaded from a YAML file and may be amended by a rules script before the
// pipeline sees it.
type Request struct {
	// Allow lists the entities to generate: exact fully-qualified names or
	// trailing namespace wildcards ("audio::*"). Dependencies are pulled
	// in automatically.
	Allow []string `yaml:"allow"`

	// PODOverrides forces POD classification for the named types. The
	// caller asserts the type's layout is transparent to the host.
	PODOverrides map[string]bool `yaml:"pod_overrides"`

	// Subclass names classes the host wants to extend with its own
	// virtual method overrides.
	Subclass []string `yaml:"subclass"`

	// ExtraIncludes are emitted at the top of the shim, before the
	// generated includes, in order.
	ExtraIncludes []string `yaml:"extra_includes"`

	// RulesScript optionally names a Risor script run against the request
	// before generation.
	RulesScript string `yaml:"rules_script"`
}

// LoadRequest reads and validates a YAML request file.
func LoadRequest(path string) (*Request, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("girder: read request: %w", err)
	}
	var req Request
	if err := yaml.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("girder: parse request %s: %w", path, err)
	}
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("girder: request %s: %w", path, err)
	}
	return &req, nil
}

// Validate checks the request's allow-list patterns. Wildcards are only
// legal as a trailing "::*" segment; a bare "*" or an interior wildcard is
// rejected rather than silently matching nothing.
func (r *Request) Validate() error {
	for _, pattern := range r.Allow {
		if err := validatePattern(pattern); err != nil {
			return err
		}
	}
	for _, name := range r.Subclass {
		if strings.Contains(name, "*") {
			return fmt.Errorf("subclass request %q: wildcards are not allowed", name)
		}
	}
	return nil
}

func validatePattern(pattern string) error {
	if pattern == "" {
		return fmt.Errorf("allow-list entry is empty")
	}
	if !strings.Contains(pattern, "*") {
		return nil
	}
	rest, ok := strings.CutSuffix(pattern, "::*")
	if !ok || rest == "" || strings.Contains(rest, "*") {
		return fmt.Errorf("allow-list entry %q: wildcard must be a trailing \"::*\" segment", pattern)
	}
	return nil
}
