// Package product resolves the advisory-catalog product name for a host
// from its OS identity, with optional operator-supplied YAML overrides.
package product

import (
	"fmt"
	"os"
	"strings"

	"golang.org/x/xerrors"
	"gopkg.in/yaml.v2"
)

// Rule maps an OS identity pattern to an advisory product name. Empty
// fields match anything.
type Rule struct {
	OSContains     string `yaml:"os_contains"`
	DisplayVersion string `yaml:"display_version"`
	Architecture   string `yaml:"architecture"`
	Product        string `yaml:"product"`
}

type overrideFile struct {
	Rules []Rule `yaml:"rules"`
}

// Resolver turns host OS identity into the single product name used for
// advisory queries. Override rules are consulted before the built-in
// derivation.
type Resolver struct {
	rules []Rule
}

func NewResolver(rules ...Rule) *Resolver {
	return &Resolver{rules: rules}
}

// LoadResolver reads override rules from a YAML file. An empty path
// yields a resolver with no overrides.
func LoadResolver(path string) (*Resolver, error) {
	if path == "" {
		return NewResolver(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, xerrors.Errorf("failed to read product overrides: %w", err)
	}

	var f overrideFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, xerrors.Errorf("failed to parse product overrides: %w", err)
	}

	for _, r := range f.Rules {
		if r.Product == "" {
			return nil, xerrors.New("product override rule with empty product name")
		}
	}

	return NewResolver(f.Rules...), nil
}

func (r Rule) matches(osName, displayVersion, arch string) bool {
	if r.OSContains != "" && !strings.Contains(strings.ToLower(osName), strings.ToLower(r.OSContains)) {
		return false
	}
	if r.DisplayVersion != "" && !strings.EqualFold(r.DisplayVersion, displayVersion) {
		return false
	}
	if r.Architecture != "" && !strings.EqualFold(r.Architecture, NormalizeArch(arch)) {
		return false
	}
	return true
}

// Resolve returns the advisory product name for the given OS identity,
// or an error when no name can be derived.
func (r *Resolver) Resolve(osName, displayVersion, arch string) (string, error) {
	for _, rule := range r.rules {
		if rule.matches(osName, displayVersion, arch) {
			return rule.Product, nil
		}
	}

	gen := Generation(osName)
	if gen == "" {
		return "", xerrors.Errorf("cannot derive product name from OS %q", osName)
	}

	archToken := "x64"
	switch NormalizeArch(arch) {
	case "arm64":
		archToken = "ARM64"
	case "x86":
		archToken = "32-bit"
	}

	if displayVersion == "" {
		return fmt.Sprintf("%s for %s-based Systems", gen, archToken), nil
	}
	return fmt.Sprintf("%s Version %s for %s-based Systems", gen, displayVersion, archToken), nil
}

// Generation extracts the Windows generation token ("Windows 10" or
// "Windows 11") from an OS display name.
func Generation(osName string) string {
	lower := strings.ToLower(osName)
	switch {
	case strings.Contains(lower, "windows 11"):
		return "Windows 11"
	case strings.Contains(lower, "windows 10"):
		return "Windows 10"
	}
	return ""
}

// NormalizeArch folds the architecture spellings seen in baselines into
// the catalog's x64/arm64/x86 tokens.
func NormalizeArch(arch string) string {
	switch strings.ToLower(strings.TrimSpace(arch)) {
	case "x64", "amd64", "64-bit":
		return "x64"
	case "arm64", "aarch64":
		return "arm64"
	case "x86", "32-bit", "i386":
		return "x86"
	}
	return "x64"
}
