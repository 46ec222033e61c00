// Package bootstrap loads the optional allowlist that prunes bootstrap
// packages from the crawl frontier. It is a small YAML file read once at
// startup via gopkg.in/yaml.v3.
package bootstrap

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// rawAllowlist is the on-disk shape of the allowlist file.
type rawAllowlist struct {
	SkipPrefixes []string `yaml:"skip_prefixes"`
}

// Allowlist decides whether an attribute path belongs to the bootstrap
// frontier that C6 should actively prune rather than describe.
type Allowlist struct {
	prefixes []string
}

// Empty returns an Allowlist that prunes nothing, the distilled spec's
// current behavior.
func Empty() *Allowlist {
	return &Allowlist{}
}

// Load reads an allowlist from a YAML file. A missing path is treated the
// same as Empty(): pruning is opt-in, never required to run the crawl.
func Load(path string) (*Allowlist, error) {
	if path == "" {
		return Empty(), nil
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Empty(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading bootstrap allowlist %s: %w", path, err)
	}

	var raw rawAllowlist
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing bootstrap allowlist %s: %w", path, err)
	}
	return &Allowlist{prefixes: raw.SkipPrefixes}, nil
}

// Skip reports whether attrPath falls under a pruned bootstrap prefix:
// either an exact match or a dotted-path descendant of one.
func (a *Allowlist) Skip(attrPath string) bool {
	if a == nil {
		return false
	}
	for _, prefix := range a.prefixes {
		if attrPath == prefix || strings.HasPrefix(attrPath, prefix+".") {
			return true
		}
	}
	return false
}
