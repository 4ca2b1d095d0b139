// Package model loads the model artifacts enrichers consult and publishes
// them atomically. Each named model lives in a Store; a reload builds a new
// immutable Artifact off to the side and swaps a single pointer, so readers
// always see either the previous or the new artifact in full.
package model

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/netip"
	"os"
	"slices"
	"sort"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"
)

// Artifact is one loaded model. It is immutable once installed in a Store.
type Artifact struct {
	Name       string
	Version    string
	Digest     string
	Generation uint64
	LoadedAt   time.Time

	attributes []string
	attrSet    map[string]struct{}
	networks   []network
	entries    map[string]map[string]string
	patterns   []pattern
}

type network struct {
	prefix netip.Prefix
	values map[string]string
}

type pattern struct {
	glob   string
	values map[string]string
}

// artifactFile is the on-disk YAML layout.
type artifactFile struct {
	Name       string   `yaml:"name"`
	Version    string   `yaml:"version"`
	Attributes []string `yaml:"attributes"`
	Networks   []struct {
		CIDR   string            `yaml:"cidr"`
		Values map[string]string `yaml:"values"`
	} `yaml:"networks"`
	Entries []struct {
		Key    string            `yaml:"key"`
		Values map[string]string `yaml:"values"`
	} `yaml:"entries"`
	Patterns []struct {
		Pattern string            `yaml:"pattern"`
		Values  map[string]string `yaml:"values"`
	} `yaml:"patterns"`
}

// LoadArtifact reads and parses an artifact file.
func LoadArtifact(name, path string) (*Artifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read artifact: %w", err)
	}
	return ParseArtifact(name, data)
}

// ParseArtifact parses YAML artifact data. name is used when the document
// does not carry its own name.
func ParseArtifact(name string, data []byte) (*Artifact, error) {
	var file artifactFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse artifact: %w", err)
	}
	if file.Name == "" {
		file.Name = name
	}
	if file.Name == "" {
		return nil, fmt.Errorf("artifact name is required")
	}

	sum := sha256.Sum256(data)
	a := &Artifact{
		Name:    file.Name,
		Version: file.Version,
		Digest:  hex.EncodeToString(sum[:]),
		attrSet: make(map[string]struct{}),
		entries: make(map[string]map[string]string, len(file.Entries)),
	}

	declared := len(file.Attributes) > 0
	for _, attr := range file.Attributes {
		a.attrSet[attr] = struct{}{}
	}
	addValues := func(where string, values map[string]string) error {
		for k := range values {
			if _, ok := a.attrSet[k]; ok {
				continue
			}
			if declared {
				return fmt.Errorf("%s: attribute %q is not declared", where, k)
			}
			a.attrSet[k] = struct{}{}
		}
		return nil
	}

	for i, n := range file.Networks {
		prefix, err := netip.ParsePrefix(n.CIDR)
		if err != nil {
			return nil, fmt.Errorf("network %d: %w", i, err)
		}
		if err := addValues("network "+n.CIDR, n.Values); err != nil {
			return nil, err
		}
		a.networks = append(a.networks, network{prefix: prefix.Masked(), values: n.Values})
	}
	// Longest prefix first.
	sort.SliceStable(a.networks, func(i, j int) bool {
		return a.networks[i].prefix.Bits() > a.networks[j].prefix.Bits()
	})

	for _, e := range file.Entries {
		if e.Key == "" {
			return nil, fmt.Errorf("entry key is required")
		}
		if _, dup := a.entries[e.Key]; dup {
			return nil, fmt.Errorf("duplicate entry %q", e.Key)
		}
		if err := addValues("entry "+e.Key, e.Values); err != nil {
			return nil, err
		}
		a.entries[e.Key] = e.Values
	}

	for _, p := range file.Patterns {
		if !doublestar.ValidatePattern(p.Pattern) {
			return nil, fmt.Errorf("invalid pattern %q", p.Pattern)
		}
		if err := addValues("pattern "+p.Pattern, p.Values); err != nil {
			return nil, err
		}
		a.patterns = append(a.patterns, pattern{glob: p.Pattern, values: p.Values})
	}

	a.attributes = make([]string, 0, len(a.attrSet))
	for attr := range a.attrSet {
		a.attributes = append(a.attributes, attr)
	}
	sort.Strings(a.attributes)

	return a, nil
}

// Attributes returns the attribute names this artifact can supply.
func (a *Artifact) Attributes() []string {
	out := make([]string, len(a.attributes))
	copy(out, a.attributes)
	return out
}

// HasAttribute reports whether the artifact can supply attr.
func (a *Artifact) HasAttribute(attr string) bool {
	_, ok := a.attrSet[attr]
	return ok
}

// Recognized returns the needs the artifact can supply, in request order and
// without duplicates.
func (a *Artifact) Recognized(needs []string) []string {
	var out []string
	for _, need := range needs {
		if !a.HasAttribute(need) || slices.Contains(out, need) {
			continue
		}
		out = append(out, need)
	}
	return out
}

// LookupIP returns the values of the most specific network containing addr.
// The returned map is shared and must not be modified.
func (a *Artifact) LookupIP(addr netip.Addr) (map[string]string, bool) {
	addr = addr.Unmap()
	for _, n := range a.networks {
		if n.prefix.Contains(addr) {
			return n.values, true
		}
	}
	return nil, false
}

// LookupKey returns the values for key: an exact entry first, then the first
// matching glob pattern in file order. The returned map is shared and must not
// be modified.
func (a *Artifact) LookupKey(key string) (map[string]string, bool) {
	if values, ok := a.entries[key]; ok {
		return values, true
	}
	for _, p := range a.patterns {
		if ok, _ := doublestar.Match(p.glob, key); ok {
			return p.values, true
		}
	}
	return nil, false
}

// Size returns the number of networks, entries and patterns.
func (a *Artifact) Size() int {
	return len(a.networks) + len(a.entries) + len(a.patterns)
}
