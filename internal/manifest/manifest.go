package manifest

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Version constraint operators accepted in package entries, longest first so
// that ">=" is not split as ">" followed by "=".
var constraintOps = []string{"==", ">=", "<=", "!=", "~=", ">", "<"}

// Matches a valid package or system library name.
var nameRe = regexp.MustCompile(`^[a-z0-9][a-z0-9._+-]*$`)

// A single language-level dependency declaration.
type Package struct {
	Name       string // Package name, lower-cased.
	Constraint string // Version constraint operator ("==", ">=", ...). Empty when unpinned.
	Version    string // Version the constraint applies to. Empty when unpinned.
	Index      string // Optional package index URL the package is resolved against.
}

// A declarative, versioned list of required packages.
//
// System entries are native libraries installed by the platform package
// manager. Packages are language-level dependencies installed into the
// environment root. A manifest is immutable once fingerprinted.
type Manifest struct {
	System   []string  // Native system packages, install-phase one.
	Packages []Package // Language packages, install-phase two.
}

// Reads and parses a manifest file.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	return Parse(data)
}

// Parses manifest content.
//
// All malformed entries are collected and reported together in a single
// [*Error], so the caller can fix every problem in one pass instead of
// rebuilding after each correction.
func Parse(data []byte) (*Manifest, error) {
	var doc struct {
		System   []yaml.Node `yaml:"system"`
		Packages []yaml.Node `yaml:"packages"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &Error{Problems: []Problem{{Reason: err.Error()}}}
	}

	m := &Manifest{}
	var problems []Problem

	for _, node := range doc.System {
		name, err := parseSystemEntry(node.Value)
		if err != nil {
			problems = append(problems, Problem{Line: node.Line, Entry: node.Value, Reason: err.Error()})
			continue
		}
		m.System = append(m.System, name)
	}

	for _, node := range doc.Packages {
		pkg, err := parsePackageEntry(node.Value)
		if err != nil {
			problems = append(problems, Problem{Line: node.Line, Entry: node.Value, Reason: err.Error()})
			continue
		}
		m.Packages = append(m.Packages, pkg)
	}

	if len(problems) > 0 {
		return nil, &Error{Problems: problems}
	}
	if len(m.Packages) == 0 && len(m.System) == 0 {
		return nil, &Error{Problems: []Problem{{Reason: "manifest declares no dependencies"}}}
	}

	return m, nil
}

// Parses a system package entry: a bare library name.
func parseSystemEntry(s string) (string, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	if name == "" {
		return "", fmt.Errorf("empty entry")
	}
	if !nameRe.MatchString(name) {
		return "", fmt.Errorf("invalid system package name %q", name)
	}
	return name, nil
}

// Parses a package entry of the form "name", "name==version", or
// "name==version @index".
func parsePackageEntry(s string) (Package, error) {
	entry := strings.TrimSpace(s)
	if entry == "" {
		return Package{}, fmt.Errorf("empty entry")
	}

	var index string
	if i := strings.Index(entry, "@"); i >= 0 {
		index = strings.TrimSpace(entry[i+1:])
		entry = strings.TrimSpace(entry[:i])
		if index == "" {
			return Package{}, fmt.Errorf("empty index after @")
		}
	}

	name, constraint, version := splitConstraint(entry)
	name = strings.ToLower(strings.TrimSpace(name))
	if !nameRe.MatchString(name) {
		return Package{}, fmt.Errorf("invalid package name %q", name)
	}
	if constraint != "" && version == "" {
		return Package{}, fmt.Errorf("constraint %q has no version", constraint)
	}

	return Package{Name: name, Constraint: constraint, Version: version, Index: index}, nil
}

// Splits "name<op>version" into its parts. Returns empty op and version when
// the entry is a bare name.
func splitConstraint(entry string) (name, op, version string) {
	for _, candidate := range constraintOps {
		if i := strings.Index(entry, candidate); i > 0 {
			return entry[:i], candidate, strings.TrimSpace(entry[i+len(candidate):])
		}
	}
	return entry, "", ""
}

// Formats the package as a canonical requirement string.
func (p Package) String() string {
	s := p.Name + p.Constraint + p.Version
	if p.Index != "" {
		s += " @" + p.Index
	}
	return s
}
