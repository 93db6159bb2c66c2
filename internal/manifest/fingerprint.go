package manifest

import (
	"slices"
	"strings"

	"github.com/opencontainers/go-digest"
)

// A content-addressed identity for a manifest, used as the environment
// cache key.
type Fingerprint = digest.Digest

// Computes the manifest's fingerprint.
//
// The fingerprint is a digest over the canonical form of the manifest, so
// two manifests with the same logical content always produce the same value
// regardless of how they were authored (entry order, whitespace, comments,
// name casing). Identical fingerprints on different machines converge on
// the same cache entry.
func (m *Manifest) Fingerprint() Fingerprint {
	return digest.SHA256.FromString(m.canonical())
}

// Returns the canonical text form used for fingerprinting.
//
// System entries and package requirement strings are deduplicated and
// sorted, one per line, under fixed section headers.
func (m *Manifest) canonical() string {
	system := dedupeSorted(m.System)

	packages := make([]string, 0, len(m.Packages))
	for _, p := range m.Packages {
		packages = append(packages, p.String())
	}
	packages = dedupeSorted(packages)

	var b strings.Builder
	b.WriteString("system:\n")
	for _, s := range system {
		b.WriteString(s)
		b.WriteByte('\n')
	}
	b.WriteString("packages:\n")
	for _, p := range packages {
		b.WriteString(p)
		b.WriteByte('\n')
	}
	return b.String()
}

// Returns a sorted copy of entries with duplicates removed.
func dedupeSorted(entries []string) []string {
	out := slices.Clone(entries)
	slices.Sort(out)
	return slices.Compact(out)
}
