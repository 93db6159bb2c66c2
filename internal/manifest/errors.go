package manifest

import (
	"fmt"
	"strings"
)

// A single malformed manifest entry.
type Problem struct {
	Line   int    // Line in the manifest file. Zero when unknown.
	Entry  string // The offending entry text.
	Reason string // Why the entry was rejected.
}

// Reported when a manifest fails validation.
//
// Every offending entry is listed, not just the first, so a single failed
// parse is enough to fix the whole file.
type Error struct {
	Problems []Problem
}

func (e *Error) Error() string {
	if len(e.Problems) == 1 {
		return "invalid manifest: " + e.Problems[0].describe()
	}

	var b strings.Builder
	fmt.Fprintf(&b, "invalid manifest (%d problems):", len(e.Problems))
	for _, p := range e.Problems {
		b.WriteString("\n  ")
		b.WriteString(p.describe())
	}
	return b.String()
}

func (p Problem) describe() string {
	var b strings.Builder
	if p.Line > 0 {
		fmt.Fprintf(&b, "line %d: ", p.Line)
	}
	b.WriteString(p.Reason)
	if p.Entry != "" {
		fmt.Fprintf(&b, " (%q)", p.Entry)
	}
	return b.String()
}
