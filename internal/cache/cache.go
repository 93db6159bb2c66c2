package cache

import (
	"context"
	"errors"

	"github.com/stratabuild/strata/internal/envroot"
	"github.com/stratabuild/strata/internal/manifest"
)

var (
	ErrCache     = errors.New("cache error")
	ErrCorrupt   = errors.New("corrupt cache entry")
	ErrPublished = errors.New("fingerprint already published")
)

// A content-addressed store of environment roots keyed by manifest
// fingerprint.
//
// The key is the fingerprint only, never a timestamp or build counter, so
// builds of the same manifest from different machines converge on the
// same logical entry. An entry visible to Lookup is always complete:
// implementations must stage builds privately and make them visible in a
// single publish step.
type Store interface {

	// Returns the cached root for a fingerprint. The second result is
	// false on a miss.
	Lookup(ctx context.Context, fp manifest.Fingerprint) (*envroot.Root, bool, error)

	// Allocates a private staging directory for building the root for a
	// fingerprint. Nothing under the staging directory is observable via
	// Lookup until Publish succeeds.
	Stage(fp manifest.Fingerprint) (string, error)

	// Atomically makes a fully built root visible to Lookup. The root's
	// Path must be a directory obtained from Stage. Returns the relocated
	// root. When another build published the same fingerprint first, the
	// existing entry is adopted and the staged copy discarded.
	Publish(ctx context.Context, root *envroot.Root) (*envroot.Root, error)

	// Removes a staging directory from a failed or abandoned build.
	Discard(stagingDir string)

	// Lists all published roots, for inspection and external eviction
	// policies.
	Entries(ctx context.Context) ([]*envroot.Root, error)
}
