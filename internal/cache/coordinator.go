package cache

import (
	"context"

	"resenje.org/singleflight"

	"github.com/stratabuild/strata/internal/envroot"
	"github.com/stratabuild/strata/internal/manifest"
)

// Coordinates cache lookups and builds so that at most one build executes
// per fingerprint at a time.
//
// Concurrent callers racing on an identical fingerprint share the in-flight
// build's result instead of duplicating the installation work. A warm cache
// short-circuits the builder entirely.
type Coordinator struct {
	Store   Store
	Builder *envroot.Builder

	group singleflight.Group[manifest.Fingerprint, *envroot.Root]
}

// Returns the environment root for a manifest, building it on a miss.
//
// The second result reports whether the root came from the cache without
// any install work (a hit, or a concurrent caller's completed build). A
// miss stages a private build, then publishes it in a single step; a failed
// or cancelled build is discarded and publishes nothing.
func (c *Coordinator) Environment(ctx context.Context, m *manifest.Manifest) (*envroot.Root, bool, error) {
	fp := m.Fingerprint()

	if root, ok, err := c.Store.Lookup(ctx, fp); err != nil {
		return nil, false, err
	} else if ok {
		return root, true, nil
	}

	root, shared, err := c.group.Do(ctx, fp, func(ctx context.Context) (*envroot.Root, error) {
		// Re-check under the flight: a concurrent build may have published
		// between our miss and acquiring the flight.
		if root, ok, err := c.Store.Lookup(ctx, fp); err != nil {
			return nil, err
		} else if ok {
			return root, nil
		}

		staging, err := c.Store.Stage(fp)
		if err != nil {
			return nil, err
		}

		built, err := c.Builder.Build(ctx, m, staging)
		if err != nil {
			c.Store.Discard(staging)
			return nil, err
		}

		return c.Store.Publish(ctx, built)
	})
	if err != nil {
		return nil, false, err
	}

	return root, shared, nil
}
