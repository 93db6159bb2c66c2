// Package cache stores built environment roots, keyed by manifest
// fingerprint.
//
// The cache is the pipeline's primary performance lever: an unchanged
// dependency set is never rebuilt. Keys are content-addressed fingerprints
// only, so builds of the same manifest from different machines converge on
// the same logical entry.
//
// [Dir] is the directory-backed store: each entry holds one complete
// environment root plus a fingerprint sidecar record validated before
// reuse. Builds are staged privately and made visible to Lookup with a
// single atomic rename, so a crashed builder cannot contaminate the cache.
// [Memory] is the in-memory test double. [Coordinator] fronts a store with
// a builder and deduplicates concurrent builds of the same fingerprint.
//
// Eviction is an external policy; [Store.Entries] exposes what a policy
// needs to walk the cache.
package cache
