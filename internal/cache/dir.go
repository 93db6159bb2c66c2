package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"github.com/stratabuild/strata/internal/envroot"
	"github.com/stratabuild/strata/internal/manifest"
	"github.com/stratabuild/strata/internal/paths"
)

const (

	// Sidecar record written next to each published root. Lookup refuses
	// entries without a valid sidecar, which is what makes publication
	// atomic: the sidecar is written in the staging area and becomes
	// visible only through the final rename.
	sidecarFilename = "entry.json"

	// Directory inside each entry holding the environment root subtree.
	rootDirname = "root"
)

// A directory-backed [Store].
//
// Layout: <base>/envroots/<algorithm>/<hex>/ holds one complete entry
// (root/ plus entry.json); <base>/staging/<id>/ holds in-progress builds.
// Entries are published by renaming the staging directory into place, so a
// crashed or cancelled build never leaves a partial entry where Lookup can
// see it. A file lock serializes publication across processes.
type Dir struct {
	base string
}

// Opens a directory-backed store rooted at base.
func NewDir(base string) (*Dir, error) {
	for _, dir := range []string{filepath.Join(base, "envroots"), filepath.Join(base, "staging")} {
		if err := os.MkdirAll(dir, paths.DefaultDirMode); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrCache, err)
		}
	}
	return &Dir{base: base}, nil
}

// Returns the entry directory for a fingerprint.
func (d *Dir) entryDir(fp manifest.Fingerprint) string {
	return filepath.Join(d.base, "envroots", string(fp.Algorithm()), fp.Encoded())
}

func (d *Dir) Lookup(ctx context.Context, fp manifest.Fingerprint) (*envroot.Root, bool, error) {
	root, err := readEntry(d.entryDir(fp))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if errors.Is(err, ErrCorrupt) {
		// A damaged entry is treated as a miss so the root is rebuilt;
		// it is never handed to a consumer.
		slog.Warn("ignoring corrupt cache entry", "fingerprint", fp.Encoded()[:12], "error", err)
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	// Validate the sidecar against the requested key before reuse.
	if root.Fingerprint != fp {
		slog.Warn("ignoring cache entry with mismatched sidecar",
			"want", fp.Encoded()[:12], "got", root.Fingerprint.Encoded()[:12])
		return nil, false, nil
	}

	return root, true, nil
}

func (d *Dir) Stage(fp manifest.Fingerprint) (string, error) {
	staging := filepath.Join(d.base, "staging", uuid.NewString(), rootDirname)
	if err := os.MkdirAll(staging, paths.DefaultDirMode); err != nil {
		return "", fmt.Errorf("%w: %w", ErrCache, err)
	}
	return staging, nil
}

func (d *Dir) Publish(ctx context.Context, root *envroot.Root) (*envroot.Root, error) {
	entry := d.entryDir(root.Fingerprint)
	staged := filepath.Dir(root.Path) // The staging dir wrapping root/.

	if err := os.MkdirAll(filepath.Dir(entry), paths.DefaultDirMode); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCache, err)
	}

	// Serialize publication of this fingerprint across processes. A
	// concurrent publisher that wins the race provides an equivalent
	// entry; ours is discarded.
	lock := flock.New(entry + ".lock")
	if err := lock.Lock(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCache, err)
	}
	defer lock.Unlock()

	if existing, err := readEntry(entry); err == nil {
		slog.Debug("fingerprint already published, adopting existing entry",
			"fingerprint", root.Fingerprint.Encoded()[:12])
		d.Discard(root.Path)
		return existing, nil
	}

	published := *root
	published.Path = filepath.Join(entry, rootDirname)

	if err := writeSidecar(filepath.Join(staged, sidecarFilename), &published); err != nil {
		return nil, err
	}

	// The single publish step. Before this rename nothing under the entry
	// path exists; after it the entry is complete.
	if err := os.Rename(staged, entry); err != nil {
		return nil, fmt.Errorf("%w: publish %s: %w", ErrCache, root.Fingerprint, err)
	}

	slog.Debug("environment root published", "fingerprint", root.Fingerprint.Encoded()[:12], "path", published.Path)
	return &published, nil
}

func (d *Dir) Discard(stagingDir string) {
	staged := filepath.Dir(stagingDir)
	if filepath.Dir(staged) != filepath.Join(d.base, "staging") {
		slog.Warn("refusing to discard path outside staging area", "path", stagingDir)
		return
	}
	if err := os.RemoveAll(staged); err != nil {
		slog.Warn("failed to discard staging directory", "path", staged, "error", err)
	}
}

func (d *Dir) Entries(ctx context.Context) ([]*envroot.Root, error) {
	var roots []*envroot.Root

	algos, err := os.ReadDir(filepath.Join(d.base, "envroots"))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCache, err)
	}

	for _, algo := range algos {
		if !algo.IsDir() {
			continue
		}
		entries, err := os.ReadDir(filepath.Join(d.base, "envroots", algo.Name()))
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrCache, err)
		}
		for _, e := range entries {
			if !e.IsDir() {
				continue
			}
			root, err := readEntry(filepath.Join(d.base, "envroots", algo.Name(), e.Name()))
			if err != nil {
				slog.Warn("skipping unreadable cache entry", "entry", e.Name(), "error", err)
				continue
			}
			roots = append(roots, root)
		}
	}

	return roots, nil
}

// Reads and validates an entry's sidecar record.
func readEntry(entry string) (*envroot.Root, error) {
	data, err := os.ReadFile(filepath.Join(entry, sidecarFilename))
	if err != nil {
		return nil, err
	}

	var root envroot.Root
	if err := json.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	if err := root.Fingerprint.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}

	if _, err := os.Stat(filepath.Join(entry, rootDirname)); err != nil {
		return nil, fmt.Errorf("%w: entry has no root subtree: %w", ErrCorrupt, err)
	}

	return &root, nil
}

// Writes the sidecar record for a root.
func writeSidecar(path string, root *envroot.Root) error {
	data, err := json.MarshalIndent(root, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCache, err)
	}
	if err := os.WriteFile(path, data, paths.DefaultFileMode); err != nil {
		return fmt.Errorf("%w: %w", ErrCache, err)
	}
	return nil
}
