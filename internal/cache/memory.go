package cache

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"github.com/stratabuild/strata/internal/envroot"
	"github.com/stratabuild/strata/internal/manifest"
	"github.com/stratabuild/strata/internal/paths"
)

// An in-memory [Store] for tests.
//
// Staging directories live under a temp root; published entries are held
// in a map. Publication has the same adopt-on-race semantics as [Dir].
type Memory struct {
	mu      sync.Mutex
	tmp     string
	entries map[manifest.Fingerprint]*envroot.Root
}

func NewMemory(tmp string) *Memory {
	return &Memory{
		tmp:     tmp,
		entries: make(map[manifest.Fingerprint]*envroot.Root),
	}
}

func (m *Memory) Lookup(ctx context.Context, fp manifest.Fingerprint) (*envroot.Root, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	root, ok := m.entries[fp]
	return root, ok, nil
}

func (m *Memory) Stage(fp manifest.Fingerprint) (string, error) {
	dir := filepath.Join(m.tmp, uuid.NewString(), "root")
	if err := os.MkdirAll(dir, paths.DefaultDirMode); err != nil {
		return "", err
	}
	return dir, nil
}

func (m *Memory) Publish(ctx context.Context, root *envroot.Root) (*envroot.Root, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.entries[root.Fingerprint]; ok {
		return existing, nil
	}

	published := *root
	m.entries[root.Fingerprint] = &published
	return &published, nil
}

func (m *Memory) Discard(stagingDir string) {
	os.RemoveAll(filepath.Dir(stagingDir))
}

func (m *Memory) Entries(ctx context.Context) ([]*envroot.Root, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	roots := make([]*envroot.Root, 0, len(m.entries))
	for _, root := range m.entries {
		roots = append(roots, root)
	}
	return roots, nil
}
