package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stratabuild/strata/internal/envroot"
	"github.com/stratabuild/strata/internal/manifest"
)

// Counts installs and optionally blocks until released, to hold a build
// in flight while other callers pile up.
type countingInstaller struct {
	installs atomic.Int64
	gate     chan struct{} // When non-nil, installs block until closed.
	fail     error
}

func (c *countingInstaller) InstallSystem(ctx context.Context, _, _ string) error {
	return c.install(ctx)
}

func (c *countingInstaller) InstallPackage(ctx context.Context, _ string, _ manifest.Package) error {
	return c.install(ctx)
}

func (c *countingInstaller) install(ctx context.Context) error {
	c.installs.Add(1)
	if c.gate != nil {
		select {
		case <-c.gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return c.fail
}

func testCoordinator(t *testing.T, inst *countingInstaller) *Coordinator {
	t.Helper()
	return &Coordinator{
		Store: NewMemory(t.TempDir()),
		Builder: &envroot.Builder{
			System:          inst,
			Packages:        inst,
			BackoffInterval: time.Millisecond,
		},
	}
}

func TestEnvironmentWarmCacheSkipsInstall(t *testing.T) {
	inst := &countingInstaller{}
	coord := testCoordinator(t, inst)

	m, err := manifest.Parse([]byte("packages:\n  - flask==3.0\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	ctx := context.Background()

	first, hit, err := coord.Environment(ctx, m)
	if err != nil {
		t.Fatalf("first build: %v", err)
	}
	if hit {
		t.Fatal("first build reported a cache hit")
	}

	installed := inst.installs.Load()
	if installed == 0 {
		t.Fatal("first build performed no installs")
	}

	second, hit, err := coord.Environment(ctx, m)
	if err != nil {
		t.Fatalf("second build: %v", err)
	}
	if !hit {
		t.Fatal("second build missed a warm cache")
	}
	if inst.installs.Load() != installed {
		t.Fatalf("warm-cache build performed %d extra installs, want 0", inst.installs.Load()-installed)
	}
	if second.Fingerprint != first.Fingerprint {
		t.Fatalf("fingerprints differ: %s vs %s", second.Fingerprint, first.Fingerprint)
	}
}

func TestEnvironmentDeduplicatesConcurrentBuilds(t *testing.T) {
	inst := &countingInstaller{gate: make(chan struct{})}
	coord := testCoordinator(t, inst)

	m, err := manifest.Parse([]byte("packages:\n  - flask==3.0\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	const callers = 8
	var wg sync.WaitGroup
	errs := make([]error, callers)
	roots := make([]*envroot.Root, callers)

	for i := 0; i < callers; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			roots[i], _, errs[i] = coord.Environment(context.Background(), m)
		}()
	}

	// Let the callers race into the flight, then release the build.
	time.Sleep(50 * time.Millisecond)
	close(inst.gate)
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("caller %d: %v", i, err)
		}
	}

	// One manifest entry: exactly one install executed across all callers.
	if got := inst.installs.Load(); got != 1 {
		t.Fatalf("installs = %d, want 1 (concurrent identical builds must not duplicate work)", got)
	}

	for i := 1; i < callers; i++ {
		if roots[i].Fingerprint != roots[0].Fingerprint {
			t.Fatalf("caller %d got fingerprint %s, want %s", i, roots[i].Fingerprint, roots[0].Fingerprint)
		}
	}
}

func TestEnvironmentFailedBuildPublishesNothing(t *testing.T) {
	inst := &countingInstaller{fail: errors.New("no matching distribution")}
	coord := testCoordinator(t, inst)

	m, err := manifest.Parse([]byte("packages:\n  - flask==99.0\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	ctx := context.Background()

	if _, _, err := coord.Environment(ctx, m); err == nil {
		t.Fatal("expected build failure")
	}

	var ierr *envroot.InstallError
	_, _, err = coord.Environment(ctx, m)
	if !errors.As(err, &ierr) {
		t.Fatalf("error type = %T, want *envroot.InstallError", err)
	}

	if _, ok, _ := coord.Store.Lookup(ctx, m.Fingerprint()); ok {
		t.Fatal("failed build left an entry in the cache")
	}
}
