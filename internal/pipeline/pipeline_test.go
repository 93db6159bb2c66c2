package pipeline

import (
	"archive/tar"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"sync/atomic"
	"testing"
	"time"

	ocispec "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/stratabuild/strata/internal/cache"
	"github.com/stratabuild/strata/internal/envroot"
	"github.com/stratabuild/strata/internal/manifest"
)

// Installs by writing marker files into the root, with scripted failures.
type scriptedInstaller struct {
	installs atomic.Int64
	failures map[string][]error
}

func newScriptedInstaller() *scriptedInstaller {
	return &scriptedInstaller{failures: make(map[string][]error)}
}

func (s *scriptedInstaller) failWith(pkg string, errs ...error) {
	s.failures[pkg] = append(s.failures[pkg], errs...)
}

func (s *scriptedInstaller) next(name string) error {
	s.installs.Add(1)
	if queued := s.failures[name]; len(queued) > 0 {
		err := queued[0]
		s.failures[name] = queued[1:]
		return err
	}
	return nil
}

func (s *scriptedInstaller) InstallSystem(_ context.Context, root, name string) error {
	if err := s.next(name); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(root, "sys-"+name), []byte(name), 0o644)
}

func (s *scriptedInstaller) InstallPackage(_ context.Context, root string, pkg manifest.Package) error {
	if err := s.next(pkg.Name); err != nil {
		return err
	}
	dir := filepath.Join(root, "lib", "site-packages", pkg.Name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "__init__.py"), []byte(pkg.Version), 0o644)
}

func testPipeline(t *testing.T, inst *scriptedInstaller) *Pipeline {
	t.Helper()
	return &Pipeline{
		Store: cache.NewMemory(t.TempDir()),
		Builder: &envroot.Builder{
			System:          inst,
			Packages:        inst,
			BackoffInterval: time.Millisecond,
		},
	}
}

func writeManifest(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "strata.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}
	return path
}

func writeApp(t *testing.T) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "app")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir app: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "main.py"), []byte("app = ..."), 0o644); err != nil {
		t.Fatalf("write app: %v", err)
	}
	return dir
}

func testOptions(t *testing.T, manifestSrc string) Options {
	t.Helper()
	return Options{
		ManifestPath: writeManifest(t, manifestSrc),
		AppDir:       writeApp(t),
		Output:       t.TempDir(),
		Reference:    "search-svc:test",
		Entrypoint:   []string{"uvicorn", "app.main:app"},
	}
}

// Reads the image config out of an assembled OCI archive.
func imageConfig(t *testing.T, archivePath string) ocispec.Image {
	t.Helper()
	f, err := os.Open(archivePath)
	if err != nil {
		t.Fatalf("open image: %v", err)
	}
	defer f.Close()

	blobs := make(map[string][]byte)
	var index ocispec.Index

	tr := tar.NewReader(f)
	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("read image: %v", err)
		}
		data, err := io.ReadAll(tr)
		if err != nil {
			t.Fatalf("read %s: %v", header.Name, err)
		}
		if header.Name == "index.json" {
			if err := json.Unmarshal(data, &index); err != nil {
				t.Fatalf("parse index: %v", err)
			}
			continue
		}
		blobs[filepath.Base(header.Name)] = data
	}

	var m ocispec.Manifest
	if err := json.Unmarshal(blobs[index.Manifests[0].Digest.Encoded()], &m); err != nil {
		t.Fatalf("parse manifest: %v", err)
	}
	var config ocispec.Image
	if err := json.Unmarshal(blobs[m.Config.Digest.Encoded()], &config); err != nil {
		t.Fatalf("parse config: %v", err)
	}
	return config
}

func TestRunColdCache(t *testing.T) {
	inst := newScriptedInstaller()
	p := testPipeline(t, inst)
	opts := testOptions(t, "packages:\n  - flask==3.0\n")

	result, err := p.Run(context.Background(), opts)
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if result.State != StateDone {
		t.Fatalf("state = %s, want %s", result.State, StateDone)
	}
	if result.CacheHit {
		t.Fatal("first build reported a cache hit")
	}

	want := []State{StatePending, StateManifestResolved, StateEnvironmentReady, StateArtifactsExtracted, StateAssembled, StateDone}
	if !slices.Equal(result.History, want) {
		t.Fatalf("history = %v, want %v", result.History, want)
	}

	if result.Image == nil {
		t.Fatal("result has no image")
	}
	if _, err := os.Stat(result.Image.Path); err != nil {
		t.Fatalf("image archive missing: %v", err)
	}

	config := imageConfig(t, result.Image.Path)
	if _, ok := config.Config.ExposedPorts["8000/tcp"]; !ok {
		t.Fatalf("ExposedPorts = %v, want 8000/tcp", config.Config.ExposedPorts)
	}
	if !slices.Equal(config.Config.Entrypoint, []string{"uvicorn", "app.main:app"}) {
		t.Fatalf("Entrypoint = %v", config.Config.Entrypoint)
	}
}

func TestRunWarmCacheSkipsInstalls(t *testing.T) {
	inst := newScriptedInstaller()
	p := testPipeline(t, inst)
	ctx := context.Background()

	first, err := p.Run(ctx, testOptions(t, "packages:\n  - flask==3.0\n"))
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	installed := inst.installs.Load()

	// Same manifest content, different file and formatting noise.
	second, err := p.Run(ctx, testOptions(t, "# deps\npackages:\n  - Flask==3.0\n"))
	if err != nil {
		t.Fatalf("second run: %v", err)
	}

	if !second.CacheHit {
		t.Fatal("second run missed the cache")
	}
	if second.Fingerprint != first.Fingerprint {
		t.Fatalf("fingerprints differ: %s vs %s", second.Fingerprint, first.Fingerprint)
	}
	if got := inst.installs.Load(); got != installed {
		t.Fatalf("second run performed %d installs, want 0", got-installed)
	}
	if second.State != StateDone {
		t.Fatalf("state = %s, want %s", second.State, StateDone)
	}
}

func TestRunUnresolvableVersion(t *testing.T) {
	inst := newScriptedInstaller()
	inst.failWith("flask", errors.New("no matching distribution for flask==99.0"))
	p := testPipeline(t, inst)
	opts := testOptions(t, "packages:\n  - flask==99.0\n")

	result, err := p.Run(context.Background(), opts)
	if err == nil {
		t.Fatal("expected failure")
	}

	var serr *StageError
	if !errors.As(err, &serr) {
		t.Fatalf("error type = %T, want *StageError", err)
	}
	if serr.Stage != StateEnvironmentReady {
		t.Fatalf("failed stage = %s, want %s", serr.Stage, StateEnvironmentReady)
	}

	var ierr *envroot.InstallError
	if !errors.As(err, &ierr) {
		t.Fatalf("cause type = %T, want *envroot.InstallError", serr.Cause)
	}
	if ierr.Package != "flask" {
		t.Fatalf("InstallError.Package = %q, want flask", ierr.Package)
	}

	if result.State != StateFailed {
		t.Fatalf("state = %s, want %s", result.State, StateFailed)
	}
	if result.Image != nil {
		t.Fatal("failed run produced an image")
	}

	// No artifact was extracted, no image assembled.
	if _, err := os.Stat(filepath.Join(opts.Output, "image.tar")); !os.IsNotExist(err) {
		t.Fatalf("image archive exists after failed build: %v", err)
	}
}

func TestRunTransientFailuresRecovered(t *testing.T) {
	inst := newScriptedInstaller()
	// Fails twice, succeeds on the third attempt, inside the retry bound.
	inst.failWith("torch",
		fmt.Errorf("%w: connection reset", envroot.ErrTransient),
		fmt.Errorf("%w: timeout", envroot.ErrTransient),
	)
	p := testPipeline(t, inst)

	result, err := p.Run(context.Background(), testOptions(t, "packages:\n  - torch==2.3.1\n"))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.State != StateDone {
		t.Fatalf("state = %s, want %s", result.State, StateDone)
	}
	if result.CacheHit {
		t.Fatal("recovered build reported a cache hit")
	}
}

func TestRunManifestError(t *testing.T) {
	p := testPipeline(t, newScriptedInstaller())
	opts := testOptions(t, "packages:\n  - broken==\n")

	result, err := p.Run(context.Background(), opts)
	if err == nil {
		t.Fatal("expected failure")
	}

	var serr *StageError
	if !errors.As(err, &serr) {
		t.Fatalf("error type = %T, want *StageError", err)
	}
	if serr.Stage != StateManifestResolved {
		t.Fatalf("failed stage = %s, want %s", serr.Stage, StateManifestResolved)
	}

	var merr *manifest.Error
	if !errors.As(err, &merr) {
		t.Fatalf("cause type = %T, want *manifest.Error", serr.Cause)
	}

	if !slices.Equal(result.History, []State{StatePending, StateFailed}) {
		t.Fatalf("history = %v", result.History)
	}
}

func TestRunWithoutAppDir(t *testing.T) {
	p := testPipeline(t, newScriptedInstaller())
	opts := testOptions(t, "packages:\n  - flask==3.0\n")
	opts.AppDir = ""

	result, err := p.Run(context.Background(), opts)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.State != StateDone {
		t.Fatalf("state = %s, want %s", result.State, StateDone)
	}

	config := imageConfig(t, result.Image.Path)
	if len(config.RootFS.DiffIDs) != 1 {
		t.Fatalf("len(DiffIDs) = %d, want 1 (runtime-env only)", len(config.RootFS.DiffIDs))
	}
}
