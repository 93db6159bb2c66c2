package pipeline

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/stratabuild/strata/internal/assemble"
	"github.com/stratabuild/strata/internal/cache"
	"github.com/stratabuild/strata/internal/envroot"
	"github.com/stratabuild/strata/internal/manifest"
	"github.com/stratabuild/strata/internal/stage"
)

// Artifact names produced by the two build stages.
const (
	artifactRuntimeEnv = "runtime-env"
	artifactAppSrc     = "app-src"
)

// Destination paths for the placed artifacts.
const (
	destRuntimeEnv = "/opt/venv"
	destAppSrc     = "/app"
)

// Controls a single pipeline run.
type Options struct {
	ManifestPath string            // Path to the dependency manifest.
	AppDir       string            // Application source tree. Empty skips the app-src artifact.
	Base         string            // Optional base OCI archive for the runtime image.
	Output       string            // Directory for the assembled image.
	Reference    string            // Image name:tag.
	Port         int               // Exposed port. Zero means the default.
	Entrypoint   []string          // Entrypoint command.
	Env          map[string]string // Extra environment variables.
	Platform     string            // Target platform (e.g. "linux/amd64").
}

// Reported after a pipeline run.
type Result struct {
	Image       *assemble.Image      // The assembled image. Nil when the run failed.
	Fingerprint manifest.Fingerprint // Fingerprint of the resolved manifest.
	CacheHit    bool                 // Whether the environment came from the cache.
	State       State                // Final state.
	History     []State              // States traversed, in order.
}

// Orchestrates the build pipeline: manifest resolution, cache-checked
// environment building, artifact extraction, and final assembly.
//
// The cache is passed in explicitly, with no ambient global state, so
// tests substitute an in-memory store and the daemon shares one store
// across builds.
type Pipeline struct {
	Store   cache.Store
	Builder *envroot.Builder

	coordOnce sync.Once
	coord     *cache.Coordinator
}

// Returns the coordinator fronting the store and builder.
func (p *Pipeline) coordinator() *cache.Coordinator {
	p.coordOnce.Do(func() {
		p.coord = &cache.Coordinator{Store: p.Store, Builder: p.Builder}
	})
	return p.coord
}

// Executes the pipeline end to end.
//
// Any stage failure aborts the remaining stages and surfaces as a
// [*StageError] naming the failed stage; the partial result carries the
// state history. A failed assembly is discarded, never repaired. The
// returned Result is non-nil even on failure.
func (p *Pipeline) Run(ctx context.Context, opts Options) (*Result, error) {
	m := newMachine()
	result := &Result{State: m.state}

	fail := func(err error) (*Result, error) {
		stageErr := &StageError{Stage: transitions[m.state], Cause: err}
		m.fail()
		result.State = m.state
		result.History = m.history
		slog.Error("pipeline failed", "stage", stageErr.Stage, "error", err)
		return result, stageErr
	}

	// Resolve the manifest.
	mf, err := manifest.Load(opts.ManifestPath)
	if err != nil {
		return fail(err)
	}
	if err := m.advance(StateManifestResolved); err != nil {
		return fail(err)
	}
	result.Fingerprint = mf.Fingerprint()

	slog.Info("manifest resolved",
		"fingerprint", result.Fingerprint.Encoded()[:12],
		"system", len(mf.System),
		"packages", len(mf.Packages),
	)

	// Environment: cache first, builder on a miss. A hit reaches
	// EnvironmentReady without any install work.
	root, hit, err := p.coordinator().Environment(ctx, mf)
	if err != nil {
		return fail(err)
	}
	if err := m.advance(StateEnvironmentReady); err != nil {
		return fail(err)
	}
	result.CacheHit = hit

	slog.Info("environment ready", "cache", cacheLabel(hit), "path", root.Path)

	// Extract declared artifacts into a private artifact area. The area
	// lives only for this build; the assembled archive is what survives.
	artifactArea, err := os.MkdirTemp("", "strata-artifacts-*")
	if err != nil {
		return fail(err)
	}
	defer os.RemoveAll(artifactArea)

	artifacts, err := p.extract(ctx, root, opts.AppDir, artifactArea)
	if err != nil {
		return fail(err)
	}
	if err := m.advance(StateArtifactsExtracted); err != nil {
		return fail(err)
	}

	// Assemble the final image.
	img, err := assemble.Assemble(ctx, &assemble.ImageSpec{
		Base:       opts.Base,
		Placements: placements(artifacts),
		Env:        opts.Env,
		Port:       opts.Port,
		Entrypoint: opts.Entrypoint,
		Platform:   opts.Platform,
		Reference:  opts.Reference,
	}, opts.Output)
	if err != nil {
		return fail(err)
	}
	if err := m.advance(StateAssembled); err != nil {
		return fail(err)
	}

	if err := m.advance(StateDone); err != nil {
		return fail(err)
	}

	result.Image = img
	result.State = m.state
	result.History = m.history
	return result, nil
}

// Extracts the runtime environment and, when an app dir is given, the
// application source tree. The two extractions have no data dependency on
// each other and run concurrently.
func (p *Pipeline) extract(ctx context.Context, root *envroot.Root, appDir, area string) ([]*stage.Artifact, error) {
	extractor := &stage.Extractor{Dest: area}

	// Stage records expose only declared outputs; the cache entry and the
	// project tree are never reached into directly by later stages.
	deps := &stage.Stage{
		Name:    "deps",
		Workdir: filepath.Dir(root.Path),
	}
	deps.Declare(artifactRuntimeEnv, filepath.Base(root.Path))

	stages := []struct {
		stage    *stage.Stage
		artifact string
	}{
		{deps, artifactRuntimeEnv},
	}

	if appDir != "" {
		app := &stage.Stage{
			Name:    "app",
			Workdir: filepath.Dir(appDir),
			Inputs:  []string{"deps"},
		}
		app.Declare(artifactAppSrc, filepath.Base(appDir))
		stages = append(stages, struct {
			stage    *stage.Stage
			artifact string
		}{app, artifactAppSrc})
	}

	artifacts := make([]*stage.Artifact, len(stages))

	g, ctx := errgroup.WithContext(ctx)
	for i, s := range stages {
		i, s := i, s
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			a, err := extractor.Extract(s.stage, s.artifact)
			if err != nil {
				return err
			}
			artifacts[i] = a
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return artifacts, nil
}

// Maps extracted artifacts to their image destinations.
func placements(artifacts []*stage.Artifact) []assemble.Placement {
	out := make([]assemble.Placement, 0, len(artifacts))
	for _, a := range artifacts {
		switch a.Name {
		case artifactRuntimeEnv:
			out = append(out, assemble.Placement{Artifact: a, Dest: destRuntimeEnv})
		case artifactAppSrc:
			out = append(out, assemble.Placement{Artifact: a, Dest: destAppSrc})
		default:
			out = append(out, assemble.Placement{Artifact: a, Dest: "/" + a.Name})
		}
	}
	return out
}

func cacheLabel(hit bool) string {
	if hit {
		return "hit"
	}
	return "miss"
}
