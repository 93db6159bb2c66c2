package envroot

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/dustin/go-humanize"

	"github.com/stratabuild/strata/internal/manifest"
)

const (

	// Bounded attempt count for transient install failures. The third
	// attempt is the last.
	defaultMaxAttempts = 3

	// Starting interval for exponential backoff between attempts.
	defaultBackoffInterval = 500 * time.Millisecond
)

// Builds isolated environment roots from dependency manifests.
//
// A build runs two strictly ordered phases: every system-level native
// library is installed before any language-level package, because a
// package's install step may compile against headers the system phase
// provides. The phases are never interleaved.
type Builder struct {
	System   SystemInstaller  // Installs native system libraries.
	Packages PackageInstaller // Installs language packages into the root.

	// MaxAttempts bounds retries for transient failures. Zero means the
	// default of 3.
	MaxAttempts int

	// BackoffInterval is the starting exponential backoff interval between
	// attempts. Zero means the default of 500ms.
	BackoffInterval time.Duration
}

// Builds an environment root for the manifest into dir.
//
// dir is a private staging location owned by the caller (typically the
// cache); nothing outside dir is modified. Cancelling ctx stops in-flight
// installation work. On failure the returned error is an [*InstallError]
// naming the package that could not be installed.
func (b *Builder) Build(ctx context.Context, m *manifest.Manifest, dir string) (*Root, error) {
	fp := m.Fingerprint()
	start := time.Now()

	slog.Info("building environment root",
		"fingerprint", fp.Encoded()[:12],
		"system", len(m.System),
		"packages", len(m.Packages),
	)

	// Phase one: system-level native libraries.
	for _, name := range m.System {
		if err := b.install(ctx, name, func(ctx context.Context) error {
			return b.System.InstallSystem(ctx, dir, name)
		}); err != nil {
			return nil, err
		}
	}

	// Phase two: language-level packages. Starts only after phase one has
	// fully completed.
	for _, pkg := range m.Packages {
		if err := b.install(ctx, pkg.Name, func(ctx context.Context) error {
			return b.Packages.InstallPackage(ctx, dir, pkg)
		}); err != nil {
			return nil, err
		}
	}

	size, err := TreeSize(dir)
	if err != nil {
		return nil, err
	}

	slog.Info("environment root built",
		"fingerprint", fp.Encoded()[:12],
		"size", humanize.IBytes(uint64(size)),
		"elapsed", time.Since(start).Truncate(time.Millisecond),
	)

	return &Root{
		Fingerprint: fp,
		Path:        dir,
		Size:        size,
		CreatedAt:   time.Now(),
	}, nil
}

// Runs a single install operation with bounded retry.
//
// Transient failures are retried with exponential backoff up to the attempt
// bound. Non-transient failures (version conflicts, bad constraints) and
// context cancellation fail immediately. The final error names the package.
func (b *Builder) install(ctx context.Context, name string, op func(context.Context) error) error {
	attempts := b.MaxAttempts
	if attempts <= 0 {
		attempts = defaultMaxAttempts
	}
	interval := b.BackoffInterval
	if interval <= 0 {
		interval = defaultBackoffInterval
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = interval

	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		err := op(ctx)
		if err == nil {
			return nil
		}
		if !isTransient(err) {
			return backoff.Permanent(err)
		}
		if attempt >= attempts {
			return backoff.Permanent(err)
		}
		slog.Warn("transient install failure, retrying",
			"package", name,
			"attempt", attempt,
			"error", err,
		)
		return err
	}, backoff.WithContext(policy, ctx))

	if err != nil {
		return &InstallError{Package: name, Cause: err}
	}
	return nil
}
