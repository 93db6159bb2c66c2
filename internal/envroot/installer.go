package envroot

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/stratabuild/strata/internal/manifest"
)

// Installs native system libraries required by the manifest.
type SystemInstaller interface {
	InstallSystem(ctx context.Context, root, name string) error
}

// Installs a language-level package into an environment root, resolving its
// transitive requirements.
type PackageInstaller interface {
	InstallPackage(ctx context.Context, root string, pkg manifest.Package) error
}

// Output fragments that identify a permanent resolution failure. These are
// never retried; the constraint itself is wrong.
var permanentFailures = []string{
	"no matching distribution",
	"could not find a version",
	"unable to locate package",
	"version conflict",
}

// Installs system packages by invoking the platform package manager.
//
// The command is templated, e.g. {"apt-get", "install", "-y"}; the package
// name is appended. The package manager handles its own rootfs, so root is
// unused here; isolation of the language layer is what keeps the product
// separate from the build host's own dependencies.
type ExecSystemInstaller struct {
	Command []string
}

func (i *ExecSystemInstaller) InstallSystem(ctx context.Context, root, name string) error {
	args := append(append([]string{}, i.Command...), name)
	return runInstall(ctx, args)
}

// Installs language packages with pip into an isolated prefix.
//
// Packages land under <root> via --prefix, so the build tool's own
// environment never mixes with the product's. The pip download cache is
// disabled; cached wheels belong to the build host, not the artifact.
type PipInstaller struct {
	Python string // Python interpreter to run pip with. Empty means "python3".
}

func (i *PipInstaller) InstallPackage(ctx context.Context, root string, pkg manifest.Package) error {
	python := i.Python
	if python == "" {
		python = "python3"
	}

	args := []string{python, "-m", "pip", "install",
		"--prefix", root,
		"--no-cache-dir",
		pkg.Name + pkg.Constraint + pkg.Version,
	}
	if pkg.Index != "" {
		args = append(args, "--index-url", pkg.Index)
	}

	return runInstall(ctx, args)
}

// Runs an install command, classifying failures as transient or permanent.
//
// Resolution failures (unknown package, unsatisfiable constraint) are
// permanent. Every other non-zero exit is treated as transient: on a
// machine with working tooling, the remaining failure class is the network.
func runInstall(ctx context.Context, args []string) error {
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	out := strings.ToLower(stderr.String())
	for _, marker := range permanentFailures {
		if strings.Contains(out, marker) {
			return fmt.Errorf("%s: %s", args[0], firstLine(stderr.String()))
		}
	}

	return fmt.Errorf("%w: %s: %v: %s", ErrTransient, args[0], err, firstLine(stderr.String()))
}

// Returns the first non-empty line of s, trimmed.
func firstLine(s string) string {
	for _, line := range strings.Split(s, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
