package cli

import (
	"errors"

	"github.com/stratabuild/strata/internal/assemble"
	"github.com/stratabuild/strata/internal/envroot"
	"github.com/stratabuild/strata/internal/manifest"
	"github.com/stratabuild/strata/internal/stage"
)

// Process exit codes by failure class, so scripts driving the CLI can
// distinguish a bad manifest from a flaky install without parsing output.
const (
	ExitOK       = 0
	ExitFailure  = 1
	ExitManifest = 2
	ExitInstall  = 3
	ExitArtifact = 4
	ExitAssembly = 5
)

// Maps an error to its process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}

	var (
		manifestErr *manifest.Error
		installErr  *envroot.InstallError
		artifactErr *stage.ArtifactNotFoundError
		assemblyErr *assemble.AssemblyError
	)

	switch {
	case errors.As(err, &manifestErr):
		return ExitManifest
	case errors.As(err, &installErr):
		return ExitInstall
	case errors.As(err, &artifactErr):
		return ExitArtifact
	case errors.As(err, &assemblyErr):
		return ExitAssembly
	}

	return ExitFailure
}
