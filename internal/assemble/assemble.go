package assemble

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	goruntime "runtime"
	"slices"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/opencontainers/go-digest"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/stratabuild/strata/internal/paths"
	"github.com/stratabuild/strata/internal/stage"
)

const (

	// Filename of the OCI archive produced by Assemble.
	exportFilename = "image.tar"

	// Default inbound port exposed by the assembled image.
	DefaultPort = 8000
)

// Places one extracted artifact at a destination path in the image.
type Placement struct {
	Artifact *stage.Artifact // The artifact to place.
	Dest     string          // Absolute destination path inside the image.
}

// Describes the final image: what to place where, on top of which base,
// with which runtime configuration. Produced once per build and consumed
// here; the packaging backend that eventually runs the image reads the
// resulting archive.
type ImageSpec struct {
	Base       string            // Path to a base OCI archive. Empty builds from scratch.
	Placements []Placement       // Artifacts and their destinations.
	Env        map[string]string // Environment variables for the runtime process.
	Port       int               // Exposed inbound port. Zero means [DefaultPort].
	Entrypoint []string          // Entrypoint command.
	Platform   string            // Target platform (e.g. "linux/amd64"). Empty means the host.
	Reference  string            // Image name:tag recorded in the archive.
}

// A handle to an assembled, deployable image.
type Image struct {
	Path      string        // Path of the OCI archive.
	Digest    digest.Digest // Digest of the image manifest.
	Size      int64         // Archive size in bytes.
	Reference string        // Image name:tag.
}

// Environment defaults applied when the spec does not override them. HOST
// and PORT are read by the wrapped service; the interpreter flags disable
// output buffering and bytecode caching inside the image.
func defaultEnv(port int) map[string]string {
	return map[string]string{
		"HOST":                    "0.0.0.0",
		"PORT":                    fmt.Sprintf("%d", port),
		"PYTHONUNBUFFERED":        "1",
		"PYTHONDONTWRITEBYTECODE": "1",
	}
}

// Composes the final image from extracted artifacts and writes it as an
// OCI archive to output/image.tar.
//
// Each artifact becomes one layer rooted at its destination path, appended
// on top of the base image's layers when a base is given. The image config
// carries the environment, exposed port, and entrypoint. Assembly only
// copies already-built artifacts and performs no network fetches, which
// is what keeps it fast and the result minimal.
func Assemble(ctx context.Context, spec *ImageSpec, output string) (*Image, error) {
	if err := validate(spec); err != nil {
		return nil, err
	}

	port := spec.Port
	if port == 0 {
		port = DefaultPort
	}

	osName, arch := parsePlatform(spec.Platform)

	if err := os.MkdirAll(output, paths.DefaultDirMode); err != nil {
		return nil, assemblyErr(err, "create output directory")
	}

	work, err := os.MkdirTemp("", "strata-assemble-*")
	if err != nil {
		return nil, assemblyErr(err, "create work directory")
	}
	defer os.RemoveAll(work)

	var (
		layers  []ocispec.Descriptor
		diffIDs []digest.Digest
	)

	// Base layers come first; the runtime base carries only the shared
	// libraries needed to execute, never build toolchains.
	if spec.Base != "" {
		base, err := loadBase(spec.Base, work)
		if err != nil {
			return nil, err
		}
		layers = append(layers, base.layers...)
		diffIDs = append(diffIDs, base.diffIDs...)
	}

	for _, p := range spec.Placements {
		if err := ctx.Err(); err != nil {
			return nil, assemblyErr(err, "assembly cancelled")
		}

		desc, diffID, err := buildLayer(p, work)
		if err != nil {
			return nil, err
		}
		layers = append(layers, desc)
		diffIDs = append(diffIDs, diffID)

		slog.Debug("layer built",
			"artifact", p.Artifact.Name,
			"dest", p.Dest,
			"size", humanize.IBytes(uint64(desc.Size)),
		)
	}

	env := defaultEnv(port)
	for k, v := range spec.Env {
		env[k] = v
	}

	config := ocispec.Image{
		Platform: ocispec.Platform{OS: osName, Architecture: arch},
		Created:  timePtr(time.Now().UTC()),
		Config: ocispec.ImageConfig{
			Env:          environ(env),
			Entrypoint:   spec.Entrypoint,
			ExposedPorts: map[string]struct{}{fmt.Sprintf("%d/tcp", port): {}},
			WorkingDir:   workingDir(spec.Placements),
		},
		RootFS: ocispec.RootFS{Type: "layers", DiffIDs: diffIDs},
	}

	archivePath := filepath.Join(output, exportFilename)
	manifestDesc, err := writeArchive(archivePath, work, config, layers, spec.Reference, osName, arch)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(archivePath)
	if err != nil {
		return nil, assemblyErr(err, "stat archive")
	}

	slog.Info("image assembled",
		"path", archivePath,
		"reference", spec.Reference,
		"layers", len(layers),
		"size", humanize.IBytes(uint64(info.Size())),
	)

	return &Image{
		Path:      archivePath,
		Digest:    manifestDesc.Digest,
		Size:      info.Size(),
		Reference: spec.Reference,
	}, nil
}

// Rejects specs with conflicting destinations or nothing to place.
func validate(spec *ImageSpec) error {
	if len(spec.Placements) == 0 {
		return &AssemblyError{Reason: "image spec places no artifacts"}
	}

	seen := make(map[string]string, len(spec.Placements))
	for _, p := range spec.Placements {
		dest := filepath.Clean(p.Dest)
		if !filepath.IsAbs(dest) {
			return &AssemblyError{Reason: fmt.Sprintf("destination %q is not absolute", p.Dest)}
		}
		if prev, ok := seen[dest]; ok {
			return &AssemblyError{Reason: fmt.Sprintf("destination conflict: %q and %q both placed at %s", prev, p.Artifact.Name, dest)}
		}
		seen[dest] = p.Artifact.Name
	}
	return nil
}

// Splits a platform string into OS and architecture, defaulting to the
// host.
func parsePlatform(platform string) (osName, arch string) {
	if platform == "" {
		return "linux", goruntime.GOARCH
	}
	if osPart, archPart, ok := strings.Cut(platform, "/"); ok {
		return osPart, archPart
	}
	return platform, goruntime.GOARCH
}

// Uses the app source destination as the image working directory when one
// is placed, so the entrypoint runs from the application tree.
func workingDir(placements []Placement) string {
	for _, p := range placements {
		if p.Artifact.Name == "app-src" {
			return filepath.Clean(p.Dest)
		}
	}
	return ""
}

// Formats an env map as sorted "key=value" strings.
func environ(env map[string]string) []string {
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	// Sorted for a deterministic config digest.
	slices.Sort(keys)

	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+env[k])
	}
	return out
}

func timePtr(t time.Time) *time.Time {
	return &t
}
