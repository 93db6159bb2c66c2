package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dustin/go-humanize"

	"github.com/stratabuild/strata/internal/cache"
	"github.com/stratabuild/strata/internal/envroot"
	"github.com/stratabuild/strata/internal/paths"
	"github.com/stratabuild/strata/internal/pipeline"
)

// Represents the 'strata build' command.
type BuildCmd struct {
	Manifest   string            `arg:"" default:"strata.yaml" help:"Path to the dependency manifest."`
	App        string            `help:"Application source directory to include." placeholder:"DIR"`
	Base       string            `help:"Base image OCI archive to layer on top of." placeholder:"TAR"`
	Output     string            `short:"o" default:"dist" help:"Output directory for the image archive."`
	Tag        string            `short:"t" default:"app:latest" help:"Image reference (name:tag)."`
	Port       int               `help:"Port exposed by the image. Zero means the default of 8000."`
	Entrypoint []string          `help:"Entrypoint command for the image." placeholder:"CMD"`
	Env        map[string]string `help:"Extra environment variables (KEY=VALUE)."`
	Platform   string            `help:"Target platform (e.g. linux/amd64)."`
	Python     string            `help:"Python interpreter used for package installs." default:"python3"`
	SystemCmd  []string          `help:"System package manager invocation." default:"apt-get,install,-y"`
}

// Executes the build command.
//
// Runs the full pipeline in-process: manifest resolution, cache-checked
// environment build, artifact extraction, and image assembly.
func (c *BuildCmd) Run(ctx context.Context) error {
	cacheDir := RootCmd.CacheDir
	if cacheDir == "" {
		cacheDir = paths.Cache()
	}

	store, err := cache.NewDir(cacheDir)
	if err != nil {
		return err
	}

	p := &pipeline.Pipeline{
		Store: store,
		Builder: &envroot.Builder{
			System:   &envroot.ExecSystemInstaller{Command: c.SystemCmd},
			Packages: &envroot.PipInstaller{Python: c.Python},
		},
	}

	result, err := p.Run(ctx, pipeline.Options{
		ManifestPath: c.Manifest,
		AppDir:       c.App,
		Base:         c.Base,
		Output:       c.Output,
		Reference:    c.Tag,
		Port:         c.Port,
		Entrypoint:   c.Entrypoint,
		Env:          c.Env,
		Platform:     c.Platform,
	})
	if err != nil {
		return err
	}

	slog.Info("build complete",
		"image", result.Image.Path,
		"size", humanize.IBytes(uint64(result.Image.Size)),
		"cache", cacheWord(result.CacheHit),
	)

	fmt.Println(result.Image.Path)
	return nil
}

func cacheWord(hit bool) string {
	if hit {
		return "hit"
	}
	return "miss"
}
