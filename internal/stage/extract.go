package stage

import (
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/stratabuild/strata/internal/paths"
)

// Copies declared stage outputs into an artifact area.
//
// Extraction selects exactly the declared output paths. Build tooling,
// download caches, and anything else present in a stage's working tree is
// never copied forward.
type Extractor struct {
	Dest string // Root of the artifact area.
}

// Extracts a named output of a completed stage.
//
// The declared path is copied to <Dest>/<stage>/<name>. A missing declared
// path is an [*ArtifactNotFoundError]: a defect in the build logic, fatal
// and never retried.
func (e *Extractor) Extract(s *Stage, name string) (*Artifact, error) {
	rel, ok := s.Outputs[name]
	if !ok {
		return nil, &ArtifactNotFoundError{Stage: s.Name, Artifact: name}
	}

	src := filepath.Join(s.Workdir, rel)
	info, err := os.Stat(src)
	if err != nil {
		return nil, &ArtifactNotFoundError{Stage: s.Name, Artifact: name, Path: src}
	}

	dest := filepath.Join(e.Dest, s.Name, name)
	if err := os.MkdirAll(filepath.Dir(dest), paths.DefaultDirMode); err != nil {
		return nil, fmt.Errorf("extract %s: %w", name, err)
	}

	if info.IsDir() {
		err = copyTree(src, dest)
	} else {
		err = copyFile(src, dest, info.Mode())
	}
	if err != nil {
		return nil, fmt.Errorf("extract %s from stage %s: %w", name, s.Name, err)
	}

	slog.Debug("artifact extracted", "stage", s.Name, "artifact", name, "dir", info.IsDir())

	return &Artifact{
		Name:  name,
		Stage: s.Name,
		Path:  dest,
		Dir:   info.IsDir(),
	}, nil
}

// Copies a directory tree, preserving file modes.
func copyTree(src, dest string) error {
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dest, rel)

		info, err := d.Info()
		if err != nil {
			return err
		}

		switch {
		case d.IsDir():
			return os.MkdirAll(target, info.Mode().Perm())
		case info.Mode()&fs.ModeSymlink != 0:
			link, err := os.Readlink(path)
			if err != nil {
				return err
			}
			return os.Symlink(link, target)
		case info.Mode().IsRegular():
			return copyFile(path, target, info.Mode())
		default:
			// Sockets, devices and the like have no business in an
			// artifact.
			return nil
		}
	})
}

// Copies a single regular file.
func copyFile(src, dest string, mode fs.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dest, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, mode.Perm())
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
