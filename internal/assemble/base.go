package assemble

import (
	"archive/tar"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/opencontainers/go-digest"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
)

// Layers and diff IDs carried over from a base image.
type baseImage struct {
	layers  []ocispec.Descriptor
	diffIDs []digest.Digest
}

// Reads a base OCI archive and extracts its layers.
//
// Blob files are unpacked into the work directory under their digests so
// the archive writer can stream them alongside freshly built layers. The
// base provides the minimal runtime platform; its layer set is taken as-is
// and new layers stack on top.
func loadBase(basePath, work string) (*baseImage, error) {
	f, err := os.Open(basePath)
	if err != nil {
		return nil, assemblyErr(err, "missing base image %s", basePath)
	}
	defer f.Close()

	var indexBytes []byte

	tr := tar.NewReader(f)
	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, assemblyErr(err, "read base image %s", basePath)
		}

		name := path.Clean(header.Name)
		switch {
		case name == ocispec.ImageIndexFile:
			if indexBytes, err = io.ReadAll(tr); err != nil {
				return nil, assemblyErr(err, "read base index")
			}
		case strings.HasPrefix(name, ocispec.ImageBlobsDir+"/"):
			if header.Typeflag != tar.TypeReg {
				continue
			}
			// Blobs are filed flat under their digest-encoded names; the
			// base name of blobs/<algo>/<hex> is the hex.
			if err := extractBlob(tr, filepath.Join(work, path.Base(name))); err != nil {
				return nil, assemblyErr(err, "extract base blob %s", name)
			}
		}
	}

	if indexBytes == nil {
		return nil, &AssemblyError{Reason: fmt.Sprintf("base image %s has no index", basePath)}
	}

	var index ocispec.Index
	if err := json.Unmarshal(indexBytes, &index); err != nil {
		return nil, assemblyErr(err, "parse base index")
	}
	if len(index.Manifests) == 0 {
		return nil, &AssemblyError{Reason: fmt.Sprintf("base image %s has an empty index", basePath)}
	}

	manifest, err := readBaseBlob[ocispec.Manifest](work, index.Manifests[0].Digest)
	if err != nil {
		return nil, err
	}
	config, err := readBaseBlob[ocispec.Image](work, manifest.Config.Digest)
	if err != nil {
		return nil, err
	}

	if len(manifest.Layers) != len(config.RootFS.DiffIDs) {
		return nil, &AssemblyError{Reason: fmt.Sprintf("base image %s: %d layers but %d diff IDs", basePath, len(manifest.Layers), len(config.RootFS.DiffIDs))}
	}

	return &baseImage{
		layers:  manifest.Layers,
		diffIDs: config.RootFS.DiffIDs,
	}, nil
}

// Writes one blob from the archive stream to disk.
func extractBlob(r io.Reader, dest string) error {
	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// Reads and parses a JSON blob previously extracted into the work
// directory.
func readBaseBlob[T any](work string, dgst digest.Digest) (T, error) {
	var v T

	data, err := os.ReadFile(filepath.Join(work, dgst.Encoded()))
	if err != nil {
		return v, assemblyErr(err, "base blob %s", dgst)
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return v, assemblyErr(err, "parse base blob %s", dgst)
	}
	return v, nil
}
