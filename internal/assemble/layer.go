package assemble

import (
	"archive/tar"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/opencontainers/go-digest"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
)

// Builds a gzip-compressed tar layer containing one placed artifact.
//
// The artifact's content is rooted at the placement destination. The blob
// is written into the work directory under its digest, ready to be copied
// into the archive. Returns the layer descriptor and the uncompressed
// diff ID.
func buildLayer(p Placement, work string) (ocispec.Descriptor, digest.Digest, error) {
	f, err := os.CreateTemp(work, "layer-*")
	if err != nil {
		return ocispec.Descriptor{}, "", assemblyErr(err, "create layer blob")
	}
	defer f.Close()

	compressed := digest.Canonical.Digester()
	gz := gzip.NewWriter(io.MultiWriter(f, compressed.Hash()))

	uncompressed := digest.Canonical.Digester()
	tw := tar.NewWriter(io.MultiWriter(gz, uncompressed.Hash()))

	dest := strings.TrimPrefix(filepath.Clean(p.Dest), "/")

	if err := writeParents(tw, dest); err != nil {
		return ocispec.Descriptor{}, "", assemblyErr(err, "layer for %s", p.Artifact.Name)
	}

	if p.Artifact.Dir {
		err = writeTreeToTar(tw, p.Artifact.Path, dest)
	} else {
		err = writeFileToTar(tw, p.Artifact.Path, dest)
	}
	if err != nil {
		return ocispec.Descriptor{}, "", assemblyErr(err, "layer for %s", p.Artifact.Name)
	}

	if err := tw.Close(); err != nil {
		return ocispec.Descriptor{}, "", assemblyErr(err, "close layer tar")
	}
	if err := gz.Close(); err != nil {
		return ocispec.Descriptor{}, "", assemblyErr(err, "close layer gzip")
	}

	info, err := f.Stat()
	if err != nil {
		return ocispec.Descriptor{}, "", assemblyErr(err, "stat layer blob")
	}

	desc := ocispec.Descriptor{
		MediaType: ocispec.MediaTypeImageLayerGzip,
		Digest:    compressed.Digest(),
		Size:      info.Size(),
	}

	// File the blob under its digest for the archive writer.
	if err := os.Rename(f.Name(), filepath.Join(work, desc.Digest.Encoded())); err != nil {
		return ocispec.Descriptor{}, "", assemblyErr(err, "file layer blob")
	}

	return desc, uncompressed.Digest(), nil
}

// Writes directory headers for every ancestor of the destination path.
func writeParents(tw *tar.Writer, dest string) error {
	parts := strings.Split(filepath.ToSlash(dest), "/")
	for i := 1; i < len(parts); i++ {
		header := &tar.Header{
			Typeflag: tar.TypeDir,
			Name:     strings.Join(parts[:i], "/") + "/",
			Mode:     0o755,
		}
		if err := tw.WriteHeader(header); err != nil {
			return err
		}
	}
	return nil
}

// Writes a directory tree to a tar writer rooted at the given archive
// prefix.
func writeTreeToTar(tw *tar.Writer, hostDir, prefix string) error {
	return filepath.WalkDir(hostDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(hostDir, path)
		if err != nil {
			return err
		}

		return writeTarEntry(tw, path, filepath.ToSlash(filepath.Join(prefix, rel)), d)
	})
}

// Writes a single file or directory entry to a tar writer.
func writeTarEntry(tw *tar.Writer, hostPath, archivePath string, d fs.DirEntry) error {
	info, err := d.Info()
	if err != nil {
		return err
	}

	link := ""
	if info.Mode()&fs.ModeSymlink != 0 {
		if link, err = os.Readlink(hostPath); err != nil {
			return err
		}
	}

	header, err := tar.FileInfoHeader(info, link)
	if err != nil {
		return err
	}
	header.Name = archivePath
	if info.IsDir() {
		header.Name += "/"
	}

	if err := tw.WriteHeader(header); err != nil {
		return err
	}

	if info.Mode().IsRegular() {
		f, err := os.Open(hostPath)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = io.Copy(tw, f)
		return err
	}

	return nil
}

// Writes a single file to a tar writer with the given archive name.
func writeFileToTar(tw *tar.Writer, hostPath, name string) error {
	info, err := os.Stat(hostPath)
	if err != nil {
		return err
	}

	header, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return err
	}
	header.Name = name

	if err := tw.WriteHeader(header); err != nil {
		return err
	}

	f, err := os.Open(hostPath)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = io.Copy(tw, f)
	return err
}
