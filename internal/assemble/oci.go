package assemble

import (
	"archive/tar"
	"encoding/json"
	"io"
	"os"
	"path/filepath"

	"github.com/opencontainers/go-digest"
	"github.com/opencontainers/image-spec/specs-go"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
)

// Serializes a value and returns its bytes and blob descriptor.
func marshalBlob(mediaType string, v any) ([]byte, ocispec.Descriptor, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, ocispec.Descriptor{}, assemblyErr(err, "marshal %s", mediaType)
	}
	return b, ocispec.Descriptor{
		MediaType: mediaType,
		Digest:    digest.FromBytes(b),
		Size:      int64(len(b)),
	}, nil
}

// Writes the assembled image as an OCI layout archive.
//
// The archive contains the layout marker, an index referencing the single
// image manifest, and the blobs: config, manifest, and all layers. Layer
// blobs are read from the work directory where they were filed under their
// digests. Returns the manifest descriptor.
func writeArchive(path, work string, config ocispec.Image, layers []ocispec.Descriptor, reference, osName, arch string) (ocispec.Descriptor, error) {
	configBytes, configDesc, err := marshalBlob(ocispec.MediaTypeImageConfig, config)
	if err != nil {
		return ocispec.Descriptor{}, err
	}

	manifest := ocispec.Manifest{
		Versioned: specs.Versioned{SchemaVersion: 2},
		MediaType: ocispec.MediaTypeImageManifest,
		Config:    configDesc,
		Layers:    layers,
	}
	manifestBytes, manifestDesc, err := marshalBlob(ocispec.MediaTypeImageManifest, manifest)
	if err != nil {
		return ocispec.Descriptor{}, err
	}
	manifestDesc.Platform = &ocispec.Platform{OS: osName, Architecture: arch}
	if reference != "" {
		manifestDesc.Annotations = map[string]string{ocispec.AnnotationRefName: reference}
	}

	index := ocispec.Index{
		Versioned: specs.Versioned{SchemaVersion: 2},
		MediaType: ocispec.MediaTypeImageIndex,
		Manifests: []ocispec.Descriptor{manifestDesc},
	}
	indexBytes, err := json.Marshal(index)
	if err != nil {
		return ocispec.Descriptor{}, assemblyErr(err, "marshal index")
	}

	layoutBytes, err := json.Marshal(ocispec.ImageLayout{Version: ocispec.ImageLayoutVersion})
	if err != nil {
		return ocispec.Descriptor{}, assemblyErr(err, "marshal layout")
	}

	f, err := os.Create(path)
	if err != nil {
		return ocispec.Descriptor{}, assemblyErr(err, "create archive")
	}
	defer f.Close()

	tw := tar.NewWriter(f)

	if err := writeTarBytes(tw, ocispec.ImageLayoutFile, layoutBytes); err != nil {
		return ocispec.Descriptor{}, err
	}
	if err := writeTarBytes(tw, ocispec.ImageIndexFile, indexBytes); err != nil {
		return ocispec.Descriptor{}, err
	}
	if err := writeTarBytes(tw, blobPath(configDesc.Digest), configBytes); err != nil {
		return ocispec.Descriptor{}, err
	}
	if err := writeTarBytes(tw, blobPath(manifestDesc.Digest), manifestBytes); err != nil {
		return ocispec.Descriptor{}, err
	}

	for _, layer := range layers {
		if err := writeTarBlobFile(tw, blobPath(layer.Digest), filepath.Join(work, layer.Digest.Encoded()), layer.Size); err != nil {
			return ocispec.Descriptor{}, err
		}
	}

	if err := tw.Close(); err != nil {
		return ocispec.Descriptor{}, assemblyErr(err, "close archive")
	}
	if err := f.Close(); err != nil {
		return ocispec.Descriptor{}, assemblyErr(err, "close archive")
	}

	return manifestDesc, nil
}

// Returns the in-archive path for a blob digest.
func blobPath(dgst digest.Digest) string {
	return filepath.ToSlash(filepath.Join(ocispec.ImageBlobsDir, string(dgst.Algorithm()), dgst.Encoded()))
}

// Writes an in-memory blob as a tar entry.
func writeTarBytes(tw *tar.Writer, name string, data []byte) error {
	header := &tar.Header{
		Typeflag: tar.TypeReg,
		Name:     name,
		Mode:     0o644,
		Size:     int64(len(data)),
	}
	if err := tw.WriteHeader(header); err != nil {
		return assemblyErr(err, "write %s", name)
	}
	if _, err := tw.Write(data); err != nil {
		return assemblyErr(err, "write %s", name)
	}
	return nil
}

// Streams a blob file into the archive.
func writeTarBlobFile(tw *tar.Writer, name, path string, size int64) error {
	f, err := os.Open(path)
	if err != nil {
		return assemblyErr(err, "open blob %s", name)
	}
	defer f.Close()

	header := &tar.Header{
		Typeflag: tar.TypeReg,
		Name:     name,
		Mode:     0o644,
		Size:     size,
	}
	if err := tw.WriteHeader(header); err != nil {
		return assemblyErr(err, "write %s", name)
	}
	if _, err := io.Copy(tw, f); err != nil {
		return assemblyErr(err, "write %s", name)
	}
	return nil
}
