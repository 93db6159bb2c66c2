// Package assemble composes the final deployable image from extracted
// artifacts.
//
// An [ImageSpec] names a set of artifacts and their destination paths, the
// runtime environment, the exposed port, and the entrypoint. [Assemble]
// writes an OCI layout archive: each artifact becomes one layer stacked on
// top of an optional minimal base image. The assembler never fetches
// anything over the network; it only copies artifacts that earlier stages
// already built, which keeps assembly fast and the result small. Build
// toolchains are never present in the runtime base.
package assemble
