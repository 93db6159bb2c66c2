// Package stage models build stages and extracts their declared artifacts.
//
// A [Stage] is a unit of work with a private working tree and a set of
// declared, named outputs. Later stages and the final assembly consume
// [Artifact] handles produced by an [Extractor], never paths into another
// stage's working tree, so transient build state (compiler toolchains,
// package-manager caches, source archives) cannot leak across stage
// boundaries.
package stage
