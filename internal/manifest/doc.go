// Package manifest defines the dependency manifest and its fingerprint.
//
// A manifest is a declarative list of required packages in two phases:
// native system libraries and language-level packages. Manifests are
// parsed from YAML:
//
//	system:
//	  - libgomp1
//	packages:
//	  - flask==3.0
//	  - torch==2.3.1 @https://download.pytorch.org/whl/cpu
//
// Parsing reports every malformed entry at once. A parsed manifest can be
// fingerprinted: a deterministic digest over its normalized content that
// serves as the environment cache key. Incidental authoring noise (entry
// order, casing, whitespace) does not affect the fingerprint.
package manifest
