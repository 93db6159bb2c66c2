// Package pipeline orchestrates the layered build: manifest resolution,
// cache-checked environment building, artifact extraction, and runtime
// assembly.
//
// A run moves through a fixed sequence of states:
//
//	Pending -> ManifestResolved -> EnvironmentReady ->
//	ArtifactsExtracted -> Assembled -> Done
//
// with Failed reachable from any non-terminal state. The transition into
// EnvironmentReady consults the cache before the builder; a hit skips the
// install work entirely, which is the pipeline's primary performance
// lever. Later stages consume only the named artifacts of earlier stages,
// never their working state. A stage failure aborts the rest of the run
// and names the failing stage; a partially assembled image is discarded,
// not repaired.
//
// Example usage:
//
//	p := &pipeline.Pipeline{Store: store, Builder: builder}
//	result, err := p.Run(ctx, pipeline.Options{
//	    ManifestPath: "strata.yaml",
//	    AppDir:       "./app",
//	    Output:       "dist",
//	    Reference:    "search-svc:1.0",
//	})
package pipeline
