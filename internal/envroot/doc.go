// Package envroot builds isolated environment roots from dependency
// manifests.
//
// A [Builder] installs a manifest's dependencies in two strictly ordered
// phases: native system libraries first, then language-level packages into
// an isolated prefix. Transient (network-class) failures are retried with
// exponential backoff up to a bounded attempt count; resolution failures
// fail immediately. Either way a failed install names the offending
// package via [*InstallError].
//
// The builder writes only into the staging directory it is handed, so a
// failed or cancelled build never leaves partial state anywhere a consumer
// can observe it. Publication of finished roots is the cache's job.
package envroot
