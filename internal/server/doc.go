// Package server implements the strata daemon.
//
// The daemon listens on a Unix domain socket for JSON-encoded commands
// from the strata CLI. Each connection carries a single request-response
// exchange: the client sends a newline-delimited JSON envelope, the
// server dispatches the command, and writes the result back before
// closing the connection.
//
// Supported commands are running a build, querying daemon status, and
// initiating shutdown. Builds are delegated to the pipeline package; the
// daemon's value over a one-shot CLI invocation is its long-lived cache
// coordinator, which collapses concurrent builds of identical manifests
// into a single install pass.
//
// Example usage:
//
//	srv, err := server.New(server.Config{})
//	if err != nil {
//	    return err
//	}
//
//	if err := srv.Start(); err != nil {
//	    return err
//	}
//	defer srv.Stop()
//
//	srv.Wait()
package server
