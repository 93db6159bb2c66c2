package cli

import (
	"context"
	"log/slog"

	"github.com/stratabuild/strata/internal/server"
)

// Represents the 'strata serve' command.
type ServeCmd struct {
	Socket string `short:"s" help:"Override the default Unix socket path." placeholder:"PATH"`
}

// Executes the serve command.
//
// Starts the daemon on a Unix domain socket and blocks until the context
// is cancelled (e.g. via SIGINT or SIGTERM).
func (c *ServeCmd) Run(ctx context.Context) error {
	srv, err := server.New(server.Config{
		SocketPath: c.Socket,
		CacheDir:   RootCmd.CacheDir,
	})
	if err != nil {
		return err
	}

	if err := srv.Start(); err != nil {
		return err
	}

	slog.Info("strata daemon is running")

	<-ctx.Done()

	slog.Info("shutting down")
	return srv.Stop()
}
