package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/lmittmann/tint"

	"github.com/stratabuild/strata/internal"
)

// Represents the root command for the strata CLI.
var RootCmd struct {
	Quiet    bool       `short:"q" help:"Suppress informational output."`
	Verbose  bool       `short:"v" help:"Enable verbose output."`
	Debug    bool       `short:"d" help:"Enable debug output."`
	CacheDir string     `help:"Override the environment cache directory." placeholder:"DIR"`
	Build    BuildCmd   `cmd:"" help:"Build a runtime image from a dependency manifest."`
	Serve    ServeCmd   `cmd:"" help:"Run the build daemon."`
	Version  VersionCmd `cmd:"" help:"Show version information."`
}

// Parses arguments, configures logging, and runs the selected subcommand.
func Execute() error {

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	kongCtx := kong.Parse(&RootCmd,
		kong.Name(internal.Name),
		kong.Description("Layered build pipeline.\n\nTurns a dependency manifest and an application tree into a runnable runtime image, caching the expensive dependency layer by content."),
		kong.UsageOnError(),
		kong.Vars{
			"version": internal.VersionString(),
		},
		kong.BindTo(ctx, (*context.Context)(nil)),
	)

	configureLogger()

	return kongCtx.Run()
}

// Configures the global logger based on CLI flags.
func configureLogger() {
	slog.SetDefault(slog.New(tint.NewHandler(os.Stderr, loggerOptions(isatty(os.Stderr)))))
}

// Builds handler options from CLI flags and build-time defaults. Debug
// wins over quiet; verbose adds source locations to every record.
func loggerOptions(tty bool) *tint.Options {
	debug := RootCmd.Debug || internal.IsDebug()
	quiet := RootCmd.Quiet || internal.IsQuiet()
	verbose := RootCmd.Verbose || internal.IsVerbose()

	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	} else if quiet {
		level = slog.LevelWarn
	}

	return &tint.Options{
		Level:      level,
		TimeFormat: time.TimeOnly,
		AddSource:  verbose,
		NoColor:    !tty,
	}
}

// Whether the given file is an interactive terminal.
func isatty(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
