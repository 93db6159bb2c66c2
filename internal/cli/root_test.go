package cli

import (
	"log/slog"
	"testing"
)

func TestLoggerOptions(t *testing.T) {
	tests := []struct {
		name      string
		quiet     bool
		verbose   bool
		debug     bool
		level     slog.Level
		addSource bool
	}{
		{"defaults", false, false, false, slog.LevelInfo, false},
		{"quiet", true, false, false, slog.LevelWarn, false},
		{"verbose", false, true, false, slog.LevelInfo, true},
		{"debug", false, false, true, slog.LevelDebug, false},
		{"debug wins over quiet", true, false, true, slog.LevelDebug, false},
		{"quiet and verbose", true, true, false, slog.LevelWarn, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			defer func(q, v, d bool) {
				RootCmd.Quiet, RootCmd.Verbose, RootCmd.Debug = q, v, d
			}(RootCmd.Quiet, RootCmd.Verbose, RootCmd.Debug)

			RootCmd.Quiet = tc.quiet
			RootCmd.Verbose = tc.verbose
			RootCmd.Debug = tc.debug

			opts := loggerOptions(false)
			if opts.Level != tc.level {
				t.Fatalf("level = %v, want %v", opts.Level, tc.level)
			}
			if opts.AddSource != tc.addSource {
				t.Fatalf("AddSource = %v, want %v", opts.AddSource, tc.addSource)
			}
		})
	}
}
