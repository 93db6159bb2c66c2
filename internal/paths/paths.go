package paths

import (
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
)

const (

	// Name used for directory and file naming.
	projectName = "strata"

	// Default permission mode for directories.
	DefaultDirMode os.FileMode = 0755

	// Default permission mode for files.
	DefaultFileMode os.FileMode = 0644
)

// Path to the base-stage cache directory. STRATA_CACHE_DIR overrides the
// platform default.
//
//	Linux:   $XDG_CACHE_HOME/strata or ~/.cache/strata
//	macOS:   ~/Library/Caches/strata
func Cache() string {
	if dir := os.Getenv("STRATA_CACHE_DIR"); dir != "" {
		return dir
	}
	return filepath.Join(xdg.CacheHome, projectName)
}

// Path to the directory for runtime files (sockets, PIDs).
//
//	Linux:   $XDG_RUNTIME_DIR/strata or /run/user/<uid>/strata
//	macOS:   ~/Library/Caches/strata/run
func Runtime() string {
	if xdg.RuntimeDir != "" {
		return filepath.Join(xdg.RuntimeDir, projectName)
	}
	return filepath.Join(xdg.CacheHome, projectName, "run")
}

// Default path to the Unix domain socket for CLI-to-daemon communication.
//
//	Linux:   $XDG_RUNTIME_DIR/strata/strata.sock
//	macOS:   ~/Library/Caches/strata/run/strata.sock
func Socket() string {
	return filepath.Join(Runtime(), projectName+".sock")
}

// Default path to the PID file.
//
//	Linux:   $XDG_RUNTIME_DIR/strata/strata.pid
//	macOS:   ~/Library/Caches/strata/run/strata.pid
func PIDFile() string {
	return filepath.Join(Runtime(), projectName+".pid")
}
