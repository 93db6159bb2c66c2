package envroot

import (
	"io/fs"
	"path/filepath"
	"time"

	"github.com/stratabuild/strata/internal/manifest"
)

// A fully installed, runnable dependency set rooted at a filesystem subtree.
//
// A root is produced once by a [Builder] and owned by the cache after
// publication; consumers treat it as read-only.
type Root struct {
	Fingerprint manifest.Fingerprint `json:"fingerprint"` // Fingerprint of the manifest that produced this root.
	Path        string               `json:"path"`        // Absolute path of the installed subtree.
	Size        int64                `json:"size"`        // Total size of the subtree in bytes.
	CreatedAt   time.Time            `json:"createdAt"`   // When the root finished building.
}

// Computes the total size of a directory tree in bytes.
func TreeSize(dir string) (int64, error) {
	var size int64
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			info, err := d.Info()
			if err != nil {
				return err
			}
			size += info.Size()
		}
		return nil
	})
	return size, err
}
