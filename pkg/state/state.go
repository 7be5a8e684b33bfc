package state

import (
	"fmt"
	"os"
	"path/filepath"
)

// EnsureStateDirs ensures the canonical runtime folder layout exists under
// the provided base path: the store itself plus state areas for backups,
// telemetry and scratch files. It rejects symlinks and permissive modes
// and verifies each directory is writable by the process.
func EnsureStateDirs(basePath string) error {
	storePath := filepath.Join(basePath, "store")
	statePath := filepath.Join(basePath, "state")
	backupsPath := filepath.Join(statePath, "backups")
	telemetryPath := filepath.Join(statePath, "telemetry")
	tmpPath := filepath.Join(statePath, "tmp")

	paths := []string{storePath, backupsPath, telemetryPath, tmpPath}

	for _, p := range paths {
		if err := os.MkdirAll(filepath.Dir(p), 0o700); err != nil {
			return fmt.Errorf("cannot create parent for %s: %w", p, err)
		}

		if fi, err := os.Lstat(p); err == nil {
			if fi.Mode()&os.ModeSymlink != 0 {
				return fmt.Errorf("path is a symlink: %s", p)
			}
			if !fi.IsDir() {
				return fmt.Errorf("path exists and is not a directory: %s", p)
			}
			if fi.Mode().Perm()&0o022 != 0 {
				return fmt.Errorf("path has permissive mode (group/other write): %s", p)
			}
		}

		if err := os.MkdirAll(p, 0o700); err != nil {
			return fmt.Errorf("cannot create path %s: %w", p, err)
		}

		if fi2, err := os.Lstat(p); err == nil {
			if fi2.Mode()&os.ModeSymlink != 0 {
				return fmt.Errorf("path is a symlink after creation: %s", p)
			}
			if fi2.Mode().Perm()&0o022 != 0 {
				return fmt.Errorf("path has permissive mode after creation: %s", p)
			}
		}

		tmp, err := os.CreateTemp(p, ".validate-*")
		if err != nil {
			return fmt.Errorf("path not writable: %s: %w", p, err)
		}
		tmp.Close()
		_ = os.Remove(tmp.Name())
	}

	return nil
}

// StorePath returns the store directory under the base path.
func StorePath(basePath string) string { return filepath.Join(basePath, "store") }

// BackupsPath returns the backup snapshot directory under the base path.
func BackupsPath(basePath string) string { return filepath.Join(basePath, "state", "backups") }

// TelemetryPath returns the telemetry spool directory under the base path.
func TelemetryPath(basePath string) string { return filepath.Join(basePath, "state", "telemetry") }
