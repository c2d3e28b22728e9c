// Package paths expands the file paths that appear in configuration.
// A path may start with "~" for the home directory or with [DataPrefix]
// for the configured data directory.
package paths

import (
	"os"
	"path/filepath"
	"strings"
)

// DataPrefix names the configured data directory, so config entries
// such as "data:onboarding.db" follow data_dir when it moves.
const DataPrefix = "data:"

// Resolve expands path against dataDir. A bare "data:" is dataDir
// itself; paths without a prefix or tilde are returned unchanged.
func Resolve(path, dataDir string) string {
	if rel, ok := strings.CutPrefix(path, DataPrefix); ok {
		base := ExpandHome(dataDir)
		if rel == "" {
			return base
		}
		return filepath.Join(base, rel)
	}
	return ExpandHome(path)
}

// ExpandHome replaces a leading ~ with the user's home directory. The
// path is returned unchanged when the home directory is unknown or the
// tilde names another user (~bob).
func ExpandHome(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	if path == "~" {
		return home
	}
	if strings.HasPrefix(path, "~/") || strings.HasPrefix(path, "~"+string(filepath.Separator)) {
		return filepath.Join(home, path[2:])
	}
	return path
}
