package util

import (
	"os"
	"path/filepath"
)

// GetDataDir returns the data directory path
func GetDataDir() string {
	if envDir := os.Getenv("TOWERBRIDGE_DIR"); envDir != "" {
		return envDir
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".towerbridge-data")
	}
	return filepath.Join(home, ".towerbridge-data")
}

// EnsureDir creates the parent directory of path
func EnsureDir(path string) error {
	return os.MkdirAll(filepath.Dir(path), 0o755)
}
