package logging

import (
	"os"
	"path/filepath"
)

// DefaultLogDir returns the default log directory (~/.codeindex/logs/).
// Falls back to the OS temp directory if the home directory is unavailable.
func DefaultLogDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".codeindex", "logs")
	}
	return filepath.Join(home, ".codeindex", "logs")
}

// DefaultLogPath returns the default log file path.
func DefaultLogPath() string {
	return filepath.Join(DefaultLogDir(), "codeindex.log")
}
