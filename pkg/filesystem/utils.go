// Package filesystem resolves where feed-brief keeps its files.
package filesystem

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Common file system errors
var (
	ErrFileNotFound = errors.New("file not found")
	ErrDirNotFound  = errors.New("directory not found")
)

// AppDirName is the per-user directory under the home directory.
const AppDirName = ".feed-brief"

// GetDefaultPath returns filename next to the running executable.
func GetDefaultPath(filename string) (string, error) {
	exePath, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("failed to get executable path: %w", err)
	}
	return filepath.Join(filepath.Dir(exePath), filename), nil
}

// UserDataPath returns filename inside ~/.feed-brief.
func UserDataPath(filename string) (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, AppDirName, filename), nil
}

// ResolvePath finds a relative file in the working directory first, then next
// to the executable. Absolute paths are returned unchanged. When the file
// exists in neither place the original path is returned with ErrFileNotFound.
func ResolvePath(path string) (string, error) {
	if filepath.IsAbs(path) {
		if _, err := os.Stat(path); err != nil {
			return path, fmt.Errorf("%w: %s", ErrFileNotFound, path)
		}
		return path, nil
	}

	if _, err := os.Stat(path); err == nil {
		return path, nil
	}

	if execPath, err := GetDefaultPath(path); err == nil {
		if _, err := os.Stat(execPath); err == nil {
			return execPath, nil
		}
	}

	return path, fmt.Errorf("%w: %s", ErrFileNotFound, path)
}

// EnsureDirectoryExists creates the directory for the given file path if it doesn't exist
func EnsureDirectoryExists(filePath string) error {
	dir := filepath.Dir(filePath)
	if dir == "." {
		return nil
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrDirNotFound, dir)
		}
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	return nil
}
