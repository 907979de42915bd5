package filesystem

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestEnsureDirectoryExists(t *testing.T) {
	tempDir := t.TempDir()

	tests := []struct {
		name     string
		filePath string
	}{
		{
			name:     "current directory",
			filePath: "test.db",
		},
		{
			name:     "absolute path in temp directory",
			filePath: filepath.Join(tempDir, "newdir", "test.db"),
		},
		{
			name:     "nested absolute path",
			filePath: filepath.Join(tempDir, "level1", "level2", "level3", "test.db"),
		},
		{
			name:     "directory already exists",
			filePath: filepath.Join(tempDir, "test.db"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := EnsureDirectoryExists(tt.filePath); err != nil {
				t.Fatalf("EnsureDirectoryExists(%q) error = %v", tt.filePath, err)
			}

			dir := filepath.Dir(tt.filePath)
			info, err := os.Stat(dir)
			if err != nil {
				t.Fatalf("directory %q not created: %v", dir, err)
			}
			if !info.IsDir() {
				t.Errorf("%q is not a directory", dir)
			}
		})
	}
}

func TestEnsureDirectoryExists_BlockedByFile(t *testing.T) {
	tempDir := t.TempDir()
	blocker := filepath.Join(tempDir, "blocker")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatalf("Failed to create blocking file: %v", err)
	}

	if err := EnsureDirectoryExists(filepath.Join(blocker, "sub", "test.db")); err == nil {
		t.Error("EnsureDirectoryExists() should fail when a path component is a file")
	}
}

func TestResolvePath(t *testing.T) {
	tempDir := t.TempDir()
	existing := filepath.Join(tempDir, "config.yaml")
	if err := os.WriteFile(existing, []byte("feeds: []\n"), 0o644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	t.Run("absolute existing path", func(t *testing.T) {
		got, err := ResolvePath(existing)
		if err != nil {
			t.Fatalf("ResolvePath() error = %v", err)
		}
		if got != existing {
			t.Errorf("ResolvePath() = %q, want %q", got, existing)
		}
	})

	t.Run("absolute missing path", func(t *testing.T) {
		missing := filepath.Join(tempDir, "missing.yaml")
		got, err := ResolvePath(missing)
		if !errors.Is(err, ErrFileNotFound) {
			t.Fatalf("ResolvePath() error = %v, want ErrFileNotFound", err)
		}
		if got != missing {
			t.Errorf("ResolvePath() = %q, want original path back", got)
		}
	})

	t.Run("relative path found in working directory", func(t *testing.T) {
		t.Chdir(tempDir)
		got, err := ResolvePath("config.yaml")
		if err != nil {
			t.Fatalf("ResolvePath() error = %v", err)
		}
		if got != "config.yaml" {
			t.Errorf("ResolvePath() = %q, want %q", got, "config.yaml")
		}
	})

	t.Run("relative path nowhere", func(t *testing.T) {
		t.Chdir(tempDir)
		got, err := ResolvePath("does-not-exist.yaml")
		if !errors.Is(err, ErrFileNotFound) {
			t.Fatalf("ResolvePath() error = %v, want ErrFileNotFound", err)
		}
		if got != "does-not-exist.yaml" {
			t.Errorf("ResolvePath() = %q, want original path back", got)
		}
	})
}

func TestUserDataPath(t *testing.T) {
	got, err := UserDataPath("feed-brief.db")
	if err != nil {
		t.Skipf("no home directory available: %v", err)
	}

	if !filepath.IsAbs(got) {
		t.Errorf("UserDataPath() = %q, want absolute path", got)
	}
	if !strings.Contains(got, AppDirName) {
		t.Errorf("UserDataPath() = %q, want it under %s", got, AppDirName)
	}
}
