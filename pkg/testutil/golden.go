// Package testutil provides golden file and clock helpers for tests.
package testutil

import (
	"encoding/json"
	"flag"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

var update = flag.Bool("update", false, "update golden files")

// CompareGoldenJSON marshals actual and compares it structurally with the
// JSON in the golden file, so key order and whitespace do not matter.
func CompareGoldenJSON(t *testing.T, goldenPath string, actual any) {
	t.Helper()

	data, err := json.MarshalIndent(actual, "", "  ")
	if err != nil {
		t.Fatalf("Failed to marshal actual value: %v", err)
	}

	if *update {
		writeGoldenFile(t, goldenPath, append(data, '\n'))
		return
	}

	var want, got any
	if err := json.Unmarshal(readGoldenFile(t, goldenPath), &want); err != nil {
		t.Fatalf("Failed to parse JSON from golden file %s: %v", goldenPath, err)
	}
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("Failed to re-parse actual JSON: %v", err)
	}

	if !reflect.DeepEqual(want, got) {
		t.Errorf("Golden file mismatch for %s\nActual:\n%s", goldenPath, data)
	}
}

func readGoldenFile(t *testing.T, goldenPath string) []byte {
	t.Helper()

	content, err := os.ReadFile(goldenPath)
	if err != nil {
		t.Fatalf("Failed to read golden file %s: %v", goldenPath, err)
	}
	return content
}

func writeGoldenFile(t *testing.T, goldenPath string, content []byte) {
	t.Helper()

	dir := filepath.Dir(goldenPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("Failed to create directory %s: %v", dir, err)
	}

	if err := os.WriteFile(goldenPath, content, 0o644); err != nil {
		t.Fatalf("Failed to update golden file %s: %v", goldenPath, err)
	}
	t.Logf("Updated golden file: %s", goldenPath)
}
