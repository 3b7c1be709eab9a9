package cliutil

import (
	"os"
	"path/filepath"
	"testing"

	"distfs/internal/logging"
)

func writeTemp(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return path
}

func TestLoadConfigOK(t *testing.T) {
	path := writeTemp(t, `{"max_chunk_size": 65536, "replica_set": 2, "datanodes": ["a:1", "b:2", "c:3"]}`)
	if _, err := LoadConfig(logging.Discard(), path); err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
}

func TestLoadConfigRejectsInvalidInvariant(t *testing.T) {
	path := writeTemp(t, `{"replica_set": 5, "datanodes": ["a:1"]}`)
	if _, err := LoadConfig(logging.Discard(), path); err == nil {
		t.Fatal("expected error when replica_set exceeds configured datanodes")
	}
}

func TestNewLoggerNotNil(t *testing.T) {
	if NewLogger() == nil {
		t.Fatal("expected non-nil logger")
	}
}
