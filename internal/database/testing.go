package database

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/mudgate/mudgate/internal/config"
)

// SetupTestDB points the database at a fresh temp file and initializes
// it. Shared by every package whose tests need real persistence; the
// returned cleanup closes and removes it.
func SetupTestDB(t *testing.T) func() {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "mudgate-test-*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}

	config.Cfg.DatabasePath = filepath.Join(tmpDir, "test.db")

	if err := Init(); err != nil {
		os.RemoveAll(tmpDir)
		t.Fatalf("Failed to init database: %v", err)
	}

	return func() {
		Close()
		os.RemoveAll(tmpDir)
	}
}
