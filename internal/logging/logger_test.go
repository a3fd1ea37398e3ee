package logging

import (
	"os"
	"path/filepath"
	"testing"
)

func TestInitializeProductionModeIsNoop(t *testing.T) {
	ws := t.TempDir()
	if err := Initialize(ws, Config{DebugMode: false}); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if _, err := os.Stat(filepath.Join(ws, ".librarian", "logs")); !os.IsNotExist(err) {
		t.Fatalf("expected no logs directory in production mode, stat err=%v", err)
	}
	Get(CategoryStore).Info("should not panic or write anything")
}

func TestInitializeDebugModeCreatesLogFile(t *testing.T) {
	ws := t.TempDir()
	t.Cleanup(CloseAll)
	if err := Initialize(ws, Config{DebugMode: true, Level: "debug"}); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	Get(CategoryStore).Info("hello")
	entries, err := os.ReadDir(filepath.Join(ws, ".librarian", "logs"))
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) == 0 {
		t.Fatal("expected at least one log file to be created")
	}
}

func TestCategoryDisabledIsSilent(t *testing.T) {
	ws := t.TempDir()
	t.Cleanup(CloseAll)
	cfg := Config{DebugMode: true, Level: "debug", Categories: map[string]bool{string(CategoryStore): false}}
	if err := Initialize(ws, cfg); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	l := Get(CategoryStore)
	if l.logger != nil {
		t.Fatal("expected disabled category to yield a no-op logger")
	}
}
