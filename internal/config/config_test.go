package config

import (
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Name != "librarian" {
		t.Errorf("expected Name=librarian, got %s", cfg.Name)
	}
	if cfg.Retrieval.MaxEscalationDepth != 2 {
		t.Errorf("expected MaxEscalationDepth=2, got %d", cfg.Retrieval.MaxEscalationDepth)
	}
	if cfg.Cache.TTLMinutes != 30 {
		t.Errorf("expected TTLMinutes=30, got %d", cfg.Cache.TTLMinutes)
	}
}

func TestConfigSaveLoad(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "librarian.config.yaml")

	cfg := DefaultConfig()
	cfg.Retrieval.MaxEscalationDepth = 3
	cfg.Embedding.Provider = "genai"

	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.Retrieval.MaxEscalationDepth != 3 {
		t.Errorf("expected MaxEscalationDepth=3, got %d", loaded.Retrieval.MaxEscalationDepth)
	}
	if loaded.Embedding.Provider != "genai" {
		t.Errorf("expected Provider=genai, got %s", loaded.Embedding.Provider)
	}
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Name != "librarian" {
		t.Errorf("expected defaults, got Name=%s", cfg.Name)
	}
}

func TestClampMaxEscalationDepth(t *testing.T) {
	cases := []struct {
		in, want int
	}{
		{-5, 0}, {0, 0}, {2, 2}, {8, 8}, {20, 8},
	}
	for _, c := range cases {
		r := RetrievalConfig{MaxEscalationDepth: c.in}
		if got := r.ClampMaxEscalationDepth(); got != c.want {
			t.Errorf("ClampMaxEscalationDepth(%d) = %d, want %d", c.in, got, c.want)
		}
	}
}
