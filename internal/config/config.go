// Package config holds Librarian's configuration, loaded from
// librarian.config.yaml. It mirrors the teacher's Config/DefaultConfig/
// Load/Save pattern, scoped to the query pipeline and its collaborators.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/nateschmiedehaus/librarian/internal/logging"
)

// Config holds all Librarian configuration.
type Config struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	Store      StoreConfig      `yaml:"store"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Cache      CacheConfig      `yaml:"cache"`
	Retrieval  RetrievalConfig  `yaml:"retrieval"`
	Freshness  FreshnessConfig  `yaml:"freshness"`
	Feedback   FeedbackConfig   `yaml:"feedback"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// StoreConfig configures the Knowledge Store.
type StoreConfig struct {
	DatabasePath string `yaml:"database_path"`
}

// EmbeddingConfig configures the embedding engine.
type EmbeddingConfig struct {
	Provider        string `yaml:"provider"` // "ollama" | "disabled"; embedding.NewEngine has no "genai" backend
	OllamaEndpoint  string `yaml:"ollama_endpoint"`
	OllamaModel     string `yaml:"ollama_model"`
	GenAIModel      string `yaml:"genai_model"`
	ChunkSizeChars  int    `yaml:"chunk_size_chars"`
	ChunkOverlap    int    `yaml:"chunk_overlap_chars"`
}

// CacheConfig configures the two-tier Query Cache (§4.C).
type CacheConfig struct {
	MaxEntries     int `yaml:"max_entries"`      // default 1000
	TTLMinutes     int `yaml:"ttl_minutes"`       // default 30
	MemoizedCap    int `yaml:"memoized_capacity"` // in-process tier cap
}

// RetrievalConfig configures the twelve-stage pipeline and escalation (§4.E, §4.G).
type RetrievalConfig struct {
	MaxEscalationDepth   int `yaml:"max_escalation_depth"`    // default 2, clamp [0,8]
	MaxRerankWindow      int `yaml:"max_rerank_window"`       // default 24 (Open Question decision)
	SynthesisTimeoutSecs int `yaml:"synthesis_timeout_secs"`  // default 60, never exceeded
	QueryTimeoutSecs     int `yaml:"query_timeout_secs"`      // overall deadline, default 30
}

// FreshnessConfig configures the Freshness Gate (§4.B).
type FreshnessConfig struct {
	ReconcileWindowSeconds int `yaml:"reconcile_window_seconds"` // default 60
}

// FeedbackConfig configures the Feedback Loop (§4.H).
type FeedbackConfig struct {
	PositiveStep float64 `yaml:"positive_step"` // default 0.05 * usefulness
	NegativeStep float64 `yaml:"negative_step"` // default 0.10
	MinConfidence float64 `yaml:"min_confidence"` // 0.10
	MaxConfidence float64 `yaml:"max_confidence"` // 0.95
	BanditSeed    int64   `yaml:"bandit_seed"`
}

// LoggingConfig configures internal/logging.
type LoggingConfig struct {
	DebugMode  bool            `yaml:"debug_mode"`
	Categories map[string]bool `yaml:"categories"`
	Level      string          `yaml:"level"`
	JSONFormat bool            `yaml:"json_format"`
}

// ToLoggingConfig adapts LoggingConfig to logging.Config (kept distinct to
// avoid a dependency cycle between config and logging internals).
func (c LoggingConfig) ToLoggingConfig() logging.Config {
	return logging.Config{
		DebugMode:  c.DebugMode,
		Categories: c.Categories,
		Level:      c.Level,
		JSONFormat: c.JSONFormat,
	}
}

// DefaultConfig returns sensible defaults for a fresh workspace.
func DefaultConfig() *Config {
	return &Config{
		Name:    "librarian",
		Version: "1.0.0",
		Store: StoreConfig{
			DatabasePath: filepath.Join(".librarian", "librarian.sqlite"),
		},
		Embedding: EmbeddingConfig{
			Provider:       "ollama",
			OllamaEndpoint: "http://localhost:11434",
			OllamaModel:    "embeddinggemma",
			GenAIModel:     "gemini-embedding-001",
			ChunkSizeChars: 400,
			ChunkOverlap:   80,
		},
		Cache: CacheConfig{
			MaxEntries:  1000,
			TTLMinutes:  30,
			MemoizedCap: 256,
		},
		Retrieval: RetrievalConfig{
			MaxEscalationDepth:   2,
			MaxRerankWindow:      24,
			SynthesisTimeoutSecs: 60,
			QueryTimeoutSecs:     30,
		},
		Freshness: FreshnessConfig{
			ReconcileWindowSeconds: 60,
		},
		Feedback: FeedbackConfig{
			PositiveStep:  0.05,
			NegativeStep:  0.10,
			MinConfidence: 0.10,
			MaxConfidence: 0.95,
			BanditSeed:    1,
		},
		Logging: LoggingConfig{
			DebugMode: false,
			Level:     "info",
		},
	}
}

// Load reads a Config from a YAML file, unmarshalling it on top of
// DefaultConfig so any field not present in the file keeps its default. A
// missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes the Config to path as YAML, creating parent directories.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("config: mkdir: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("config: write %s: %w", path, err)
	}
	return nil
}

// ClampMaxEscalationDepth enforces the [0,8] bound from §4.G.
func (r RetrievalConfig) ClampMaxEscalationDepth() int {
	d := r.MaxEscalationDepth
	if d < 0 {
		return 0
	}
	if d > 8 {
		return 8
	}
	return d
}
