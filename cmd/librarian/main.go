// Package main implements the librarian CLI, the operator-facing surface
// over internal/librarian's query-answering service.
//
// File index:
//   - main.go          - entry point, rootCmd, global flags, service bootstrap
//   - cmd_query.go     - queryCmd, runQuery()
//   - cmd_feedback.go  - feedbackCmd, runFeedback()
//   - cmd_bootstrap.go - bootstrapStatusCmd, serveCmd
//   - render.go         - human-readable envelope formatting
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nateschmiedehaus/librarian/internal/config"
	"github.com/nateschmiedehaus/librarian/internal/embedding"
	"github.com/nateschmiedehaus/librarian/internal/librarian"
	"github.com/nateschmiedehaus/librarian/internal/logging"
	"github.com/nateschmiedehaus/librarian/internal/model"
	"github.com/nateschmiedehaus/librarian/internal/observability"
	"github.com/nateschmiedehaus/librarian/internal/store"
)

var (
	workspace  string
	jsonOutput bool
	timeout    time.Duration

	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "librarian",
	Short: "Local code-intelligence query service",
	Long: `librarian answers natural-language questions about a codebase by
assembling context packs from a local Knowledge Store, escalating depth
when the first pass is insufficient, and learning from feedback on what it
returned.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		logger, err = zap.NewProduction()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		ws := workspace
		if ws == "" {
			ws, _ = os.Getwd()
		}
		workspace = ws

		cfg, err := loadConfig(ws)
		if err != nil {
			return err
		}
		if err := logging.Initialize(ws, cfg.Logging.ToLoggingConfig()); err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to initialize file logging: %v\n", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
		logging.CloseAll()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&workspace, "workspace", "w", "", "Workspace directory (default: current)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Emit machine-readable JSON instead of formatted text")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Second, "Overall query deadline")

	rootCmd.AddCommand(queryCmd, feedbackCmd, bootstrapStatusCmd, serveCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCodeFor(err))
	}
}

func loadConfig(ws string) (*config.Config, error) {
	path := filepath.Join(ws, "librarian.config.yaml")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

// openStore opens the Knowledge Store at the workspace's configured
// database path, the shared first step every subcommand needs.
func openStore(ws string) (*store.Store, *config.Config, error) {
	cfg, err := loadConfig(ws)
	if err != nil {
		return nil, nil, err
	}

	dbPath := cfg.Store.DatabasePath
	if !filepath.IsAbs(dbPath) {
		dbPath = filepath.Join(ws, dbPath)
	}
	st, err := store.Open(dbPath)
	if err != nil {
		return nil, nil, fmt.Errorf("opening knowledge store: %w", err)
	}
	return st, cfg, nil
}

// bootService opens the Knowledge Store and wires a Service from the
// loaded config, returning a closer the caller must invoke.
func bootService(ctx context.Context, ws string) (*librarian.Service, func() error, error) {
	st, cfg, err := openStore(ws)
	if err != nil {
		return nil, nil, err
	}

	engine, err := embedding.NewEngine(cfg.Embedding)
	if err != nil {
		st.Close()
		return nil, nil, fmt.Errorf("building embedding engine: %w", err)
	}

	recorder, err := observability.NewRecorder(ws, st, nil)
	if err != nil {
		st.Close()
		return nil, nil, fmt.Errorf("building observability recorder: %w", err)
	}

	meta, err := st.GetMetadata(ctx)
	if err != nil {
		st.Close()
		return nil, nil, fmt.Errorf("reading store metadata: %w", err)
	}
	version := model.Version{
		Major:       1,
		Minor:       0,
		IndexedAt:   meta.LastIndexing,
		QualityTier: model.QualityFull,
	}

	svc := librarian.New(st, ws, version, *cfg, engine, recorder)
	closer := func() error {
		_ = recorder.Close()
		return st.Close()
	}
	return svc, closer, nil
}

func exitCodeFor(err error) int {
	var libErr *librarian.Error
	if e, ok := err.(*librarian.Error); ok {
		libErr = e
	}
	if libErr == nil {
		return 1
	}
	switch libErr.Kind {
	case librarian.KindBootstrapRequired:
		return 2
	case librarian.KindInvalidInput:
		return 3
	case librarian.KindTimeout, librarian.KindCancelled:
		return 4
	default:
		return 1
	}
}
