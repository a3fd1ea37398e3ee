package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nateschmiedehaus/librarian/internal/freshness"
	"github.com/nateschmiedehaus/librarian/internal/model"
)

var bootstrapStatusCmd = &cobra.Command{
	Use:   "bootstrap-status",
	Short: "Report whether the Knowledge Store needs a fresh bootstrap",
	Long: `Runs the Freshness Gate's bootstrap check and prints its verdict
without answering any query. Exits 2 when a bootstrap is required.`,
	RunE: runBootstrapStatus,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Watch the workspace and keep freshness state current",
	Long: `Starts the filesystem watcher that debounces change events and
records a periodic heartbeat and the last reconcile time in the Freshness
Gate's watch state. The watcher does not set needs_catchup.`,
	RunE: runServe,
}

func runBootstrapStatus(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	st, cfg, err := openStore(workspace)
	if err != nil {
		return err
	}
	defer st.Close()

	gate := freshness.NewGate(st, model.Version{Major: 1, Minor: 0, QualityTier: model.QualityFull}, time.Duration(cfg.Freshness.ReconcileWindowSeconds)*time.Second, true)
	decision, err := gate.IsBootstrapRequired(ctx, workspace, nil, nil)
	if err != nil {
		return fmt.Errorf("checking freshness gate: %w", err)
	}

	if decision.Required {
		fmt.Printf("bootstrap required: %s\n", decision.Reason)
		for _, d := range decision.Disclosures {
			fmt.Printf("  - %s\n", d)
		}
		os.Exit(2)
	}
	fmt.Println("bootstrap not required")
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	st, _, err := openStore(workspace)
	if err != nil {
		return err
	}
	defer st.Close()

	ignore := freshness.LoadIgnoreSet(workspace)
	watcher, err := freshness.NewWatcher(workspace, st, ignore)
	if err != nil {
		return fmt.Errorf("building watcher: %w", err)
	}
	if err := watcher.Start(ctx); err != nil {
		return fmt.Errorf("starting watcher: %w", err)
	}
	defer watcher.Stop()

	logger.Info("watching workspace for changes", zap.String("workspace", workspace))
	<-ctx.Done()
	logger.Info("shutting down watcher")
	return nil
}
