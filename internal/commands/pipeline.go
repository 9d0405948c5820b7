// Package commands implements the podscribe CLI.
package commands

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/flightstudio/podscribe/internal/config"
	"github.com/flightstudio/podscribe/internal/fetcher"
	"github.com/flightstudio/podscribe/internal/jobs"
	"github.com/flightstudio/podscribe/internal/orchestrator"
	"github.com/flightstudio/podscribe/internal/statestore"
	"github.com/flightstudio/podscribe/internal/telemetry"
	"github.com/flightstudio/podscribe/internal/transcriber"
	"github.com/flightstudio/podscribe/internal/warehouse"
	"github.com/flightstudio/podscribe/pkg/types"
)

// configDir reads the persistent --config-dir flag.
func configDir(cmd *cobra.Command) string {
	dir, err := cmd.Flags().GetString("config-dir")
	if err != nil || dir == "" {
		return "."
	}
	return dir
}

// pipeline bundles everything a run needs, plus what must be torn down after.
type pipeline struct {
	cfg       *types.ProjectConfig
	store     statestore.Store
	wh        warehouse.Warehouse
	orch      *orchestrator.Orchestrator
	provider  *telemetry.Provider
	stopWatch context.CancelFunc
}

// buildPipeline assembles the full pipeline from podscribe.yaml. Components
// already running when a later constructor fails are torn down before the
// error is returned.
func buildPipeline(ctx context.Context, dir string) (*pipeline, error) {
	cfg, err := config.Load(dir)
	if err != nil {
		return nil, err
	}
	logger := slog.Default()

	p := &pipeline{cfg: cfg}
	built := false
	defer func() {
		if !built {
			p.close(context.WithoutCancel(ctx))
		}
	}()

	p.provider, err = telemetry.Setup(ctx, cfg.Telemetry)
	if err != nil {
		return nil, err
	}
	metrics, err := telemetry.NewMetrics()
	if err != nil {
		return nil, err
	}

	store, err := config.NewStore(cfg)
	if err != nil {
		return nil, err
	}
	if err := store.Start(ctx); err != nil {
		return nil, fmt.Errorf("starting state store: %w", err)
	}
	p.store = store

	client, err := transcriber.NewAssemblyAI(cfg.Transcriber)
	if err != nil {
		return nil, err
	}

	var events <-chan transcriber.CompletionEvent
	if cfg.Transcriber.CallbackQueueURL != "" {
		watcher, err := transcriber.NewCallbackWatcher(ctx, cfg.Transcriber, logger)
		if err != nil {
			return nil, err
		}
		watchCtx, cancel := context.WithCancel(ctx)
		p.stopWatch = cancel
		go func() { _ = watcher.Run(watchCtx) }()
		events = watcher.Events()
	}

	manager := jobs.New(client, store, jobs.Config{
		Run:    cfg.Run,
		Policy: cfg.Retry,
		Events: events,
	}, logger)

	wh, err := warehouse.NewPostgres(ctx, cfg.Warehouse)
	if err != nil {
		return nil, err
	}
	p.wh = wh
	if err := wh.EnsureSchema(ctx, cfg.Warehouse.Table); err != nil {
		return nil, err
	}
	loader := warehouse.NewLoader(wh, cfg.Warehouse, logger)

	source := fetcher.Guard(fetcher.NewYouTubeSource(), cfg.Run.RatePerSecond)
	fetch := fetcher.New(source, store, logger)

	p.orch = orchestrator.New(store, fetch, manager, loader, cfg.Channels, metrics, logger)
	built = true
	return p, nil
}

// close tears down whichever components exist; partially built pipelines are
// fine.
func (p *pipeline) close(ctx context.Context) {
	if p.stopWatch != nil {
		p.stopWatch()
	}
	if p.wh != nil {
		p.wh.Close()
	}
	if p.store != nil {
		if err := p.store.Stop(ctx); err != nil {
			slog.Warn("stopping state store failed", "error", err)
		}
	}
	if p.provider != nil {
		if err := p.provider.Shutdown(ctx); err != nil {
			slog.Warn("telemetry shutdown failed", "error", err)
		}
	}
}

func printSummary(run *types.RunState) {
	statusColor := color.GreenString
	switch run.Status {
	case types.RunFailed:
		statusColor = color.RedString
	case types.RunCancelled:
		statusColor = color.YellowString
	}

	fmt.Printf("run %s: %s\n", run.RunID, statusColor(string(run.Status)))
	fmt.Printf("  discovered:  %d\n", run.Summary.Discovered)
	fmt.Printf("  skipped:     %d\n", run.Summary.Skipped)
	fmt.Printf("  transcribed: %d\n", run.Summary.Transcribed)
	fmt.Printf("  loaded:      %d\n", run.Summary.Loaded)
	fmt.Printf("  failed:      %d\n", run.Summary.Failed)
	for kind, n := range run.Summary.Errors {
		fmt.Printf("    %s: %d\n", color.YellowString(string(kind)), n)
	}
}
