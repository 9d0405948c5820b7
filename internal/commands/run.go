package commands

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// NewRunCmd creates the run command.
func NewRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Execute one pipeline run over all configured channels",
		Long: `Discovers episodes published past each channel's high-water mark,
transcribes them, and loads the transcripts into the warehouse. Work left
unfinished by an interrupted run is picked up first.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runOnce(cmd)
		},
	}
}

func runOnce(cmd *cobra.Command) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	p, err := buildPipeline(ctx, configDir(cmd))
	if err != nil {
		return err
	}
	defer p.close(context.WithoutCancel(ctx))

	run, err := p.orch.Run(ctx)
	if run != nil {
		printSummary(run)
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
