package commands

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

// NewBackfillCmd creates the backfill command.
func NewBackfillCmd() *cobra.Command {
	var channel, sinceStr string

	cmd := &cobra.Command{
		Use:   "backfill",
		Short: "Fetch a channel's back catalog from an explicit date",
		Long: `Discovers episodes for one channel published after --since, reaching
behind the stored high-water mark, then transcribes and loads them. The mark
never moves backwards.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBackfill(cmd, channel, sinceStr)
		},
	}

	cmd.Flags().StringVar(&channel, "channel", "", "channel ID to backfill (required)")
	cmd.Flags().StringVar(&sinceStr, "since", "", "fetch floor, RFC3339 (required)")
	_ = cmd.MarkFlagRequired("channel")
	_ = cmd.MarkFlagRequired("since")
	return cmd
}

func runBackfill(cmd *cobra.Command, channel, sinceStr string) error {
	since, err := time.Parse(time.RFC3339, sinceStr)
	if err != nil {
		return fmt.Errorf("--since must be RFC3339 (e.g. 2021-08-22T00:00:00Z): %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	p, err := buildPipeline(ctx, configDir(cmd))
	if err != nil {
		return err
	}
	defer p.close(context.WithoutCancel(ctx))

	run, err := p.orch.Backfill(ctx, channel, since)
	if run != nil {
		printSummary(run)
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
