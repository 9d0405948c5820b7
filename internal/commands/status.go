package commands

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/flightstudio/podscribe/internal/config"
	"github.com/flightstudio/podscribe/pkg/types"
)

// NewStatusCmd creates the status command.
func NewStatusCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show recent pipeline runs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return showStatus(cmd, limit)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 10, "number of runs to show")
	return cmd
}

func showStatus(cmd *cobra.Command, limit int) error {
	cfg, err := config.Load(configDir(cmd))
	if err != nil {
		return err
	}
	store, err := config.NewStore(cfg)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if err := store.Start(ctx); err != nil {
		return fmt.Errorf("starting state store: %w", err)
	}
	defer func() { _ = store.Stop(ctx) }()

	runs, err := store.ListRuns(ctx, limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("no runs recorded")
		return nil
	}

	for _, run := range runs {
		fmt.Printf("%s  %s  %-12s  discovered=%d transcribed=%d loaded=%d failed=%d\n",
			run.StartedAt.Format("2006-01-02 15:04:05"),
			run.RunID,
			statusString(run.Status),
			run.Summary.Discovered,
			run.Summary.Transcribed,
			run.Summary.Loaded,
			run.Summary.Failed)
	}

	pending, err := store.ListEpisodeStates(ctx,
		types.EpisodeDiscovered, types.EpisodeTranscribing, types.EpisodeTranscribed, types.EpisodeFailed)
	if err != nil {
		return err
	}
	if len(pending) > 0 {
		counts := make(map[types.ProcessingState]int)
		for _, st := range pending {
			counts[st.State]++
		}
		fmt.Println("\nepisodes not yet loaded:")
		for _, state := range []types.ProcessingState{
			types.EpisodeDiscovered, types.EpisodeTranscribing, types.EpisodeTranscribed, types.EpisodeFailed,
		} {
			if counts[state] > 0 {
				fmt.Printf("  %-13s %d\n", state, counts[state])
			}
		}
	}
	return nil
}

func statusString(status types.RunStatus) string {
	switch status {
	case types.RunCompleted:
		return color.GreenString(string(status))
	case types.RunFailed:
		return color.RedString(string(status))
	case types.RunCancelled:
		return color.YellowString(string(status))
	default:
		return color.CyanString(string(status))
	}
}
