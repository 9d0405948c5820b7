package commands

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/flightstudio/podscribe/internal/config"
)

// NewInitCmd creates the init command.
func NewInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a starter podscribe.yaml",
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, err := config.WriteDefault(configDir(cmd))
			if err != nil {
				return err
			}
			fmt.Printf("%s %s\n", color.GreenString("wrote"), path)
			fmt.Println("edit the channel list, then run: podscribe run")
			return nil
		},
	}
}
