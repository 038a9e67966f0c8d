package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/sw33tLie/rankbot/pkg/render"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Fetch the leaderboard once and print it, without touching the saved state",
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := newFetcher(cmd)
		if err != nil {
			return err
		}
		set, err := f.Fetch(cmd.Context())
		if err != nil {
			return err
		}
		if err := set.Validate(); err != nil {
			return err
		}
		fmt.Print(render.Text(render.Top10(set, nil)))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(fetchCmd)
}
