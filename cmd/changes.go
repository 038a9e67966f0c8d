package cmd

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var changesCmd = &cobra.Command{
	Use:   "changes",
	Short: "Show recent change events (default 50)",
	RunE: func(cmd *cobra.Command, _ []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		team, _ := cmd.Flags().GetString("team")

		db, err := openChangeLog()
		if err != nil {
			return err
		}
		defer db.Close()
		changes, err := db.ListRecentChanges(cmd.Context(), team, limit)
		if err != nil {
			return err
		}
		for _, c := range changes {
			ts := c.OccurredAt.Format("2006-01-02 15:04:05")
			fmt.Printf("%s  %-14s  %-22s  %s  %s  (for %s)\n", ts, humanize.Time(c.OccurredAt), c.Kind, c.Contest, c.Team, c.Target)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(changesCmd)
	changesCmd.Flags().Int("limit", 50, "Number of recent changes to show")
	changesCmd.Flags().String("team", "", "Only show changes of this team")
}
