package cmd

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/sw33tLie/rankbot/pkg/leaderboard"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the last saved snapshot as CSV",
	RunE: func(cmd *cobra.Command, args []string) error {
		output, _ := cmd.Flags().GetString("output")

		store, err := openSnapshotStore()
		if err != nil {
			return err
		}
		set := store.Current()
		if set == nil {
			return fmt.Errorf("no snapshot saved yet")
		}

		var w io.Writer = os.Stdout
		if output != "" && output != "-" {
			f, err := os.Create(output)
			if err != nil {
				return err
			}
			defer f.Close()
			w = f
		}
		return writeCSV(w, *set)
	},
}

func writeCSV(w io.Writer, set leaderboard.SnapshotSet) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"contest", "rank", "name", "score", "submitted_at"}); err != nil {
		return err
	}
	for _, name := range set.Contests {
		for _, t := range set.Snapshots[name].Teams {
			row := []string{name, strconv.Itoa(t.Rank), t.Name, leaderboard.FormatScore(t.Score), t.SubmittedAt}
			if err := cw.Write(row); err != nil {
				return err
			}
		}
	}
	cw.Flush()
	return cw.Error()
}

func init() {
	rootCmd.AddCommand(exportCmd)
	exportCmd.Flags().StringP("output", "o", "", "Output file (default: stdout)")
}
