package cmd

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/sw33tLie/rankbot/pkg/render"
)

var top10Cmd = &cobra.Command{
	Use:   "top10",
	Short: "Print the top 10 of the last saved snapshot",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openSnapshotStore()
		if err != nil {
			return err
		}
		set := store.Current()
		if set == nil {
			fmt.Println("No snapshot saved yet. Run `rankbot run` first.")
			return nil
		}
		fmt.Print(render.Text(render.Top10(*set, nil)))
		fmt.Printf("(observed %s)\n", humanize.Time(set.ObservedAt))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(top10Cmd)
}
