package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

// statsCmd represents the stats command
var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Prints delivery statistics per recipient.",
	Long:  "Prints how many notifications were delivered to, or failed for, every recipient in the change log.",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openChangeLog()
		if err != nil {
			return err
		}
		defer db.Close()

		stats, err := db.GetDeliveryStats(cmd.Context())
		if err != nil {
			return err
		}

		if len(stats) == 0 {
			fmt.Println("No deliveries in the change log yet.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "RECIPIENT\tSENT\tFAILED\tLAST ERROR\t")

		var totalSent, totalFailed int
		for _, s := range stats {
			fmt.Fprintf(w, "%s\t%d\t%d\t%s\t\n", s.Recipient, s.Sent, s.Failed, s.LastError)
			totalSent += s.Sent
			totalFailed += s.Failed
		}

		fmt.Fprintln(w, " \t \t \t \t")
		fmt.Fprintf(w, "TOTAL\t%d\t%d\t\t\n", totalSent, totalFailed)

		w.Flush()

		return nil
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
}
