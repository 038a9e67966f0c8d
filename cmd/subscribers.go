package cmd

import (
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"github.com/sw33tLie/rankbot/pkg/storage"
)

var subscribersCmd = &cobra.Command{
	Use:   "subscribers",
	Short: "List subscribers and what they follow",
	RunE: func(cmd *cobra.Command, args []string) error {
		registry, err := openRegistry()
		if err != nil {
			return err
		}
		printSubscribers(registry.List())
		return nil
	},
}

func printSubscribers(subs []storage.Subscriber) {
	t := tablewriter.NewWriter(os.Stdout)
	t.SetHeader([]string{"ID", "Channel", "Subscriptions", "Since"})
	t.SetAutoWrapText(false)
	for _, s := range subs {
		t.Append([]string{s.ID, string(s.ChannelKind), strings.Join(s.Subscriptions, ", "), humanize.Time(s.CreatedAt)})
	}
	t.Render()
}

var subCmd = &cobra.Command{
	Use:   "sub <subscriber id> <team|top10>",
	Short: "Subscribe a recipient to a team or to the top 10",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return changeSubscription(cmd, args, true)
	},
}

var unsubCmd = &cobra.Command{
	Use:   "unsub <subscriber id> <team|top10>",
	Short: "Remove a subscription",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return changeSubscription(cmd, args, false)
	},
}

func changeSubscription(cmd *cobra.Command, args []string, subscribe bool) error {
	kindFlag, _ := cmd.Flags().GetString("channel")
	kind, err := storage.ParseChannelKind(kindFlag)
	if err != nil {
		return err
	}

	wait, _ := cmd.Flags().GetBool("wait")
	lock, err := lockState(wait)
	if err != nil {
		return err
	}
	defer lock.Unlock()

	registry, err := openRegistry()
	if err != nil {
		return err
	}
	store, err := openSnapshotStore()
	if err != nil {
		return err
	}

	id := args[0]
	target := storage.NormalizeTarget(strings.Join(args[1:], " "))
	target = store.Current().CanonicalTeamName(target)

	if subscribe {
		res, err := registry.Subscribe(id, kind, target)
		if err != nil {
			return err
		}
		if res == storage.AlreadySubscribed {
			cmd.Printf("%s is already subscribed to %s\n", id, target)
		} else {
			cmd.Printf("%s is now subscribed to %s\n", id, target)
		}
		return nil
	}

	res, err := registry.Unsubscribe(id, kind, target)
	if err != nil {
		return err
	}
	if res == storage.NotSubscribed {
		cmd.Printf("%s is not subscribed to %s\n", id, target)
	} else {
		cmd.Printf("%s is no longer subscribed to %s\n", id, target)
	}
	return nil
}

func init() {
	rootCmd.AddCommand(subscribersCmd)
	rootCmd.AddCommand(subCmd)
	rootCmd.AddCommand(unsubCmd)
	for _, c := range []*cobra.Command{subCmd, unsubCmd} {
		c.Flags().String("channel", "direct", "Channel kind of a new subscriber: direct or group")
		c.Flags().Bool("wait", false, "Wait for the state lock instead of failing when another rankbot process holds it")
	}
}
