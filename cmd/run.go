package cmd

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/sw33tLie/rankbot/internal/server"
	"github.com/sw33tLie/rankbot/internal/utils"
	"github.com/sw33tLie/rankbot/pkg/bot"
	"github.com/sw33tLie/rankbot/pkg/diff"
	"github.com/sw33tLie/rankbot/pkg/metrics"
	"github.com/sw33tLie/rankbot/pkg/notify"
	"github.com/sw33tLie/rankbot/pkg/polling"
	"github.com/sw33tLie/rankbot/pkg/storage"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Poll the leaderboard, notify subscribers and serve the command API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		lock, err := lockState(false)
		if err != nil {
			return err
		}
		defer lock.Unlock()

		store, err := openSnapshotStore()
		if err != nil {
			return err
		}
		registry, err := openRegistry()
		if err != nil {
			return err
		}
		db, err := openChangeLog()
		if err != nil {
			return err
		}
		defer db.Close()

		f, err := newFetcher(cmd)
		if err != nil {
			return err
		}
		deliverer, err := newDeliverer(cmd)
		if err != nil {
			return err
		}

		m := metrics.New()
		m.Subscribers(len(registry.List()))
		reporter := &notify.OperatorReporter{
			Deliverer: deliverer,
			Operator:  notify.Recipient{ID: viper.GetString("discord.operator"), Kind: storage.ChannelDirect},
			Log:       utils.Log,
		}
		dispatcher := notify.NewDispatcher(notify.Config{
			Deliverer: deliverer,
			Reporter:  reporter,
			Diff:      diff.Options{ReportVanished: viper.GetBool("notify.vanished")},
			Log:       utils.Log,
			Metrics:   m,
		})

		cycle := polling.CycleConfig{
			Fetcher:    f,
			Store:      store,
			Registry:   registry,
			Dispatcher: dispatcher,
			Reporter:   reporter,
			DB:         db,
			Metrics:    m,
			Log:        utils.Log,
		}

		noServer, _ := cmd.Flags().GetBool("no-server")
		errCh := make(chan error, 2)
		workers := 1
		if !noServer {
			workers++
			srv := &server.Server{
				Store:    store,
				Registry: registry,
				DB:       db,
				Bot:      bot.NewHandler(registry, store, m),
				Metrics:  m,
				Username: viper.GetString("server.username"),
				Password: viper.GetString("server.password"),
			}
			go func() { errCh <- srv.Start(ctx, viper.GetString("server.listen")) }()
		}

		interval := viper.GetDuration("poll.interval")
		utils.Log.Infof("Polling %s every %s", f.Name(), interval)
		go func() { errCh <- polling.Run(ctx, cycle, interval) }()

		// The deferred db.Close and lock.Unlock must not run under a cycle in flight.
		return awaitWorkers(errCh, workers, stop)
	},
}

// awaitWorkers waits for the first of n workers to finish, cancels the others
// with stop and returns only once all of them have sent their result.
func awaitWorkers(errCh <-chan error, n int, stop context.CancelFunc) error {
	var first error
	for i := 0; i < n; i++ {
		err := <-errCh
		if i == 0 {
			stop()
		}
		if first == nil && err != nil && !errors.Is(err, context.Canceled) {
			first = err
		}
	}
	return first
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().Bool("no-server", false, "Do not start the HTTP command API")
}
