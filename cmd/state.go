package cmd

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/sw33tLie/rankbot/internal/utils"
	"github.com/sw33tLie/rankbot/pkg/discord"
	"github.com/sw33tLie/rankbot/pkg/fetcher"
	"github.com/sw33tLie/rankbot/pkg/fetcher/dashboard"
	"github.com/sw33tLie/rankbot/pkg/fetcher/dev"
	"github.com/sw33tLie/rankbot/pkg/notify"
	"github.com/sw33tLie/rankbot/pkg/render"
	"github.com/sw33tLie/rankbot/pkg/storage"
)

var envKeyReplacer = strings.NewReplacer(".", "_")

const (
	snapshotFile    = "snapshot.json"
	subscribersFile = "subscribers.json"
	changeLogFile   = "changes.sqlite"
)

func stateDir() (string, error) {
	return utils.GetAbsStateDir(viper.GetString("state.dir"))
}

// trackedContests accepts both a YAML list and a comma-separated env value.
func trackedContests() []string {
	if s, ok := viper.Get("leaderboard.contests").(string); ok {
		return utils.SplitList(s)
	}
	return viper.GetStringSlice("leaderboard.contests")
}

// lockState takes the state lock. Without wait it refuses to run next to another
// owner such as `rankbot run`; with wait it blocks until that owner exits.
func lockState(wait bool) (*utils.StateLock, error) {
	dir, err := stateDir()
	if err != nil {
		return nil, err
	}
	lock, err := utils.NewStateLock(dir)
	if err != nil {
		return nil, err
	}
	if wait {
		if err := lock.Lock(); err != nil {
			return nil, err
		}
		return lock, nil
	}
	locked, err := lock.TryLock()
	if err != nil {
		return nil, err
	}
	if !locked {
		return nil, fmt.Errorf("another rankbot process owns %s; use its HTTP API or pass --wait", dir)
	}
	return lock, nil
}

func openSnapshotStore() (*storage.SnapshotStore, error) {
	dir, err := stateDir()
	if err != nil {
		return nil, err
	}
	return storage.OpenSnapshotStore(filepath.Join(dir, snapshotFile), trackedContests())
}

func openRegistry() (*storage.Registry, error) {
	dir, err := stateDir()
	if err != nil {
		return nil, err
	}
	return storage.OpenRegistry(filepath.Join(dir, subscribersFile))
}

func openChangeLog() (*storage.DB, error) {
	dir, err := stateDir()
	if err != nil {
		return nil, err
	}
	return storage.Open(filepath.Join(dir, changeLogFile))
}

func newFetcher(cmd *cobra.Command) (fetcher.Fetcher, error) {
	switch source := viper.GetString("leaderboard.source"); source {
	case "dev":
		return dev.New(trackedContests()), nil
	case "dashboard", "":
		proxy, _ := cmd.Flags().GetString("proxy")
		return dashboard.New(dashboard.Config{
			URL:      viper.GetString("leaderboard.url"),
			Cookie:   viper.GetString("leaderboard.cookie"),
			Contests: trackedContests(),
			Timeout:  viper.GetDuration("leaderboard.timeout"),
			Proxy:    proxy,
		})
	default:
		return nil, fmt.Errorf("unknown leaderboard source %q (available: dashboard, dev)", source)
	}
}

// newDeliverer returns the Discord client, or a deliverer that only logs when no
// bot token is configured.
func newDeliverer(cmd *cobra.Command) (notify.Deliverer, error) {
	token := viper.GetString("discord.token")
	if token == "" {
		utils.Log.Warn("No discord.token configured, notifications will only be logged.")
		return logDeliverer{}, nil
	}
	proxy, _ := cmd.Flags().GetString("proxy")
	return discord.New(discord.Config{Token: token, Proxy: proxy, Timeout: viper.GetDuration("leaderboard.timeout")})
}

type logDeliverer struct{}

func (logDeliverer) Deliver(_ context.Context, to notify.Recipient, msg render.Message) error {
	utils.Log.Infof("Message for %s (%s):\n%s", to.ID, to.Kind, render.Text(msg))
	return nil
}
