package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/sw33tLie/rankbot/internal/utils"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

var cfgFile string

const (
	LOGO = `                 _    _           _
	 _ __ __ _ _ __ | | _| |__   ___ | |_
	| '__/ _' | '_ \| |/ / '_ \ / _ \| __|
	| | | (_| | | | |   <| |_) | (_) | |_
	|_|  \__,_|_| |_|_|\_\_.__/ \___/ \__|

`
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "rankbot",
	Short: "Leaderboard change notifications for hackathon teams.",
	Long: LOGO + `rankbot watches a hackathon dashboard, works out how every team moved since the
last look, and tells subscribers on Discord about the teams they follow.`,
	CompletionOptions: cobra.CompletionOptions{
		DisableDefaultCmd: true,
	},
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.rankbot.yaml)")

	// Global flags
	rootCmd.PersistentFlags().StringP("proxy", "", "", "HTTP Proxy (Useful for debugging. Example: http://127.0.0.1:8080)")
	rootCmd.PersistentFlags().StringP("loglevel", "l", "info", "Set log level. Available: debug, info, warn, error, fatal")
	rootCmd.PersistentFlags().String("state-dir", "", "Directory holding snapshot.json, subscribers.json and changes.sqlite (default is $HOME/.config/rankbot)")
	viper.BindPFlag("state.dir", rootCmd.PersistentFlags().Lookup("state-dir"))
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := homedir.Dir()
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}
		viper.AddConfigPath(home)
		viper.SetConfigName(".rankbot")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("rankbot")
	viper.SetEnvKeyReplacer(envKeyReplacer)
	viper.AutomaticEnv()

	// Set defaults before a fresh config file gets written.
	viper.SetDefault("leaderboard.source", "dashboard")
	viper.SetDefault("leaderboard.url", "https://brihackathon.id/dashboard")
	viper.SetDefault("leaderboard.cookie", "")
	viper.SetDefault("leaderboard.contests", []string{"People Analytics", "Cash Ratio Optimization"})
	viper.SetDefault("leaderboard.timeout", 30*time.Second)
	viper.SetDefault("discord.token", "")
	viper.SetDefault("discord.operator", "")
	viper.SetDefault("poll.interval", time.Minute)
	viper.SetDefault("server.listen", "127.0.0.1:8080")
	viper.SetDefault("server.username", "")
	viper.SetDefault("server.password", "")
	viper.SetDefault("notify.vanished", false)

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok && cfgFile == "" {
			// Config file not found; create it with defaults.
			home, _ := homedir.Dir()
			configPath := home + "/.rankbot.yaml"
			if err := viper.SafeWriteConfigAs(configPath); err != nil {
				fmt.Printf("Error creating config file: %s", err)
			}
		}
	}

	// Init log library
	levelString, _ := rootCmd.PersistentFlags().GetString("loglevel")
	utils.SetLogLevel(levelString)
}
