// Package cmd provides the autotrack command-line interface.
//
// Configuration is read, highest priority first, from command-line flags,
// AUTOTRACK_<SECTION>_<OPTION> environment variables and the config file.
// The config file is the --config flag, else AUTOTRACK_CONFIG_FILE, else
// .autotrack.yml in the current directory.
package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/conneroisu/autotrack/internal/config"
	"github.com/conneroisu/autotrack/internal/logging"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "autotrack",
	Short: "Automatic interaction tracking for tagged HTML pages",
	Long: `Autotrack watches a page for elements carrying tagging attributes and turns
presses, input changes and visibility changes into analytics events, each
with the location stack of the element that produced it.

Quick Start:
  autotrack demo --out page.html     Render a tagged demo page
  autotrack scan page.html           List tracked elements and their stacks
  autotrack replay checkout.yml      Replay a scripted session, print events
  autotrack watch page.html --stream Re-track the page on every save and
                                     stream events over a websocket`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .autotrack.yml, can also use AUTOTRACK_CONFIG_FILE env var)")
	rootCmd.PersistentFlags().StringP("log-level", "l", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "text", "log format (text, json)")
	_ = viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("log.format", rootCmd.PersistentFlags().Lookup("log-format"))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else if envConfigFile := os.Getenv("AUTOTRACK_CONFIG_FILE"); envConfigFile != "" {
		viper.SetConfigFile(envConfigFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".autotrack")
	}

	viper.SetEnvPrefix("AUTOTRACK")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// loadRuntime loads the configuration and builds the logger every command
// logs through. Logs go to stderr so stdout stays machine readable.
func loadRuntime(cmd *cobra.Command) (*config.Config, logging.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, nil, err
	}
	logger := logging.NewLogger(&logging.LoggerConfig{
		Level:     level,
		Format:    cfg.Log.Format,
		Output:    cmd.ErrOrStderr(),
		AddSource: cfg.Log.AddSource,
		Component: "cli",
	})
	return cfg, logger, nil
}
