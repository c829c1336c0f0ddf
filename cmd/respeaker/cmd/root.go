// Package cmd holds the respeaker command tree.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/teslashibe/go-respeaker/internal/config"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "respeaker",
	Short: "ReSpeaker voice assistant front end",
	Long: `respeaker drives the ReSpeaker LED ring, listens for the wake word and
streams the following speech to a recognizer over WebSocket.

Wake and sleep are announced over MQTT so other devices can react.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (.json or .yaml); defaults apply when empty")
}

// loadConfig reads --config, or validates the defaults when it is unset.
func loadConfig() (config.Config, error) {
	if cfgFile != "" {
		return config.Load(cfgFile)
	}
	cfg := config.Default()
	cfg.ApplyEnv(os.Getenv)
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func printError(msg string, err error) {
	fmt.Fprintf(os.Stderr, "Error: %s: %v\n", msg, err)
}
