package cmd

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/teslashibe/go-respeaker/internal/config"
	"github.com/teslashibe/go-respeaker/internal/log"
	"github.com/teslashibe/go-respeaker/pkg/assistant"
)

var (
	runEmulate   bool
	runMockAudio bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the voice front end",
	Long: `Run brings up the LED ring, the recognizer connection, MQTT and the
audio pipeline, then handles wake word sessions until interrupted.`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().BoolVar(&runEmulate, "emulate", false, "use the in-memory LED ring instead of SPI hardware")
	runCmd.Flags().BoolVar(&runMockAudio, "mock-audio", false, "use the synthetic audio pipeline instead of the DSP sidecar")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		printError("configuration", err)
		return err
	}
	if runMockAudio {
		cfg.Audio.Source = config.SourceMock
	}
	log.Init(cfg.Log.Level, cfg.Log.Format)
	logger := log.Component("respeaker")

	app, err := assistant.New(cfg, assistant.Options{
		Emulate:   runEmulate,
		MockAudio: runMockAudio,
		Logger:    logger,
	})
	if err != nil {
		printError("configuration", err)
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := app.Init(ctx); err != nil {
		printError("initialization", err)
		return err
	}
	defer func() {
		if err := app.Shutdown(); err != nil {
			logger.Warn("shutdown", "error", err)
		}
	}()

	if err := app.Run(ctx); err != nil {
		printError("runtime", err)
		return err
	}
	return nil
}
