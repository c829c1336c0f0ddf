package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/teslashibe/go-respeaker/internal/log"
	"github.com/teslashibe/go-respeaker/pkg/hardware"
	"github.com/teslashibe/go-respeaker/pkg/pixelring"
)

var (
	demoEmulate bool
	demoHold    time.Duration
)

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Cycle the LED ring through every state",
	RunE:  runDemo,
}

func init() {
	demoCmd.Flags().BoolVar(&demoEmulate, "emulate", false, "use the in-memory LED ring instead of SPI hardware")
	demoCmd.Flags().DurationVar(&demoHold, "hold", 3*time.Second, "how long to hold each state")
	rootCmd.AddCommand(demoCmd)
}

func runDemo(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		printError("configuration", err)
		return err
	}
	log.Init(cfg.Log.Level, cfg.Log.Format)
	logger := log.Component("demo")

	profile, err := cfg.Profile()
	if err != nil {
		return err
	}

	var (
		strip hardware.Strip
		gpio  hardware.GPIO
		opts  = []pixelring.Option{pixelring.WithLogger(logger)}
	)
	if demoEmulate || cfg.Emulated() {
		strip, gpio = hardware.NewEmulatedStrip(logger), hardware.NewEmulatedGPIO()
		opts = append(opts, pixelring.WithPowerSettle(0))
	} else {
		strip, gpio = hardware.NewAPA102(logger), hardware.NewSysfsGPIO(logger)
	}

	engine, err := pixelring.New(profile, strip, gpio, opts...)
	if err != nil {
		printError("pixel ring", err)
		return err
	}
	defer engine.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	ctrl := engine.Controller()
	for _, s := range pixelring.States() {
		fmt.Fprintf(cmd.OutOrStdout(), "%-18s enabled=%v\n", s, profile.IsEnabled(s))
		ctrl.RequestState(s)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(demoHold):
		}
	}

	st := engine.Stats()
	fmt.Fprintf(cmd.OutOrStdout(), "done: %d frames, %d transitions, %d render errors\n",
		st.Frames, st.Transitions, st.RenderErrors)
	return nil
}
