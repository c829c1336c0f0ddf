package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/teslashibe/go-respeaker/internal/httpc"
	"github.com/teslashibe/go-respeaker/pkg/pixelring"
	"github.com/teslashibe/go-respeaker/pkg/web"
)

var statusAddr string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the status of a running device",
	RunE:  runStatus,
}

var stateCmd = &cobra.Command{
	Use:   "state <name>",
	Short: "Request an LED ring state on a running device",
	Long: `Request an LED ring state on a running device.

Names: idle, listening, speaking, muting (to_mute),
unmuting (to_unmute), disabled.`,
	Args: cobra.ExactArgs(1),
	RunE: runState,
}

var (
	hotwordAngle int
	hotwordIndex int
)

var hotwordCmd = &cobra.Command{
	Use:   "hotword",
	Short: "Inject a wake word into a device running with --mock-audio",
	Args:  cobra.NoArgs,
	RunE:  runHotword,
}

func init() {
	statusCmd.Flags().StringVar(&statusAddr, "addr", "http://localhost:8080", "status server base URL")
	stateCmd.Flags().StringVar(&statusAddr, "addr", "http://localhost:8080", "status server base URL")
	hotwordCmd.Flags().StringVar(&statusAddr, "addr", "http://localhost:8080", "status server base URL")
	hotwordCmd.Flags().IntVar(&hotwordAngle, "angle", 0, "direction of the speaker in degrees")
	hotwordCmd.Flags().IntVar(&hotwordIndex, "index", 1, "wake word index")
	rootCmd.AddCommand(statusCmd, stateCmd, hotwordCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var st web.Status
	if err := httpc.GetJSON(ctx, statusAddr+"/api/status", &st); err != nil {
		printError("status", err)
		return err
	}

	w := cmd.OutOrStdout()
	fmt.Fprintln(w, "ReSpeaker Status")
	fmt.Fprintln(w, "================")
	fmt.Fprintf(w, "  %-16s %s\n", "state", st.State)
	fmt.Fprintf(w, "  %-16s %s\n", "uptime", st.Uptime)
	fmt.Fprintf(w, "  %-16s %s\n", "asr", connected(st.ASRConnected))
	fmt.Fprintf(w, "  %-16s %s\n", "mqtt", connected(st.MQTTConnected))
	if st.Session.Active {
		fmt.Fprintf(w, "  %-16s active since %s (direction %d)\n", "session",
			st.Session.DetectedAt.Format(time.TimeOnly), st.Session.Direction)
	} else {
		fmt.Fprintf(w, "  %-16s inactive\n", "session")
	}
	fmt.Fprintf(w, "  %-16s %d started, %d timed out, %d by transcript\n", "sessions",
		st.Sessions.Started, st.Sessions.EndedByTimeout, st.Sessions.EndedByTranscript)
	fmt.Fprintf(w, "  %-16s %d sent, %d dropped\n", "chunks",
		st.Sessions.ChunksSent, st.Sessions.ChunksDropped)
	return nil
}

func runState(cmd *cobra.Command, args []string) error {
	s, err := pixelring.ParseState(args[0])
	if err != nil {
		printError("state", err)
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := httpc.PostJSON(ctx, statusAddr+"/api/state/"+s.String(), nil, nil); err != nil {
		printError("request state", err)
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "requested %s\n", s)
	return nil
}

func runHotword(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := fmt.Sprintf("%s/api/hotword?index=%d&angle=%d", statusAddr, hotwordIndex, hotwordAngle)
	if err := httpc.PostJSON(ctx, url, nil, nil); err != nil {
		var se *httpc.StatusError
		if errors.As(err, &se) && se.Code == http.StatusConflict {
			err = fmt.Errorf("device is not running with mock audio: %w", err)
		}
		printError("hotword", err)
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "wake word %d injected at %d degrees\n", hotwordIndex, hotwordAngle)
	return nil
}

func connected(ok bool) string {
	if ok {
		return "connected"
	}
	return "disconnected"
}
