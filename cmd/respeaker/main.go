// ReSpeaker voice front end: LED ring feedback, wake word sessions and
// audio streaming to a speech recognizer.
package main

import (
	"os"

	"github.com/teslashibe/go-respeaker/cmd/respeaker/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
