package main

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/samaelod/netprobe/tui"
)

var version = "dev"

func main() {
	// The UI owns the terminal; diagnostics only go to debug.log in dev builds
	logrus.SetOutput(io.Discard)
	if version == "dev" {
		f, err := os.OpenFile("debug.log", os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
		if err == nil {
			defer f.Close()
			logrus.SetOutput(f)
			logrus.SetLevel(logrus.DebugLevel)
		}
	}

	if err := tui.Run(version); err != nil {
		logrus.WithError(err).Error("netprobe exited")
		os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}
}
