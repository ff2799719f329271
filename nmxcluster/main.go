// Command nmxcluster decodes NMX readout files and reconstructs events.
package main

import (
	"log/slog"
	"os"

	nmx "github.com/ess-dmsc/events-nmx-classify-sub001/pkg"
	"github.com/ess-dmsc/events-nmx-classify-sub001/pkg/conditions"
)

var configuration nmx.Configuration

var (
	logger         Logger
	VerbosityLevel int
)

func init() {
	opts := &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}
	handlerStdOut := NewHandler(os.Stdout, opts)
	handlerStdErr := slog.NewJSONHandler(os.Stderr, opts)
	logger = Logger{
		InfoLog:  slog.New(handlerStdOut),
		ErrorLog: slog.New(handlerStdErr),
	}
}

func main() {
	nmx.SetLogger(logger)
	conditions.SetLogger(logger)

	if err := NewRootCommand().Execute(); err != nil {
		logger.Error(err.Error())
		os.Exit(1)
	}
}
