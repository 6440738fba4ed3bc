package util

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	log "github.com/sirupsen/logrus"

	"github.com/sidkik/scratchsync/pkg/config"
	"github.com/sidkik/scratchsync/pkg/errors"
	"github.com/sidkik/scratchsync/pkg/logging"
)

// Global flags, bound by the root command.
var (
	// ConfigPath is the value of --config.
	ConfigPath string

	// Verbose is the value of --verbose.
	Verbose bool
)

// Mocked for unit testing.
var (
	stderr io.Writer = os.Stderr
	exit             = os.Exit
)

// SetupLogging configures the standard logger to write tagged lines to
// stderr. stdout is reserved for output that's meant to be evaluated by the
// shell.
func SetupLogging(verbose bool) {
	log.SetOutput(stderr)
	log.SetFormatter(&logging.Formatter{})
	if verbose {
		log.SetLevel(log.DebugLevel)
	}
}

// HandleFatalError prints the error and exits with the code associated with
// it.
func HandleFatalError(err error) {
	fmt.Fprintf(stderr, "Error: %s\n", errors.GetPrintableMessage(err))
	log.WithError(err).Debug("Fatal error")
	exit(errors.ExitCode(err))
}

// HandlePanic reports a panic in the current goroutine and exits. It must be
// deferred.
func HandlePanic() {
	if r := recover(); r != nil {
		fmt.Fprintf(stderr, "scratchsync crashed: %v\n\n%s", r, debug.Stack())
		exit(1)
	}
}

// ResolveConfigPath returns the config path selected by --config, the
// environment, or the default.
func ResolveConfigPath() (string, error) {
	path, err := config.GetConfigPath(ConfigPath)
	if err != nil {
		return "", errors.WithContext(err, "get config path")
	}
	return path, nil
}

// LoadConfig loads and validates the selected config.
func LoadConfig() (config.Config, error) {
	path, err := ResolveConfigPath()
	if err != nil {
		return config.Config{}, err
	}
	return config.Load(path)
}

// SignalContext returns a context that's cancelled when the process is
// interrupted, so that in-flight copies are killed and locks released.
func SignalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
