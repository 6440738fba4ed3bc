package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/sidkik/scratchsync/cmd/check"
	configCmd "github.com/sidkik/scratchsync/cmd/config"
	"github.com/sidkik/scratchsync/cmd/image"
	"github.com/sidkik/scratchsync/cmd/migrate"
	"github.com/sidkik/scratchsync/cmd/push"
	"github.com/sidkik/scratchsync/cmd/shellinit"
	"github.com/sidkik/scratchsync/cmd/status"
	"github.com/sidkik/scratchsync/cmd/sync"
	"github.com/sidkik/scratchsync/cmd/util"
	"github.com/sidkik/scratchsync/cmd/version"
)

// verboseLogKey is the environment variable used to enable verbose logging.
// When it's set to `true`, Debug events are logged, rather than just Info and
// above.
const verboseLogKey = "SCRATCHSYNC_LOG_VERBOSE"

// Execute runs the main CLI process.
func Execute() {
	rootCmd := &cobra.Command{
		Use:   "scratchsync",
		Short: "Keep cache directories mirrored onto fast scratch storage",
		Long: "scratchsync copies cache directories such as HF_HOME from " +
			"persistent storage onto scratch, and prints the exports that " +
			"point each variable at its scratch copy.",
		SilenceUsage: true,

		// The call to rootCmd.Execute prints the error, so we silence errors
		// here to avoid double printing.
		SilenceErrors: true,
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			util.SetupLogging(util.Verbose || os.Getenv(verboseLogKey) == "true")
		},
	}
	rootCmd.PersistentFlags().StringVar(&util.ConfigPath, "config", "",
		"Path to the scratchsync config. Defaults to $SCRATCHSYNC_CONFIG, "+
			"then ~/.scratchsync.yaml")
	rootCmd.PersistentFlags().BoolVarP(&util.Verbose, "verbose", "v", false,
		"Log debug output")

	rootCmd.AddCommand(
		sync.New(),
		push.New(),
		status.New(),
		shellinit.New(),
		check.New(),
		configCmd.New(),
		image.New(),
		migrate.New(),
		version.New(),
	)

	if err := rootCmd.Execute(); err != nil {
		util.HandleFatalError(err)
	}
}
