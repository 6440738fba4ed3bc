package check

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/sidkik/scratchsync/cmd/util"
	"github.com/sidkik/scratchsync/pkg/congruency"
	"github.com/sidkik/scratchsync/pkg/errors"
)

// Mocked for unit testing.
var (
	stdout     io.Writer = os.Stdout
	loadConfig           = util.LoadConfig
	lookupEnv            = os.LookupEnv
)

// New creates a new `check` command.
func New() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Check that the environment agrees with the config",
		Long: "Compare the managed environment variables against the " +
			"config, and report any that still point at an old location.\n" +
			"Exits non-zero if there are mismatches.",
		Run: func(_ *cobra.Command, _ []string) {
			if err := run(); err != nil {
				util.HandleFatalError(err)
			}
		},
	}
}

func run() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	warnings := congruency.Check(cfg, lookupEnv)
	if len(warnings) == 0 {
		fmt.Fprintln(stdout, "All managed variables agree with the config.")
		return nil
	}

	fmt.Fprintln(stdout, congruency.Format(warnings))
	return errors.NewFriendlyError("%d mismatch(es) found.", len(warnings))
}
