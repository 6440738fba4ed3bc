package sync

import (
	"io"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/sidkik/scratchsync/cmd/util"
	"github.com/sidkik/scratchsync/pkg/congruency"
	"github.com/sidkik/scratchsync/pkg/copier"
	"github.com/sidkik/scratchsync/pkg/errors"
	"github.com/sidkik/scratchsync/pkg/sync"
)

// Mocked for unit testing.
var (
	stdout     io.Writer = os.Stdout
	loadConfig           = util.LoadConfig
	lookupEnv            = os.LookupEnv
	newCopier            = func(logger log.FieldLogger) copier.Copier {
		return copier.NewRsync(logger)
	}
)

// New creates a new `sync` command.
func New() *cobra.Command {
	var opts sync.Options
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Copy the managed caches onto scratch",
		Long: "Copy each managed cache from persistent storage onto scratch, " +
			"skipping caches that are already up-to-date.\n\n" +
			"The export statements that point each variable at its scratch copy " +
			"are printed to stdout, so the output can be evaluated:\n\n" +
			"    eval \"$(scratchsync sync)\"",
		Run: func(_ *cobra.Command, _ []string) {
			opts.Verbose = util.Verbose
			if err := run(opts); err != nil {
				util.HandleFatalError(err)
			}
		},
	}
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false,
		"Show what would be copied without copying")
	cmd.Flags().BoolVar(&opts.Force, "force", false,
		"Copy even if the scratch copy is fresh")
	cmd.Flags().StringArrayVar(&opts.Only, "var", nil,
		"Only sync the given variable. Can be repeated.")
	return cmd
}

func run(opts sync.Options) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if warnings := congruency.Check(cfg, lookupEnv); len(warnings) > 0 {
		log.Warn(congruency.Format(warnings))
	}

	ctx, cancel := util.SignalContext()
	defer cancel()

	logger := log.StandardLogger()
	report := sync.New(cfg, newCopier(logger), logger).Sync(ctx, opts)
	if err := sync.WriteExports(stdout, report); err != nil {
		return errors.WithContext(err, "write exports")
	}

	sync.SummarizeSync(logger, report, lookupEnv)
	return report.Err()
}
