package push

import (
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/sidkik/scratchsync/cmd/util"
	"github.com/sidkik/scratchsync/pkg/copier"
	"github.com/sidkik/scratchsync/pkg/sync"
)

// Mocked for unit testing.
var (
	loadConfig = util.LoadConfig
	newCopier  = func(logger log.FieldLogger) copier.Copier {
		return copier.NewRsync(logger)
	}
)

// New creates a new `push` command.
func New() *cobra.Command {
	var opts sync.Options
	cmd := &cobra.Command{
		Use:   "push",
		Short: "Copy scratch caches back to persistent storage",
		Long: "Copy each managed cache from scratch back to its persistent " +
			"source, so that anything downloaded during a job survives the " +
			"scratch purge.",
		Run: func(_ *cobra.Command, _ []string) {
			opts.Verbose = util.Verbose
			if err := run(opts); err != nil {
				util.HandleFatalError(err)
			}
		},
	}
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false,
		"Show what would be copied without copying")
	cmd.Flags().StringArrayVar(&opts.Only, "var", nil,
		"Only push the given variable. Can be repeated.")
	return cmd
}

func run(opts sync.Options) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := util.SignalContext()
	defer cancel()

	logger := log.StandardLogger()
	report := sync.New(cfg, newCopier(logger), logger).Push(ctx, opts)
	sync.SummarizePush(logger, report)
	return report.Err()
}
