package migrate

import (
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/sidkik/scratchsync/cmd/util"
	"github.com/sidkik/scratchsync/pkg/copier"
	"github.com/sidkik/scratchsync/pkg/migrate"
)

// New creates a new `migrate` command.
func New() *cobra.Command {
	var opts migrate.Options
	cmd := &cobra.Command{
		Use:   "migrate WHAT --to PATH",
		Short: "Move a managed directory to a new persistent location",
		Long: "Move a managed directory to a new location and update the " +
			"config to match.\n\n" +
			"WHAT is the name of a managed variable, `venv_base`, or " +
			"`sif_store`. Venvs are rewritten to work from their new " +
			"location. The old directory is only deleted with --yes.",
		Args: cobra.ExactArgs(1),
		Run: func(_ *cobra.Command, args []string) {
			opts.What = args[0]
			opts.Verbose = util.Verbose
			if err := run(opts); err != nil {
				util.HandleFatalError(err)
			}
		},
	}
	cmd.Flags().StringVar(&opts.To, "to", "", "The new location")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false,
		"Show the migration plan without changing anything")
	cmd.Flags().BoolVar(&opts.KeepOld, "no-delete", false,
		"Keep the old directory after copying")
	cmd.Flags().BoolVarP(&opts.Yes, "yes", "y", false,
		"Delete the old directory after copying")
	cmd.MarkFlagRequired("to")
	return cmd
}

func run(opts migrate.Options) error {
	path, err := util.ResolveConfigPath()
	if err != nil {
		return err
	}

	ctx, cancel := util.SignalContext()
	defer cancel()

	logger := log.StandardLogger()
	return migrate.New(path, copier.NewRsync(logger), logger).Run(ctx, opts)
}
