package image

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/sidkik/scratchsync/cmd/util"
	"github.com/sidkik/scratchsync/pkg/copier"
	"github.com/sidkik/scratchsync/pkg/image"
)

// Mocked for unit testing.
var (
	stdout     io.Writer = os.Stdout
	loadConfig           = util.LoadConfig
	getConfigPath        = util.ResolveConfigPath
	fs                   = afero.NewOsFs()
	newCopier            = func(logger log.FieldLogger) copier.Copier {
		return copier.NewRsync(logger)
	}
)

// New creates a new `image` command.
func New() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "image",
		Short: "Manage the Apptainer images staged on scratch",
	}
	cmd.AddCommand(newSyncCommand(), newListCommand(), newPruneCommand())
	return cmd
}

func newSyncCommand() *cobra.Command {
	var opts image.Options
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Copy .sif images from the image store onto scratch",
		Run: func(_ *cobra.Command, _ []string) {
			if err := runSync(opts); err != nil {
				util.HandleFatalError(err)
			}
		},
	}
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false,
		"Show what would be copied without copying")
	cmd.Flags().BoolVar(&opts.Force, "force", false,
		"Copy even if the scratch copy is up-to-date")
	cmd.Flags().StringArrayVar(&opts.Only, "image", nil,
		"Only sync the given image. Can be repeated.")
	return cmd
}

func runSync(opts image.Options) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := util.SignalContext()
	defer cancel()

	logger := log.StandardLogger()
	report, err := image.New(cfg, newCopier(logger), logger).Sync(ctx, opts)
	if err != nil {
		return err
	}

	image.Summarize(logger, report)
	return report.Err()
}

func newListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the configured images",
		Run: func(_ *cobra.Command, _ []string) {
			if err := runList(); err != nil {
				util.HandleFatalError(err)
			}
		},
	}
}

func runList() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	entries, err := image.List(fs, cfg)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Fprintln(stdout, "No images configured.")
		return nil
	}

	out := tabwriter.NewWriter(stdout, 0, 10, 3, ' ', 0)
	fmt.Fprintln(out, "IMAGE\tVENV\tPYTHON\tFILE\tENABLED\tSTAGED")
	for _, e := range entries {
		fmt.Fprintf(out, "%s\t%s\t%s\t%s\t%s\t%s\n",
			e.Name, orDash(e.VenvName), orDash(e.PythonVersion), e.SifFilename,
			yesNo(e.Enabled), yesNo(e.Staged))
	}
	return out.Flush()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func newPruneCommand() *cobra.Command {
	var opts image.PruneOptions
	var mode string
	cmd := &cobra.Command{
		Use:   "prune NAME",
		Short: "Delete an image's venv, its .sif files, or both",
		Long: "Delete the venv and/or the .sif files of an image. Removing " +
			"the .sif also removes the image from the config.\n\n" +
			"Nothing is deleted without --yes.",
		Args: cobra.ExactArgs(1),
		Run: func(_ *cobra.Command, args []string) {
			opts.Name = args[0]
			if err := runPrune(opts, mode); err != nil {
				util.HandleFatalError(err)
			}
		},
	}
	cmd.Flags().StringVar(&mode, "mode", string(image.ModeBoth),
		"What to delete: both, venv, or sif")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false,
		"Show what would be deleted without deleting")
	cmd.Flags().BoolVarP(&opts.Yes, "yes", "y", false,
		"Confirm the deletion")
	return cmd
}

func runPrune(opts image.PruneOptions, mode string) error {
	var err error
	if opts.Mode, err = image.ParseMode(mode); err != nil {
		return err
	}

	path, err := getConfigPath()
	if err != nil {
		return err
	}
	return image.NewPruner(path, log.StandardLogger()).Prune(opts)
}
