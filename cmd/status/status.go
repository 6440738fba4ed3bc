package status

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/buger/goterm"
	"github.com/jonboulle/clockwork"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/sidkik/scratchsync/cmd/util"
	"github.com/sidkik/scratchsync/pkg/config"
	"github.com/sidkik/scratchsync/pkg/status"
)

// Mocked for unit testing.
var (
	stdout     io.Writer = os.Stdout
	loadConfig           = util.LoadConfig
	fs                   = afero.NewOsFs()
	clock                = clockwork.NewRealClock()
)

// New creates a new `status` command.
func New() *cobra.Command {
	var noColor bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the sync state and size of each managed cache",
		Run: func(_ *cobra.Command, _ []string) {
			if err := run(!noColor); err != nil {
				util.HandleFatalError(err)
			}
		},
	}
	cmd.Flags().BoolVar(&noColor, "no-color", false, "Disable colored output")
	return cmd
}

func run(color bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	entries := status.Collect(fs, clock, cfg)
	if len(entries) == 0 {
		fmt.Fprintln(stdout, "No variables configured. Run `scratchsync config add-var`.")
		return nil
	}

	printTable(stdout, cfg, entries, color)
	return nil
}

func printTable(w io.Writer, cfg config.Config, entries []status.Entry, color bool) {
	var used int64
	for _, e := range entries {
		if e.ScratchSize > 0 {
			used += e.ScratchSize
		}
	}
	fmt.Fprintf(w, "Scratch: %s (%s used)\n\n", cfg.CacheBase(), status.HumanSize(used))

	out := tabwriter.NewWriter(w, 0, 10, 3, ' ', 0)
	fmt.Fprintln(out, "VARIABLE\tSOURCE\tSOURCE SIZE\tSCRATCH SIZE\tLAST SYNC\tSTATE")
	for _, e := range entries {
		state := stateString(e.State)
		state.plain = state.plain || !color
		fmt.Fprintf(out, "%s\t%s\t%s\t%s\t%s\t%s\n",
			e.Name, e.Source,
			status.HumanSize(e.SourceSize), status.HumanSize(e.ScratchSize),
			e.LastSynced, state)
	}
	out.Flush()
}

type statusString struct {
	color int
	plain bool
	state status.State
}

func (ss statusString) String() string {
	if ss.plain {
		return string(ss.state)
	}
	return goterm.Color(string(ss.state), ss.color)
}

func stateString(state status.State) statusString {
	ss := statusString{state: state}
	switch state {
	case status.Fresh:
		ss.color = goterm.GREEN
	case status.Stale:
		ss.color = goterm.YELLOW
	case status.NotSynced:
		ss.color = goterm.YELLOW
	case status.SourceMissing:
		ss.color = goterm.RED
	default:
		ss.plain = true
	}
	return ss
}
