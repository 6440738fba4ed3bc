package shellinit

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/sidkik/scratchsync/pkg/shell"
)

// Mocked for unit testing.
var (
	stdout io.Writer = os.Stdout
	getenv           = os.Getenv
)

// New creates a new `shell-init` command.
func New() *cobra.Command {
	var sh string
	cmd := &cobra.Command{
		Use:   "shell-init",
		Short: "Print the shell function that evaluates `scratchsync sync`",
		Long: "Print a shell function named `ss` that runs scratchsync and " +
			"evaluates the exports printed by `ss sync`. Add this to your " +
			"shell profile:\n\n" +
			"    eval \"$(scratchsync shell-init)\"",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Fprint(stdout, shell.Init(detectShell(sh)))
		},
	}
	cmd.Flags().StringVar(&sh, "shell", "",
		"The shell to generate the function for (bash, zsh, or fish). "+
			"Defaults to the basename of $SHELL.")
	return cmd
}

func detectShell(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if sh := getenv("SHELL"); sh != "" {
		return filepath.Base(sh)
	}
	return shell.Bash
}
