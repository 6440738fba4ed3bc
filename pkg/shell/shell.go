// Package shell generates the text that scratchsync hands to the user's
// shell: export statements and the init snippet that evaluates them.
package shell

import (
	"fmt"
	"strings"
	"unicode"
)

// Quote returns s in a form that the shell reads back as the same string.
// Strings made only of letters, digits, and `/-_.` are returned unchanged.
func Quote(s string) string {
	if s != "" && strings.IndexFunc(s, needsQuoting) == -1 {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func needsQuoting(r rune) bool {
	if unicode.IsLetter(r) || unicode.IsDigit(r) {
		return false
	}
	return !strings.ContainsRune("/-_.", r)
}

// Export returns a statement that sets name to value.
func Export(name, value string) string {
	return fmt.Sprintf("export %s=%s", name, Quote(value))
}

// Supported shells for Init.
const (
	Bash = "bash"
	Zsh  = "zsh"
	Fish = "fish"
)

// Init returns a shell function that runs `scratchsync sync` and evaluates
// its output. Unknown shells get the bash version.
func Init(sh string) string {
	if sh == Fish {
		return fishInit
	}
	return bashInit
}

const bashInit = `# scratchsync shell integration
# Usage: ss [command] [options]
# The default command is 'sync', whose output is evaluated.
ss() {
    local cmd="${1:-sync}"
    shift 2>/dev/null || true

    case "$cmd" in
        sync)
            eval "$(scratchsync sync "$@")"
            ;;
        *)
            scratchsync "$cmd" "$@"
            ;;
    esac
}`

const fishInit = `# scratchsync shell integration
# Usage: ss [command] [options]
# The default command is 'sync', whose output is evaluated.
function ss
    if test (count $argv) -eq 0
        eval (scratchsync sync)
        return
    end

    set cmd $argv[1]
    set -e argv[1]

    switch $cmd
        case sync
            eval (scratchsync sync $argv)
        case '*'
            scratchsync $cmd $argv
    end
end`
