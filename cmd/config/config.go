package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	homedir "github.com/mitchellh/go-homedir"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/sidkik/scratchsync/cmd/util"
	"github.com/sidkik/scratchsync/pkg/config"
	"github.com/sidkik/scratchsync/pkg/errors"
)

// Mocked for unit testing.
var (
	stdout        io.Writer = os.Stdout
	stdin         io.Reader = os.Stdin
	getenv                  = os.Getenv
	getHomeDir              = homedir.Dir
	getConfigPath           = util.ResolveConfigPath
	loadConfig              = util.LoadConfig
	detectPresets           = config.DetectPresets
)

type initOptions struct {
	scratchBase string
	vars        []string
	presets     bool
	force       bool
}

// New creates a new `config` command.
func New() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the scratchsync configuration",
	}

	var initOpts initOptions
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Create the scratchsync config",
		Run: func(_ *cobra.Command, _ []string) {
			if err := runInit(initOpts); err != nil {
				err = errors.NewFriendlyError("Failed to setup configuration:\n%s",
					errors.GetPrintableMessage(err))
				util.HandleFatalError(err)
			}
		},
	}
	initCmd.Flags().StringVar(&initOpts.scratchBase, "scratch-base", "",
		"Set the scratch base directory, e.g. $SCRATCH. "+
			"Optional: If not set, `scratchsync config init` will interactively prompt.")
	initCmd.Flags().StringArrayVar(&initOpts.vars, "var", nil,
		"Manage the variable NAME, whose persistent cache is at PATH. "+
			"Formatted as NAME=PATH. Can be repeated.")
	initCmd.Flags().BoolVar(&initOpts.presets, "presets", false,
		"Manage every well-known cache that exists in the home directory ("+
			strings.Join(config.PresetNames(), ", ")+")")
	initCmd.Flags().BoolVar(&initOpts.force, "force", false,
		"Overwrite an existing config")

	cmd.AddCommand(
		initCmd,
		&cobra.Command{
			Use:   "add-var NAME PATH",
			Short: "Start managing a cache directory",
			Args:  cobra.ExactArgs(2),
			Run: func(_ *cobra.Command, args []string) {
				if err := addVar(args[0], args[1]); err != nil {
					util.HandleFatalError(err)
				}
			},
		},
		&cobra.Command{
			Use:   "remove-var NAME",
			Short: "Stop managing a cache directory",
			Args:  cobra.ExactArgs(1),
			Run: func(_ *cobra.Command, args []string) {
				if err := removeVar(args[0]); err != nil {
					util.HandleFatalError(err)
				}
			},
		},
		&cobra.Command{
			Use:   "path",
			Short: "Print the path of the config file",
			Run: func(_ *cobra.Command, _ []string) {
				path, err := getConfigPath()
				if err != nil {
					util.HandleFatalError(err)
				}
				fmt.Fprintln(stdout, path)
			},
		},
	)

	// Setup the commands for querying the contents of the config.
	type getterSpec struct {
		use, short string
		fn         func(config.Config) string
	}

	getters := []getterSpec{
		{
			use:   "get-scratch-base",
			short: "Get the expanded scratch base directory",
			fn:    func(cfg config.Config) string { return cfg.ScratchBase },
		},
		{
			use:   "get-cache-dir",
			short: "Get the directory the caches are synced into",
			fn:    func(cfg config.Config) string { return cfg.CacheBase() },
		},
	}
	for _, getter := range getters {
		getter := getter
		cmd.AddCommand(&cobra.Command{
			Use:   getter.use,
			Short: getter.short,
			Run: func(_ *cobra.Command, _ []string) {
				cfg, err := loadConfig()
				if err != nil {
					err = errors.WithContext(err, "read config")
					util.HandleFatalError(err)
				}

				fmt.Fprintln(stdout, getter.fn(cfg))
			},
		})
	}

	return cmd
}

func runInit(opts initOptions) error {
	path, err := getConfigPath()
	if err != nil {
		return err
	}

	currConfig, err := config.LoadRaw(path)
	if err == nil && !opts.force {
		return errors.NewFriendlyError("A config already exists at %s. "+
			"Pass --force to overwrite it, or edit it with "+
			"`scratchsync config add-var`.", path)
	}
	if err != nil {
		currConfig = config.Config{}
		log.WithError(err).Debug("Failed to read current config")
	}

	cfg, err := generateConfig(opts, currConfig)
	if err != nil {
		return errors.WithContext(err, "generate config")
	}

	if err := config.Save(path, cfg); err != nil {
		return errors.WithContext(err, "write config")
	}

	fmt.Fprintf(stdout, "Wrote config to %s\n", path)
	if len(cfg.Vars) == 0 {
		fmt.Fprintln(stdout, "No variables are managed yet. "+
			"Add one with `scratchsync config add-var NAME PATH`.")
	}
	return nil
}

// generateConfig builds the initial config from the flags, and interacts
// with the user to fill in anything that's missing.
func generateConfig(opts initOptions, currConfig config.Config) (config.Config, error) {
	cfg := config.Default()
	cfg.Vars = map[string]config.Var{}

	cfg.ScratchBase = opts.scratchBase
	if cfg.ScratchBase == "" {
		var defaultAnswer string
		if getenv("SCRATCH") != "" {
			defaultAnswer = "$SCRATCH"
		}

		for {
			resp, err := promptUser(
				"Enter the base directory on the scratch filesystem.\n"+
					"Caches are copied under <scratch base>/"+config.DefaultCacheRoot+".\n"+
					"Environment variables such as $SCRATCH are expanded when the config is loaded.",
				"Scratch base", defaultAnswer, currConfig.ScratchBase)
			if err != nil {
				return config.Config{}, errors.WithContext(err, "read response")
			}

			validationErr, ok := scratchBaseValidationFn(resp)
			if ok {
				cfg.ScratchBase = resp
				break
			}
			fmt.Fprintln(stdout, validationErr)
		}
	} else if msg, ok := scratchBaseValidationFn(cfg.ScratchBase); !ok {
		return config.Config{}, errors.NewFriendlyError(msg)
	}

	if opts.presets {
		home, err := getHomeDir()
		if err != nil {
			return config.Config{}, errors.WithContext(err, "get home directory")
		}
		for name, v := range detectPresets(home) {
			cfg.Vars[name] = v
		}
	}

	for _, flag := range opts.vars {
		name, path, err := parseVarFlag(flag)
		if err != nil {
			return config.Config{}, err
		}
		cfg.Vars[name] = config.Var{Source: path, Enabled: true}
	}

	if len(cfg.Vars) != 0 {
		var names []string
		for name := range cfg.Vars {
			names = append(names, name)
		}
		sort.Strings(names)
		fmt.Fprintf(stdout, "Managing: %s\n", strings.Join(names, ", "))
	}
	return cfg, nil
}

// scratchBaseValidationFn returns whether the scratch base can be expanded
// into an absolute path. If not, it also returns a message explaining why.
func scratchBaseValidationFn(scratchBase string) (string, bool) {
	switch {
	case scratchBase == "":
		return "The scratch base cannot be empty.", false
	case filepath.IsAbs(scratchBase),
		strings.HasPrefix(scratchBase, "$"),
		strings.HasPrefix(scratchBase, "~"):
		return "", true
	}
	return "The scratch base must be an absolute path, or start with `~` " +
		"or an environment variable such as $SCRATCH.", false
}

// parseVarFlag parses a NAME=PATH pair.
func parseVarFlag(flag string) (string, string, error) {
	name, path, ok := strings.Cut(flag, "=")
	if !ok || path == "" {
		return "", "", errors.NewFriendlyError(
			"Invalid variable %q. Expected NAME=PATH.", flag)
	}
	path, err := normalizeSource(path)
	if err != nil {
		return "", "", err
	}
	return name, path, config.ValidateVarName(name)
}

// normalizeSource makes relative paths absolute. Paths that are expanded
// when the config is loaded are left alone.
func normalizeSource(path string) (string, error) {
	if filepath.IsAbs(path) || strings.HasPrefix(path, "$") ||
		strings.HasPrefix(path, "~") {
		return path, nil
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return "", errors.WithContext(err, "make path absolute")
	}
	return abs, nil
}

func addVar(name, path string) error {
	if err := config.ValidateVarName(name); err != nil {
		return err
	}
	path, err := normalizeSource(path)
	if err != nil {
		return err
	}

	return editConfig(func(cfg *config.Config) error {
		if cfg.Vars == nil {
			cfg.Vars = map[string]config.Var{}
		}
		if _, ok := cfg.Vars[name]; ok {
			fmt.Fprintf(stdout, "Updated %s -> %s\n", name, path)
		} else {
			fmt.Fprintf(stdout, "Added %s -> %s\n", name, path)
		}
		cfg.Vars[name] = config.Var{Source: path, Enabled: true}
		return nil
	})
}

func removeVar(name string) error {
	return editConfig(func(cfg *config.Config) error {
		if _, ok := cfg.Vars[name]; !ok {
			return errors.NewFriendlyError("%s is not a managed variable.", name)
		}
		delete(cfg.Vars, name)
		fmt.Fprintf(stdout, "Removed %s. Its scratch copy was left in place.\n", name)
		return nil
	})
}

// editConfig applies fn to the raw config on disk, so that unexpanded
// paths are preserved.
func editConfig(fn func(*config.Config) error) error {
	path, err := getConfigPath()
	if err != nil {
		return err
	}

	cfg, err := config.LoadRaw(path)
	if err != nil {
		return err
	}

	if err := fn(&cfg); err != nil {
		return err
	}

	if err := config.Save(path, cfg); err != nil {
		return errors.WithContext(err, "write config")
	}
	return nil
}

func promptUser(helpString, prompt, defaultAnswer, currAnswer string) (string, error) {
	// Display a new line at the end to separate different fields to make it
	// look clearer.
	defer fmt.Fprintln(stdout)

	options := []string{}
	if defaultAnswer != "" {
		options = append(options, defaultAnswer)
	}
	if currAnswer != "" && currAnswer != defaultAnswer {
		options = append(options, currAnswer)
	}
	options = append(options, "(Enter manually)")

	fmt.Fprintln(stdout, helpString+"\n"+prompt+":")

	stdinReader := bufio.NewReader(stdin)

	if nOptions := len(options); nOptions > 1 {
		// defaultAnswer or currAnswer exists.
		fmt.Fprintln(stdout)
		for i, option := range options {
			if i == 0 {
				option = fmt.Sprintf("%s (recommended)", option)
			}
			fmt.Fprintf(stdout, "\t%d. %s\n", i+1, option)
		}
		fmt.Fprintln(stdout)

		for {
			fmt.Fprintf(stdout, "Please choose one [1-%d]: ", nOptions)
			choiceStr, err := stdinReader.ReadString('\n')
			if err != nil {
				return "", err
			}

			var choice int
			choiceStr = strings.TrimRight(choiceStr, "\n")

			// Default to the first choice if user doesn't enter anything.
			if choiceStr == "" {
				choice = 1
			} else {
				choice, err = strconv.Atoi(choiceStr)
				if err != nil || choice < 1 || choice > nOptions {
					// Try again if the input is invalid.
					continue
				}
			}

			if choice == nOptions {
				// Enter manually.
				break
			}

			return options[choice-1], nil
		}
	}

	fmt.Fprint(stdout, "Please enter manually: ")
	resp, err := stdinReader.ReadString('\n')
	if err != nil {
		return "", err
	}

	return strings.TrimRight(resp, "\n"), nil
}
