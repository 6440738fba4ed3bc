// Package congruency detects when the user's environment disagrees with the
// config, which usually means a shell profile wasn't updated after a
// migration.
package congruency

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sidkik/scratchsync/pkg/config"
)

// Warning is a single mismatch between the environment and the config.
type Warning struct {
	VarName     string
	EnvValue    string
	ConfigValue string
	Message     string
}

// Check compares the environment, as seen through lookupEnv, against cfg.
// Vars that aren't set in the environment are ignored, since that's normal
// before the sync exports have been evaluated. A var that points at its
// scratch copy under cache_root is also not a mismatch: that's the state
// after `eval "$(scratchsync sync)"`.
func Check(cfg config.Config, lookupEnv func(string) (string, bool)) []Warning {
	var warnings []Warning
	for _, name := range cfg.SelectVars(nil) {
		envVal, ok := lookupEnv(name)
		if !ok {
			continue
		}

		source := cfg.Vars[name].Source
		envPath, err := resolve(envVal)
		if err != nil {
			continue
		}
		configPath, err := resolve(source)
		if err != nil {
			continue
		}

		if envPath == configPath {
			continue
		}

		// The var already points at its synced copy.
		if scratchPath, err := resolve(cfg.ScratchDirFor(name)); err == nil &&
			envPath == scratchPath {
			continue
		}

		warnings = append(warnings, Warning{
			VarName:     name,
			EnvValue:    envVal,
			ConfigValue: source,
			Message: fmt.Sprintf("$%s points to %s but the scratchsync "+
				"config expects %s. Did you forget to update your .bashrc "+
				"after migrating? Add: export %s=%s",
				name, envVal, source, name, source),
		})
	}

	if cfg.Apptainer != nil {
		if w, ok := checkVenvBase(cfg.Apptainer.VenvBase, lookupEnv); ok {
			warnings = append(warnings, w)
		}
	}
	return warnings
}

// checkVenvBase warns when venv_base references a set environment variable
// but doesn't expand to an existing directory.
func checkVenvBase(venvBase string, lookupEnv func(string) (string, bool)) (Warning, bool) {
	envVar, ok := referencedVar(venvBase)
	if !ok {
		return Warning{}, false
	}

	envVal, ok := lookupEnv(envVar)
	if !ok {
		return Warning{}, false
	}

	expanded := os.Expand(venvBase, func(key string) string {
		val, _ := lookupEnv(key)
		return val
	})
	if info, err := os.Stat(expanded); err == nil && info.IsDir() {
		return Warning{}, false
	}

	return Warning{
		VarName:     envVar,
		EnvValue:    envVal,
		ConfigValue: venvBase,
		Message: fmt.Sprintf("apptainer.venv_base references $%s which "+
			"expands to %s, but that directory does not exist. "+
			"Did the venvs move?", envVar, expanded),
	}, true
}

// referencedVar returns the name of the variable that path starts with, for
// paths such as `$VENV_DIR/envs` or `${VENV_DIR}/envs`.
func referencedVar(path string) (string, bool) {
	if !strings.HasPrefix(path, "$") {
		return "", false
	}

	name := strings.TrimPrefix(path, "$")
	name = strings.SplitN(name, "/", 2)[0]
	name = strings.TrimSuffix(strings.TrimPrefix(name, "{"), "}")
	return name, name != ""
}

// resolve returns the absolute path with symlinks evaluated. Paths that
// don't exist are compared by their cleaned absolute form.
func resolve(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}

	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved, nil
	}
	return abs, nil
}

// Format renders warnings for the diagnostic log. It returns an empty string
// if there are no warnings.
func Format(warnings []Warning) string {
	if len(warnings) == 0 {
		return ""
	}

	lines := []string{"Congruency check found mismatches:"}
	for _, w := range warnings {
		lines = append(lines, "  - "+w.Message)
	}
	return strings.Join(lines, "\n")
}
