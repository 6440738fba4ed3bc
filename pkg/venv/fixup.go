package venv

import (
	"bytes"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/spf13/afero"

	"github.com/sidkik/scratchsync/pkg/errors"
)

var virtualEnvPattern = regexp.MustCompile(`VIRTUAL_ENV=["']?([^"';\n]+)["']?`)

// Fixup rewrites the paths baked into a venv so that they match where it is
// now. The old location is read from bin/activate. It returns the number of
// files that were, or in a dry run would be, rewritten.
func Fixup(path string, dryRun bool) (int, error) {
	activate := filepath.Join(path, "bin", "activate")
	b, err := afero.ReadFile(fs, activate)
	if err != nil {
		return 0, nil
	}

	match := virtualEnvPattern.FindSubmatch(b)
	if match == nil {
		return 0, nil
	}

	oldPath := strings.TrimSpace(string(match[1]))
	if oldPath == path {
		return 0, nil
	}
	return rewrite(path, oldPath, path, dryRun)
}

// FixupMoved rewrites every venv under newBase that was previously under
// oldBase. It's used after relocating a whole venv directory.
func FixupMoved(newBase, oldBase string) (map[string]int, error) {
	venvs, err := List(newBase)
	if err != nil {
		return nil, err
	}

	fixed := map[string]int{}
	for _, v := range venvs {
		oldVenv := strings.TrimRight(oldBase, "/") + "/" + v.Name
		newVenv := strings.TrimRight(newBase, "/") + "/" + v.Name
		n, err := rewrite(v.Path, oldVenv, newVenv, false)
		if err != nil {
			return fixed, errors.WithContext(err, v.Name)
		}
		if n > 0 {
			fixed[v.Name] = n
		}
	}
	return fixed, nil
}

// rewrite replaces oldPath with newPath in bin/activate, and in the shebang
// line of every other script in bin/.
func rewrite(venvPath, oldPath, newPath string, dryRun bool) (int, error) {
	binDir := filepath.Join(venvPath, "bin")
	scripts, err := afero.ReadDir(fs, binDir)
	if err != nil {
		return 0, nil
	}

	var fixed int
	for _, script := range scripts {
		if !script.Mode().IsRegular() {
			continue
		}

		scriptPath := filepath.Join(binDir, script.Name())
		contents, err := afero.ReadFile(fs, scriptPath)
		if err != nil {
			continue
		}

		var updated []byte
		if script.Name() == "activate" {
			updated = bytes.ReplaceAll(contents, []byte(oldPath), []byte(newPath))
		} else {
			if !bytes.HasPrefix(contents, []byte("#!")) {
				continue
			}
			firstLine, rest, hasRest := bytes.Cut(contents, []byte("\n"))
			updated = bytes.ReplaceAll(firstLine, []byte(oldPath), []byte(newPath))
			if hasRest {
				updated = append(append(updated, '\n'), rest...)
			}
		}

		if bytes.Equal(updated, contents) {
			continue
		}

		fixed++
		if dryRun {
			continue
		}
		if err := afero.WriteFile(fs, scriptPath, updated, script.Mode().Perm()); err != nil {
			return fixed, errors.WithContext(err, "rewrite "+script.Name())
		}
	}
	return fixed, nil
}
