// Package venv inspects and repairs Python virtual environments.
package venv

import (
	"bufio"
	"bytes"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	goVersion "github.com/hashicorp/go-version"
	"github.com/spf13/afero"

	"github.com/sidkik/scratchsync/pkg/errors"
)

// fs is used for mock tests. It will be overridden by afero.NewMemMapFs()
// in the tests.
var fs = afero.NewOsFs()

// Info describes a discovered venv.
type Info struct {
	Name          string
	Path          string
	PythonVersion string

	// MajorMinor is the Python version without the patch level, e.g. "3.11".
	MajorMinor string
}

// ParseConfig parses the `key = value` lines of a venv's pyvenv.cfg.
func ParseConfig(venvPath string) (map[string]string, error) {
	cfgPath := filepath.Join(venvPath, "pyvenv.cfg")
	b, err := afero.ReadFile(fs, cfgPath)
	if err != nil {
		return nil, errors.WithContext(err, "read pyvenv.cfg")
	}

	cfg := map[string]string{}
	scanner := bufio.NewScanner(bytes.NewReader(b))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if key, value, ok := strings.Cut(line, "="); ok {
			cfg[strings.TrimSpace(key)] = strings.TrimSpace(value)
		}
	}
	return cfg, scanner.Err()
}

// DetectPythonVersion returns the Python version a venv was created with.
// uv records it as `version_info`, and the standard library as `version`.
func DetectPythonVersion(venvPath string) (string, error) {
	cfg, err := ParseConfig(venvPath)
	if err != nil {
		return "", err
	}

	for _, key := range []string{"version_info", "version"} {
		if v := cfg[key]; v != "" {
			return v, nil
		}
	}

	var keys []string
	for key := range cfg {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return "", fmt.Errorf("could not detect Python version from %s. "+
		"Available keys: %v", filepath.Join(venvPath, "pyvenv.cfg"), keys)
}

// MajorMinor returns the "major.minor" prefix of a Python version.
func MajorMinor(pythonVersion string) string {
	if v, err := goVersion.NewVersion(pythonVersion); err == nil {
		segments := v.Segments()
		return fmt.Sprintf("%d.%d", segments[0], segments[1])
	}

	parts := strings.SplitN(pythonVersion, ".", 3)
	if len(parts) > 2 {
		parts = parts[:2]
	}
	return strings.Join(parts, ".")
}

// Validate returns an error if path doesn't look like a venv.
func Validate(path string) error {
	if isDir, _ := afero.IsDir(fs, path); !isDir {
		return fmt.Errorf("not a directory: %s", path)
	}
	if exists, _ := afero.Exists(fs, filepath.Join(path, "pyvenv.cfg")); !exists {
		return fmt.Errorf("not a Python venv (no pyvenv.cfg): %s", path)
	}
	if isDir, _ := afero.IsDir(fs, filepath.Join(path, "bin")); !isDir {
		return fmt.Errorf("not a Python venv (no bin/ directory): %s", path)
	}
	return nil
}

// List returns the venvs that are immediate children of base, sorted by
// name. Directories without a readable Python version are ignored.
func List(base string) ([]Info, error) {
	if isDir, _ := afero.IsDir(fs, base); !isDir {
		return nil, nil
	}

	children, err := afero.ReadDir(fs, base)
	if err != nil {
		return nil, errors.WithContext(err, "read venv base")
	}

	var venvs []Info
	for _, child := range children {
		if !child.IsDir() {
			continue
		}

		path := filepath.Join(base, child.Name())
		version, err := DetectPythonVersion(path)
		if err != nil {
			continue
		}
		venvs = append(venvs, Info{
			Name:          child.Name(),
			Path:          path,
			PythonVersion: version,
			MajorMinor:    MajorMinor(version),
		})
	}
	return venvs, nil
}
