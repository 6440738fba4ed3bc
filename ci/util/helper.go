package util

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io/ioutil"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/ghodss/yaml"
	log "github.com/sirupsen/logrus"

	"github.com/sidkik/scratchsync/pkg/config"
	"github.com/sidkik/scratchsync/pkg/errors"
)

// TestHelper runs the scratchsync binary against a throwaway persistent
// directory and scratch directory.
type TestHelper struct {
	Binary string

	Root       string
	Persistent string
	Scratch    string
	ConfigPath string
}

// NewTestHelper creates a new TestHelper. It's the caller's responsibility to
// call Cleanup.
func NewTestHelper(binary string) (*TestHelper, error) {
	root, err := ioutil.TempDir("", "scratchsync-ci")
	if err != nil {
		return nil, errors.WithContext(err, "make root dir")
	}

	helper := &TestHelper{
		Binary:     binary,
		Root:       root,
		Persistent: filepath.Join(root, "persistent"),
		Scratch:    filepath.Join(root, "scratch"),
		ConfigPath: filepath.Join(root, "home", ".scratchsync.yaml"),
	}
	for _, dir := range []string{helper.Persistent, helper.Scratch} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, errors.WithContext(err, "make directory")
		}
	}
	return helper, nil
}

// Cleanup removes everything the helper created.
func (helper *TestHelper) Cleanup() error {
	return os.RemoveAll(helper.Root)
}

// Source returns the persistent directory for the given var.
func (helper *TestHelper) Source(name string) string {
	return filepath.Join(helper.Persistent, name)
}

// WriteConfig writes a config that manages the given vars.
func (helper *TestHelper) WriteConfig(vars ...string) error {
	cfg := config.Default()
	cfg.ScratchBase = helper.Scratch
	cfg.LockTimeoutSeconds = 60
	cfg.Vars = map[string]config.Var{}
	for _, name := range vars {
		cfg.Vars[name] = config.Var{Source: helper.Source(name), Enabled: true}
	}

	yamlBytes, err := yaml.Marshal(cfg)
	if err != nil {
		return errors.WithContext(err, "marshal")
	}
	if err := os.MkdirAll(filepath.Dir(helper.ConfigPath), 0755); err != nil {
		return errors.WithContext(err, "make parent")
	}
	return ioutil.WriteFile(helper.ConfigPath, yamlBytes, 0644)
}

// Result is the output of a finished command.
type Result struct {
	Stdout []byte
	Stderr []byte
}

// Exports parses the export statements printed by `scratchsync sync`.
func (res Result) Exports() map[string]string {
	exports := map[string]string{}
	scanner := bufio.NewScanner(bytes.NewReader(res.Stdout))
	for scanner.Scan() {
		stmt := strings.TrimPrefix(scanner.Text(), "export ")
		if name, value, ok := strings.Cut(stmt, "="); ok {
			exports[name] = strings.Trim(value, "'")
		}
	}
	return exports
}

// Run runs the given scratchsync command against the helper's config.
func (helper *TestHelper) Run(ctx context.Context, args ...string) (Result, error) {
	cmd := exec.CommandContext(ctx, helper.Binary, args...)
	cmd.Env = append(os.Environ(), config.ConfigPathEnvKey+"="+helper.ConfigPath)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	log.WithField("args", args).Info("Running scratchsync")
	err := cmd.Run()
	res := Result{Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}
	if err != nil {
		return res, fmt.Errorf("scratchsync %s (%s): stderr: %s",
			strings.Join(args, " "), err, stderr.String())
	}
	return res, nil
}
