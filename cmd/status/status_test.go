package status

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/buger/goterm"
	"github.com/jonboulle/clockwork"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sidkik/scratchsync/pkg/config"
	"github.com/sidkik/scratchsync/pkg/status"
)

func TestRun(t *testing.T) {
	oldStdout, oldLoad, oldFs, oldClock := stdout, loadConfig, fs, clock
	defer func() {
		stdout, loadConfig, fs, clock = oldStdout, oldLoad, oldFs, oldClock
	}()

	cfg := config.Default()
	cfg.ScratchBase = "/scratch"
	cfg.Vars = map[string]config.Var{
		"HF_HOME":    {Source: "/data/hf", Enabled: true},
		"TORCH_HOME": {Source: "/data/torch", Enabled: true},
	}

	out := &bytes.Buffer{}
	stdout = out
	loadConfig = func() (config.Config, error) { return cfg, nil }
	fs = afero.NewMemMapFs()
	clock = clockwork.NewFakeClockAt(time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, afero.WriteFile(fs, "/data/hf/model", make([]byte, 2048), 0644))

	require.NoError(t, run(false))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 5)
	assert.Equal(t, "Scratch: /scratch/.cache/scratchsync (0B used)", lines[0])
	assert.Equal(t, []string{"VARIABLE", "SOURCE", "SOURCE", "SIZE", "SCRATCH",
		"SIZE", "LAST", "SYNC", "STATE"}, strings.Fields(lines[2]))
	assert.Equal(t, []string{"HF_HOME", "/data/hf", "2.0K", "-", "never", "not", "synced"},
		strings.Fields(lines[3]))
	assert.Equal(t, []string{"TORCH_HOME", "/data/torch", "-", "-", "never", "source", "missing"},
		strings.Fields(lines[4]))
}

func TestRunNoVars(t *testing.T) {
	oldStdout, oldLoad := stdout, loadConfig
	defer func() {
		stdout, loadConfig = oldStdout, oldLoad
	}()

	out := &bytes.Buffer{}
	stdout = out
	loadConfig = func() (config.Config, error) {
		cfg := config.Default()
		cfg.ScratchBase = "/scratch"
		return cfg, nil
	}

	require.NoError(t, run(true))
	assert.Contains(t, out.String(), "No variables configured")
}

func TestStateString(t *testing.T) {
	assert.Equal(t, goterm.Color("fresh", goterm.GREEN), stateString(status.Fresh).String())
	assert.Equal(t, goterm.Color("source missing", goterm.RED),
		stateString(status.SourceMissing).String())
	assert.Equal(t, "other", stateString(status.State("other")).String())
}
