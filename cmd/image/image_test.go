package image

import (
	"bytes"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sidkik/scratchsync/pkg/config"
	"github.com/sidkik/scratchsync/pkg/image"
)

func TestRunList(t *testing.T) {
	oldStdout, oldLoad, oldFs := stdout, loadConfig, fs
	defer func() {
		stdout, loadConfig, fs = oldStdout, oldLoad, oldFs
	}()

	cfg := config.Default()
	cfg.Apptainer = &config.Apptainer{
		SifStore:      "/store",
		ScratchSifDir: "/scratch/sif",
		Images: map[string]config.Image{
			"torch": {VenvName: "torch", PythonVersion: "3.11.5",
				SifFilename: "torch.sif", Enabled: true},
			"jax": {SifFilename: "jax.sif"},
		},
	}

	out := &bytes.Buffer{}
	stdout = out
	loadConfig = func() (config.Config, error) { return cfg, nil }
	fs = afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/scratch/sif/torch.sif", nil, 0644))

	require.NoError(t, runList())

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, []string{"jax", "-", "-", "jax.sif", "no", "no"},
		strings.Fields(lines[1]))
	assert.Equal(t, []string{"torch", "torch", "3.11.5", "torch.sif", "yes", "yes"},
		strings.Fields(lines[2]))
}

func TestRunListNotConfigured(t *testing.T) {
	oldLoad := loadConfig
	defer func() { loadConfig = oldLoad }()

	loadConfig = func() (config.Config, error) { return config.Default(), nil }
	assert.Equal(t, image.ErrNotConfigured, runList())
}

func TestRunPrune(t *testing.T) {
	oldGetPath := getConfigPath
	defer func() { getConfigPath = oldGetPath }()

	root := t.TempDir()
	path := filepath.Join(root, "scratchsync.yaml")
	getConfigPath = func() (string, error) { return path, nil }

	venv := filepath.Join(root, "venvs", "torch")
	require.NoError(t, os.MkdirAll(venv, 0755))
	require.NoError(t, ioutil.WriteFile(filepath.Join(venv, "pyvenv.cfg"), nil, 0644))

	cfg := config.Default()
	cfg.ScratchBase = "/scratch"
	cfg.Apptainer = &config.Apptainer{VenvBase: filepath.Join(root, "venvs")}
	require.NoError(t, config.Save(path, cfg))

	_, err := image.ParseMode("everything")
	assert.Equal(t, err, runPrune(image.PruneOptions{Name: "torch"}, "everything"))
	assert.DirExists(t, venv)

	require.NoError(t, runPrune(image.PruneOptions{Name: "torch", Yes: true}, "venv"))
	assert.NoDirExists(t, venv)
}
