package push

import (
	"os"
	"path/filepath"
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sidkik/scratchsync/pkg/config"
	"github.com/sidkik/scratchsync/pkg/copier"
	"github.com/sidkik/scratchsync/pkg/copier/mocks"
	"github.com/sidkik/scratchsync/pkg/sync"
)

func mockCommand(t *testing.T, cfg config.Config, c copier.Copier) {
	oldLoad, oldCopier := loadConfig, newCopier
	t.Cleanup(func() {
		loadConfig, newCopier = oldLoad, oldCopier
	})

	loadConfig = func() (config.Config, error) { return cfg, nil }
	newCopier = func(log.FieldLogger) copier.Copier { return c }
}

func testConfig(t *testing.T) config.Config {
	root := t.TempDir()
	cfg := config.Default()
	cfg.ScratchBase = filepath.Join(root, "scratch")
	cfg.Vars = map[string]config.Var{
		"HF_HOME":    {Source: filepath.Join(root, "hf"), Enabled: true},
		"TORCH_HOME": {Source: filepath.Join(root, "torch"), Enabled: true},
	}
	require.NoError(t, os.MkdirAll(cfg.ScratchDirFor("HF_HOME"), 0755))
	return cfg
}

func TestRun(t *testing.T) {
	cfg := testConfig(t)
	c := &mocks.Copier{}
	c.On("CopyDir", mock.Anything, cfg.ScratchDirFor("HF_HOME"),
		cfg.Vars["HF_HOME"].Source, copier.Options{}).Return(nil).Once()
	mockCommand(t, cfg, c)

	// TORCH_HOME was never synced, so there's nothing to push.
	require.NoError(t, run(sync.Options{}))
	c.AssertExpectations(t)
	assert.DirExists(t, cfg.Vars["HF_HOME"].Source)
}

func TestRunDryRun(t *testing.T) {
	cfg := testConfig(t)
	c := &mocks.Copier{}
	mockCommand(t, cfg, c)

	require.NoError(t, run(sync.Options{DryRun: true}))
	c.AssertNotCalled(t, "CopyDir", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	assert.NoDirExists(t, cfg.Vars["HF_HOME"].Source)
}

func TestRunFailure(t *testing.T) {
	cfg := testConfig(t)
	c := &mocks.Copier{}
	c.On("CopyDir", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(&copier.CopyError{ExitCode: 11})
	mockCommand(t, cfg, c)

	assert.Error(t, run(sync.Options{Only: []string{"HF_HOME"}}))
}
