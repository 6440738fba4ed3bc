package sync

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/sidkik/scratchsync/ci/util"
)

const (
	hfHome    = "HF_HOME"
	torchHome = "TORCH_HOME"
)

// Test exercises `scratchsync sync` and `scratchsync push` with the real
// rsync.
func Test(t *testing.T, helper *util.TestHelper) {
	require.NoError(t, helper.WriteConfig(hfHome, torchHome))

	t.Run("InitialSync", func(t *testing.T) {
		testInitialSync(t, helper)
	})
	t.Run("SourceChange", func(t *testing.T) {
		testSourceChange(t, helper)
	})
	t.Run("Push", func(t *testing.T) {
		testPush(t, helper)
	})
	t.Run("ConcurrentSync", func(t *testing.T) {
		testConcurrentSync(t, helper)
	})
}

func testInitialSync(t *testing.T, helper *util.TestHelper) {
	ctx := context.Background()
	files := []file{
		randomFile("model.bin"),
		randomFile("hub/models--bert/config.json"),
		randomFile("hub/models--bert/blobs/abc"),
	}
	for _, f := range files {
		require.NoError(t, createFile(helper.Source(hfHome), f))
	}

	res, err := helper.Run(ctx, "sync")
	require.NoError(t, err)

	// TORCH_HOME has no source, but still gets an (empty) scratch directory.
	exports := res.Exports()
	require.Contains(t, exports, hfHome)
	require.Contains(t, exports, torchHome)
	assert.DirExists(t, exports[torchHome])
	assert.Contains(t, string(res.Stderr), "[WARN] TORCH_HOME")

	for _, f := range files {
		assert.NoError(t, shouldExist(exports[hfHome], f))
	}

	// A second sync is a no-op.
	res, err = helper.Run(ctx, "sync")
	require.NoError(t, err)
	assert.Contains(t, string(res.Stderr), "[SKIP] HF_HOME")
	assertNoErrorLogs(t, res.Stderr)
}

func testSourceChange(t *testing.T, helper *util.TestHelper) {
	ctx := context.Background()

	res, err := helper.Run(ctx, "sync", "--var", hfHome)
	require.NoError(t, err)
	scratchDir := res.Exports()[hfHome]

	added := randomFile("added").WithModTime(time.Now().Add(time.Minute).Truncate(time.Second))
	require.NoError(t, createFile(helper.Source(hfHome), added))

	res, err = helper.Run(ctx, "sync", "--var", hfHome)
	require.NoError(t, err)
	assert.Contains(t, string(res.Stderr), "[SYNC] HF_HOME")
	assert.NoError(t, shouldExist(scratchDir, added))

	// Files removed from the source are left on scratch, since sync never
	// deletes.
	require.NoError(t, os.Remove(filepath.Join(helper.Source(hfHome), added.path)))
	res, err = helper.Run(ctx, "sync", "--force", "--var", hfHome)
	require.NoError(t, err)
	assert.NoError(t, shouldExist(scratchDir, added))
	assertNoErrorLogs(t, res.Stderr)
}

func testPush(t *testing.T, helper *util.TestHelper) {
	ctx := context.Background()

	res, err := helper.Run(ctx, "sync", "--var", torchHome)
	require.NoError(t, err)
	scratchDir := res.Exports()[torchHome]

	downloaded := randomFile("checkpoints/resnet50.pth")
	require.NoError(t, createFile(scratchDir, downloaded))
	require.NoError(t, shouldNotExist(helper.Source(torchHome), downloaded))

	res, err = helper.Run(ctx, "push", "--var", torchHome)
	require.NoError(t, err)
	assert.Contains(t, string(res.Stderr), "[DONE] TORCH_HOME")
	assert.NoError(t, shouldExist(helper.Source(torchHome), downloaded))

	// The marker was refreshed against the persistent side, so the next sync
	// skips.
	res, err = helper.Run(ctx, "sync", "--var", torchHome)
	require.NoError(t, err)
	assert.Contains(t, string(res.Stderr), "[SKIP] TORCH_HOME")
	assertNoErrorLogs(t, res.Stderr)
}

// testConcurrentSync runs several forced syncs at once. They serialize on
// the per-var lock, so all of them succeed.
func testConcurrentSync(t *testing.T, helper *util.TestHelper) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	var group errgroup.Group
	for i := 0; i < 4; i++ {
		group.Go(func() error {
			_, err := helper.Run(ctx, "sync", "--force")
			return err
		})
	}
	assert.NoError(t, group.Wait())
}

func assertNoErrorLogs(t *testing.T, stderr []byte) {
	for _, line := range strings.Split(string(stderr), "\n") {
		assert.NotContains(t, line, "[ERROR]", "unexpected error log")
	}
}
