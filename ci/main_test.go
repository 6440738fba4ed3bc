//go:build ci
// +build ci

package main

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sidkik/scratchsync/ci/sync"
	"github.com/sidkik/scratchsync/ci/util"
)

type TestFunction func(*testing.T, *util.TestHelper)

// binaryEnvKey optionally points at the scratchsync binary under test.
// Otherwise, it's looked up in the PATH.
const binaryEnvKey = "CI_SCRATCHSYNC_BINARY"

func TestScratchsync(t *testing.T) {
	binary, ok := os.LookupEnv(binaryEnvKey)
	if !ok {
		binary = "scratchsync"
	}

	tests := []struct {
		name   string
		testFn TestFunction
	}{
		{
			name:   "FileSync",
			testFn: sync.Test,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			helper, err := util.NewTestHelper(binary)
			require.NoError(t, err)
			defer helper.Cleanup()

			test.testFn(t, helper)
		})
	}
}
