package lock

import (
	"context"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gofrs/flock"
	logrusTest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sidkik/scratchsync/pkg/errors"
)

func testOptions(timeout time.Duration) Options {
	logger, _ := logrusTest.NewNullLogger()
	return Options{
		Timeout:      timeout,
		PollInterval: 10 * time.Millisecond,
		Log:          logger,
	}
}

func TestAcquireCreatesParentDirs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a", "b", ".HF_HOME.lock")

	l, err := Acquire(context.Background(), path, testOptions(time.Second))
	require.NoError(t, err)
	assert.FileExists(t, path)
	assert.Equal(t, path, l.Path())
	assert.NoError(t, l.Release())
}

func TestReleaseIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".lock")

	l, err := Acquire(context.Background(), path, testOptions(time.Second))
	require.NoError(t, err)
	assert.NoError(t, l.Release())
	assert.NoError(t, l.Release())

	var nilLock *Lock
	assert.NoError(t, nilLock.Release())
}

func TestTimeout(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".HF_HOME.lock")

	holder := flock.New(path)
	locked, err := holder.TryLock()
	require.NoError(t, err)
	require.True(t, locked)
	defer holder.Close()

	logger, hook := logrusTest.NewNullLogger()
	opts := testOptions(50 * time.Millisecond)
	opts.Log = logger

	start := time.Now()
	_, err = Acquire(context.Background(), path, opts)
	assert.True(t, IsTimeout(err))
	assert.Less(t, time.Since(start), 5*time.Second)

	var timeoutErr *TimeoutError
	require.True(t, errors.As(err, &timeoutErr))
	assert.Equal(t, path, timeoutErr.Path)
	assert.Equal(t, 50*time.Millisecond, timeoutErr.Timeout)

	require.NotEmpty(t, hook.AllEntries())
	assert.Contains(t, hook.AllEntries()[0].Message, "Waiting for lock on .HF_HOME.lock")
}

func TestZeroTimeoutTriesOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".lock")

	l, err := Acquire(context.Background(), path, testOptions(0))
	require.NoError(t, err)
	defer l.Release()

	_, err = Acquire(context.Background(), path, testOptions(0))
	assert.True(t, IsTimeout(err))
}

func TestAcquireAfterRelease(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".lock")

	first, err := Acquire(context.Background(), path, testOptions(time.Second))
	require.NoError(t, err)

	go func() {
		time.Sleep(50 * time.Millisecond)
		first.Release()
	}()

	second, err := Acquire(context.Background(), path, testOptions(5*time.Second))
	require.NoError(t, err)
	assert.NoError(t, second.Release())
}

func TestContextCancelled(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".lock")

	held, err := Acquire(context.Background(), path, testOptions(time.Second))
	require.NoError(t, err)
	defer held.Release()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Acquire(ctx, path, testOptions(time.Minute))
	assert.Equal(t, context.Canceled, err)
}

func TestWithIsMutuallyExclusive(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".lock")

	var inside, maxInside int32
	done := make(chan error)
	for i := 0; i < 4; i++ {
		go func() {
			done <- With(context.Background(), path, testOptions(10*time.Second), func() error {
				n := atomic.AddInt32(&inside, 1)
				for {
					old := atomic.LoadInt32(&maxInside)
					if n <= old || atomic.CompareAndSwapInt32(&maxInside, old, n) {
						break
					}
				}
				time.Sleep(20 * time.Millisecond)
				atomic.AddInt32(&inside, -1)
				return nil
			})
		}()
	}

	for i := 0; i < 4; i++ {
		assert.NoError(t, <-done)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&maxInside))
}

func TestWithReleasesOnError(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".lock")
	expErr := errors.New("boom")

	err := With(context.Background(), path, testOptions(time.Second), func() error {
		return expErr
	})
	assert.Equal(t, expErr, err)

	l, err := Acquire(context.Background(), path, testOptions(0))
	require.NoError(t, err)
	assert.NoError(t, l.Release())
}
