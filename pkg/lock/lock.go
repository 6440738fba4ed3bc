// Package lock implements cross-process mutual exclusion using advisory
// file locks. The lock file is the coordination medium, so it works between
// unrelated processes and between cluster nodes that share a filesystem.
package lock

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/jonboulle/clockwork"
	log "github.com/sirupsen/logrus"

	"github.com/sidkik/scratchsync/pkg/errors"
	"github.com/sidkik/scratchsync/pkg/logging"
)

// DefaultPollInterval is the time between lock attempts.
const DefaultPollInterval = 500 * time.Millisecond

// TimeoutError is returned when a lock could not be acquired before the
// timeout expired.
type TimeoutError struct {
	Path    string
	Timeout time.Duration
}

func (err *TimeoutError) Error() string {
	return fmt.Sprintf("could not acquire lock on %s after %s. "+
		"Another scratchsync process may be running", err.Path, err.Timeout)
}

// IsTimeout returns whether err was caused by a lock timeout.
func IsTimeout(err error) bool {
	var timeoutErr *TimeoutError
	return errors.As(err, &timeoutErr)
}

// Options configures lock acquisition. A zero Timeout makes a single
// attempt. The other fields fall back to defaults when unset.
type Options struct {
	Timeout      time.Duration
	PollInterval time.Duration
	Clock        clockwork.Clock
	Log          log.FieldLogger
}

func (opts Options) withDefaults() Options {
	if opts.Timeout < 0 {
		opts.Timeout = 0
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Log == nil {
		opts.Log = log.StandardLogger()
	}
	return opts
}

// Lock is a held exclusive lock.
type Lock struct {
	path  string
	flock *flock.Flock
}

// Acquire takes an exclusive lock on path. It never blocks in the kernel:
// it polls with a non-blocking attempt and sleeps between attempts, so that
// both the timeout and ctx are honored promptly.
func Acquire(ctx context.Context, path string, opts Options) (*Lock, error) {
	opts = opts.withDefaults()

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, errors.WithContext(err, "create lock directory")
	}

	fileLock := flock.New(path)
	start := opts.Clock.Now()
	for {
		locked, err := fileLock.TryLock()
		if err != nil {
			return nil, errors.WithContext(err, "try lock")
		}
		if locked {
			return &Lock{path: path, flock: fileLock}, nil
		}

		elapsed := opts.Clock.Since(start)
		if elapsed >= opts.Timeout {
			fileLock.Close()
			return nil, &TimeoutError{Path: path, Timeout: opts.Timeout}
		}

		wait := opts.PollInterval
		if remaining := opts.Timeout - elapsed; remaining < wait {
			wait = remaining
		}

		logging.Tag(opts.Log, logging.StatusLock).Infof(
			"Waiting for lock on %s (%.0fs/%.0fs)...",
			filepath.Base(path), elapsed.Seconds(), opts.Timeout.Seconds())

		select {
		case <-ctx.Done():
			fileLock.Close()
			return nil, ctx.Err()
		case <-opts.Clock.After(wait):
		}
	}
}

// Path returns the path of the lock file.
func (l *Lock) Path() string {
	return l.path
}

// Release unlocks and closes the lock file. It is safe to call multiple
// times, and on a nil Lock.
func (l *Lock) Release() error {
	if l == nil {
		return nil
	}
	return l.flock.Close()
}

// With runs fn while holding the lock at path. The lock is released however
// fn exits.
func With(ctx context.Context, path string, opts Options, fn func() error) error {
	l, err := Acquire(ctx, path, opts)
	if err != nil {
		return err
	}
	defer func() {
		if err := l.Release(); err != nil {
			log.WithError(err).WithField("path", path).Debug("Failed to release lock")
		}
	}()
	return fn()
}
