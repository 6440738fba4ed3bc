// Package copier copies directories and files with rsync.
package copier

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/sidkik/scratchsync/pkg/errors"
)

// Exit codes that rsync uses for conditions that are common on a live
// shared filesystem and aren't fatal to a sync.
const (
	exitPartialTransfer = 23
	exitSourceVanished  = 24
)

// Mocked for unit testing.
var lookPath = exec.LookPath

// Options configures a directory copy.
type Options struct {
	// ExtraArgs are passed to rsync before the paths.
	ExtraArgs []string

	// Delete removes files from the target that don't exist in the source.
	// It's only appropriate when the source is becoming the new canonical
	// copy.
	Delete bool

	// Verbose streams rsync's output to the diagnostic log.
	Verbose bool
}

// Copier copies the contents of one directory into another.
type Copier interface {
	CopyDir(ctx context.Context, source, target string, opts Options) error
	CopyFile(ctx context.Context, source, target string) error
}

// CopyError is returned when rsync exits with an unexpected code.
type CopyError struct {
	ExitCode int
	Stderr   string
}

func (err *CopyError) Error() string {
	msg := fmt.Sprintf("rsync failed with exit code %d", err.ExitCode)
	if stderr := strings.TrimSpace(err.Stderr); stderr != "" {
		msg += ": " + stderr
	}
	return msg
}

// ToolNotFoundError is returned when rsync isn't installed.
type ToolNotFoundError struct {
	Binary string
}

func (err *ToolNotFoundError) Error() string {
	return fmt.Sprintf("%s not found in PATH", err.Binary)
}

func (err *ToolNotFoundError) FriendlyMessage() string {
	return fmt.Sprintf("%s is required but was not found in your PATH.\n"+
		"On clusters that use environment modules, try `module load %s`.\n"+
		"Otherwise, install it with your system's package manager.",
		err.Binary, err.Binary)
}

// Rsync implements Copier by shelling out to rsync.
type Rsync struct {
	// Binary defaults to "rsync".
	Binary string
	Log    log.FieldLogger
}

// NewRsync returns an Rsync that logs to the given logger.
func NewRsync(logger log.FieldLogger) *Rsync {
	return &Rsync{Binary: "rsync", Log: logger}
}

// CopyDir copies the contents of source into target. Both paths are given
// to rsync with a trailing slash, so source itself is never nested inside
// target.
func (r *Rsync) CopyDir(ctx context.Context, source, target string, opts Options) error {
	return r.run(ctx, DirArgs(source, target, opts), opts.Verbose)
}

// CopyFile copies a single file to target.
func (r *Rsync) CopyFile(ctx context.Context, source, target string) error {
	return r.run(ctx, FileArgs(source, target), false)
}

// DirArgs returns the rsync arguments used by CopyDir.
func DirArgs(source, target string, opts Options) []string {
	args := baseArgs()
	if opts.Delete {
		args = append(args, "--delete")
	}
	args = append(args, opts.ExtraArgs...)
	if opts.Verbose {
		args = append(args, "--verbose")
	}
	return append(args, withTrailingSlash(source), withTrailingSlash(target))
}

// FileArgs returns the rsync arguments used by CopyFile.
func FileArgs(source, target string) []string {
	return append(baseArgs(), source, target)
}

func baseArgs() []string {
	return []string{
		"-a",
		"--info=progress2",
		"--info=name0",
		"--human-readable",
	}
}

func withTrailingSlash(path string) string {
	return strings.TrimRight(path, "/") + "/"
}

func (r *Rsync) run(ctx context.Context, args []string, verbose bool) error {
	binary := r.Binary
	if binary == "" {
		binary = "rsync"
	}
	logger := r.Log
	if logger == nil {
		logger = log.StandardLogger()
	}

	path, err := lookPath(binary)
	if err != nil {
		return &ToolNotFoundError{Binary: binary}
	}

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, path, args...)
	cmd.Stdout = io.Discard
	cmd.Stderr = &stderr
	if verbose {
		out := logger.WithField("cmd", binary).WriterLevel(log.InfoLevel)
		defer out.Close()
		cmd.Stdout = out
		cmd.Stderr = io.MultiWriter(&stderr, out)
	}

	err = cmd.Run()
	if err == nil {
		return nil
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return errors.WithContext(ctxErr, "rsync")
	}

	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		return errors.WithContext(err, "run rsync")
	}

	switch code := exitErr.ExitCode(); code {
	case exitPartialTransfer, exitSourceVanished:
		logger.Warnf("rsync exited with code %d (partial transfer / "+
			"vanished files). Continuing.", code)
		return nil
	default:
		return &CopyError{ExitCode: code, Stderr: stderr.String()}
	}
}
