package sync

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/sidkik/scratchsync/pkg/config"
	"github.com/sidkik/scratchsync/pkg/copier"
	"github.com/sidkik/scratchsync/pkg/errors"
	"github.com/sidkik/scratchsync/pkg/lock"
	"github.com/sidkik/scratchsync/pkg/logging"
	"github.com/sidkik/scratchsync/pkg/marker"
)

// Options configures a sync or push.
type Options struct {
	// DryRun reports what would be copied without taking locks or copying.
	DryRun bool

	// Force ignores freshness markers. It has no effect on push.
	Force bool

	// Only restricts the run to the named vars. Empty means all enabled
	// vars.
	Only []string

	// Verbose streams rsync's output to the log.
	Verbose bool
}

// Syncer syncs the vars of a single config.
type Syncer struct {
	cfg    config.Config
	copier copier.Copier
	store  *marker.Store
	fs     afero.Fs
	clock  clockwork.Clock
	log    log.FieldLogger

	lockPollInterval time.Duration
}

// New creates a Syncer that works on the local filesystem.
func New(cfg config.Config, c copier.Copier, logger log.FieldLogger) *Syncer {
	fs := afero.NewOsFs()
	clock := clockwork.NewRealClock()
	return &Syncer{
		cfg:              cfg,
		copier:           c,
		store:            marker.New(fs, clock, cfg.MarkerPathFor),
		fs:               fs,
		clock:            clock,
		log:              logger,
		lockPollInterval: lock.DefaultPollInterval,
	}
}

// Sync copies each selected var from persistent storage to scratch.
func (s *Syncer) Sync(ctx context.Context, opts Options) Report {
	names := s.cfg.SelectVars(opts.Only)
	if len(names) == 0 {
		s.log.Info("No variables to sync.")
		return Report{}
	}

	if err := s.fs.MkdirAll(s.cfg.CacheBase(), 0755); err != nil {
		s.log.WithError(err).Warnf("Failed to create %s", s.cfg.CacheBase())
	}

	s.log.Infof("scratchsync: syncing %d variable(s) to %s",
		len(names), s.cfg.ScratchBase)

	results := make([]Result, len(names))
	RunBounded(ctx, len(names), s.cfg.ParallelJobs, func(ctx context.Context, i int) {
		results[i] = s.syncOne(ctx, names[i], opts)
		if results[i].Outcome == Failed {
			s.log.WithError(results[i].Err).Errorf("Failed to sync %s", names[i])
		}
	})
	return NewReport(results)
}

func (s *Syncer) syncOne(ctx context.Context, name string, opts Options) Result {
	source := s.cfg.Vars[name].Source
	target := s.cfg.ScratchDirFor(name)
	res := Result{Name: name, Path: target}

	exists, err := afero.Exists(s.fs, source)
	if err != nil {
		return failed(res, errors.WithContext(err, "stat source"))
	}

	if !exists {
		s.log.Warnf("%s: source %s does not exist, skipping rsync", name, source)
		if err := s.fs.MkdirAll(target, 0755); err != nil {
			return failed(res, errors.WithContext(err, "create target"))
		}
		res.Outcome = WarnedMissingSource
		return res
	}

	if !opts.Force && s.store.ShouldSkip(name, source, s.cfg.FreshnessWindow()) {
		logging.Tag(s.log, logging.StatusSkip).Infof("%s: already up-to-date", name)
		res.Outcome = Skipped
		return res
	}

	if opts.DryRun {
		logging.Tag(s.log, logging.StatusDryRun).Infof(
			"%s: would sync %s -> %s", name, source, target)
		res.Outcome = Skipped
		res.DryRun = true
		return res
	}

	err = lock.With(ctx, s.cfg.LockPathFor(name), s.lockOptions(), func() error {
		logging.Tag(s.log, logging.StatusSync).Infof("%s: %s -> %s", name, source, target)
		return s.copyAndMark(ctx, name, source, target, opts.Verbose)
	})
	if err != nil {
		return failed(res, err)
	}

	res.Outcome = Copied
	return res
}

// Push copies each selected var's scratch directory back to its persistent
// source.
func (s *Syncer) Push(ctx context.Context, opts Options) Report {
	names := s.cfg.SelectVars(opts.Only)
	if len(names) == 0 {
		s.log.Info("No variables to push.")
		return Report{}
	}

	results := make([]Result, len(names))
	RunBounded(ctx, len(names), s.cfg.ParallelJobs, func(ctx context.Context, i int) {
		results[i] = s.pushOne(ctx, names[i], opts)
		if results[i].Outcome == Failed {
			s.log.WithError(results[i].Err).Errorf("Failed to push %s", names[i])
		}
	})
	return NewReport(results)
}

func (s *Syncer) pushOne(ctx context.Context, name string, opts Options) Result {
	dest := s.cfg.Vars[name].Source
	scratch := s.cfg.ScratchDirFor(name)
	res := Result{Name: name, Path: dest}

	exists, err := afero.DirExists(s.fs, scratch)
	if err != nil {
		return failed(res, errors.WithContext(err, "stat scratch dir"))
	}

	if !exists {
		logging.Tag(s.log, logging.StatusSkip).Infof(
			"%s: scratch dir %s does not exist", name, scratch)
		res.Outcome = Skipped
		return res
	}

	if opts.DryRun {
		logging.Tag(s.log, logging.StatusDryRun).Infof(
			"%s: would push %s -> %s", name, scratch, dest)
		res.Outcome = Skipped
		res.DryRun = true
		return res
	}

	err = lock.With(ctx, s.cfg.LockPathFor(name), s.lockOptions(), func() error {
		logging.Tag(s.log, logging.StatusPush).Infof("%s: %s -> %s", name, scratch, dest)
		return s.copyAndMark(ctx, name, scratch, dest, opts.Verbose)
	})
	if err != nil {
		return failed(res, err)
	}

	logging.Tag(s.log, logging.StatusDone).Info(name)
	res.Outcome = Copied
	return res
}

// copyAndMark copies source into target, and then records the sync in the
// var's marker. The marker is always written against the persistent side,
// which is target for a push.
func (s *Syncer) copyAndMark(ctx context.Context, name, source, target string,
	verbose bool) error {

	if err := s.fs.MkdirAll(target, 0755); err != nil {
		return errors.WithContext(err, "create target")
	}

	copyCtx := ctx
	if timeout := s.cfg.CopyTimeout(); timeout > 0 {
		var cancel context.CancelFunc
		copyCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	err := s.copier.CopyDir(copyCtx, source, target, copier.Options{
		ExtraArgs: s.cfg.RsyncExtraArgs,
		Verbose:   verbose,
	})
	if err != nil {
		return errors.WithContext(err, "copy")
	}

	persistent := s.cfg.Vars[name].Source
	if err := s.store.Write(name, persistent); err != nil {
		return errors.WithContext(err, "write marker")
	}
	return nil
}

func (s *Syncer) lockOptions() lock.Options {
	return lock.Options{
		Timeout:      s.cfg.LockTimeout(),
		PollInterval: s.lockPollInterval,
		Clock:        s.clock,
		Log:          s.log,
	}
}

func failed(res Result, err error) Result {
	res.Outcome = Failed
	res.Err = err
	return res
}
