// Package image stages Apptainer .sif images from persistent storage onto
// scratch.
package image

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/jonboulle/clockwork"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/sidkik/scratchsync/pkg/config"
	"github.com/sidkik/scratchsync/pkg/copier"
	"github.com/sidkik/scratchsync/pkg/errors"
	"github.com/sidkik/scratchsync/pkg/lock"
	"github.com/sidkik/scratchsync/pkg/logging"
	"github.com/sidkik/scratchsync/pkg/sync"
)

// ErrNotConfigured is returned when the config has no apptainer section.
var ErrNotConfigured = errors.NewFriendlyError(
	"Apptainer is not configured. Add an `apptainer` section to your " +
		"scratchsync config first.")

// Options configures an image sync.
type Options struct {
	DryRun bool

	// Force copies images even if the scratch copy is at least as new as
	// the stored one.
	Force bool

	Only []string
}

// Syncer copies the images of a single config.
type Syncer struct {
	cfg    config.Config
	copier copier.Copier
	fs     afero.Fs
	clock  clockwork.Clock
	log    log.FieldLogger

	lockPollInterval time.Duration
}

// New creates a Syncer that works on the local filesystem.
func New(cfg config.Config, c copier.Copier, logger log.FieldLogger) *Syncer {
	return &Syncer{
		cfg:              cfg,
		copier:           c,
		fs:               afero.NewOsFs(),
		clock:            clockwork.NewRealClock(),
		log:              logger,
		lockPollInterval: lock.DefaultPollInterval,
	}
}

// Sync copies each selected image onto scratch. Images are only copied when
// the stored file is newer than the scratch copy.
func (s *Syncer) Sync(ctx context.Context, opts Options) (sync.Report, error) {
	apt := s.cfg.Apptainer
	if apt == nil {
		return sync.Report{}, ErrNotConfigured
	}

	sifStore, err := apt.SifStorePath()
	if err != nil {
		return sync.Report{}, errors.WithContext(err, "expand sif_store")
	}
	scratchDir, err := apt.ScratchSifPath()
	if err != nil {
		return sync.Report{}, errors.WithContext(err, "expand scratch_sif_dir")
	}

	names := apt.SelectImages(opts.Only)
	if len(names) == 0 {
		s.log.Info("No apptainer images to sync.")
		return sync.Report{}, nil
	}

	s.log.Infof("scratchsync: syncing %d apptainer image(s)", len(names))
	if err := s.fs.MkdirAll(scratchDir, 0755); err != nil {
		return sync.Report{}, errors.WithContext(err, "create scratch image dir")
	}

	results := make([]sync.Result, len(names))
	sync.RunBounded(ctx, len(names), s.cfg.ParallelJobs, func(ctx context.Context, i int) {
		name := names[i]
		img := apt.Images[name]
		results[i] = s.syncOne(ctx, name,
			filepath.Join(sifStore, img.SifFilename),
			filepath.Join(scratchDir, img.SifFilename),
			opts)
		if results[i].Outcome == sync.Failed {
			s.log.WithError(results[i].Err).Errorf("Failed to sync %s", name)
		}
	})
	return sync.NewReport(results), nil
}

func (s *Syncer) syncOne(ctx context.Context, name, source, target string,
	opts Options) sync.Result {

	res := sync.Result{Name: name, Path: target}

	sourceInfo, err := s.fs.Stat(source)
	if err != nil {
		if !os.IsNotExist(err) {
			return failedResult(res, errors.WithContext(err, "stat source"))
		}
		s.log.Warnf("%s: %s does not exist, skipping", name, source)
		res.Outcome = sync.WarnedMissingSource
		return res
	}

	if !opts.Force && s.upToDate(sourceInfo, target) {
		logging.Tag(s.log, logging.StatusSkip).Infof("%s: already up-to-date", name)
		res.Outcome = sync.Skipped
		return res
	}

	if opts.DryRun {
		logging.Tag(s.log, logging.StatusDryRun).Infof(
			"%s: would sync %s -> %s", name, source, target)
		res.Outcome = sync.Skipped
		res.DryRun = true
		return res
	}

	lockPath := filepath.Join(filepath.Dir(target), "."+name+".sif.lock")
	lockOpts := lock.Options{
		Timeout:      s.cfg.LockTimeout(),
		PollInterval: s.lockPollInterval,
		Clock:        s.clock,
		Log:          s.log,
	}
	err = lock.With(ctx, lockPath, lockOpts, func() error {
		logging.Tag(s.log, logging.StatusSync).Infof("%s: %s -> %s", name, source, target)
		return s.copier.CopyFile(ctx, source, target)
	})
	if err != nil {
		return failedResult(res, err)
	}

	res.Outcome = sync.Copied
	return res
}

func (s *Syncer) upToDate(source os.FileInfo, target string) bool {
	targetInfo, err := s.fs.Stat(target)
	if err != nil {
		return false
	}
	return !targetInfo.ModTime().Before(source.ModTime())
}

func failedResult(res sync.Result, err error) sync.Result {
	res.Outcome = sync.Failed
	res.Err = err
	return res
}

// Summarize logs the overall result of an image sync.
func Summarize(logger log.FieldLogger, report sync.Report) {
	if len(report.Results) == 0 {
		return
	}

	logger.Info("")
	if failed := len(report.Failed()); failed > 0 {
		logger.Infof("%d image(s) failed to sync.", failed)
	} else {
		logger.Info("Done. All images synced successfully.")
	}
}

// Entry describes a configured image.
type Entry struct {
	Name string
	config.Image

	// Path is the image's location in the persistent store.
	Path string

	// Staged is true if the image is present on scratch.
	Staged bool
}

// List returns every configured image, enabled or not, sorted by name.
func List(fs afero.Fs, cfg config.Config) ([]Entry, error) {
	apt := cfg.Apptainer
	if apt == nil {
		return nil, ErrNotConfigured
	}

	sifStore, err := apt.SifStorePath()
	if err != nil {
		return nil, errors.WithContext(err, "expand sif_store")
	}
	scratchDir, err := apt.ScratchSifPath()
	if err != nil {
		return nil, errors.WithContext(err, "expand scratch_sif_dir")
	}

	var entries []Entry
	for _, name := range sortedNames(apt.Images) {
		img := apt.Images[name]
		staged, _ := afero.Exists(fs, filepath.Join(scratchDir, img.SifFilename))
		entries = append(entries, Entry{
			Name:   name,
			Image:  img,
			Path:   filepath.Join(sifStore, img.SifFilename),
			Staged: staged,
		})
	}
	return entries, nil
}

func sortedNames(images map[string]config.Image) []string {
	var names []string
	for name := range images {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
