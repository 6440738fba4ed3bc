package image

import (
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/sidkik/scratchsync/pkg/config"
	"github.com/sidkik/scratchsync/pkg/errors"
	"github.com/sidkik/scratchsync/pkg/logging"
	"github.com/sidkik/scratchsync/pkg/status"
)

// Mode selects what Prune removes.
type Mode string

const (
	ModeBoth Mode = "both"
	ModeVenv Mode = "venv"
	ModeSif  Mode = "sif"
)

// ParseMode converts a --mode flag into a Mode.
func ParseMode(s string) (Mode, error) {
	switch mode := Mode(s); mode {
	case ModeBoth, ModeVenv, ModeSif:
		return mode, nil
	}
	return "", errors.NewFriendlyError(
		"Unknown prune mode %q. Use one of: both, venv, sif.", s)
}

func (m Mode) venv() bool { return m == ModeBoth || m == ModeVenv }
func (m Mode) sif() bool  { return m == ModeBoth || m == ModeSif }

// PruneOptions configures a prune.
type PruneOptions struct {
	Name   string
	Mode   Mode
	DryRun bool

	// Yes confirms the deletion. Without it, Prune only reports what it
	// would remove.
	Yes bool
}

// PruneTarget is a single file or directory that Prune removes.
type PruneTarget struct {
	Kind string
	Path string
	Size int64
}

// Pruner removes an image's venv, its .sif files, or both, and drops the
// image from the config once its .sif is gone.
type Pruner struct {
	configPath string
	fs         afero.Fs
	log        log.FieldLogger
}

// NewPruner creates a Pruner for the config at configPath.
func NewPruner(configPath string, logger log.FieldLogger) *Pruner {
	return &Pruner{
		configPath: configPath,
		fs:         afero.NewOsFs(),
		log:        logger,
	}
}

// Prune removes the files selected by opts.
func (p *Pruner) Prune(opts PruneOptions) error {
	if opts.Name == "" || filepath.Base(opts.Name) != opts.Name || opts.Name == ".." {
		return errors.NewFriendlyError("%q is not a valid image name.", opts.Name)
	}

	cfg, err := config.LoadRaw(p.configPath)
	if err != nil {
		return err
	}
	if cfg.Apptainer == nil {
		return ErrNotConfigured
	}

	targets, err := p.targets(*cfg.Apptainer, opts)
	if err != nil {
		return err
	}
	if len(targets) == 0 {
		p.log.Info("Nothing to prune.")
		return nil
	}

	p.log.Infof("Prune %s:", opts.Name)
	for _, target := range targets {
		p.log.Infof("  %-11s %s (%s)", target.Kind, target.Path,
			status.HumanSize(target.Size))
	}

	if opts.DryRun {
		logging.Tag(p.log, logging.StatusDryRun).Info(
			"Would delete the above. Nothing was removed.")
		return nil
	}
	if !opts.Yes {
		return errors.NewFriendlyError(
			"Nothing was removed. Pass --yes to delete the above.")
	}

	var failed int
	for _, target := range targets {
		if err := p.fs.RemoveAll(target.Path); err != nil {
			p.log.WithError(err).Errorf("Failed to delete %s", target.Path)
			failed++
			continue
		}
		logging.Tag(p.log, logging.StatusDelete).Infof("%s: %s", target.Kind, target.Path)
	}

	if _, ok := cfg.Apptainer.Images[opts.Name]; ok && opts.Mode.sif() {
		delete(cfg.Apptainer.Images, opts.Name)
		if err := config.Save(p.configPath, cfg); err != nil {
			return errors.WithContext(err, "write config")
		}
		logging.Tag(p.log, logging.StatusConfig).Infof(
			"Removed %s from the config.", opts.Name)
	}

	if failed > 0 {
		return errors.NewFriendlyError("Failed to delete %d path(s).", failed)
	}
	p.log.Info("Done.")
	return nil
}

func (p *Pruner) targets(apt config.Apptainer, opts PruneOptions) ([]PruneTarget, error) {
	sifFilename := opts.Name + ".sif"
	if img, ok := apt.Images[opts.Name]; ok && img.SifFilename != "" {
		sifFilename = img.SifFilename
	}

	var targets []PruneTarget
	add := func(kind, path string) {
		targets = append(targets, PruneTarget{
			Kind: kind,
			Path: path,
			Size: status.DirSize(p.fs, path),
		})
	}

	if opts.Mode.venv() {
		if apt.VenvBase == "" {
			logging.Tag(p.log, logging.StatusSkip).Info("venv_base is not configured")
		} else {
			venvBase, err := apt.VenvBasePath()
			if err != nil {
				return nil, errors.WithContext(err, "expand venv_base")
			}
			venvPath := filepath.Join(venvBase, opts.Name)
			if p.exists(venvPath) {
				add("venv", venvPath)
			} else {
				logging.Tag(p.log, logging.StatusSkip).Infof("Venv not found: %s", venvPath)
			}
		}
	}

	if opts.Mode.sif() {
		sifStore, err := apt.SifStorePath()
		if err != nil {
			return nil, errors.WithContext(err, "expand sif_store")
		}
		scratchDir, err := apt.ScratchSifPath()
		if err != nil {
			return nil, errors.WithContext(err, "expand scratch_sif_dir")
		}

		if sifStore != "" {
			sifPath := filepath.Join(sifStore, sifFilename)
			if p.exists(sifPath) {
				add("sif", sifPath)
			} else {
				logging.Tag(p.log, logging.StatusSkip).Infof("SIF not found: %s", sifPath)
			}

			if defPath := filepath.Join(sifStore, opts.Name+".def"); p.exists(defPath) {
				add("def", defPath)
			}
		}

		if scratchDir != "" {
			if scratchPath := filepath.Join(scratchDir, sifFilename); p.exists(scratchPath) {
				add("scratch sif", scratchPath)
			}
		}
	}
	return targets, nil
}

func (p *Pruner) exists(path string) bool {
	_, err := p.fs.Stat(path)
	return err == nil || !os.IsNotExist(err)
}
