// Package migrate relocates a managed directory to new persistent storage
// and updates the config to match.
package migrate

import (
	"context"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jonboulle/clockwork"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/sidkik/scratchsync/pkg/config"
	"github.com/sidkik/scratchsync/pkg/copier"
	"github.com/sidkik/scratchsync/pkg/errors"
	"github.com/sidkik/scratchsync/pkg/logging"
	"github.com/sidkik/scratchsync/pkg/shell"
	"github.com/sidkik/scratchsync/pkg/venv"
)

// Config fields that can be migrated, in addition to var sources.
const (
	FieldSource   = "source"
	FieldVenvBase = "venv_base"
	FieldSifStore = "sif_store"
)

// VenvBaseEnvKey is the environment variable that users point at the venv
// base.
const VenvBaseEnvKey = "VENV_DIR"

// Options configures a migration.
type Options struct {
	// What is a var name, FieldVenvBase, or FieldSifStore.
	What string

	// To is the new location. It may contain `~` and environment variables.
	To string

	DryRun bool

	// KeepOld leaves the old directory in place.
	KeepOld bool

	// Yes confirms deleting the old directory. Without it, the old directory
	// is kept.
	Yes bool

	Verbose bool
}

// Target is a resolved migration target.
type Target struct {
	What    string
	Field   string
	OldPath string
}

// IsVar returns whether the target is a var's source.
func (t Target) IsVar() bool {
	return t.Field == FieldSource
}

// Migrator migrates the directories of the config at a single path.
type Migrator struct {
	configPath string
	copier     copier.Copier
	fs         afero.Fs
	clock      clockwork.Clock
	log        log.FieldLogger
}

// New creates a Migrator that works on the local filesystem.
func New(configPath string, c copier.Copier, logger log.FieldLogger) *Migrator {
	return &Migrator{
		configPath: configPath,
		copier:     c,
		fs:         afero.NewOsFs(),
		clock:      clockwork.NewRealClock(),
		log:        logger,
	}
}

// Run copies the target to its new location, rewrites any venvs that moved,
// records the migration in the config, and optionally removes the old
// directory.
func (m *Migrator) Run(ctx context.Context, opts Options) error {
	cfg, err := config.LoadRaw(m.configPath)
	if err != nil {
		return err
	}

	target, err := Resolve(cfg, opts.What)
	if err != nil {
		return err
	}

	if opts.To == "" {
		return errors.NewFriendlyError("No destination given for %s.", opts.What)
	}
	newPath, err := config.ExpandPath(opts.To)
	if err != nil {
		return errors.WithContext(err, "expand destination")
	}
	if newPath, err = filepath.Abs(newPath); err != nil {
		return errors.WithContext(err, "resolve destination")
	}

	resolvedNew, resolvedOld := resolvePath(newPath), resolvePath(target.OldPath)
	switch {
	case resolvedNew == resolvedOld:
		return errors.NewFriendlyError(
			"Source and destination are the same: %s", newPath)
	case isWithin(resolvedOld, resolvedNew):
		return errors.NewFriendlyError(
			"Destination %s is inside the source %s.", newPath, target.OldPath)
	case isWithin(resolvedNew, resolvedOld):
		return errors.NewFriendlyError(
			"Source %s is inside the destination %s.", target.OldPath, newPath)
	}
	if exists, _ := afero.Exists(m.fs, target.OldPath); !exists {
		return errors.NewFriendlyError(
			"Source path does not exist: %s", target.OldPath)
	}

	m.logPlan(target, newPath, opts.KeepOld)
	if opts.DryRun {
		logging.Tag(m.log, logging.StatusDryRun).Info("No changes made.")
		return nil
	}

	logging.Tag(m.log, logging.StatusRsync).Infof("%s -> %s", target.OldPath, newPath)
	if err := m.fs.MkdirAll(newPath, 0755); err != nil {
		return errors.WithContext(err, "create destination")
	}
	err = m.copier.CopyDir(ctx, target.OldPath, newPath, copier.Options{
		Delete:  true,
		Verbose: opts.Verbose,
	})
	if err != nil {
		return errors.WithContext(err, "copy")
	}
	logging.Tag(m.log, logging.StatusRsync).Info("Done.")

	if target.Field == FieldVenvBase {
		if err := m.fixupVenvs(newPath, target.OldPath); err != nil {
			return errors.WithContext(err, "fix up venvs")
		}
	}

	updateConfig(&cfg, target, newPath)
	cfg.Migrations = append(cfg.Migrations, config.MigrationRecord{
		OldPath:    target.OldPath,
		NewPath:    newPath,
		MigratedAt: m.clock.Now().UTC(),
		FieldName:  target.Field,
		VarName:    varName(target),
	})
	if err := config.Save(m.configPath, cfg); err != nil {
		return errors.WithContext(err, "save config")
	}
	logging.Tag(m.log, logging.StatusConfig).Info("Updated scratchsync config.")

	switch {
	case opts.KeepOld:
		logging.Tag(m.log, logging.StatusKeep).Infof(
			"Old directory kept at %s", target.OldPath)
	case opts.Yes:
		if err := m.fs.RemoveAll(target.OldPath); err != nil {
			return errors.WithContext(err, "remove old directory")
		}
		logging.Tag(m.log, logging.StatusDelete).Infof("Removed %s", target.OldPath)
	default:
		logging.Tag(m.log, logging.StatusKeep).Infof(
			"Old directory kept at %s. Pass --yes to delete it.", target.OldPath)
	}

	m.logExportInstructions(target, newPath)
	m.log.Info("")
	m.log.Info("Done.")
	return nil
}

// Resolve finds the directory that what refers to.
func Resolve(cfg config.Config, what string) (Target, error) {
	if v, ok := cfg.Vars[what]; ok {
		old, err := config.ExpandPath(v.Source)
		if err != nil {
			return Target{}, errors.WithContext(err, "expand source")
		}
		return Target{What: what, Field: FieldSource, OldPath: old}, nil
	}

	if apt := cfg.Apptainer; apt != nil {
		var raw string
		switch what {
		case FieldVenvBase:
			raw = apt.VenvBase
		case FieldSifStore:
			raw = apt.SifStore
		}
		if raw != "" {
			old, err := config.ExpandPath(raw)
			if err != nil {
				return Target{}, errors.WithContext(err, "expand "+what)
			}
			return Target{What: what, Field: what, OldPath: old}, nil
		}
	}

	var vars []string
	for name := range cfg.Vars {
		vars = append(vars, name)
	}
	sort.Strings(vars)

	var fields []string
	if cfg.Apptainer != nil {
		fields = []string{FieldVenvBase, FieldSifStore}
	}
	return Target{}, errors.NewFriendlyError("%q is not a managed variable or "+
		"apptainer field. Managed vars: %v. Apptainer fields: %v.",
		what, vars, fields)
}

func (m *Migrator) fixupVenvs(newBase, oldBase string) error {
	fixed, err := venv.FixupMoved(newBase, oldBase)
	if err != nil {
		return err
	}

	var names []string
	for name := range fixed {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		logging.Tag(m.log, logging.StatusFixup).Infof(
			"%s: rewrote %d path(s)", name, fixed[name])
	}
	return nil
}

func updateConfig(cfg *config.Config, target Target, newPath string) {
	switch target.Field {
	case FieldSource:
		v := cfg.Vars[target.What]
		v.Source = newPath
		cfg.Vars[target.What] = v
	case FieldVenvBase:
		cfg.Apptainer.VenvBase = newPath
	case FieldSifStore:
		cfg.Apptainer.SifStore = newPath
	}
}

func varName(target Target) string {
	if target.IsVar() {
		return target.What
	}
	return ""
}

func (m *Migrator) logPlan(target Target, newPath string, keepOld bool) {
	oldDir := "delete after copy (with --yes)"
	if keepOld {
		oldDir = "keep"
	}

	m.log.Infof("Migration plan: %s", target.What)
	m.log.Infof("  Source:        %s", target.OldPath)
	m.log.Infof("  Destination:   %s", newPath)
	m.log.Info("  Copy method:   rsync -a --delete")
	m.log.Infof("  Old directory: %s", oldDir)
	m.log.Infof("  Config update: %s.%s", target.What, target.Field)
}

func (m *Migrator) logExportInstructions(target Target, newPath string) {
	var envKey string
	switch {
	case target.IsVar():
		envKey = target.What
	case target.Field == FieldVenvBase:
		envKey = VenvBaseEnvKey
	default:
		m.log.Infof("Config updated for %s. No shell changes needed.", target.What)
		return
	}

	m.log.Info("")
	m.log.Info("Update your shell profile (.bashrc / .zshrc):")
	m.log.Infof("  %s", shell.Export(envKey, newPath))
	m.log.Info("Then reload: source ~/.bashrc")
}

func resolvePath(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return path
	}

	// Resolve the deepest ancestor that exists, so that a destination that
	// hasn't been created yet is still comparable with the source.
	var missing []string
	for dir := abs; ; dir = filepath.Dir(dir) {
		if resolved, err := filepath.EvalSymlinks(dir); err == nil {
			return filepath.Join(append([]string{resolved}, missing...)...)
		}
		if parent := filepath.Dir(dir); parent == dir {
			return abs
		}
		missing = append([]string{filepath.Base(dir)}, missing...)
	}
}

// isWithin returns whether path is strictly inside dir.
func isWithin(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil || rel == "." {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
