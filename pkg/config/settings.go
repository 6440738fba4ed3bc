package config

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"time"

	"github.com/ghodss/yaml"
	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/afero"

	"github.com/sidkik/scratchsync/pkg/errors"
)

const (
	// DefaultConfigPath is the default path to the scratchsync config.
	DefaultConfigPath = "~/.scratchsync.yaml"

	// ConfigPathEnvKey overrides DefaultConfigPath when set.
	ConfigPathEnvKey = "SCRATCHSYNC_CONFIG"

	// InitialConfigVersion is the first version of the config. Config files
	// that do not specify a version will default to this version.
	InitialConfigVersion = "v1alpha1"

	// SupportedConfigVersion is the config version understood by this
	// binary.
	SupportedConfigVersion = "v1alpha1"

	DefaultCacheRoot          = ".cache/scratchsync"
	DefaultParallelJobs       = 4
	DefaultLockTimeoutSeconds = 300
	DefaultSkipIfFreshSeconds = 3600
)

// Config is the user's scratchsync configuration.
type Config struct {
	Version     string `json:"version,omitempty"`
	ScratchBase string `json:"scratch_base"`
	CacheRoot   string `json:"cache_root"`

	// Vars maps environment variable names to the persistent directory they
	// are synced from.
	Vars map[string]Var `json:"vars,omitempty"`

	RsyncExtraArgs     []string `json:"rsync_extra_args,omitempty"`
	ParallelJobs       int      `json:"parallel_jobs"`
	LockTimeoutSeconds int      `json:"lock_timeout_seconds"`
	SkipIfFreshSeconds int      `json:"skip_if_fresh_seconds"`

	// CopyTimeoutSeconds bounds a single rsync invocation. Zero disables the
	// limit.
	CopyTimeoutSeconds int `json:"copy_timeout_seconds,omitempty"`

	Apptainer  *Apptainer        `json:"apptainer,omitempty"`
	Migrations []MigrationRecord `json:"migrations,omitempty"`
}

// Var is a single managed cache directory.
type Var struct {
	Source  string `json:"source"`
	Enabled bool   `json:"enabled"`
}

// UnmarshalJSON defaults Enabled to true when the field is omitted.
func (v *Var) UnmarshalJSON(b []byte) error {
	type rawVar Var
	raw := rawVar{Enabled: true}
	if err := strictDecode(b, &raw); err != nil {
		return err
	}
	*v = Var(raw)
	return nil
}

// Apptainer configures the container images that are staged onto scratch
// alongside the caches.
type Apptainer struct {
	// VenvBase may reference an environment variable, e.g. "$VENV_DIR".
	VenvBase      string           `json:"venv_base,omitempty"`
	SifStore      string           `json:"sif_store,omitempty"`
	ScratchSifDir string           `json:"scratch_sif_dir,omitempty"`
	Images        map[string]Image `json:"images,omitempty"`
}

// Image is a packaged venv stored as a .sif file.
type Image struct {
	VenvName      string    `json:"venv_name"`
	PythonVersion string    `json:"python_version"`
	SifFilename   string    `json:"sif_filename"`
	BuiltAt       time.Time `json:"built_at,omitempty"`
	Enabled       bool      `json:"enabled"`
}

// UnmarshalJSON defaults Enabled to true when the field is omitted.
func (img *Image) UnmarshalJSON(b []byte) error {
	type rawImage Image
	raw := rawImage{Enabled: true}
	if err := strictDecode(b, &raw); err != nil {
		return err
	}
	*img = Image(raw)
	return nil
}

// MigrationRecord documents a directory that was relocated with
// `scratchsync migrate`.
type MigrationRecord struct {
	OldPath    string    `json:"old_path"`
	NewPath    string    `json:"new_path"`
	MigratedAt time.Time `json:"migrated_at"`
	FieldName  string    `json:"field_name"`
	VarName    string    `json:"var_name,omitempty"`
}

// Default returns a config with every optional field set to its default.
func Default() Config {
	return Config{
		Version:            InitialConfigVersion,
		CacheRoot:          DefaultCacheRoot,
		ParallelJobs:       DefaultParallelJobs,
		LockTimeoutSeconds: DefaultLockTimeoutSeconds,
		SkipIfFreshSeconds: DefaultSkipIfFreshSeconds,
	}
}

// homedirExpand will be overridden in mock tests
var homedirExpand = homedir.Expand

// getenv will be overridden in mock tests
var getenv = os.Getenv

// GetConfigPath returns the expanded path to the config file. An explicit
// path takes precedence over the environment, which takes precedence over
// DefaultConfigPath.
func GetConfigPath(explicit string) (string, error) {
	path := explicit
	if path == "" {
		path = getenv(ConfigPathEnvKey)
	}
	if path == "" {
		path = DefaultConfigPath
	}
	return homedirExpand(path)
}

// Load parses and validates the config at the given path. All returned
// errors are ConfigErrors.
func Load(path string) (Config, error) {
	cfg, err := load(path)
	if err != nil {
		return Config{}, errors.ConfigError{Err: err}
	}
	return cfg, nil
}

// LoadRaw parses the config at the given path without expanding or
// validating it. It's used to edit the config in place, so that references
// such as $SCRATCH survive a Save.
func LoadRaw(path string) (Config, error) {
	cfg, err := loadRaw(path)
	if err != nil {
		return Config{}, errors.ConfigError{Err: err}
	}
	return cfg, nil
}

func loadRaw(path string) (Config, error) {
	cfg := Default()
	if err := readConfig(path, &cfg); err != nil {
		if _, ok := err.(errors.FileNotFound); ok {
			return Config{}, errors.NewFriendlyError("The scratchsync config "+
				"file doesn't exist at %q. Please run `scratchsync config init` "+
				"to create it.", path)
		}
		return Config{}, errors.WithContext(err, "parse")
	}
	return cfg, nil
}

func load(path string) (Config, error) {
	cfg, err := loadRaw(path)
	if err != nil {
		return Config{}, err
	}

	cfg.ScratchBase, err = ExpandPath(cfg.ScratchBase)
	if err != nil {
		return Config{}, errors.WithContext(err, "expand scratch_base")
	}

	for name, v := range cfg.Vars {
		v.Source, err = ExpandPath(v.Source)
		if err != nil {
			return Config{}, errors.WithContext(err, "expand source of "+name)
		}
		cfg.Vars[name] = v
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, errors.WithContext(err, "validate")
	}
	return cfg, nil
}

// Validate checks the invariants the sync engine relies on.
func (c Config) Validate() error {
	if c.ScratchBase == "" {
		return errors.NewFriendlyError("scratch_base is empty. If it " +
			"references an environment variable such as $SCRATCH, make sure " +
			"the variable is set.")
	}
	if c.ParallelJobs < 1 {
		return errors.NewFriendlyError(
			"parallel_jobs must be at least 1, got %d", c.ParallelJobs)
	}
	if c.LockTimeoutSeconds < 0 || c.SkipIfFreshSeconds < 0 ||
		c.CopyTimeoutSeconds < 0 {
		return errors.NewFriendlyError("timeouts and freshness windows " +
			"cannot be negative")
	}
	for _, name := range sortedKeys(c.Vars) {
		v := c.Vars[name]
		if err := ValidateVarName(name); err != nil {
			return err
		}
		if v.Source == "" {
			return errors.WithContext(errors.MissingFieldError{Field: "source"},
				"var "+name)
		}
		if !filepath.IsAbs(v.Source) {
			return errors.NewFriendlyError(
				"The source for %s must be an absolute path, got %q.",
				name, v.Source)
		}
	}
	if c.Apptainer != nil {
		for _, name := range sortedKeys(c.Apptainer.Images) {
			if !imageNamePattern.MatchString(name) {
				return errors.NewFriendlyError(
					"%q is not a valid image name. Use letters, digits, `.`, `_` and `-`.",
					name)
			}
			if file := c.Apptainer.Images[name].SifFilename; file != "" &&
				(filepath.Base(file) != file || file == "..") {
				return errors.NewFriendlyError(
					"The sif_filename for image %s must be a file name, got %q.",
					name, file)
			}
		}
	}
	return nil
}

var (
	varNamePattern   = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
	imageNamePattern = regexp.MustCompile(`^[A-Za-z0-9_][A-Za-z0-9._-]*$`)
)

// ValidateVarName returns a friendly error if name can't be used as an
// environment variable. Var names end up in export statements and in paths
// under cache_root.
func ValidateVarName(name string) error {
	if !varNamePattern.MatchString(name) {
		return errors.NewFriendlyError("%q is not a valid environment variable name.", name)
	}
	return nil
}

func sortedKeys[T any](items map[string]T) []string {
	var names []string
	for name := range items {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Save writes the config to disk.
func Save(path string, cfg Config) error {
	cfg.Version = SupportedConfigVersion
	yamlBytes, err := yaml.Marshal(cfg)
	if err != nil {
		return errors.WithContext(err, "marshal")
	}

	if err := fs.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.WithContext(err, "create parent directory")
	}

	if err := afero.WriteFile(fs, path, yamlBytes, 0644); err != nil {
		return errors.WithContext(err, "write")
	}
	return nil
}

// ExpandPath expands a leading `~` and any environment variables in path.
func ExpandPath(path string) (string, error) {
	expanded, err := homedirExpand(path)
	if err != nil {
		return "", err
	}
	return os.Expand(expanded, getenv), nil
}

// CacheBase is the directory on scratch that holds every synced cache, along
// with their markers and locks.
func (c Config) CacheBase() string {
	return filepath.Join(c.ScratchBase, c.CacheRoot)
}

// ScratchDirFor returns the scratch directory the given var is synced to.
func (c Config) ScratchDirFor(name string) string {
	return filepath.Join(c.CacheBase(), name)
}

// MarkerPathFor returns the path of the freshness marker for the given var.
func (c Config) MarkerPathFor(name string) string {
	return filepath.Join(c.CacheBase(), "."+name+".synced")
}

// LockPathFor returns the path of the lock file for the given var.
func (c Config) LockPathFor(name string) string {
	return filepath.Join(c.CacheBase(), "."+name+".lock")
}

func (c Config) LockTimeout() time.Duration {
	return time.Duration(c.LockTimeoutSeconds) * time.Second
}

func (c Config) FreshnessWindow() time.Duration {
	return time.Duration(c.SkipIfFreshSeconds) * time.Second
}

func (c Config) CopyTimeout() time.Duration {
	return time.Duration(c.CopyTimeoutSeconds) * time.Second
}

// SelectVars returns the sorted names of the enabled vars. If only is
// non-empty, the result is further restricted to names in only.
func (c Config) SelectVars(only []string) []string {
	return selectEnabled(c.Vars, func(v Var) bool { return v.Enabled }, only)
}

// SelectImages is the image equivalent of SelectVars.
func (a Apptainer) SelectImages(only []string) []string {
	return selectEnabled(a.Images, func(img Image) bool { return img.Enabled }, only)
}

func selectEnabled[T any](items map[string]T, enabled func(T) bool,
	only []string) []string {

	wanted := map[string]struct{}{}
	for _, name := range only {
		wanted[name] = struct{}{}
	}

	var names []string
	for name, item := range items {
		if !enabled(item) {
			continue
		}
		if _, ok := wanted[name]; len(only) != 0 && !ok {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// VenvBasePath returns the expanded venv base directory.
func (a Apptainer) VenvBasePath() (string, error) {
	return ExpandPath(a.VenvBase)
}

// SifStorePath returns the expanded persistent image store.
func (a Apptainer) SifStorePath() (string, error) {
	return ExpandPath(a.SifStore)
}

// ScratchSifPath returns the expanded scratch directory for images.
func (a Apptainer) ScratchSifPath() (string, error) {
	return ExpandPath(a.ScratchSifDir)
}

func strictDecode(b []byte, v interface{}) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
