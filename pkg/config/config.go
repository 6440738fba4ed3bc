package config

import (
	"fmt"
	"os"

	"github.com/ghodss/yaml"
	"github.com/spf13/afero"

	"github.com/sidkik/scratchsync/pkg/errors"
)

// parseErrTemplate is shown for any config that isn't valid YAML, or that
// doesn't match the Config schema. The parser's own message is appended,
// since it's the only pointer to the offending field.
const parseErrTemplate = "Configuration file could not be parsed. " +
	"Please review %q.\n" +
	"Common pitfalls include:\n" +
	" - Using the wrong types for fields\n" +
	" - Having extra fields inside the config file\n\n" +
	"For reference, here is the error from the parser:\n" +
	"%s"

type incompatibleVersionError struct {
	path, exp, actual string
}

func (err incompatibleVersionError) Error() string {
	return err.FriendlyMessage()
}

func (err incompatibleVersionError) FriendlyMessage() string {
	return fmt.Sprintf("The configuration file %q is incompatible "+
		"with this version of scratchsync.\n"+
		"Expected version %q, but got %q. "+
		"Re-run `scratchsync config init` to recreate it.",
		err.path, err.exp, err.actual)
}

// versionHeader is the part of the config that's read before the rest of
// the schema is enforced.
type versionHeader struct {
	Version string `json:"version"`
}

// readConfig decodes the file at path into cfg. Fields missing from the file
// keep the values already in cfg.
func readConfig(path string, cfg *Config) error {
	configBytes, err := afero.ReadFile(fs, path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return errors.FileNotFound{Path: path}
	case err != nil:
		return errors.WithContext(err, "read file")
	}

	// A config from another version is likely to have unknown fields too, so
	// the version is checked before the strict decode to report the more
	// useful error.
	header := versionHeader{Version: InitialConfigVersion}
	if err := yaml.Unmarshal(configBytes, &header); err != nil {
		return errors.NewFriendlyError(parseErrTemplate, path, err)
	}
	if header.Version != SupportedConfigVersion {
		return incompatibleVersionError{path, SupportedConfigVersion, header.Version}
	}

	err = yaml.UnmarshalStrict(configBytes, cfg, yaml.DisallowUnknownFields)
	if err != nil {
		return errors.NewFriendlyError(parseErrTemplate, path, err)
	}
	return nil
}
